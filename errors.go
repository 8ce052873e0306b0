package sfmgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/prebundle"
	"github.com/hupe1980/sfmgo/reconstruct"
)

var (
	// ErrNoViewports is returned when the pipeline is run without input views.
	ErrNoViewports = errors.New("no viewports")

	// ErrCorruptPrebundle is returned when a configured prebundle file
	// exists but cannot be parsed.
	ErrCorruptPrebundle = errors.New("corrupt prebundle")

	// ErrReconstructionFailed is returned when no initial camera pair
	// could be posed.
	ErrReconstructionFailed = errors.New("reconstruction failed")
)

// ErrInvalidInput indicates malformed pipeline input. Malformed input is
// fatal and reported immediately, before any stage runs.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidInput struct {
	Stage string
	cause error
}

func (e *ErrInvalidInput) Error() string {
	return fmt.Sprintf("invalid input in %s stage: %v", e.Stage, e.cause)
}

func (e *ErrInvalidInput) Unwrap() error { return e.cause }

func translateError(stage string, err error) error {
	if err == nil {
		return nil
	}

	// Structural input errors are fatal in every stage.
	var lm *feature.ErrLengthMismatch
	var dd *feature.ErrDescriptorDimension
	var ev *feature.ErrViewport
	if errors.As(err, &lm) || errors.As(err, &dd) || errors.As(err, &ev) {
		return &ErrInvalidInput{Stage: stage, cause: err}
	}

	// Prebundle unification.
	if errors.Is(err, prebundle.ErrCorruptFile) || errors.Is(err, prebundle.ErrInvalidSignature) {
		return fmt.Errorf("%w: %w", ErrCorruptPrebundle, err)
	}

	// An initial pair that cannot be posed ends the pipeline.
	if errors.Is(err, reconstruct.ErrNotEnoughSharedTracks) {
		return fmt.Errorf("%w: %w", ErrReconstructionFailed, err)
	}

	return err
}
