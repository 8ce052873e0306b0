package matching

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// progress is the shared pair counter. Logging is throttled so large
// runs do not flood the log with per-pair lines.
type progress struct {
	total    int64
	done     atomic.Int64
	accepted atomic.Int64
	logOnce  rate.Sometimes
	logger   *slog.Logger
}

func newProgress(total int, logger *slog.Logger) *progress {
	return &progress{
		total:   int64(total),
		logOnce: rate.Sometimes{First: 1, Interval: 2 * time.Second},
		logger:  logger,
	}
}

// step records one finished pair and occasionally reports overall state.
func (p *progress) step(accepted bool) {
	done := p.done.Add(1)
	if accepted {
		p.accepted.Add(1)
	}
	p.logOnce.Do(func() {
		p.logger.Info("matching progress",
			"done", done,
			"total", p.total,
			"accepted", p.accepted.Load(),
		)
	})
}
