// Package testutil provides testing utilities for the reconstruction
// pipeline.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating SIFT-like descriptors and synthetic
// multi-view scenes with known ground-truth geometry.
//
// # Random Descriptor Generation
//
//	rng := testutil.NewRNG(seed)
//	d := rng.Descriptor(feature.SiftDim)       // unit-norm, non-negative
//	d2 := rng.Perturb(d, 0.05)                 // noisy observation of d
//
// # Synthetic Scenes
//
//	scene := testutil.NewScene(rng, 100, 5, 1.0)
//	viewports := scene.MakeViewports(rng, 0.02)
//
// Cameras are placed on an arc looking at the point cloud, so every
// generated viewport pair has real epipolar geometry to verify against.
package testutil
