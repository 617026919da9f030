// Package errors provides application error types for the extraction pipeline.
//
// This package defines:
//   - AppError type with error classification
//   - Error constructors for each failure class
//   - Error type checking helpers
//
// # Error Types
//
//   - Transient: download/upload failure of one unit of work, never aborts siblings
//   - Subprocess: non-zero exit of a domain binary
//   - Invariant: ingested-size mismatch, identifier collision, missing required key; terminal for the step
//   - ProfilerTimeout: monitor missed its hand-back; the worker still reports its timers
//   - Invocation: remote invocations reported failed by the function-execution service
//
// # Usage
//
// Create errors using constructor functions:
//
//	return apperrors.Invariant("ingested size mismatch").WithDetail("missing", key)
//	return apperrors.Transient("download failed", err)
//
// Check error types:
//
//	if apperrors.IsInvariant(err) {
//	    // abort the step
//	}
package errors
