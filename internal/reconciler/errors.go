package reconciler

import "errors"

// ErrInvalidConfig is returned by New when the executor is nil or a Config
// value is out of range (a negative threshold or concurrency ceiling).
var ErrInvalidConfig = errors.New("reconciler: invalid config")

// ErrActionFailed is a sentinel for action failures. Reconcile neither
// returns nor wraps it: executor errors are recorded as strings in
// ReconcileResult.ActionsFailed.
var ErrActionFailed = errors.New("reconciler: action failed")
