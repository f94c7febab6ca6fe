package heartbeat

import "errors"

// ErrWorkerNotRegistered is returned when RecordSuccess/RecordFailure/
// StatusOf/Failures is called for a worker id that was never registered. Use errors.Is to
// check for it.
var ErrWorkerNotRegistered = errors.New("heartbeat: worker not registered")

// ErrWorkerAlreadyRegistered is returned by Register when the worker id is
// already being monitored.
var ErrWorkerAlreadyRegistered = errors.New("heartbeat: worker already registered")

// ErrInvalidCheckInterval is returned by NewMonitor when the configured
// check interval falls outside [1s, 3600s].
var ErrInvalidCheckInterval = errors.New("heartbeat: check interval out of range")
