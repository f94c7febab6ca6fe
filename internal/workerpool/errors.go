package workerpool

import "errors"

// ErrWorkerNotFound is returned when an operation references a worker id
// that has not been added to the pool. Use errors.Is to check for it.
var ErrWorkerNotFound = errors.New("workerpool: worker not found")

// ErrWorkerExists is returned by Add when the given id is already registered.
var ErrWorkerExists = errors.New("workerpool: worker already exists")

// ErrAlreadyClaimed is returned by Claim when the worker is already busy.
var ErrAlreadyClaimed = errors.New("workerpool: worker already claimed")

// ErrInvalidTransition is returned by Claim/Release when the worker's
// current state does not permit the requested transition.
var ErrInvalidTransition = errors.New("workerpool: invalid state transition")
