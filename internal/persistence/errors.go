package persistence

import "errors"

// ErrNotFound is returned when a bead or dependency edge lookup finds no
// matching record. Use errors.Is to check for it.
var ErrNotFound = errors.New("persistence: not found")

// ErrAlreadyExists is returned by Save when a record with the same id is
// already present and the store does not treat Save as an upsert.
var ErrAlreadyExists = errors.New("persistence: already exists")
