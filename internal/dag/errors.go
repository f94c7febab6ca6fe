package dag

import "errors"

// ErrNodeNotFound is returned when an operation references a bead id that
// has not been added to the graph. Use errors.Is to check for it.
var ErrNodeNotFound = errors.New("dag: node not found")

// ErrNodeExists is returned by AddNode when the given id is already present.
var ErrNodeExists = errors.New("dag: node already exists")

// ErrSelfLoop is returned when an edge would make a node depend on itself.
var ErrSelfLoop = errors.New("dag: self loop")

// ErrCycle is returned when adding an edge would introduce a cycle.
var ErrCycle = errors.New("dag: would introduce cycle")

// ErrEdgeExists is returned by AddEdge when the (dependency, dependent) pair
// is already present in the graph, regardless of dependency type.
var ErrEdgeExists = errors.New("dag: edge already exists")
