package persistence

import "github.com/google/uuid"

// NewBeadID generates an identifier for a bead whose caller did not supply
// one. Identifiers are opaque to the rest of the system; the prefix only
// exists so humans reading logs can tell beads from workflows at a glance.
func NewBeadID() string {
	return "bead-" + uuid.New().String()
}

// NewWorkflowID generates an identifier for a workflow.
func NewWorkflowID() string {
	return "wf-" + uuid.New().String()
}
