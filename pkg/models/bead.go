// Package models defines the shared record types that flow between the
// scheduler, reconciler, worker pool and persistence layers.
package models

import "time"

// BeadState is the lifecycle state of a unit of work. Transitions between
// these states are the events the reconciler and scheduler reason about.
type BeadState string

const (
	BeadPending    BeadState = "pending"
	BeadReady      BeadState = "ready"
	BeadDispatched BeadState = "dispatched"
	BeadAssigned   BeadState = "assigned"
	BeadRunning    BeadState = "running"
	BeadCompleted  BeadState = "completed"
	BeadFailed     BeadState = "failed"
	BeadCancelled  BeadState = "cancelled"
)

// IsTerminal reports whether no further transition is expected from this
// state without external intervention (a retry or reschedule).
func (s BeadState) IsTerminal() bool {
	switch s {
	case BeadCompleted, BeadFailed, BeadCancelled:
		return true
	default:
		return false
	}
}

// DependencyType distinguishes edges that gate readiness from edges that
// only express a preferred ordering hint.
type DependencyType string

const (
	// BlockingDependency means the dependent cannot become ready until the
	// dependency reaches BeadCompleted.
	BlockingDependency DependencyType = "blocking"
	// PreferredOrder is advisory only: it never blocks readiness.
	PreferredOrder DependencyType = "preferred"
)

// Bead is a single unit of work inside a workflow DAG.
type Bead struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	Title         string         `json:"title"`
	State         BeadState      `json:"state"`
	Priority      int            `json:"priority"`
	ClaimedBy     string         `json:"claimed_by,omitempty"`
	AssignedQueue string         `json:"assigned_queue,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Transitions   []Transition   `json:"transitions,omitempty"`
}

// Transition is a single recorded state change, used by the reconciler to
// measure how long a bead has been in its current state.
type Transition struct {
	From      BeadState `json:"from"`
	To        BeadState `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// RunningSince scans the transition history backwards for the most recent
// transition into BeadRunning. It returns the zero time and false if the
// bead has never entered BeadRunning.
func (b *Bead) RunningSince() (time.Time, bool) {
	for i := len(b.Transitions) - 1; i >= 0; i-- {
		if b.Transitions[i].To == BeadRunning {
			return b.Transitions[i].Timestamp, true
		}
	}
	return time.Time{}, false
}

// Apply records a transition and updates derived timestamp fields the way
// the persistence layer is expected to on every state write.
func (b *Bead) Apply(to BeadState, reason string, now time.Time) {
	from := b.State
	b.Transitions = append(b.Transitions, Transition{From: from, To: to, Timestamp: now, Reason: reason})
	b.State = to
	b.UpdatedAt = now
	switch to {
	case BeadRunning:
		if b.StartedAt == nil {
			t := now
			b.StartedAt = &t
		}
	case BeadCompleted, BeadFailed, BeadCancelled:
		t := now
		b.CompletedAt = &t
	}
}

// DependencyEdge records that Dependent depends on Dependency with the given
// dependency type, scoped to a single workflow.
type DependencyEdge struct {
	WorkflowID string         `json:"workflow_id"`
	Dependency string         `json:"dependency"`
	Dependent  string         `json:"dependent"`
	Type       DependencyType `json:"type"`
}
