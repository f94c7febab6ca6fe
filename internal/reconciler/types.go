package reconciler

import (
	"fmt"
	"time"

	"github.com/jordanhubbard/oya-go/pkg/models"
)

// Complexity is a coarse sizing hint carried on a BeadSpec, used by external
// dispatchers to route work to an appropriately sized worker; the core
// itself never branches on it.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// BeadSpec is the desired-state specification for one bead: what it would
// take to create it if it does not yet exist in actual state.
type BeadSpec struct {
	Title        string
	Complexity   Complexity
	Dependencies []string
	Metadata     map[string]any
}

// DesiredState maps bead id to its desired specification.
type DesiredState map[string]BeadSpec

// StateTransition is one recorded transition in a BeadProjection's history,
// the same shape as models.Transition but keyed on reconciler-local state
// names so the reconciler does not need to import the persistence-facing
// terminal state set (BackingOff/Paused/Scheduled only exist at this
// projection layer, upstream of where they are folded into models.BeadState
// by whatever persists them).
type StateTransition struct {
	From      ProjectionState
	To        ProjectionState
	Timestamp time.Time
	Reason    string
}

// ProjectionState is the state vocabulary the reconciler's diff reasons
// about. It is richer than models.BeadState in the transient direction
// (Scheduled, BackingOff, Paused) because those states only ever exist in
// the reconciler's view of the world between a Pending bead and a Running
// one; persistence and the scheduler actor fold them back onto
// models.BeadState at their own boundaries.
type ProjectionState string

const (
	StatePending    ProjectionState = "pending"
	StateScheduled  ProjectionState = "scheduled"
	StateReady      ProjectionState = "ready"
	StateRunning    ProjectionState = "running"
	StatePaused     ProjectionState = "paused"
	StateBackingOff ProjectionState = "backing_off"
	StateCompleted  ProjectionState = "completed"
	StateFailed     ProjectionState = "failed"
	StateCancelled  ProjectionState = "cancelled"
)

// BeadProjection is the reconciler's borrowed view of one bead's observed
// state: current state, who (if anyone) claims it, which dependency ids
// still block it, and its transition history.
type BeadProjection struct {
	BeadID       string
	CurrentState ProjectionState
	ClaimedBy    string
	BlockedBy    []string
	History      []StateTransition
}

// IsBlocked reports whether the projection still has outstanding blockers.
func (p BeadProjection) IsBlocked() bool {
	return len(p.BlockedBy) > 0
}

// ActualState is the reconciler's borrowed observed-state snapshot: every
// known bead projection plus a precomputed running count (the diff needs it
// on almost every pass, so it is carried alongside rather than recomputed).
type ActualState struct {
	Beads        map[string]BeadProjection
	RunningCount int
}

// NewActualState returns an empty ActualState ready for Update calls.
func NewActualState() ActualState {
	return ActualState{Beads: make(map[string]BeadProjection)}
}

// Update inserts or replaces a projection, keeping RunningCount consistent.
func (a *ActualState) Update(p BeadProjection) {
	if a.Beads == nil {
		a.Beads = make(map[string]BeadProjection)
	}
	if old, ok := a.Beads[p.BeadID]; ok && old.CurrentState == StateRunning {
		a.RunningCount--
	}
	a.Beads[p.BeadID] = p
	if p.CurrentState == StateRunning {
		a.RunningCount++
	}
}

// OrphanedBeads returns every projection present in a but absent from
// desired, sorted by bead id for determinism.
func (a ActualState) OrphanedBeads(desired DesiredState) []BeadProjection {
	var out []BeadProjection
	for id, p := range a.Beads {
		if _, wanted := desired[id]; !wanted {
			out = append(out, p)
		}
	}
	sortProjections(out)
	return out
}

// ReadyToRun returns Scheduled projections with no outstanding blockers,
// sorted by bead id so StartBead dispatch order is deterministic.
func (a ActualState) ReadyToRun() []BeadProjection {
	var out []BeadProjection
	for _, p := range a.Beads {
		if p.CurrentState == StateScheduled && !p.IsBlocked() {
			out = append(out, p)
		}
	}
	sortProjections(out)
	return out
}

func sortProjections(ps []BeadProjection) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j-1].BeadID > ps[j].BeadID; j-- {
			ps[j-1], ps[j] = ps[j], ps[j-1]
		}
	}
}

// ActionKind identifies the corrective action a diff pass emitted.
type ActionKind string

const (
	ActionCreateBead         ActionKind = "create_bead"
	ActionDeleteBead         ActionKind = "delete_bead"
	ActionScheduleBead       ActionKind = "schedule_bead"
	ActionStartBead          ActionKind = "start_bead"
	ActionStopBead           ActionKind = "stop_bead"
	ActionRetryBead          ActionKind = "retry_bead"
	ActionMarkComplete       ActionKind = "mark_complete"
	ActionRespawnBead        ActionKind = "respawn_bead"
	ActionRescheduleBead     ActionKind = "reschedule_bead"
	ActionCancelBead         ActionKind = "cancel_bead"
	ActionUpdateDependencies ActionKind = "update_dependencies"
)

// ReconcileAction is one corrective step the diff emits; fields beyond Kind
// and BeadID are populated only for the action kinds that need them.
type ReconcileAction struct {
	Kind   ActionKind
	BeadID string
	Spec   *BeadSpec // ActionCreateBead
	Reason string    // ActionStopBead, ActionRespawnBead, ActionRescheduleBead
	Result map[string]any
}

func (a ReconcileAction) String() string {
	if a.Reason != "" {
		return fmt.Sprintf("%s(%s): %s", a.Kind, a.BeadID, a.Reason)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.BeadID)
}

// ReconcileResult is what one Reconcile pass returns: which actions were
// taken, which failed (with the executor's error string), and a point-in-
// time count of desired/actual for observability.
type ReconcileResult struct {
	ActionsTaken  []ReconcileAction
	ActionsFailed []FailedAction
	DesiredCount  int
	ActualCount   int
}

// FailedAction pairs an action with the string form of the error the
// executor returned for it.
type FailedAction struct {
	Action ReconcileAction
	Error  string
}

// Converged reports whether the pass needed to take no action at all.
func (r ReconcileResult) Converged() bool {
	return len(r.ActionsTaken) == 0 && len(r.ActionsFailed) == 0
}

// AllSucceeded reports whether every emitted action executed without error.
func (r ReconcileResult) AllSucceeded() bool {
	return len(r.ActionsFailed) == 0
}

// TakenByKind and FailedByKind bucket a result's actions by kind, the shape
// metrics.Metrics.RecordReconcileResult consumes so the exported counters
// stay broken down by action kind without the reconciler package itself
// depending on Prometheus.
func (r ReconcileResult) TakenByKind() map[string]int {
	out := make(map[string]int)
	for _, a := range r.ActionsTaken {
		out[string(a.Kind)]++
	}
	return out
}

// FailedByKind is the same breakdown as TakenByKind over ActionsFailed.
func (r ReconcileResult) FailedByKind() map[string]int {
	out := make(map[string]int)
	for _, f := range r.ActionsFailed {
		out[string(f.Action.Kind)]++
	}
	return out
}

// projectionFromBead adapts a persistence-layer models.Bead into the
// reconciler's own ProjectionState vocabulary, used by callers (typically a
// reconcile loop driven straight off the Store) that want to reconcile
// against persisted records without hand-building a BeadProjection.
func projectionFromBead(b *models.Bead, blockedBy []string) BeadProjection {
	hist := make([]StateTransition, 0, len(b.Transitions))
	for _, t := range b.Transitions {
		hist = append(hist, StateTransition{
			From:      ProjectionState(t.From),
			To:        ProjectionState(t.To),
			Timestamp: t.Timestamp,
			Reason:    t.Reason,
		})
	}
	return BeadProjection{
		BeadID:       b.ID,
		CurrentState: ProjectionState(b.State),
		ClaimedBy:    b.ClaimedBy,
		BlockedBy:    blockedBy,
		History:      hist,
	}
}

// ProjectionFromBead exposes projectionFromBead to other packages, for
// callers that build ActualState from persisted models.Bead records.
func ProjectionFromBead(b *models.Bead, blockedBy []string) BeadProjection {
	return projectionFromBead(b, blockedBy)
}
