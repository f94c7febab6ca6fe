// Package reconciler implements a pure desired-vs-actual diff over bead
// state, a Kubernetes-style control loop for bead DAGs rather than pods.
// The diff itself never does I/O; an injected ActionExecutor is the only
// side-effectful surface, so tests can substitute a recording executor.
package reconciler

import (
	"context"
	"sort"
	"time"

	"github.com/jordanhubbard/oya-go/internal/metrics"
	"github.com/jordanhubbard/oya-go/internal/observability"
)

// ActionExecutor turns one ReconcileAction into a side effect (typically a
// publish on the event bus, or a direct persistence-adapter call for the
// four actions no event maps to). Implementations must be safe to call
// sequentially from Reconcile's apply loop; they are never called
// concurrently by this package.
type ActionExecutor interface {
	Execute(ctx context.Context, action ReconcileAction) error
}

// Reconciler computes and applies corrective actions. It holds no workflow
// state of its own: every Reconcile call is independent, given whatever
// desired/actual snapshot the caller hands it.
type Reconciler struct {
	executor ActionExecutor
	config   Config
	now      func() time.Time
}

// WithClock overrides the reconciler's notion of "now", used by tests that
// need deterministic dead-worker/stuck-bead threshold comparisons instead of
// racing the wall clock.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// New builds a Reconciler with the given executor and config. The config is
// used exactly as given: a zero Config is not replaced with DefaultConfig,
// so it has every toggle off. Callers that only want to override one knob
// start from reconciler.DefaultConfig() and mutate it.
func New(executor ActionExecutor, config Config) (*Reconciler, error) {
	if executor == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Reconciler{executor: executor, config: config, now: time.Now}, nil
}

// Config returns the reconciler's active configuration.
func (r *Reconciler) Config() Config { return r.config }

// Reconcile computes the diff between desired and actual, applies every
// emitted action in order through the executor, and returns the outcome.
// Neither a diff-time condition nor an executor failure aborts the pass:
// every action is attempted and its outcome recorded.
func (r *Reconciler) Reconcile(ctx context.Context, desired DesiredState, actual ActualState) ReconcileResult {
	start := r.now()
	actions := r.Diff(desired, actual)

	var taken []ReconcileAction
	var failed []FailedAction
	for _, action := range actions {
		if err := r.executor.Execute(ctx, action); err != nil {
			failed = append(failed, FailedAction{Action: action, Error: err.Error()})
			observability.Error("reconcile_action_failed", map[string]interface{}{
				"kind":    string(action.Kind),
				"bead_id": action.BeadID,
			}, err)
			continue
		}
		taken = append(taken, action)
	}

	result := ReconcileResult{
		ActionsTaken:  taken,
		ActionsFailed: failed,
		DesiredCount:  len(desired),
		ActualCount:   len(actual.Beads),
	}

	m := metrics.New()
	m.RecordReconcileResult(result.TakenByKind(), result.FailedByKind())
	m.ReconcilePassDuration.Observe(r.now().Sub(start).Seconds())

	if result.Converged() {
		observability.Info("reconcile_converged", map[string]interface{}{
			"desired": result.DesiredCount,
			"actual":  result.ActualCount,
		})
	} else {
		observability.Info("reconcile_pass_complete", map[string]interface{}{
			"taken":  len(taken),
			"failed": len(failed),
		})
	}
	return result
}

// Diff computes the ordered corrective-action list for desired vs actual
// in seven fixed phases. It performs no I/O and reads no
// clock except through r.now, so it is safe to call from any goroutine and
// to unit test without an executor.
func (r *Reconciler) Diff(desired DesiredState, actual ActualState) []ReconcileAction {
	var actions []ReconcileAction

	// 1. Create: desired but not actual.
	for _, id := range sortedKeys(desired) {
		if _, ok := actual.Beads[id]; !ok {
			spec := desired[id]
			actions = append(actions, ReconcileAction{Kind: ActionCreateBead, BeadID: id, Spec: &spec})
		}
	}

	// 2. Delete: actual but not desired (orphans).
	for _, p := range actual.OrphanedBeads(desired) {
		actions = append(actions, ReconcileAction{Kind: ActionDeleteBead, BeadID: p.BeadID})
	}

	// 3. Schedule: Pending beads with no outstanding blockers.
	for _, id := range sortedBeadIDs(actual.Beads) {
		p := actual.Beads[id]
		if p.CurrentState == StatePending && !p.IsBlocked() {
			actions = append(actions, ReconcileAction{Kind: ActionScheduleBead, BeadID: id})
		}
	}

	// 4. Start: Scheduled + dependency-met, up to remaining concurrency.
	if r.config.AutoStart {
		slots := r.config.MaxConcurrent - actual.RunningCount
		if slots < 0 {
			slots = 0
		}
		for i, p := range actual.ReadyToRun() {
			if i >= slots {
				break
			}
			actions = append(actions, ReconcileAction{Kind: ActionStartBead, BeadID: p.BeadID})
		}
	}

	// 5. Retry: BackingOff beads.
	if r.config.AutoRetry {
		for _, id := range sortedBeadIDs(actual.Beads) {
			if actual.Beads[id].CurrentState == StateBackingOff {
				actions = append(actions, ReconcileAction{Kind: ActionRetryBead, BeadID: id})
			}
		}
	}

	// 6. Respawn dead workers: Running, unclaimed, past threshold.
	if r.config.DetectDeadWorkers {
		for _, id := range sortedBeadIDs(actual.Beads) {
			p := actual.Beads[id]
			if p.CurrentState != StateRunning || p.ClaimedBy != "" {
				continue
			}
			elapsed, ok := r.runningDuration(p)
			if ok && elapsed >= r.config.DeadWorkerThreshold {
				actions = append(actions, ReconcileAction{
					Kind:   ActionRespawnBead,
					BeadID: id,
					Reason: "worker missing for " + r.config.DeadWorkerThreshold.String(),
				})
			}
		}
	}

	// 7. Reschedule stuck beads: Running, claimed, past threshold.
	if r.config.DetectStuckBeads {
		for _, id := range sortedBeadIDs(actual.Beads) {
			p := actual.Beads[id]
			if p.CurrentState != StateRunning || p.ClaimedBy == "" {
				continue
			}
			elapsed, ok := r.runningDuration(p)
			if ok && elapsed >= r.config.StuckBeadThreshold {
				actions = append(actions, ReconcileAction{
					Kind:   ActionRescheduleBead,
					BeadID: id,
					Reason: "running for " + r.config.StuckBeadThreshold.String(),
				})
			}
		}
	}

	return actions
}

// runningDuration scans a projection's history backwards for the most
// recent transition into Running; it reports ok=false if none exists, which
// disqualifies the bead from dead-worker/stuck-bead detection regardless of
// its current state.
func (r *Reconciler) runningDuration(p BeadProjection) (time.Duration, bool) {
	for i := len(p.History) - 1; i >= 0; i-- {
		if p.History[i].To == StateRunning {
			return r.now().Sub(p.History[i].Timestamp), true
		}
	}
	return 0, false
}

func sortedKeys(m DesiredState) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedBeadIDs(m map[string]BeadProjection) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
