package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingExecutor never performs real I/O; it just remembers what it was
// asked to do, optionally failing on a configured bead id.
type recordingExecutor struct {
	executed []ReconcileAction
	failOn   map[string]bool
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{failOn: make(map[string]bool)}
}

func (r *recordingExecutor) Execute(_ context.Context, action ReconcileAction) error {
	if r.failOn[action.BeadID] {
		return errors.New("boom")
	}
	r.executed = append(r.executed, action)
	return nil
}

func newTestReconciler(t *testing.T, cfg Config) (*Reconciler, *recordingExecutor) {
	t.Helper()
	exec := newRecordingExecutor()
	r, err := New(exec, cfg)
	require.NoError(t, err)
	return r, exec
}

func TestReconcileEmptyStateConverges(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	result := r.Reconcile(context.Background(), DesiredState{}, NewActualState())
	require.True(t, result.Converged())
	require.Empty(t, result.ActionsTaken)
	require.Empty(t, result.ActionsFailed)
	require.Zero(t, result.DesiredCount)
	require.Zero(t, result.ActualCount)
}

func TestDiffCreatesMissingBeads(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	desired := DesiredState{"a": {Title: "Test", Complexity: ComplexitySimple}}
	actions := r.Diff(desired, NewActualState())
	require.Len(t, actions, 1)
	require.Equal(t, ActionCreateBead, actions[0].Kind)
	require.Equal(t, "a", actions[0].BeadID)
}

func TestDiffDeletesOrphans(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	actual := NewActualState()
	actual.Update(BeadProjection{BeadID: "orphan", CurrentState: StateRunning})

	actions := r.Diff(DesiredState{}, actual)
	require.Len(t, actions, 1)
	require.Equal(t, ActionDeleteBead, actions[0].Kind)
	require.Equal(t, "orphan", actions[0].BeadID)
}

func TestDiffMultipleOrphansAreSortedAndAllDeleted(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	actual := NewActualState()
	actual.Update(BeadProjection{BeadID: "c", CurrentState: StateRunning})
	actual.Update(BeadProjection{BeadID: "a", CurrentState: StateRunning})
	actual.Update(BeadProjection{BeadID: "b", CurrentState: StateRunning})

	actions := r.Diff(DesiredState{}, actual)
	require.Len(t, actions, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{actions[0].BeadID, actions[1].BeadID, actions[2].BeadID})
}

func TestDiffSchedulesUnblockedPendingBeads(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	actual := NewActualState()
	actual.Update(BeadProjection{BeadID: "p", CurrentState: StatePending})

	actions := r.Diff(DesiredState{"p": {Title: "P"}}, actual)
	require.Len(t, actions, 1)
	require.Equal(t, ActionScheduleBead, actions[0].Kind)
}

func TestDiffDoesNotScheduleBlockedPendingBeads(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	actual := NewActualState()
	actual.Update(BeadProjection{BeadID: "p", CurrentState: StatePending, BlockedBy: []string{"blocker"}})

	actions := r.Diff(DesiredState{"p": {Title: "P"}}, actual)
	require.Empty(t, actions)
}

func TestDiffStartsScheduledBeadsWithinConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 5
	r, _ := newTestReconciler(t, cfg)
	actual := NewActualState()
	for i := 0; i < 2; i++ {
		actual.Update(BeadProjection{BeadID: string(rune('A' + i)), CurrentState: StateRunning})
	}
	for i := 0; i < 4; i++ {
		actual.Update(BeadProjection{BeadID: string(rune('a' + i)), CurrentState: StateScheduled})
	}

	actions := r.Diff(DesiredState{}, actual)
	count := 0
	for _, a := range actions {
		if a.Kind == ActionStartBead {
			count++
		}
	}
	require.Equal(t, 3, count)
}

func TestDiffRespectsConcurrencyCeilingOfZeroSlots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	r, _ := newTestReconciler(t, cfg)
	actual := NewActualState()
	actual.Update(BeadProjection{BeadID: "running-1", CurrentState: StateRunning})
	actual.Update(BeadProjection{BeadID: "scheduled-1", CurrentState: StateScheduled})
	actual.Update(BeadProjection{BeadID: "scheduled-2", CurrentState: StateScheduled})

	actions := r.Diff(DesiredState{}, actual)
	for _, a := range actions {
		require.NotEqual(t, ActionStartBead, a.Kind)
	}
}

func TestDiffAutoStartDisabledEmitsNoStarts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoStart = false
	r, _ := newTestReconciler(t, cfg)
	actual := NewActualState()
	actual.Update(BeadProjection{BeadID: "scheduled-1", CurrentState: StateScheduled})

	actions := r.Diff(DesiredState{"scheduled-1": {Title: "Scheduled"}}, actual)
	require.Empty(t, actions)
}

func TestDiffRetriesBackingOffBeads(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	actual := NewActualState()
	actual.Update(BeadProjection{BeadID: "b", CurrentState: StateBackingOff})

	actions := r.Diff(DesiredState{"b": {Title: "B"}}, actual)
	require.Len(t, actions, 1)
	require.Equal(t, ActionRetryBead, actions[0].Kind)
}

func TestDiffAutoRetryDisabledSkipsBackingOff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoRetry = false
	r, _ := newTestReconciler(t, cfg)
	actual := NewActualState()
	actual.Update(BeadProjection{BeadID: "b", CurrentState: StateBackingOff})

	actions := r.Diff(DesiredState{"b": {Title: "B"}}, actual)
	require.Empty(t, actions)
}

func TestDiffDetectsDeadWorker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeadWorkerThreshold = 30 * time.Second
	r, _ := newTestReconciler(t, cfg)
	fixedNow := time.Now()
	r.WithClock(func() time.Time { return fixedNow })

	actual := NewActualState()
	actual.Update(BeadProjection{
		BeadID:       "dead",
		CurrentState: StateRunning,
		History: []StateTransition{
			{From: StateReady, To: StateRunning, Timestamp: fixedNow.Add(-120 * time.Second)},
		},
	})

	actions := r.Diff(DesiredState{"dead": {Title: "Dead"}}, actual)
	require.Len(t, actions, 1)
	require.Equal(t, ActionRespawnBead, actions[0].Kind)
}

func TestDiffDeadWorkerDetectionIgnoresClaimedBeads(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeadWorkerThreshold = 30 * time.Second
	r, _ := newTestReconciler(t, cfg)
	fixedNow := time.Now()
	r.WithClock(func() time.Time { return fixedNow })

	actual := NewActualState()
	actual.Update(BeadProjection{
		BeadID:       "claimed",
		CurrentState: StateRunning,
		ClaimedBy:    "agent-1",
		History: []StateTransition{
			{From: StateReady, To: StateRunning, Timestamp: fixedNow.Add(-120 * time.Second)},
		},
	})

	actions := r.Diff(DesiredState{}, actual)
	for _, a := range actions {
		require.NotEqual(t, ActionRespawnBead, a.Kind)
	}
}

func TestDiffDetectsStuckBead(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StuckBeadThreshold = 60 * time.Second
	r, _ := newTestReconciler(t, cfg)
	fixedNow := time.Now()
	r.WithClock(func() time.Time { return fixedNow })

	actual := NewActualState()
	actual.Update(BeadProjection{
		BeadID:       "stuck",
		CurrentState: StateRunning,
		ClaimedBy:    "agent-1",
		History: []StateTransition{
			{From: StateReady, To: StateRunning, Timestamp: fixedNow.Add(-120 * time.Second)},
		},
	})

	actions := r.Diff(DesiredState{"stuck": {Title: "Stuck"}}, actual)
	require.Len(t, actions, 1)
	require.Equal(t, ActionRescheduleBead, actions[0].Kind)
}

func TestDiffStuckBeadDetectionIgnoresUnclaimedBeads(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StuckBeadThreshold = 60 * time.Second
	r, _ := newTestReconciler(t, cfg)
	fixedNow := time.Now()
	r.WithClock(func() time.Time { return fixedNow })

	actual := NewActualState()
	actual.Update(BeadProjection{
		BeadID:       "unclaimed",
		CurrentState: StateRunning,
		History: []StateTransition{
			{From: StateReady, To: StateRunning, Timestamp: fixedNow.Add(-120 * time.Second)},
		},
	})

	actions := r.Diff(DesiredState{}, actual)
	for _, a := range actions {
		require.NotEqual(t, ActionRescheduleBead, a.Kind)
	}
}

func TestRunningDurationNoHistoryDisqualifiesBead(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	_, ok := r.runningDuration(BeadProjection{CurrentState: StateRunning})
	require.False(t, ok)
}

func TestRunningDurationFindsMostRecentTransitionIntoRunning(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	fixedNow := time.Now()
	r.WithClock(func() time.Time { return fixedNow })

	p := BeadProjection{
		History: []StateTransition{
			{From: StateScheduled, To: StateRunning, Timestamp: fixedNow.Add(-300 * time.Second)},
			{From: StateRunning, To: StateBackingOff, Timestamp: fixedNow.Add(-200 * time.Second)},
			{From: StateScheduled, To: StateRunning, Timestamp: fixedNow.Add(-30 * time.Second)},
		},
	}
	d, ok := r.runningDuration(p)
	require.True(t, ok)
	require.InDelta(t, 30*time.Second, d, float64(time.Second))
}

func TestReconcileAppliesActionsThroughExecutor(t *testing.T) {
	r, exec := newTestReconciler(t, DefaultConfig())
	desired := DesiredState{"a": {Title: "Test"}}
	result := r.Reconcile(context.Background(), desired, NewActualState())
	require.False(t, result.Converged())
	require.Len(t, result.ActionsTaken, 1)
	require.Empty(t, result.ActionsFailed)
	require.Len(t, exec.executed, 1)
}

func TestReconcileRecordsExecutorFailuresWithoutAborting(t *testing.T) {
	exec := newRecordingExecutor()
	exec.failOn["bad"] = true
	r, err := New(exec, DefaultConfig())
	require.NoError(t, err)

	desired := DesiredState{
		"bad":  {Title: "Bad"},
		"good": {Title: "Good"},
	}
	result := r.Reconcile(context.Background(), desired, NewActualState())
	require.Len(t, result.ActionsFailed, 1)
	require.Equal(t, "bad", result.ActionsFailed[0].Action.BeadID)
	require.Len(t, result.ActionsTaken, 1)
	require.Equal(t, "good", result.ActionsTaken[0].BeadID)
	require.False(t, result.AllSucceeded())
}

func TestNewRejectsNilExecutor(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = -1
	_, err := New(newRecordingExecutor(), cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 10, cfg.MaxConcurrent)
	require.True(t, cfg.AutoStart)
	require.True(t, cfg.AutoRetry)
	require.Equal(t, 3, cfg.MaxRetries)
	require.True(t, cfg.DetectDeadWorkers)
	require.True(t, cfg.DetectStuckBeads)
	require.Equal(t, 60*time.Second, cfg.DeadWorkerThreshold)
	require.Equal(t, 300*time.Second, cfg.StuckBeadThreshold)
}

func TestDiffFullConvergenceScenario(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())
	desired := DesiredState{"new": {Title: "New"}}
	actual := NewActualState()
	actual.Update(BeadProjection{BeadID: "orphan", CurrentState: StateRunning})
	actual.Update(BeadProjection{BeadID: "pending", CurrentState: StatePending})

	actions := r.Diff(desired, actual)
	var kinds []ActionKind
	for _, a := range actions {
		kinds = append(kinds, a.Kind)
	}
	require.Contains(t, kinds, ActionCreateBead)
	require.Contains(t, kinds, ActionDeleteBead)
	require.Contains(t, kinds, ActionScheduleBead)
}
