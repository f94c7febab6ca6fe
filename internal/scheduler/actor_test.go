package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestActor(t *testing.T) (*Actor, context.Context) {
	t.Helper()
	a := NewActor(16)
	t.Cleanup(a.Stop)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return a, ctx
}

func TestStopIsIdempotentAndRejectsFurtherCalls(t *testing.T) {
	a := NewActor(4)
	ctx := context.Background()
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))

	a.Stop()
	a.Stop() // must not panic on double-close

	err := a.RegisterWorkflow(ctx, "wf2")
	if !errors.Is(err, ErrActorStopped) {
		t.Fatalf("expected ErrActorStopped, got %v", err)
	}
}

func TestRegisterWorkflowIsIdempotent(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	count, err := a.WorkflowCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestScheduleBeadUnknownWorkflowIsDropped(t *testing.T) {
	a, ctx := newTestActor(t)
	// Casts never surface operator error; the bad message is logged and
	// dropped, and the actor keeps serving.
	require.NoError(t, a.ScheduleBead(ctx, "missing", "bead1"))
	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.WorkflowCount)
	require.Equal(t, 0, stats.PendingCount)
}

func TestAddBeadUnknownWorkflowIsDropped(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.AddBead(ctx, "missing", "bead1"))
	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.WorkflowCount)
	require.Equal(t, 0, stats.PendingCount)
}

func TestOnBeadCompletedUnknownBeadIsNoOp(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	require.NoError(t, a.OnBeadCompleted(ctx, "ghost"))
	status, found, err := a.GetWorkflowStatus(ctx, "wf1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 0, status.CompletedBeads)
}

func TestGetWorkflowReadyBeadsUnknownWorkflowIsEmpty(t *testing.T) {
	a, ctx := newTestActor(t)
	ready, err := a.GetWorkflowReadyBeads(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, ready)
}

func TestDependentUnblockingOnCompletion(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	require.NoError(t, a.AddBead(ctx, "wf1", "bead-1"))
	require.NoError(t, a.AddBead(ctx, "wf1", "bead-2"))
	require.NoError(t, a.AddDependency(ctx, "wf1", "bead-1", "bead-2"))

	ready, err := a.GetWorkflowReadyBeads(ctx, "wf1")
	require.NoError(t, err)
	require.Equal(t, []string{"bead-1"}, ready)

	require.NoError(t, a.OnBeadCompleted(ctx, "bead-1"))

	ready, err = a.GetWorkflowReadyBeads(ctx, "wf1")
	require.NoError(t, err)
	require.Equal(t, []string{"bead-2"}, ready)

	require.NoError(t, a.MarkReady(ctx, "bead-2"))
	readyList, err := a.GetReadyBeads(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"bead-2"}, readyList)
}

func TestLinearChainRunsToCompletion(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf"))
	beads := []string{"a", "b", "c", "d", "e"}
	for _, id := range beads {
		require.NoError(t, a.AddBead(ctx, "wf", id))
	}
	for i := 1; i < len(beads); i++ {
		require.NoError(t, a.AddDependency(ctx, "wf", beads[i-1], beads[i]))
	}

	ready, err := a.GetWorkflowReadyBeads(ctx, "wf")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ready)

	require.NoError(t, a.OnBeadCompleted(ctx, "a"))
	ready, err = a.GetWorkflowReadyBeads(ctx, "wf")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, ready)

	for _, id := range []string{"b", "c", "d"} {
		require.NoError(t, a.OnBeadCompleted(ctx, id))
	}
	ready, err = a.GetWorkflowReadyBeads(ctx, "wf")
	require.NoError(t, err)
	require.Equal(t, []string{"e"}, ready)

	require.NoError(t, a.OnBeadCompleted(ctx, "e"))
	status, found, err := a.GetWorkflowStatus(ctx, "wf")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 5, status.CompletedBeads)
	require.True(t, status.IsComplete)
}

func TestBeadCompletionCleansUpAssignmentAndReadyList(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	require.NoError(t, a.AddBead(ctx, "wf1", "bead-1"))
	require.NoError(t, a.MarkReady(ctx, "bead-1"))
	require.NoError(t, a.AssignToWorker(ctx, "bead-1", "worker-1"))

	require.NoError(t, a.OnBeadCompleted(ctx, "bead-1"))

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.ReadyCount)
	require.Equal(t, 0, stats.AssignedCount)
}

func TestDuplicateClaimIsIgnored(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	require.NoError(t, a.AddBead(ctx, "wf1", "bead-1"))
	require.NoError(t, a.Claim(ctx, "bead-1", "worker-1"))

	// A second claim is accepted but the existing claim is not
	// overwritten: no error, and worker-1 keeps the bead.
	require.NoError(t, a.Claim(ctx, "bead-1", "worker-2"))

	require.NoError(t, a.Release(ctx, "bead-1"))
	require.NoError(t, a.Claim(ctx, "bead-1", "worker-1"))

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.AssignedCount)
}

func TestStatsAccuracy(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	require.NoError(t, a.AddBead(ctx, "wf1", "bead-1"))
	require.NoError(t, a.AddBead(ctx, "wf1", "bead-2"))
	require.NoError(t, a.MarkReady(ctx, "bead-1"))

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.WorkflowCount)
	require.Equal(t, 1, stats.PendingCount) // bead-2 still pending
	require.Equal(t, 1, stats.ReadyCount)
}

func TestQueueRefDeduplication(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.AddQueueRef(ctx, QueueActorRef{QueueID: "q1", QueueType: QueueFIFO}))
	require.NoError(t, a.AddQueueRef(ctx, QueueActorRef{QueueID: "q1", QueueType: QueuePriority}))
	refs, err := a.GetQueueRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, QueueFIFO, refs[0].QueueType)
}

func TestGetWorkflowStatusReflectsCompletion(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	require.NoError(t, a.AddBead(ctx, "wf1", "a"))
	require.NoError(t, a.AddBead(ctx, "wf1", "b"))

	status, found, err := a.GetWorkflowStatus(ctx, "wf1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, status.TotalBeads)
	require.Equal(t, 0, status.CompletedBeads)
	require.False(t, status.IsComplete)

	require.NoError(t, a.OnBeadCompleted(ctx, "a"))
	require.NoError(t, a.OnBeadCompleted(ctx, "b"))

	status, found, err = a.GetWorkflowStatus(ctx, "wf1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, status.CompletedBeads)
	require.True(t, status.IsComplete)
}

func TestGetWorkflowStatusUnknownWorkflow(t *testing.T) {
	a, ctx := newTestActor(t)
	_, found, err := a.GetWorkflowStatus(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetAllReadyBeadsExcludesClaimed(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	require.NoError(t, a.AddBead(ctx, "wf1", "a"))
	require.NoError(t, a.AddBead(ctx, "wf1", "b"))
	require.NoError(t, a.RegisterWorkflow(ctx, "wf2"))
	require.NoError(t, a.AddBead(ctx, "wf2", "c"))

	refs, err := a.GetAllReadyBeads(ctx)
	require.NoError(t, err)
	require.Equal(t, []ReadyBeadRef{
		{WorkflowID: "wf1", BeadID: "a"},
		{WorkflowID: "wf1", BeadID: "b"},
		{WorkflowID: "wf2", BeadID: "c"},
	}, refs)

	require.NoError(t, a.Claim(ctx, "a", "worker-1"))
	refs, err = a.GetAllReadyBeads(ctx)
	require.NoError(t, err)
	require.Equal(t, []ReadyBeadRef{
		{WorkflowID: "wf1", BeadID: "b"},
		{WorkflowID: "wf2", BeadID: "c"},
	}, refs)
}

func TestUnregisterWorkflowClearsState(t *testing.T) {
	a, ctx := newTestActor(t)
	require.NoError(t, a.RegisterWorkflow(ctx, "wf1"))
	require.NoError(t, a.AddBead(ctx, "wf1", "bead-1"))
	require.NoError(t, a.MarkReady(ctx, "bead-1"))
	require.NoError(t, a.UnregisterWorkflow(ctx, "wf1"))

	count, err := a.WorkflowCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	ready, err := a.GetReadyBeads(ctx)
	require.NoError(t, err)
	require.Len(t, ready, 0)
}
