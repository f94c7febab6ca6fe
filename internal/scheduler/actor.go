// Package scheduler implements the scheduler actor: a single goroutine that
// owns all workflow DAG state and processes one message at a time, so
// readers never need to reason about concurrent access to a workflow.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jordanhubbard/oya-go/internal/metrics"
	"github.com/jordanhubbard/oya-go/internal/observability"
	"github.com/jordanhubbard/oya-go/pkg/models"
)

// scheduledBead tracks a bead's position in the scheduler's own pending/
// ready/assigned bookkeeping, which is a layer above (and only loosely
// coupled to) the DAG's own readiness computation: becoming ready in the
// DAG sense does not automatically flip this record to Ready, that takes
// an explicit MarkReady call.
type scheduledBead struct {
	beadID        string
	workflowID    string
	state         models.BeadState
	assignedQueue string
}

// Stats is a point-in-time snapshot of actor bookkeeping, used for
// introspection and metrics export.
type Stats struct {
	WorkflowCount int
	PendingCount  int
	ReadyCount    int
	AssignedCount int
	QueueCount    int
}

type actorState struct {
	workflows         map[string]*workflowState
	pendingBeads      map[string]*scheduledBead
	readyBeads        []string
	workerAssignments map[string]string
	queueRefs         []QueueActorRef
	eventSubs         []EventSubscription
}

func newActorState() *actorState {
	return &actorState{
		workflows:         make(map[string]*workflowState),
		pendingBeads:      make(map[string]*scheduledBead),
		workerAssignments: make(map[string]string),
	}
}

// job is one unit of mailbox work: a closure over the actor's private
// state, executed serially by the run loop. Mutations arrive as casts
// (fire-and-forget closures) and queries as calls (closures that feed a
// reply channel); both kinds share the one mailbox, so a query sent after
// a cast always observes its effects. They are expressed as closures
// rather than a message enum plus type switch because Go's closures
// already give the mailbox serialization without the boilerplate of a
// dispatch switch, while still keeping every message's logic in its own
// named method for documentation purposes.
type job func(*actorState)

// Actor is a handle to a running scheduler. All methods are safe to call
// from any goroutine; work is serialized onto a single internal goroutine.
// The mailbox is never closed (a send on a closed channel panics in Go), so
// Stop is signaled through a separate channel: every send path races the
// send against stopping, and a message that loses that race fails at the
// send site with ErrActorStopped rather than blocking or panicking.
type Actor struct {
	mailbox  chan job
	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewActor starts the scheduler actor's run loop and returns a handle to
// it. mailboxSize bounds how many in-flight casts may queue before a cast
// blocks awaiting mailbox room.
func NewActor(mailboxSize int) *Actor {
	if mailboxSize <= 0 {
		mailboxSize = 64
	}
	a := &Actor{
		mailbox:  make(chan job, mailboxSize),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Actor) run() {
	state := newActorState()
	defer close(a.done)
	for {
		select {
		case msg := <-a.mailbox:
			msg(state)
		case <-a.stopping:
			// Drain whatever is already queued before exiting, so casts
			// submitted just before Stop still get processed.
			for {
				select {
				case msg := <-a.mailbox:
					msg(state)
				default:
					return
				}
			}
		}
	}
}

// Stop signals the run loop to drain its mailbox and exit, and waits for it
// to do so. No further calls may be made on this Actor afterward; they fail
// at the send site with ErrActorStopped.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() { close(a.stopping) })
	<-a.done
}

// call submits a job and blocks for ctx's lifetime or until the job runs
// and reports its result via the returned channel.
func (a *Actor) call(ctx context.Context, fn func(*actorState) (any, error)) (any, error) {
	select {
	case <-a.stopping:
		return nil, ErrActorStopped
	default:
	}
	reply := make(chan struct {
		val any
		err error
	}, 1)
	select {
	case a.mailbox <- func(s *actorState) {
		v, err := fn(s)
		reply <- struct {
			val any
			err error
		}{v, err}
	}:
	case <-a.stopping:
		return nil, ErrActorStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cast submits a fire-and-forget mutation: it returns as soon as the job is
// enqueued, without waiting for the run loop to execute it. An error is
// only possible at the send site (actor stopped, or ctx expired while the
// mailbox was full); whatever the job itself finds wrong with its input is
// logged and dropped inside the handler, never surfaced here — operator
// error must not terminate or wedge the actor.
func (a *Actor) cast(ctx context.Context, fn job) error {
	select {
	case <-a.stopping:
		return ErrActorStopped
	default:
	}
	select {
	case a.mailbox <- fn:
		return nil
	case <-a.stopping:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterWorkflow adds a workflow by id if it does not already exist.
// Re-registering an existing workflow id is a no-op, not an error. A future
// strict mode could reject duplicates behind a config flag without changing
// this method's signature.
func (a *Actor) RegisterWorkflow(ctx context.Context, workflowID string) error {
	return a.cast(ctx, func(s *actorState) {
		if _, ok := s.workflows[workflowID]; ok {
			return
		}
		s.workflows[workflowID] = newWorkflowState(workflowID)
	})
}

// UnregisterWorkflow removes all state for a workflow, including its
// pending beads and worker assignments.
func (a *Actor) UnregisterWorkflow(ctx context.Context, workflowID string) error {
	return a.cast(ctx, func(s *actorState) {
		delete(s.workflows, workflowID)
		removed := make(map[string]bool)
		for id, pb := range s.pendingBeads {
			if pb.workflowID == workflowID {
				removed[id] = true
				delete(s.pendingBeads, id)
				delete(s.workerAssignments, id)
			}
		}
		s.readyBeads = filterOut(s.readyBeads, func(id string) bool {
			return removed[id]
		})
	})
}

// AddBead registers a bead node within an existing workflow's DAG and adds
// a pending scheduler-level record for it. An unknown workflow id is logged
// and dropped.
func (a *Actor) AddBead(ctx context.Context, workflowID, beadID string) error {
	return a.cast(ctx, func(s *actorState) {
		wf, ok := s.workflows[workflowID]
		if !ok {
			observability.Warn("add_bead_unknown_workflow", map[string]interface{}{
				"workflow_id": workflowID, "bead_id": beadID,
			})
			return
		}
		wf.addBead(beadID)
		if _, exists := s.pendingBeads[beadID]; !exists {
			s.pendingBeads[beadID] = &scheduledBead{beadID: beadID, workflowID: workflowID, state: models.BeadPending}
		}
	})
}

// AddDependency records that dependent depends on dependency within
// workflowID, always as a blocking dependency. Preferred-order edges are
// added directly on the DAG by higher-level callers that hold
// workflow-construction context; nothing at the actor's message surface
// ever needs one. An unknown workflow or a rejected edge (missing
// endpoint, duplicate, would-be cycle) is logged and dropped.
func (a *Actor) AddDependency(ctx context.Context, workflowID, dependency, dependent string) error {
	return a.cast(ctx, func(s *actorState) {
		wf, ok := s.workflows[workflowID]
		if !ok {
			observability.Warn("add_dependency_unknown_workflow", map[string]interface{}{
				"workflow_id": workflowID, "dependency": dependency, "dependent": dependent,
			})
			return
		}
		if err := wf.addDependency(dependency, dependent, models.BlockingDependency); err != nil {
			observability.Error("add_dependency_rejected", map[string]interface{}{
				"workflow_id": workflowID, "dependency": dependency, "dependent": dependent,
			}, err)
		}
	})
}

// ScheduleBead validates that a bead is known and schedulable within an
// existing workflow. An unknown workflow or bead is logged and dropped.
func (a *Actor) ScheduleBead(ctx context.Context, workflowID, beadID string) error {
	return a.cast(ctx, func(s *actorState) {
		if _, ok := s.workflows[workflowID]; !ok {
			observability.Warn("schedule_bead_unknown_workflow", map[string]interface{}{
				"workflow_id": workflowID, "bead_id": beadID,
			})
			return
		}
		if _, ok := s.pendingBeads[beadID]; !ok {
			observability.Warn("schedule_bead_unknown_bead", map[string]interface{}{
				"workflow_id": workflowID, "bead_id": beadID,
			})
		}
	})
}

// MarkReady transitions a pending bead to Ready and appends it to the
// ready-beads list if not already present. This is the explicit step that
// surfaces DAG readiness into the actor's own bookkeeping; it is not driven
// automatically by GetReadyBeads.
func (a *Actor) MarkReady(ctx context.Context, beadID string) error {
	return a.cast(ctx, func(s *actorState) {
		pb, ok := s.pendingBeads[beadID]
		if !ok {
			observability.Warn("mark_ready_unknown_bead", map[string]interface{}{"bead_id": beadID})
			return
		}
		pb.state = models.BeadReady
		for _, id := range s.readyBeads {
			if id == beadID {
				return
			}
		}
		s.readyBeads = append(s.readyBeads, beadID)
	})
}

// AssignToWorker records that beadID has been handed to workerID and moves
// its scheduler-level state to Assigned, overwriting any existing
// assignment. Claim is the guarded variant.
func (a *Actor) AssignToWorker(ctx context.Context, beadID, workerID string) error {
	return a.cast(ctx, func(s *actorState) {
		pb, ok := s.pendingBeads[beadID]
		if !ok {
			observability.Warn("assign_unknown_bead", map[string]interface{}{
				"bead_id": beadID, "worker_id": workerID,
			})
			return
		}
		s.workerAssignments[beadID] = workerID
		pb.state = models.BeadAssigned
	})
}

// Claim is AssignToWorker guarded against double-assignment: a second
// claim of an already-claimed bead is accepted but ignored, leaving the
// existing claim untouched rather than overwritten or rejected.
func (a *Actor) Claim(ctx context.Context, beadID, workerID string) error {
	return a.cast(ctx, func(s *actorState) {
		pb, ok := s.pendingBeads[beadID]
		if !ok {
			observability.Warn("claim_unknown_bead", map[string]interface{}{
				"bead_id": beadID, "worker_id": workerID,
			})
			return
		}
		if _, already := s.workerAssignments[beadID]; already {
			return
		}
		s.workerAssignments[beadID] = workerID
		pb.state = models.BeadAssigned
	})
}

// Release drops a worker assignment without marking the bead complete, for
// example when a worker dies mid-task and the reconciler wants to
// reschedule it.
func (a *Actor) Release(ctx context.Context, beadID string) error {
	return a.cast(ctx, func(s *actorState) {
		pb, ok := s.pendingBeads[beadID]
		if !ok {
			observability.Warn("release_unknown_bead", map[string]interface{}{"bead_id": beadID})
			return
		}
		delete(s.workerAssignments, beadID)
		pb.state = models.BeadPending
		s.readyBeads = filterOut(s.readyBeads, func(id string) bool { return id == beadID })
	})
}

// OnBeadCompleted marks a bead completed in both the scheduler's own
// bookkeeping and its owning workflow's DAG, which is what allows the
// workflow's dependent beads to subsequently become ready. Completion of an
// unknown bead is a no-op, and completing the same bead twice leaves the
// state unchanged after the first.
func (a *Actor) OnBeadCompleted(ctx context.Context, beadID string) error {
	return a.cast(ctx, func(s *actorState) {
		pb, ok := s.pendingBeads[beadID]
		if !ok {
			observability.Warn("completed_unknown_bead", map[string]interface{}{"bead_id": beadID})
			return
		}
		pb.state = models.BeadCompleted
		s.readyBeads = filterOut(s.readyBeads, func(id string) bool { return id == beadID })
		delete(s.workerAssignments, beadID)
		if wf, ok := s.workflows[pb.workflowID]; ok {
			wf.markCompleted(beadID)
		}
	})
}

// AddQueueRef registers a queue actor reference, deduplicating by queue id.
func (a *Actor) AddQueueRef(ctx context.Context, ref QueueActorRef) error {
	return a.cast(ctx, func(s *actorState) {
		for _, existing := range s.queueRefs {
			if existing.QueueID == ref.QueueID {
				return
			}
		}
		s.queueRefs = append(s.queueRefs, ref)
	})
}

// SubscribeToEvents registers an introspection-only event subscription.
func (a *Actor) SubscribeToEvents(ctx context.Context, sub EventSubscription) error {
	return a.cast(ctx, func(s *actorState) {
		s.eventSubs = append(s.eventSubs, sub)
	})
}

// GetWorkflowReadyBeads returns the DAG-computed ready set for a workflow,
// independent of the actor's own pending/ready bookkeeping. An unknown
// workflow yields an empty list, not an error.
func (a *Actor) GetWorkflowReadyBeads(ctx context.Context, workflowID string) ([]string, error) {
	v, err := a.call(ctx, func(s *actorState) (any, error) {
		wf, ok := s.workflows[workflowID]
		if !ok {
			return []string(nil), nil
		}
		return wf.getReadyBeads(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// ReadyBeadRef pairs a workflow id with a bead id, the shape GetAllReadyBeads
// aggregates across every registered workflow.
type ReadyBeadRef struct {
	WorkflowID string
	BeadID     string
}

// GetAllReadyBeads aggregates each workflow's DAG-computed ready set,
// excluding any bead currently held by a worker assignment, and returns the
// pairs sorted by workflow id then bead id for determinism.
func (a *Actor) GetAllReadyBeads(ctx context.Context) ([]ReadyBeadRef, error) {
	v, err := a.call(ctx, func(s *actorState) (any, error) {
		workflowIDs := make([]string, 0, len(s.workflows))
		for id := range s.workflows {
			workflowIDs = append(workflowIDs, id)
		}
		workflowIDs = sortStrings(workflowIDs)

		var out []ReadyBeadRef
		for _, wfID := range workflowIDs {
			wf := s.workflows[wfID]
			for _, beadID := range wf.getReadyBeads() {
				if _, claimed := s.workerAssignments[beadID]; claimed {
					continue
				}
				out = append(out, ReadyBeadRef{WorkflowID: wfID, BeadID: beadID})
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ReadyBeadRef), nil
}

// WorkflowStatus is the point-in-time summary GetWorkflowStatus returns.
type WorkflowStatus struct {
	WorkflowID     string
	TotalBeads     int
	CompletedBeads int
	IsComplete     bool
}

type workflowStatusResult struct {
	status WorkflowStatus
	found  bool
}

// GetWorkflowStatus returns a summary of workflowID's progress, or
// (WorkflowStatus{}, false) if the workflow is unknown.
func (a *Actor) GetWorkflowStatus(ctx context.Context, workflowID string) (WorkflowStatus, bool, error) {
	v, err := a.call(ctx, func(s *actorState) (any, error) {
		wf, ok := s.workflows[workflowID]
		if !ok {
			return workflowStatusResult{}, nil
		}
		return workflowStatusResult{
			status: WorkflowStatus{
				WorkflowID:     workflowID,
				TotalBeads:     wf.len(),
				CompletedBeads: wf.completedCount(),
				IsComplete:     wf.isComplete(),
			},
			found: true,
		}, nil
	})
	if err != nil {
		return WorkflowStatus{}, false, err
	}
	r := v.(workflowStatusResult)
	return r.status, r.found, nil
}

// GetReadyBeads returns the actor-level ready-beads list as it stands after
// MarkReady calls, sorted for determinism.
func (a *Actor) GetReadyBeads(ctx context.Context) ([]string, error) {
	v, err := a.call(ctx, func(s *actorState) (any, error) {
		out := append([]string(nil), s.readyBeads...)
		return sortStrings(out), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// IsBeadReady reports DAG-level readiness for a bead within its workflow.
// An unknown workflow yields false, not an error.
func (a *Actor) IsBeadReady(ctx context.Context, workflowID, beadID string) (bool, error) {
	v, err := a.call(ctx, func(s *actorState) (any, error) {
		wf, ok := s.workflows[workflowID]
		if !ok {
			return false, nil
		}
		return wf.isBeadReady(beadID), nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// WorkflowCount returns the number of registered workflows.
func (a *Actor) WorkflowCount(ctx context.Context) (int, error) {
	v, err := a.call(ctx, func(s *actorState) (any, error) {
		return len(s.workflows), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// GetQueueRefs returns every registered queue reference.
func (a *Actor) GetQueueRefs(ctx context.Context) ([]QueueActorRef, error) {
	v, err := a.call(ctx, func(s *actorState) (any, error) {
		return append([]QueueActorRef(nil), s.queueRefs...), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]QueueActorRef), nil
}

// GetSubscriptions returns every registered event subscription.
func (a *Actor) GetSubscriptions(ctx context.Context) ([]EventSubscription, error) {
	v, err := a.call(ctx, func(s *actorState) (any, error) {
		return append([]EventSubscription(nil), s.eventSubs...), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]EventSubscription), nil
}

// Stats returns a point-in-time snapshot of actor bookkeeping. PendingCount
// only counts beads still in the Pending state: once a bead transitions to
// Ready it no longer counts as pending.
func (a *Actor) Stats(ctx context.Context) (Stats, error) {
	v, err := a.call(ctx, func(s *actorState) (any, error) {
		pending := 0
		for _, pb := range s.pendingBeads {
			if pb.state == models.BeadPending {
				pending++
			}
		}
		return Stats{
			WorkflowCount: len(s.workflows),
			PendingCount:  pending,
			ReadyCount:    len(s.readyBeads),
			AssignedCount: len(s.workerAssignments),
			QueueCount:    len(s.queueRefs),
		}, nil
	})
	if err != nil {
		return Stats{}, err
	}
	stats := v.(Stats)
	m := metrics.New()
	m.SchedulerReadyBeads.Set(float64(stats.ReadyCount))
	m.SchedulerPending.Set(float64(stats.PendingCount))
	return stats, nil
}

// defaultCallTimeout bounds calls made without an explicit deadline, so a
// stalled run loop cannot hang a caller forever.
const defaultCallTimeout = 5 * time.Second

// CallTimeout returns a context with defaultCallTimeout applied, for
// callers that do not want to manage their own context.
func CallTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, defaultCallTimeout)
}

func filterOut(ids []string, drop func(string) bool) []string {
	out := ids[:0]
	for _, id := range ids {
		if !drop(id) {
			out = append(out, id)
		}
	}
	return out
}

func sortStrings(ids []string) []string {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
