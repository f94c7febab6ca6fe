package reconciler

import (
	"context"
	"log"
	"time"

	"github.com/jordanhubbard/oya-go/internal/eventbus"
	"github.com/jordanhubbard/oya-go/internal/persistence"
	"github.com/jordanhubbard/oya-go/pkg/models"
)

// EventExecutor publishes each action as a bead lifecycle transition on the
// event bus. The actions with no event mapping (UpdateDependencies,
// DeleteBead, RescheduleBead, RespawnBead, CancelBead) are logged and no-op
// here; wrap an EventExecutor in a PersistenceExecutor to route those to
// the storage layer instead.
type EventExecutor struct {
	Bus eventbus.EventBus
}

// NewEventExecutor returns an executor that publishes onto bus.
func NewEventExecutor(bus eventbus.EventBus) *EventExecutor {
	return &EventExecutor{Bus: bus}
}

// Execute implements ActionExecutor.
func (e *EventExecutor) Execute(ctx context.Context, action ReconcileAction) error {
	switch action.Kind {
	case ActionCreateBead:
		payload := map[string]interface{}{}
		if action.Spec != nil {
			payload["title"] = action.Spec.Title
			payload["complexity"] = string(action.Spec.Complexity)
			payload["dependencies"] = action.Spec.Dependencies
		}
		return e.publish(ctx, action.BeadID, "", models.BeadPending, "", payload)
	case ActionScheduleBead:
		return e.publish(ctx, action.BeadID, models.BeadPending, "", "", nil)
	case ActionStartBead:
		return e.publish(ctx, action.BeadID, models.BeadReady, models.BeadRunning, "", nil)
	case ActionStopBead:
		return e.publishReason(ctx, action.BeadID, models.BeadRunning, "", action.Reason)
	case ActionRetryBead:
		return e.publish(ctx, action.BeadID, "", models.BeadRunning, "", nil)
	case ActionMarkComplete:
		return e.publish(ctx, action.BeadID, models.BeadRunning, models.BeadCompleted, "", action.Result)
	case ActionUpdateDependencies, ActionDeleteBead, ActionRescheduleBead, ActionRespawnBead, ActionCancelBead:
		log.Printf("[reconciler] action not implemented via events: %s", action)
		return nil
	default:
		log.Printf("[reconciler] unknown action kind: %s", action.Kind)
		return nil
	}
}

func (e *EventExecutor) publish(ctx context.Context, beadID string, from, to models.BeadState, reason string, payload map[string]interface{}) error {
	return e.Bus.Publish(ctx, eventbus.Event{
		BeadID:    beadID,
		From:      from,
		To:        to,
		Reason:    reason,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func (e *EventExecutor) publishReason(ctx context.Context, beadID string, from, to models.BeadState, reason string) error {
	return e.publish(ctx, beadID, from, to, reason, nil)
}

// PersistenceExecutor decorates another ActionExecutor (typically an
// EventExecutor) and additionally routes the storage-owned actions the
// default event mapping leaves unhandled straight to the persistence
// adapter, whose compound updates (DeleteBead, Reschedule, MarkFailed) fit
// them directly.
type PersistenceExecutor struct {
	Next  ActionExecutor
	Store persistence.Store
}

// NewPersistenceExecutor wraps next with storage-routing for the unmapped
// action kinds.
func NewPersistenceExecutor(next ActionExecutor, store persistence.Store) *PersistenceExecutor {
	return &PersistenceExecutor{Next: next, Store: store}
}

// Execute implements ActionExecutor.
func (p *PersistenceExecutor) Execute(ctx context.Context, action ReconcileAction) error {
	now := time.Now()
	switch action.Kind {
	case ActionDeleteBead:
		return p.Store.DeleteBead(ctx, action.BeadID)
	case ActionRescheduleBead, ActionRespawnBead:
		return p.Store.Reschedule(ctx, action.BeadID, now)
	case ActionCancelBead:
		return p.Store.MarkFailed(ctx, action.BeadID, "cancelled: "+action.Reason, now)
	case ActionUpdateDependencies:
		log.Printf("[reconciler] update_dependencies has no persistence route yet: %s", action)
		return nil
	default:
		if p.Next == nil {
			return nil
		}
		return p.Next.Execute(ctx, action)
	}
}
