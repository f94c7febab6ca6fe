package eventbus

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/jordanhubbard/oya-go/pkg/models"
)

// Signal names the aggregator workflow listens on.
const (
	// AggregatorEventSignal delivers one AggregatedEvent to a running
	// aggregator workflow.
	AggregatorEventSignal = "bead-event"
	// AggregatorDrainSignal asks the workflow to stop receiving and return
	// its summary.
	AggregatorDrainSignal = "drain"
	// AggregatorSummaryQuery returns the current AggregatorSummary without
	// stopping the workflow.
	AggregatorSummaryQuery = "summary"
)

// aggregatorHistoryLimit bounds event history growth before the workflow
// continues as new, carrying its summary forward.
const aggregatorHistoryLimit = 10_000

// AggregatedEvent is the signal payload: the subset of Event that is
// meaningful across process restarts (channels and filter funcs are not).
type AggregatedEvent struct {
	ID         string           `json:"id"`
	BeadID     string           `json:"bead_id"`
	WorkflowID string           `json:"workflow_id"`
	From       models.BeadState `json:"from"`
	To         models.BeadState `json:"to"`
	Reason     string           `json:"reason,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// AggregatorSummary is the aggregator's running tally of observed bead
// lifecycle activity for one workflow.
type AggregatorSummary struct {
	WorkflowID    string                   `json:"workflow_id"`
	EventCount    int                      `json:"event_count"`
	ByTargetState map[models.BeadState]int `json:"by_target_state"`
	Completed     []string                 `json:"completed"`
	Failed        []string                 `json:"failed"`
}

// BeadEventAggregatorWorkflow is a long-running Temporal workflow that
// tallies bead lifecycle events for one workflow id, signalled by whatever
// bridges the event bus into Temporal. It answers AggregatorSummaryQuery at
// any time, returns its summary when drained, and continues as new (keeping
// the tally) before its event history grows unboundedly.
func BeadEventAggregatorWorkflow(ctx workflow.Context, workflowID string, carried *AggregatorSummary) (AggregatorSummary, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("bead event aggregator started", "workflowID", workflowID)

	summary := AggregatorSummary{
		WorkflowID:    workflowID,
		ByTargetState: make(map[models.BeadState]int),
	}
	if carried != nil {
		summary = *carried
		if summary.ByTargetState == nil {
			summary.ByTargetState = make(map[models.BeadState]int)
		}
	}

	if err := workflow.SetQueryHandler(ctx, AggregatorSummaryQuery, func() (AggregatorSummary, error) {
		return summary, nil
	}); err != nil {
		return summary, err
	}

	eventCh := workflow.GetSignalChannel(ctx, AggregatorEventSignal)
	drainCh := workflow.GetSignalChannel(ctx, AggregatorDrainSignal)

	draining := false
	selector := workflow.NewSelector(ctx)
	selector.AddReceive(eventCh, func(c workflow.ReceiveChannel, more bool) {
		var ev AggregatedEvent
		c.Receive(ctx, &ev)
		summary.EventCount++
		summary.ByTargetState[ev.To]++
		switch ev.To {
		case models.BeadCompleted:
			summary.Completed = append(summary.Completed, ev.BeadID)
		case models.BeadFailed:
			summary.Failed = append(summary.Failed, ev.BeadID)
		}
	})
	selector.AddReceive(drainCh, func(c workflow.ReceiveChannel, more bool) {
		var ignored any
		c.Receive(ctx, &ignored)
		draining = true
	})

	for !draining {
		selector.Select(ctx)
		if workflow.GetInfo(ctx).GetCurrentHistoryLength() > aggregatorHistoryLimit {
			logger.Info("aggregator history limit reached, continuing as new",
				"workflowID", workflowID, "events", summary.EventCount)
			return summary, workflow.NewContinueAsNewError(ctx, BeadEventAggregatorWorkflow, workflowID, &summary)
		}
	}

	logger.Info("bead event aggregator drained",
		"workflowID", workflowID, "events", summary.EventCount)
	return summary, nil
}
