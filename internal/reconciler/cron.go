package reconciler

import (
	"context"
	"log"

	"github.com/robfig/cron"
)

// StateProvider supplies the desired/actual snapshot for one reconcile pass.
// A typical implementation reads desired state from whatever source of
// truth the caller's workflow definitions live in, and actual state from
// the persistence adapter (via ProjectionFromBead) or the scheduler actor.
type StateProvider interface {
	Snapshot(ctx context.Context) (DesiredState, ActualState, error)
}

// CronRunner drives periodic Reconcile passes on a cron schedule, for
// deployments that want reconciliation aligned to operator-visible wall
// clock times rather than a free-running ticker.
type CronRunner struct {
	reconciler *Reconciler
	provider   StateProvider
	cron       *cron.Cron
	onResult   func(ReconcileResult)
}

// NewCronRunner wires a Reconciler and a StateProvider to a cron schedule.
// onResult, if non-nil, is called after every pass (e.g. to feed metrics).
func NewCronRunner(r *Reconciler, provider StateProvider, onResult func(ReconcileResult)) *CronRunner {
	return &CronRunner{
		reconciler: r,
		provider:   provider,
		cron:       cron.New(),
		onResult:   onResult,
	}
}

// Start schedules a reconcile pass on the given cron expression (robfig/cron
// v1 syntax with a leading seconds field, e.g. "0 */10 * * * *" for every ten
// minutes, or a descriptor such as "@every 10m") and starts
// the underlying cron loop. It returns an error only if the expression is
// malformed.
func (c *CronRunner) Start(spec string) error {
	if err := c.cron.AddFunc(spec, c.runOnce); err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop halts the cron loop. In-flight passes are allowed to finish.
func (c *CronRunner) Stop() {
	c.cron.Stop()
}

func (c *CronRunner) runOnce() {
	ctx := context.Background()
	desired, actual, err := c.provider.Snapshot(ctx)
	if err != nil {
		log.Printf("[reconciler] snapshot failed: %v", err)
		return
	}
	result := c.reconciler.Reconcile(ctx, desired, actual)
	if c.onResult != nil {
		c.onResult(result)
	}
}
