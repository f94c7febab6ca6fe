// Package persistence defines the adapter contract the scheduler and
// reconciler use to durably store beads and dependency edges, plus a
// Postgres-backed implementation and an in-memory test double.
package persistence

import (
	"context"
	"time"

	"github.com/jordanhubbard/oya-go/pkg/models"
)

// Store is the persistence contract every backend satisfies.
type Store interface {
	SaveBead(ctx context.Context, b *models.Bead) error
	GetBead(ctx context.Context, id string) (*models.Bead, error)
	UpdateBead(ctx context.Context, b *models.Bead) error
	DeleteBead(ctx context.Context, id string) error
	ListBeadsByWorkflow(ctx context.Context, workflowID string) ([]*models.Bead, error)
	ListBeadsByState(ctx context.Context, state models.BeadState) ([]*models.Bead, error)

	// AssignToWorker is a compound update: it sets ClaimedBy and
	// transitions the bead to Assigned in one call so a caller can't
	// observe a half-applied claim.
	AssignToWorker(ctx context.Context, beadID, workerID string, now time.Time) error
	// MarkFailed is a compound update: it increments RetryCount, records
	// the failure reason, and transitions to Failed.
	MarkFailed(ctx context.Context, beadID, reason string, now time.Time) error
	// Reschedule is a compound update: it clears ClaimedBy and transitions
	// a Running bead back to Ready, used by the reconciler's stuck-bead
	// and dead-worker corrective actions.
	Reschedule(ctx context.Context, beadID string, now time.Time) error

	SaveDependencyEdge(ctx context.Context, e models.DependencyEdge) error
	ListDependencyEdges(ctx context.Context, workflowID string) ([]models.DependencyEdge, error)

	// BlockedBeads returns every non-terminal bead in workflowID that has
	// at least one blocking dependency not yet BeadCompleted, keyed by bead
	// id, paired with the ids of the blockers still outstanding and a
	// human-readable reason string naming each of them.
	BlockedBeads(ctx context.Context, workflowID string) (map[string]BlockedBead, error)

	Close() error
}

// BlockedBead is the derived "find blocked beads" query's per-bead result:
// the ordered list of still-incomplete dependency ids blocking it, plus a
// reason string mentioning every one of them by id.
type BlockedBead struct {
	BlockedBy []string
	Reason    string
}
