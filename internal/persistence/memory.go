package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jordanhubbard/oya-go/pkg/models"
)

// MemoryStore is an in-memory Store implementation used by tests and for
// running the scheduler/reconciler without a database dependency.
type MemoryStore struct {
	mu    sync.RWMutex
	beads map[string]*models.Bead
	edges []models.DependencyEdge
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{beads: make(map[string]*models.Bead)}
}

func (m *MemoryStore) SaveBead(_ context.Context, b *models.Bead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if b.ID == "" {
		b.ID = NewBeadID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	cp := *b
	m.beads[b.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateBead(ctx context.Context, b *models.Bead) error {
	return m.SaveBead(ctx, b)
}

func (m *MemoryStore) GetBead(_ context.Context, id string) (*models.Bead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.beads[id]
	if !ok {
		return nil, fmt.Errorf("%w: bead %s", ErrNotFound, id)
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) DeleteBead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.beads, id)
	return nil
}

func (m *MemoryStore) ListBeadsByWorkflow(_ context.Context, workflowID string) ([]*models.Bead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Bead
	for _, b := range m.beads {
		if b.WorkflowID == workflowID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListBeadsByState(_ context.Context, state models.BeadState) ([]*models.Bead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Bead
	for _, b := range m.beads {
		if b.State == state {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AssignToWorker(_ context.Context, beadID, workerID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beads[beadID]
	if !ok {
		return fmt.Errorf("%w: bead %s", ErrNotFound, beadID)
	}
	b.ClaimedBy = workerID
	b.Apply(models.BeadAssigned, "assigned to worker", now)
	return nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, beadID, reason string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beads[beadID]
	if !ok {
		return fmt.Errorf("%w: bead %s", ErrNotFound, beadID)
	}
	b.RetryCount++
	b.ErrorMessage = reason
	b.Apply(models.BeadFailed, reason, now)
	return nil
}

func (m *MemoryStore) Reschedule(_ context.Context, beadID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beads[beadID]
	if !ok {
		return fmt.Errorf("%w: bead %s", ErrNotFound, beadID)
	}
	b.ClaimedBy = ""
	b.ErrorMessage = ""
	b.Apply(models.BeadReady, "rescheduled", now)
	return nil
}

func (m *MemoryStore) SaveDependencyEdge(_ context.Context, e models.DependencyEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.edges {
		if existing.WorkflowID == e.WorkflowID && existing.Dependency == e.Dependency && existing.Dependent == e.Dependent {
			m.edges[i] = e
			return nil
		}
	}
	m.edges = append(m.edges, e)
	return nil
}

func (m *MemoryStore) ListDependencyEdges(_ context.Context, workflowID string) ([]models.DependencyEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.DependencyEdge
	for _, e := range m.edges {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) BlockedBeads(_ context.Context, workflowID string) (map[string]BlockedBead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blockers := make(map[string][]string)
	for _, e := range m.edges {
		if e.WorkflowID != workflowID || e.Type != models.BlockingDependency {
			continue
		}
		dependent, ok := m.beads[e.Dependent]
		if !ok || dependent.State.IsTerminal() {
			continue
		}
		dependency, ok := m.beads[e.Dependency]
		if !ok || dependency.State == models.BeadCompleted {
			continue
		}
		blockers[e.Dependent] = append(blockers[e.Dependent], e.Dependency)
	}
	out := make(map[string]BlockedBead, len(blockers))
	for id, ids := range blockers {
		sort.Strings(ids)
		out[id] = BlockedBead{BlockedBy: ids, Reason: blockedReason(id, ids)}
	}
	return out, nil
}

// blockedReason renders a human-readable string naming every outstanding
// blocker of beadID, for the "find blocked beads" derived query.
func blockedReason(beadID string, blockedBy []string) string {
	reason := fmt.Sprintf("bead %s is blocked on", beadID)
	for i, id := range blockedBy {
		if i > 0 {
			reason += ","
		}
		reason += " " + id
	}
	return reason
}

func (m *MemoryStore) Close() error { return nil }
