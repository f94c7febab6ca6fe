package scheduler

import (
	"github.com/jordanhubbard/oya-go/internal/dag"
	"github.com/jordanhubbard/oya-go/pkg/models"
)

// workflowState pairs a workflow's dependency graph with the set of beads
// that have completed within it.
type workflowState struct {
	workflowID string
	graph      *dag.Graph
	completed  map[string]bool
}

func newWorkflowState(workflowID string) *workflowState {
	return &workflowState{
		workflowID: workflowID,
		graph:      dag.New(),
		completed:  make(map[string]bool),
	}
}

func (w *workflowState) addBead(id string) {
	w.graph.AddNode(id)
}

func (w *workflowState) addDependency(dependency, dependent string, kind models.DependencyType) error {
	return w.graph.AddEdge(dependency, dependent, kind)
}

func (w *workflowState) markCompleted(id string) {
	w.completed[id] = true
}

func (w *workflowState) isComplete() bool {
	return len(w.completed) == w.graph.NodeCount()
}

func (w *workflowState) completedCount() int {
	return len(w.completed)
}

func (w *workflowState) len() int {
	return w.graph.NodeCount()
}

func (w *workflowState) isEmpty() bool {
	return w.graph.NodeCount() == 0
}

func (w *workflowState) getReadyBeads() []string {
	return w.graph.GetReadyNodes(w.completed)
}

func (w *workflowState) isBeadReady(id string) bool {
	return w.graph.IsReady(id, w.completed)
}

func (w *workflowState) containsBead(id string) bool {
	return w.graph.Contains(id)
}

func (w *workflowState) beads() []string {
	return w.graph.Nodes()
}
