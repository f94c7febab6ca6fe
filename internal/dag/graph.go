// Package dag implements the workflow dependency graph: a directed acyclic
// graph of bead identifiers connected by blocking or preferred-order edges.
//
// The graph is represented as a pair of adjacency maps rather than an index
// based structure, so node removal never invalidates references held by the
// rest of the graph. Using bead ids as map keys directly costs slightly more
// map traffic, which is not the hot path here.
package dag

import (
	"fmt"
	"sort"

	"github.com/jordanhubbard/oya-go/pkg/models"
)

// Graph is a directed acyclic graph of bead ids. The zero value is not
// usable; construct one with New.
type Graph struct {
	nodes map[string]struct{}
	// out[dependency][dependent] = type: dependency is required by dependent.
	out map[string]map[string]models.DependencyType
	// in[dependent][dependency] = type: reverse index of out.
	in map[string]map[string]models.DependencyType
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		out:   make(map[string]map[string]models.DependencyType),
		in:    make(map[string]map[string]models.DependencyType),
	}
}

// AddNode registers a bead id with the graph. It fails if the id is already
// present; callers that want idempotent registration (e.g. the scheduler
// replaying an already-scheduled bead) should check Contains first or treat
// ErrNodeExists as a non-fatal outcome.
func (g *Graph) AddNode(id string) error {
	if _, ok := g.nodes[id]; ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, id)
	}
	g.nodes[id] = struct{}{}
	g.out[id] = make(map[string]models.DependencyType)
	g.in[id] = make(map[string]models.DependencyType)
	return nil
}

// Contains reports whether id has been added to the graph.
func (g *Graph) Contains(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// NodeCount returns the number of nodes currently in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Nodes returns all node ids in the graph, sorted.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) error {
	if !g.Contains(id) {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	for dependent := range g.out[id] {
		delete(g.in[dependent], id)
	}
	for dependency := range g.in[id] {
		delete(g.out[dependency], id)
	}
	delete(g.out, id)
	delete(g.in, id)
	delete(g.nodes, id)
	return nil
}

// AddEdge records that dependent depends on dependency. Both ids must
// already exist in the graph. Adding an edge that would create a cycle is
// rejected; adding a self loop is rejected unconditionally.
func (g *Graph) AddEdge(dependency, dependent string, kind models.DependencyType) error {
	if dependency == dependent {
		return fmt.Errorf("%w: %s", ErrSelfLoop, dependency)
	}
	if !g.Contains(dependency) {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, dependency)
	}
	if !g.Contains(dependent) {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, dependent)
	}
	if _, ok := g.out[dependency][dependent]; ok {
		return fmt.Errorf("%w: %s -> %s", ErrEdgeExists, dependency, dependent)
	}
	if g.reachable(dependent, dependency) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, dependency, dependent)
	}
	g.out[dependency][dependent] = kind
	g.in[dependent][dependency] = kind
	return nil
}

// RemoveEdge removes the edge between dependency and dependent, if any.
func (g *Graph) RemoveEdge(dependency, dependent string) {
	if edges, ok := g.out[dependency]; ok {
		delete(edges, dependent)
	}
	if edges, ok := g.in[dependent]; ok {
		delete(edges, dependency)
	}
}

// GetDependencies returns the ids that id directly depends on, sorted.
func (g *Graph) GetDependencies(id string) []string {
	return sortedKeys(g.in[id])
}

// GetDependents returns the ids that directly depend on id, sorted.
func (g *Graph) GetDependents(id string) []string {
	return sortedKeys(g.out[id])
}

// BlockingDependencies returns only the dependencies of id whose edge type
// is BlockingDependency.
func (g *Graph) BlockingDependencies(id string) []string {
	var out []string
	for dep, kind := range g.in[id] {
		if kind == models.BlockingDependency {
			out = append(out, dep)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]models.DependencyType) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// reachable reports whether to is reachable from from by following out
// edges. Used internally by AddEdge to detect would-be cycles before they
// are committed.
func (g *Graph) reachable(from, to string) bool {
	if from == to {
		return true
	}
	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		if n == to {
			return true
		}
		for next := range g.out[n] {
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// GetAllAncestors returns every node that id transitively depends on.
func (g *Graph) GetAllAncestors(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for dep := range g.in[n] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// GetAllDescendants returns every node that transitively depends on id.
func (g *Graph) GetAllDescendants(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for dep := range g.out[n] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// GetRoots returns nodes with no incoming blocking edge, sorted. A node
// whose only incoming edges are preferred-order hints is still a root: it
// can start immediately, the hint never gates it.
func (g *Graph) GetRoots() []string {
	var out []string
	for n := range g.nodes {
		blocked := false
		for _, kind := range g.in[n] {
			if kind == models.BlockingDependency {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// GetLeaves returns nodes with no outgoing dependent edges, sorted.
func (g *Graph) GetLeaves() []string {
	var out []string
	for n := range g.nodes {
		if len(g.out[n]) == 0 {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// IsReady reports whether id is not completed and every blocking
// dependency of id is present in completed.
func (g *Graph) IsReady(id string, completed map[string]bool) bool {
	if completed[id] {
		return false
	}
	if !g.Contains(id) {
		return false
	}
	for dep, kind := range g.in[id] {
		if kind == models.BlockingDependency && !completed[dep] {
			return false
		}
	}
	return true
}

// GetReadyNodes returns every node ready to run given the completed set,
// sorted by id for deterministic scheduling order.
func (g *Graph) GetReadyNodes(completed map[string]bool) []string {
	var out []string
	for n := range g.nodes {
		if g.IsReady(n, completed) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// GetBlockedNodes returns every node that is neither completed nor ready,
// sorted by id for consistency with the sorted ready-node contract
// schedulers rely on.
func (g *Graph) GetBlockedNodes(completed map[string]bool) []string {
	var out []string
	for n := range g.nodes {
		if completed[n] {
			continue
		}
		if !g.IsReady(n, completed) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// HasCycle reports whether the graph currently contains a cycle. AddEdge
// prevents cycles from being introduced, so this should always be false in
// practice; it exists as an independent check for graphs assembled by other
// means (e.g. bulk-loaded from persistence).
func (g *Graph) HasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	for n := range g.nodes {
		color[n] = white
	}
	var visit func(string) bool
	visit = func(n string) bool {
		color[n] = gray
		for next := range g.out[n] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}
	for n := range g.nodes {
		if color[n] == white {
			if visit(n) {
				return true
			}
		}
	}
	return false
}

// FindCycles returns every strongly connected component of size greater
// than one, computed with Tarjan's algorithm, plus a single-element entry
// for each self loop. Each returned slice is a set of mutually reachable
// node ids and is sorted for determinism; the outer slice is sorted by its
// first element.
func (g *Graph) FindCycles() [][]string {
	idx := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var sccs [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = idx
		lowlink[v] = idx
		idx++
		stack = append(stack, v)
		onStack[v] = true

		for w := range g.out[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				sort.Strings(scc)
				sccs = append(sccs, scc)
			} else if _, ok := g.out[v][v]; ok {
				sccs = append(sccs, scc)
			}
		}
	}

	for n := range g.nodes {
		if _, seen := indices[n]; !seen {
			strongconnect(n)
		}
	}
	sort.Slice(sccs, func(i, j int) bool { return sccs[i][0] < sccs[j][0] })
	return sccs
}

// TopologicalSort returns nodes in dependency order using depth-first
// traversal, visiting roots in sorted order and breaking remaining ties by
// node id. Returns ErrCycle if the graph is not acyclic.
func (g *Graph) TopologicalSort() ([]string, error) {
	if g.HasCycle() {
		return nil, ErrCycle
	}
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(g.nodes))
	var order []string
	var visit func(string)
	visit = func(n string) {
		if state[n] != unvisited {
			return
		}
		state[n] = visiting
		for _, next := range sortedKeys(g.out[n]) {
			visit(next)
		}
		state[n] = visited
		order = append(order, n)
	}
	for _, n := range g.Nodes() {
		visit(n)
	}
	// order was built post-order from leaves to roots; reverse it.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// TopologicalSortKahn returns the same ordering guarantee as TopologicalSort
// using Kahn's algorithm instead of DFS, processing the ready frontier in
// sorted order at each step. Returns ErrCycle if the graph is not acyclic.
func (g *Graph) TopologicalSortKahn() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for n := range g.nodes {
		inDegree[n] = len(g.in[n])
	}
	var frontier []string
	for n, d := range inDegree {
		if d == 0 {
			frontier = append(frontier, n)
		}
	}
	sort.Strings(frontier)

	var order []string
	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		order = append(order, n)
		var freed []string
		for _, next := range sortedKeys(g.out[n]) {
			inDegree[next]--
			if inDegree[next] == 0 {
				freed = append(freed, next)
			}
		}
		frontier = append(frontier, freed...)
		sort.Strings(frontier)
	}
	if len(order) != len(g.nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

// ValidateNoSelfLoops reports an error naming the first self loop found, if
// any. AddEdge already rejects self loops at insertion time; this exists to
// validate graphs constructed in bulk by other means.
func (g *Graph) ValidateNoSelfLoops() error {
	for n, edges := range g.out {
		if _, ok := edges[n]; ok {
			return fmt.Errorf("%w: %s", ErrSelfLoop, n)
		}
	}
	return nil
}

// IsConnected reports whether every node is reachable from every other node
// when edges are treated as undirected.
func (g *Graph) IsConnected() bool {
	if len(g.nodes) == 0 {
		return true
	}
	var start string
	for n := range g.nodes {
		start = n
		break
	}
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		neighbors := make(map[string]bool)
		for x := range g.out[n] {
			neighbors[x] = true
		}
		for x := range g.in[n] {
			neighbors[x] = true
		}
		for x := range neighbors {
			if !visited[x] {
				visited[x] = true
				stack = append(stack, x)
			}
		}
	}
	return len(visited) == len(g.nodes)
}

// Subgraph returns a new graph containing only the given node ids and the
// edges directly between them (the induced subgraph on that node set).
func (g *Graph) Subgraph(ids []string) *Graph {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	sub := New()
	for id := range set {
		if g.Contains(id) {
			_ = sub.AddNode(id)
		}
	}
	for dependency, edges := range g.out {
		if !set[dependency] {
			continue
		}
		for dependent, kind := range edges {
			if set[dependent] {
				sub.out[dependency][dependent] = kind
				sub.in[dependent][dependency] = kind
			}
		}
	}
	return sub
}

// InducedSubgraph returns the induced subgraph on ids plus every ancestor
// and descendant of those ids, giving callers full dependency context
// around a focal set of beads (for example, when rendering just the
// neighborhood of a failed bead).
func (g *Graph) InducedSubgraph(ids []string) *Graph {
	set := make(map[string]bool)
	for _, id := range ids {
		set[id] = true
		for _, a := range g.GetAllAncestors(id) {
			set[a] = true
		}
		for _, d := range g.GetAllDescendants(id) {
			set[d] = true
		}
	}
	all := make([]string, 0, len(set))
	for id := range set {
		all = append(all, id)
	}
	return g.Subgraph(all)
}

// CriticalPath returns the longest duration-weighted path through Blocking
// edges only (Preferred edges are scheduling hints and do not contribute to
// the critical path), computed with a topological dynamic program: dist[n]
// is the longest path ending at n, extended by durations[n]. Ties on total
// duration are broken by picking the lexicographically smallest terminal
// node id, since map iteration order would otherwise make the choice
// nondeterministic.
func (g *Graph) CriticalPath(durations map[string]int64) ([]string, int64, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, 0, err
	}
	dist := make(map[string]int64, len(order))
	prev := make(map[string]string, len(order))
	for _, n := range order {
		best := durations[n]
		var bestPrev string
		hasPrev := false
		for _, dep := range g.BlockingDependencies(n) {
			candidate := dist[dep] + durations[n]
			if candidate > best || !hasPrev && candidate == best {
				best = candidate
				bestPrev = dep
				hasPrev = true
			}
		}
		dist[n] = best
		if hasPrev {
			prev[n] = bestPrev
		}
	}

	var bestEnd string
	var bestDist int64 = -1
	haveEnd := false
	for _, n := range order {
		if dist[n] > bestDist || (dist[n] == bestDist && haveEnd && n < bestEnd) {
			bestDist = dist[n]
			bestEnd = n
			haveEnd = true
		}
	}
	if !haveEnd {
		return nil, 0, nil
	}
	var path []string
	for n := bestEnd; ; {
		path = append(path, n)
		p, ok := prev[n]
		if !ok {
			break
		}
		n = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, bestDist, nil
}
