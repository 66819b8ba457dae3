// Package graph holds the task dependency relation as an adjacency mapping
// keyed by task id and keeps it acyclic under incremental mutation.
//
// An edge From -> To means "From depends on To". Reachability follows edge
// direction, so Reaches(a, b) is true when a transitively depends on b.
package graph

import (
	"slices"
	"sort"
	"sync"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

type set map[string]struct{}

// Graph is safe for concurrent use. Individual calls are atomic; callers that
// need check-then-persist atomicity must serialize writers themselves.
type Graph struct {
	mu    sync.RWMutex
	out   map[string]set
	in    map[string]set
	edges int
}

func New() *Graph {
	return &Graph{
		out: make(map[string]set),
		in:  make(map[string]set),
	}
}

// Load builds a graph from persisted edges. Loaded data that contains a
// self-edge or a cycle is reported as ErrGraphCorrupted.
func Load(edges []model.Edge) (*Graph, error) {
	g := New()
	for _, e := range edges {
		if e.From == e.To {
			return nil, corrupted([]string{e.From, e.From})
		}
		g.insert(e.From, e.To)
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, corrupted(cycle)
	}
	return g, nil
}

// AddEdge inserts from -> to unless it would close a cycle. On rejection the
// graph is left untouched. Re-adding an existing edge is a no-op.
func (g *Graph) AddEdge(from, to string) error {
	if from == to {
		return selfDependency(from)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasEdge(from, to) {
		return nil
	}
	if back := g.path(to, from); back != nil {
		return cycleDetected(from, to, append([]string{from}, back...))
	}
	g.insert(from, to)
	return nil
}

// RemoveEdge deletes from -> to and reports whether it was present.
func (g *Graph) RemoveEdge(from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasEdge(from, to) {
		return false
	}
	delete(g.out[from], to)
	if len(g.out[from]) == 0 {
		delete(g.out, from)
	}
	delete(g.in[to], from)
	if len(g.in[to]) == 0 {
		delete(g.in, to)
	}
	g.edges--
	return true
}

func (g *Graph) HasEdge(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasEdge(from, to)
}

// Reaches reports whether a path a -> ... -> b exists. Every node reaches itself.
func (g *Graph) Reaches(a, b string) bool {
	return g.Path(a, b) != nil
}

// Path returns the shortest path from a to b, both ends included, or nil.
// Ties are broken by id order so the result is deterministic.
func (g *Graph) Path(a, b string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.path(a, b)
}

// DependenciesOf returns the direct dependencies of id, sorted.
func (g *Graph) DependenciesOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.out[id])
}

// DependentsOf returns the tasks that directly depend on id, sorted.
func (g *Graph) DependentsOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.in[id])
}

// Edges returns every edge ordered by From, then To.
func (g *Graph) Edges() []model.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]model.Edge, 0, g.edges)
	for _, from := range sortedKeys(setOf(g.out)) {
		for _, to := range sortedKeys(g.out[from]) {
			out = append(out, model.Edge{From: from, To: to})
		}
	}
	return out
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges
}

func (g *Graph) hasEdge(from, to string) bool {
	_, ok := g.out[from][to]
	return ok
}

func (g *Graph) insert(from, to string) {
	if g.hasEdge(from, to) {
		return
	}
	if g.out[from] == nil {
		g.out[from] = make(set)
	}
	if g.in[to] == nil {
		g.in[to] = make(set)
	}
	g.out[from][to] = struct{}{}
	g.in[to][from] = struct{}{}
	g.edges++
}

// path is a BFS over outgoing edges; O(V+E).
func (g *Graph) path(a, b string) []string {
	if a == b {
		return []string{a}
	}

	parent := map[string]string{a: ""}
	queue := []string{a}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range sortedKeys(g.out[u]) {
			if _, seen := parent[v]; seen {
				continue
			}
			parent[v] = u
			if v == b {
				return unwind(parent, a, b)
			}
			queue = append(queue, v)
		}
	}
	return nil
}

func unwind(parent map[string]string, a, b string) []string {
	var rev []string
	for cur := b; ; cur = parent[cur] {
		rev = append(rev, cur)
		if cur == a {
			break
		}
	}
	slices.Reverse(rev)
	return rev
}

// findCycle runs a white/gray/black DFS in id order and returns one cycle
// witness [v, ..., v], or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.out))
	var stack []string
	var cycle []string

	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range sortedKeys(g.out[u]) {
			switch color[v] {
			case white:
				if dfs(v) {
					return true
				}
			case gray:
				start := slices.Index(stack, v)
				cycle = append(slices.Clone(stack[start:]), v)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for _, id := range sortedKeys(setOf(g.out)) {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

func setOf(m map[string]set) set {
	s := make(set, len(m))
	for k := range m {
		s[k] = struct{}{}
	}
	return s
}

func sortedKeys(s set) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
