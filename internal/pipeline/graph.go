// Package pipeline wires the stages into a graph and drives a session
// through it.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"coderag/internal/domain"
)

// End is the route target that stops the run.
const End = "__end__"

// Node is a single pipeline stage. It reads a snapshot of the state and
// returns a partial update; it never writes the state itself.
type Node interface {
	Name() string
	Run(ctx context.Context, s domain.State) (domain.Update, error)
}

type funcNode struct {
	name string
	fn   func(context.Context, domain.State) (domain.Update, error)
}

func (n funcNode) Name() string { return n.name }

func (n funcNode) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	return n.fn(ctx, s)
}

// NodeFunc adapts a plain function to a Node.
func NodeFunc(name string, fn func(context.Context, domain.State) (domain.Update, error)) Node {
	return funcNode{name: name, fn: fn}
}

// Router picks the next node after a conditional node, or End.
type Router func(domain.State) (string, error)

type route struct {
	fn      Router
	targets []string
}

// Graph is a set of nodes joined by static edges and conditional routes.
// A node becomes ready once every node with an edge into it has completed
// in the current cycle. Firing a route closes the cycle.
type Graph struct {
	entry   string
	nodes   map[string]Node
	order   []string
	edges   map[string][]string
	prereqs map[string][]string
	routes  map[string]route
	errs    []error
}

func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]Node),
		edges:   make(map[string][]string),
		prereqs: make(map[string][]string),
		routes:  make(map[string]route),
	}
}

// AddNode registers n. Declaration order is the merge order for nodes
// that finish in the same superstep.
func (g *Graph) AddNode(n Node) *Graph {
	name := n.Name()
	if name == "" || name == End {
		g.errs = append(g.errs, fmt.Errorf("invalid node name %q", name))
		return g
	}
	if _, dup := g.nodes[name]; dup {
		g.errs = append(g.errs, fmt.Errorf("duplicate node %q", name))
		return g
	}
	g.nodes[name] = n
	g.order = append(g.order, name)
	return g
}

// AddEdge declares that to runs after from. A node with several incoming
// edges waits for all of them.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = append(g.edges[from], to)
	g.prereqs[to] = append(g.prereqs[to], from)
	return g
}

// AddRoute attaches a conditional route to from. fn must return one of
// targets or End.
func (g *Graph) AddRoute(from string, fn Router, targets ...string) *Graph {
	if _, dup := g.routes[from]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %q already has a route", from))
		return g
	}
	g.routes[from] = route{fn: fn, targets: targets}
	return g
}

// SetEntry names the node every cycle starts at.
func (g *Graph) SetEntry(name string) *Graph {
	g.entry = name
	return g
}

// Validate reports construction errors, edges or routes that name unknown
// nodes, a missing entry, and nodes unreachable from the entry.
func (g *Graph) Validate() error {
	errs := append([]error(nil), g.errs...)

	if g.entry == "" {
		errs = append(errs, errors.New("entry node not set"))
	} else if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry node %q is not registered", g.entry))
	}
	for _, from := range g.sortedKeys(g.edges) {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", from))
		}
		for _, to := range g.edges[from] {
			if _, ok := g.nodes[to]; !ok {
				errs = append(errs, fmt.Errorf("edge %s -> %s: unknown node %q", from, to, to))
			}
		}
	}
	for from, r := range g.routes {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("route from unknown node %q", from))
		}
		if r.fn == nil {
			errs = append(errs, fmt.Errorf("route from %q has no router", from))
		}
		if len(r.targets) == 0 {
			errs = append(errs, fmt.Errorf("route from %q has no targets", from))
		}
		for _, to := range r.targets {
			if _, ok := g.nodes[to]; !ok && to != End {
				errs = append(errs, fmt.Errorf("route %s -> %s: unknown node %q", from, to, to))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	seen := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next := append([]string(nil), g.edges[cur]...)
		next = append(next, g.routes[cur].targets...)
		for _, to := range next {
			if to == End || seen[to] {
				continue
			}
			seen[to] = true
			queue = append(queue, to)
		}
	}
	for _, name := range g.order {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("node %q is unreachable from %q", name, g.entry))
		}
	}
	return errors.Join(errs...)
}

// sortedKeys returns the keys of m that are registered nodes in
// declaration order, followed by unregistered ones.
func (g *Graph) sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for _, name := range g.order {
		if _, ok := m[name]; ok {
			keys = append(keys, name)
		}
	}
	for k := range m {
		if _, ok := g.nodes[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// ready returns, in declaration order, the nodes that may run given the
// nodes completed in this cycle and the node the cycle was entered at.
func (g *Graph) ready(completed map[string]bool, start string) []string {
	var out []string
	for _, name := range g.order {
		if completed[name] {
			continue
		}
		pre := g.prereqs[name]
		if len(pre) == 0 {
			if name == start {
				out = append(out, name)
			}
			continue
		}
		all := true
		for _, p := range pre {
			if !completed[p] {
				all = false
				break
			}
		}
		if all {
			out = append(out, name)
		}
	}
	return out
}

// RouteOnStatus ends the run once the status is done and otherwise
// re-enters at loop. An unknown status is an error.
func RouteOnStatus(loop string) Router {
	return func(s domain.State) (string, error) {
		status, err := domain.ParseRunStatus(string(s.Status))
		if err != nil {
			return "", err
		}
		if status == domain.StatusDone {
			return End, nil
		}
		return loop, nil
	}
}

// Stages are the nodes of the problem-to-code graph.
type Stages struct {
	Plan    Node
	Search  Node
	Filter  Node
	Draft   Node
	Crawl   Node
	Extract Node
	Rank    Node
	Refine  Node
	Respond Node
}

// Standard builds and validates the problem-to-code graph:
// plan fans out to search and draft, the search branch walks filter,
// crawl, extract and rank, refine joins rank with draft, and respond
// either loops back to plan or ends.
func Standard(st Stages) (*Graph, error) {
	g := NewGraph()
	for _, n := range []Node{st.Plan, st.Search, st.Draft, st.Filter, st.Crawl, st.Extract, st.Rank, st.Refine, st.Respond} {
		if n == nil {
			return nil, errors.New("missing stage")
		}
		g.AddNode(n)
	}
	plan, respond := st.Plan.Name(), st.Respond.Name()
	g.SetEntry(plan).
		AddEdge(plan, st.Search.Name()).
		AddEdge(plan, st.Draft.Name()).
		AddEdge(st.Search.Name(), st.Filter.Name()).
		AddEdge(st.Filter.Name(), st.Crawl.Name()).
		AddEdge(st.Crawl.Name(), st.Extract.Name()).
		AddEdge(st.Extract.Name(), st.Rank.Name()).
		AddEdge(st.Rank.Name(), st.Refine.Name()).
		AddEdge(st.Draft.Name(), st.Refine.Name()).
		AddEdge(st.Refine.Name(), respond).
		AddRoute(respond, RouteOnStatus(plan), plan, End)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
