package resolver

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kingrea/intel-lattice/internal/workflow"
)

// Cycle records a dependency edge that pointed back into the active DFS path.
type Cycle struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Message renders the diagnostic written to the orchestration record.
func (c Cycle) Message() string {
	return fmt.Sprintf("Detected dependency cycle for module '%s'.", c.To)
}

// Plan is the resolver's output for one selection.
type Plan struct {
	// Closure is the selection plus every transitive dependency, in priority order.
	Closure []string
	// Order lists every closure member exactly once, dependencies first.
	Order  []string
	Cycles []Cycle
}

// Diagnostics returns the human readable cycle messages.
func (p Plan) Diagnostics() []string {
	if len(p.Cycles) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(p.Cycles))
	for _, c := range p.Cycles {
		out = append(out, c.Message())
	}
	return out
}

// Resolver orders modules over a static dependency graph.
type Resolver struct {
	graph    workflow.DependencyGraph
	priority map[string]int
	logger   *zap.Logger
}

// New builds a resolver from a normalized catalog.
func New(c workflow.Catalog, logger *zap.Logger) *Resolver {
	return NewFromGraph(c.Graph, c.Priority, logger)
}

// NewFromGraph builds a resolver from an explicit graph and priority list.
func NewFromGraph(graph workflow.DependencyGraph, priority []string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	rank := make(map[string]int, len(priority))
	for idx, id := range priority {
		if _, dup := rank[id]; !dup {
			rank[id] = idx
		}
	}
	return &Resolver{graph: graph.Clone(), priority: rank, logger: logger}
}

// Closure returns the selection plus all transitive dependencies, including
// dependencies the catalog does not describe further.
func (r *Resolver) Closure(selected []string) []string {
	closure := map[string]struct{}{}
	for _, id := range selected {
		closure[id] = struct{}{}
	}
	for changed := true; changed; {
		changed = false
		for id := range closure {
			for _, dep := range r.graph[id] {
				if _, ok := closure[dep]; !ok {
					closure[dep] = struct{}{}
					changed = true
				}
			}
		}
	}
	ids := make([]string, 0, len(closure))
	for id := range closure {
		ids = append(ids, id)
	}
	return r.PriorityOrder(ids)
}

// PriorityOrder sorts ids by catalog priority; unlisted ids follow in lexical
// order. The input slice is not modified.
func (r *Resolver) PriorityOrder(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := r.priority[out[i]]
		rj, jok := r.priority[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

type color uint8

const (
	white color = iota
	gray
	black
)

type frame struct {
	id   string
	next int
}

// Resolve computes the closure and a dependencies-first execution order using
// an explicit-stack depth-first walk. Roots are taken in priority order and
// dependencies in declared order.
func (r *Resolver) Resolve(selected []string) Plan {
	closure := r.Closure(selected)
	colors := make(map[string]color, len(closure))
	order := make([]string, 0, len(closure))
	var cycles []Cycle

	for _, root := range closure {
		if colors[root] != white {
			continue
		}
		colors[root] = gray
		stack := []frame{{id: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := r.graph[top.id]
			if top.next < len(deps) {
				dep := deps[top.next]
				top.next++
				switch colors[dep] {
				case white:
					colors[dep] = gray
					stack = append(stack, frame{id: dep})
				case gray:
					c := Cycle{From: top.id, To: dep}
					cycles = append(cycles, c)
					r.logger.Warn("dependency cycle", zap.String("from", c.From), zap.String("to", c.To))
				}
				continue
			}
			colors[top.id] = black
			order = append(order, top.id)
			stack = stack[:len(stack)-1]
		}
	}
	return Plan{Closure: closure, Order: order, Cycles: cycles}
}
