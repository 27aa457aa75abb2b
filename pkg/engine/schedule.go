package engine

import (
	"fmt"
	"sort"

	"github.com/ormasoftchile/pert/pkg/plan"
)

// graph is the dependency bookkeeping for one executor pass: in-degree per
// step and the reverse adjacency used for readiness and skip propagation.
type graph struct {
	steps      map[int]*plan.Step
	indeg      map[int]int
	dependents map[int][]int
}

// buildGraph indexes the steps selected for execution. A dependency outside
// the selection is external: the scheduler checks it against already
// published results instead of in-degree counting.
func buildGraph(p *plan.Plan, selected map[int]bool) *graph {
	g := &graph{
		steps:      make(map[int]*plan.Step),
		indeg:      make(map[int]int),
		dependents: make(map[int][]int),
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if selected != nil && !selected[s.ID] {
			continue
		}
		g.steps[s.ID] = s
		g.indeg[s.ID] = 0
	}
	for id, s := range g.steps {
		for _, dep := range s.Dependencies {
			if _, in := g.steps[dep]; in {
				g.indeg[id]++
				g.dependents[dep] = append(g.dependents[dep], id)
			}
		}
	}
	for _, deps := range g.dependents {
		sort.Ints(deps)
	}
	return g
}

// ready returns the steps with no unsatisfied in-graph dependencies,
// ascending by ID for deterministic dispatch order.
func (g *graph) ready() []int {
	var ids []int
	for id, n := range g.indeg {
		if n == 0 {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// downstreamClosure returns the given roots plus every plan step that
// transitively depends on any of them.
func downstreamClosure(p *plan.Plan, roots []int) map[int]bool {
	dependents := make(map[int][]int)
	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}
	closure := make(map[int]bool)
	var visit func(id int)
	visit = func(id int) {
		if closure[id] {
			return
		}
		closure[id] = true
		for _, next := range dependents[id] {
			visit(next)
		}
	}
	for _, id := range roots {
		visit(id)
	}
	return closure
}

// Levels computes the dependency-derived execution waves of a plan: steps in
// the same wave have no ordering relationship and may run concurrently.
// Used by dry runs to report the schedule without invoking any tool.
func Levels(p *plan.Plan) ([][]int, error) {
	g := buildGraph(p, nil)
	remaining := len(g.steps)

	var levels [][]int
	indeg := g.indeg
	for remaining > 0 {
		var wave []int
		for id, n := range indeg {
			if n == 0 {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			return nil, fmt.Errorf("dependency cycle among remaining %d step(s)", remaining)
		}
		sort.Ints(wave)
		for _, id := range wave {
			delete(indeg, id)
			for _, dep := range g.dependents[id] {
				if _, ok := indeg[dep]; ok {
					indeg[dep]--
				}
			}
		}
		remaining -= len(wave)
		levels = append(levels, wave)
	}
	return levels, nil
}
