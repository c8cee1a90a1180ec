package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/intel-lattice/internal/workflow"
)

func defaultResolver(t *testing.T) *Resolver {
	t.Helper()
	catalog, err := workflow.DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	return New(catalog, nil)
}

func TestResolveDefaultCatalogOrdersDependenciesFirst(t *testing.T) {
	res := defaultResolver(t)
	plan := res.Resolve([]string{"SpiderFoot", "Metagoofil"})
	wantClosure := []string{"theHarvester", "Recon-ng", "SpiderFoot", "Photon", "Metagoofil"}
	if diff := cmp.Diff(wantClosure, plan.Closure); diff != "" {
		t.Fatalf("closure mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantClosure, plan.Order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if len(plan.Cycles) != 0 {
		t.Fatalf("unexpected cycles: %+v", plan.Cycles)
	}
}

func TestResolveAcyclicOrderRespectsEveryEdge(t *testing.T) {
	graph := workflow.DependencyGraph{
		"report":  {"enrich", "crawl"},
		"enrich":  {"seed"},
		"crawl":   {"seed", "dns"},
		"dns":     nil,
		"seed":    nil,
		"orphans": {"dns"},
	}
	res := NewFromGraph(graph, []string{"report"}, nil)
	plan := res.Resolve([]string{"report", "orphans"})
	if len(plan.Order) != 6 {
		t.Fatalf("expected every closure member once, got %v", plan.Order)
	}
	position := map[string]int{}
	for idx, id := range plan.Order {
		if _, dup := position[id]; dup {
			t.Fatalf("%s ordered twice: %v", id, plan.Order)
		}
		position[id] = idx
	}
	for id, deps := range graph {
		for _, dep := range deps {
			if position[dep] >= position[id] {
				t.Fatalf("%s must precede %s in %v", dep, id, plan.Order)
			}
		}
	}
}

func TestResolveTwoNodeCycleTerminates(t *testing.T) {
	graph := workflow.DependencyGraph{"A": {"B"}, "B": {"A"}}
	res := NewFromGraph(graph, nil, nil)
	plan := res.Resolve([]string{"A"})
	if diff := cmp.Diff([]string{"B", "A"}, plan.Order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Cycle{{From: "B", To: "A"}}, plan.Cycles); diff != "" {
		t.Fatalf("cycles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Detected dependency cycle for module 'A'."}, plan.Diagnostics()); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveKeepsUnknownDependencies(t *testing.T) {
	graph := workflow.DependencyGraph{"A": {"Ghost"}}
	plan := NewFromGraph(graph, nil, nil).Resolve([]string{"A"})
	if diff := cmp.Diff([]string{"Ghost", "A"}, plan.Order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestPriorityOrderPlacesUnlistedLast(t *testing.T) {
	res := NewFromGraph(nil, []string{"theHarvester", "Sherlock"}, nil)
	got := res.PriorityOrder([]string{"zeta", "Sherlock", "alpha", "theHarvester"})
	want := []string{"theHarvester", "Sherlock", "alpha", "zeta"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("priority mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveEmptySelection(t *testing.T) {
	plan := defaultResolver(t).Resolve(nil)
	if len(plan.Order) != 0 || len(plan.Closure) != 0 {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
	if diags := plan.Diagnostics(); diags == nil || len(diags) != 0 {
		t.Fatalf("expected empty non-nil diagnostics, got %#v", diags)
	}
}

func TestResolveSelfLoopRunsOnceWithDiagnostic(t *testing.T) {
	catalog, err := workflow.ParseCatalogYAML([]byte(`
id: self
modules:
  - {id: A, section: digital, depends_on: [A]}
  - {id: B, section: social, depends_on: [A]}
fallback: [A]
`))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	plan := New(catalog, nil).Resolve([]string{"B"})
	if diff := cmp.Diff([]string{"A", "B"}, plan.Order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	want := []string{"Detected dependency cycle for module 'A'."}
	if diff := cmp.Diff(want, plan.Diagnostics()); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}
