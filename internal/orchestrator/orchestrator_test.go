package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/profile"
	"github.com/kingrea/intel-lattice/internal/workflow"
	"github.com/kingrea/intel-lattice/internal/workflow/engine"
)

type stubModule struct {
	*module.Base
	run func(profile.Profile) (profile.Update, error)
}

func (m *stubModule) Execute(_ context.Context, snapshot profile.Profile) (profile.Update, error) {
	return m.run(snapshot)
}

func stubSpec(id, section string, run func(profile.Profile) (profile.Update, error)) module.Spec {
	return module.Spec{
		ID: id,
		Factory: func(module.Env, module.Config) (module.Module, error) {
			info := module.Info{ID: id, Name: id, Version: "test"}
			return &stubModule{Base: module.NewBase(info, section), run: run}, nil
		},
	}
}

func writes(section string, payload map[string]any) func(profile.Profile) (profile.Update, error) {
	return func(profile.Profile) (profile.Update, error) {
		return profile.Update{section: payload}, nil
	}
}

func fixedClock() func() time.Time {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	calls := 0
	return func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
}

func newTestOrchestrator(t *testing.T, reg *module.Registry, opts ...Option) *Orchestrator {
	t.Helper()
	catalog, err := workflow.DefaultCatalog()
	require.NoError(t, err)
	base := []Option{WithClock(fixedClock()), WithIDGenerator(func() string { return "run-1" })}
	orch, err := New(catalog, reg, append(base, opts...)...)
	require.NoError(t, err)
	return orch
}

func resultFor(t *testing.T, record engine.OrchestrationRecord, id string) engine.ExecutionRecord {
	t.Helper()
	for _, result := range record.ModuleResults {
		if result.Module == id {
			return result
		}
	}
	t.Fatalf("no result for %s in %+v", id, record.ModuleResults)
	return engine.ExecutionRecord{}
}

func TestPlanEmailOnlyProfile(t *testing.T) {
	orch := newTestOrchestrator(t, module.NewRegistry())
	doc := profile.Profile{
		"identity": map[string]any{"full_name": "Jane Doe"},
		"contact":  map[string]any{"emails": []any{"jane@co.io"}},
	}
	plan := orch.Plan(doc)
	require.Equal(t, []string{"general_osint_collection"}, plan.Objectives)
	require.Equal(t, []string{"theHarvester", "GHunt"}, plan.Selected)
	require.Equal(t, []string{"target:emails"}, plan.Rules)
	require.Equal(t, []string{"theHarvester", "GHunt"}, plan.Resolution.Order)
	require.Empty(t, plan.Resolution.Diagnostics())
	_, planned := doc[profile.SectionOrchestration]
	require.False(t, planned, "Plan must not write the profile")
}

func TestRunEmailOnlyProfileWritesOrchestration(t *testing.T) {
	reg := module.NewRegistry()
	reg.MustRegister(stubSpec("theHarvester", profile.SectionDigital, writes(profile.SectionDigital, map[string]any{
		"domains": []any{"co.io"},
	})))
	reg.MustRegister(stubSpec("GHunt", profile.SectionDigital, writes(profile.SectionDigital, map[string]any{
		"google_accounts": []any{map[string]any{"email": "jane@co.io", "found": false}},
	})))
	orch := newTestOrchestrator(t, reg)
	doc := profile.Profile{
		"identity": map[string]any{"full_name": "Jane Doe"},
		"contact":  map[string]any{"emails": []any{"jane@co.io"}},
	}

	record, err := orch.Run(context.Background(), "", doc)
	require.NoError(t, err)
	require.Equal(t, "run-1", record.RunID)
	require.Equal(t, []string{"theHarvester", "GHunt"}, record.ExecutionOrder)
	require.Equal(t, 2, record.Count(engine.StatusCompleted))
	require.Equal(t, []string{"co.io"}, doc.Strings(profile.SectionDigital, "domains"))
	require.Len(t, doc.List(profile.SectionDigital, "google_accounts"), 1)

	section, ok := doc[profile.SectionOrchestration].(map[string]any)
	require.True(t, ok)
	require.Equal(t, []any{"general_osint_collection"}, section["objectives"])
	require.Equal(t, []any{"theHarvester", "GHunt"}, section["execution_order"])
	require.Equal(t, "run-1", section["run_id"])
	state, ok := section["state"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 1.0, state["duration_s"])
}

func TestRunContinuesPastUnavailableAndFailedModules(t *testing.T) {
	reg := module.NewRegistry()
	reg.MustRegister(stubSpec("theHarvester", profile.SectionDigital, func(profile.Profile) (profile.Update, error) {
		return nil, errors.New("dns lookup exploded")
	}))
	reg.MustRegister(module.Spec{ID: "Recon-ng", Factory: func(module.Env, module.Config) (module.Module, error) {
		return nil, fmt.Errorf("recon-ng binary not found: %w", module.ErrUnavailable)
	}})
	reg.MustRegister(stubSpec("Photon", profile.SectionDigital, writes(profile.SectionDigital, map[string]any{
		"external_hosts": []any{"cdn.example.net"},
	})))
	orch := newTestOrchestrator(t, reg)
	doc := profile.Profile{"digital": map[string]any{"domains": []any{"co.io"}}}

	record, err := orch.Run(context.Background(), "", doc)
	require.NoError(t, err)
	require.Equal(t, []string{"theHarvester", "Recon-ng", "SpiderFoot", "Photon"}, record.ExecutionOrder)
	require.Len(t, record.ModuleResults, 4)

	harvester := resultFor(t, record, "theHarvester")
	require.Equal(t, engine.StatusFailed, harvester.Status)
	require.Equal(t, "dns lookup exploded", harvester.Summary)
	require.Empty(t, harvester.OutputKeys)

	recon := resultFor(t, record, "Recon-ng")
	require.Equal(t, engine.StatusUnavailable, recon.Status)
	require.Contains(t, recon.Summary, "recon-ng binary not found")

	spiderfoot := resultFor(t, record, "SpiderFoot")
	require.Equal(t, engine.StatusUnavailable, spiderfoot.Status)
	require.Equal(t, engine.SummaryNotFound, spiderfoot.Summary)

	photon := resultFor(t, record, "Photon")
	require.Equal(t, engine.StatusCompleted, photon.Status)
	require.Equal(t, []string{"digital"}, photon.OutputKeys)
	require.Equal(t, []string{"cdn.example.net"}, doc.Strings(profile.SectionDigital, "external_hosts"))
	require.Equal(t, []string{"co.io"}, doc.Strings(profile.SectionDigital, "domains"))
}

func TestRunPersistsHistory(t *testing.T) {
	reg := module.NewRegistry()
	reg.MustRegister(stubSpec("theHarvester", profile.SectionDigital, writes(profile.SectionDigital, map[string]any{
		"ips": []any{"192.0.2.10"},
	})))
	store := engine.NewRepository(filepath.Join(t.TempDir(), "history.json"))
	orch := newTestOrchestrator(t, reg, WithRunStore(store))
	ctx := context.Background()

	history, err := orch.History(ctx, "jane")
	require.NoError(t, err)
	require.Empty(t, history)

	doc := profile.Profile{"contact": map[string]any{"emails": []any{"jane@co.io"}}}
	_, err = orch.Run(ctx, "jane", doc)
	require.NoError(t, err)

	history, err = orch.History(ctx, "jane")
	require.NoError(t, err)
	require.Equal(t, []string{"theHarvester"}, history)

	other, err := orch.History(ctx, "someone-else")
	require.NoError(t, err)
	require.Empty(t, other)

	runs, err := store.Runs(ctx, "jane", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "run-1", runs[0].RunID)
}

func TestRunWithoutSubjectSkipsHistory(t *testing.T) {
	store := engine.NewRepository(filepath.Join(t.TempDir(), "history.json"))
	orch := newTestOrchestrator(t, module.NewRegistry(), WithRunStore(store))
	_, err := orch.Run(context.Background(), "", profile.Profile{})
	require.NoError(t, err)
	runs, err := store.Runs(context.Background(), "", 0)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestRunRecordsCycleDiagnostics(t *testing.T) {
	catalog := workflow.Catalog{
		ID: "cyclic",
		Modules: []workflow.ModuleEntry{
			{ID: "A", Section: "digital", DependsOn: []string{"B"}},
			{ID: "B", Section: "digital", DependsOn: []string{"A"}},
		},
		Fallback: []string{"A"},
	}
	reg := module.NewRegistry()
	reg.MustRegister(stubSpec("B", profile.SectionDigital, writes(profile.SectionDigital, map[string]any{"domains": []any{"b.example"}})))
	orch, err := New(catalog, reg, WithClock(fixedClock()))
	require.NoError(t, err)

	doc := profile.Profile{}
	record, err := orch.Run(context.Background(), "", doc)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, record.SelectedModules)
	require.Equal(t, []string{"B", "A"}, record.ExecutionOrder)
	require.Equal(t, []string{"Detected dependency cycle for module 'A'."}, record.Diagnostics)
	require.Equal(t, engine.StatusCompleted, resultFor(t, record, "B").Status)
	require.Equal(t, engine.StatusUnavailable, resultFor(t, record, "A").Status)
}

func TestRunModuleBypassesSelection(t *testing.T) {
	reg := module.NewRegistry()
	reg.MustRegister(stubSpec("Sherlock", profile.SectionSocial, writes(profile.SectionSocial, map[string]any{
		"platforms": []any{"GitHub"},
	})))
	orch := newTestOrchestrator(t, reg)
	doc := profile.Profile{}

	result := orch.RunModule(context.Background(), "Sherlock", doc)
	require.Equal(t, engine.StatusCompleted, result.Status)
	require.Equal(t, []string{"social"}, result.OutputKeys)
	require.Equal(t, []string{"GitHub"}, doc.Strings(profile.SectionSocial, "platforms"))
	_, ran := doc[profile.SectionOrchestration]
	require.False(t, ran)

	missing := orch.RunModule(context.Background(), "Twint", doc)
	require.Equal(t, engine.StatusUnavailable, missing.Status)
	require.Equal(t, engine.SummaryNotFound, missing.Summary)
}

func TestNewValidatesInputs(t *testing.T) {
	catalog, err := workflow.DefaultCatalog()
	require.NoError(t, err)
	_, err = New(catalog, nil)
	require.Error(t, err)

	_, err = New(workflow.Catalog{ID: "empty"}, module.NewRegistry())
	require.ErrorIs(t, err, workflow.ErrInvalidCatalog)
}

func TestRunRequiresProfile(t *testing.T) {
	orch := newTestOrchestrator(t, module.NewRegistry())
	_, err := orch.Run(context.Background(), "", nil)
	require.Error(t, err)
}
