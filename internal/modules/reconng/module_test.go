package reconng

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/profile"
)

type scriptRecorder struct {
	scripts []string
}

func (r *scriptRecorder) Run(_ context.Context, _ string, _ string, args ...string) (string, string, int, error) {
	data, err := os.ReadFile(args[len(args)-1])
	if err != nil {
		return "", "", 0, err
	}
	r.scripts = append(r.scripts, string(data))
	return "ok", "", 0, nil
}

func seedWorkspace(t *testing.T, dir, workspace string) {
	t.Helper()
	path := filepath.Join(dir, workspace, "data.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	stmts := []string{
		`CREATE TABLE domains (domain TEXT, notes TEXT)`,
		`CREATE TABLE contacts (first_name TEXT, last_name TEXT, email TEXT)`,
		`CREATE TABLE credentials (username TEXT, password TEXT)`,
		`INSERT INTO domains VALUES ('example.com', NULL), ('example.com', NULL)`,
		`INSERT INTO contacts VALUES ('Jane', 'Doe', 'jane@example.com'), ('Ops', '', 'ops@mail.example.com'), ('Bob', '', 'bob@other.org')`,
		`INSERT INTO credentials VALUES ('jane@example.com', 'hunter2')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

func TestExecuteCorrelatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	seedWorkspace(t, dir, "ws1")
	recorder := &scriptRecorder{}
	mod := New(
		WithCommandRunner(recorder.Run),
		WithWorkspaceDir(dir),
		WithWorkspace("ws1"),
		WithTarget(TargetDomain, "example.com"),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }),
	)
	update, err := mod.Execute(context.Background(), profile.Profile{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	report := update["intelligence"].(map[string]any)["reconng"].(map[string]any)

	if diff := cmp.Diff([]any{"whois", "breach", "contacts"}, report["modules_requested"]); diff != "" {
		t.Fatalf("modules requested mismatch (-want +got):\n%s", diff)
	}
	ran := report["modules_run"].([]any)
	if len(ran) != 3 || ran[1].(map[string]any)["module"] != "recon/domains-credentials/hibp_breach" {
		t.Fatalf("unexpected modules run: %+v", ran)
	}
	records := report["records"].(map[string]any)
	if got := len(records["domains"].([]any)); got != 1 {
		t.Fatalf("expected deduped domains, got %d", got)
	}
	if got := len(records["breaches"].([]any)); got != 0 {
		t.Fatalf("missing tables should be empty, got %d", got)
	}

	correlations := report["correlations"].([]any)
	if len(correlations) != 3 {
		t.Fatalf("expected 3 correlations, got %+v", correlations)
	}
	first := correlations[0].(map[string]any)
	want := map[string]any{"left": "jane@example.com", "right": "example.com", "reason": "contact email domain matches discovered domain", "confidence": 1.0}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("correlation mismatch (-want +got):\n%s", diff)
	}
	wantAnomalies := []any{
		map[string]any{"signal": "credential_exposure", "severity": "high", "details": "1 credential records identified."},
		map[string]any{"signal": "off_domain_contacts", "severity": "medium", "details": "2 contacts use non-target domains."},
	}
	if diff := cmp.Diff(wantAnomalies, report["anomalies"]); diff != "" {
		t.Fatalf("anomalies mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"min": 1.0, "max": 1.0, "average": 1.0}, report["confidence_summary"]); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	if len(recorder.scripts) != 5 {
		t.Fatalf("expected select, seed and three module scripts, got %d", len(recorder.scripts))
	}
	if !strings.Contains(recorder.scripts[1], "db insert domains example.com") {
		t.Fatalf("seed script mismatch: %q", recorder.scripts[1])
	}
	if !strings.Contains(recorder.scripts[2], "modules load recon/domains-contacts/whois_pocs\noptions set SOURCE example.com\nrun") {
		t.Fatalf("module script mismatch: %q", recorder.scripts[2])
	}
}

func TestExecuteMissingWorkspaceDB(t *testing.T) {
	recorder := &scriptRecorder{}
	mod := New(WithCommandRunner(recorder.Run), WithWorkspaceDir(t.TempDir()), WithWorkspace("missing-ws-for-test"), WithTarget(TargetCompany, "Acme"))
	_, err := mod.Execute(context.Background(), profile.Profile{})
	if err == nil || !strings.Contains(err.Error(), "workspace database not found") {
		t.Fatalf("expected missing database error, got %v", err)
	}
}

func TestAnalyzeWithoutCorrelations(t *testing.T) {
	analysis := Analyze(Records{"contacts": {{"email": "a@b.org"}}}, TargetCompany, "Acme")
	if len(analysis.Correlations) != 0 {
		t.Fatalf("unexpected correlations: %+v", analysis.Correlations)
	}
	want := []Anomaly{{Signal: "low_correlation", Severity: "low", Details: "No strong cross-module correlations detected."}}
	if diff := cmp.Diff(want, analysis.Anomalies); diff != "" {
		t.Fatalf("anomalies mismatch (-want +got):\n%s", diff)
	}
	if analysis.Summary != (ConfidenceSummary{}) {
		t.Fatalf("expected zero summary, got %+v", analysis.Summary)
	}
}

func TestScoreByTargetType(t *testing.T) {
	cases := []struct {
		typ, target, left, right string
		want                     float64
	}{
		{TargetDomain, "example.com", "a@example.com", "example.com", 1.0},
		{TargetDomain, "example.com", "a@other.org", "other.org", 0.4},
		{TargetCompany, "acme", "ceo@acme.io", "acme.io", 0.7},
		{TargetContact, "jane", "jane@x.io", "x.io", 0.6},
	}
	for _, tc := range cases {
		got := scorer{targetType: tc.typ, target: tc.target}.score(tc.left, tc.right)
		if got != tc.want {
			t.Fatalf("%s score(%s,%s) = %v, want %v", tc.typ, tc.left, tc.right, got, tc.want)
		}
	}
}

func TestPrepareDerivesWorkspace(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env := module.Env{Now: func() time.Time { return fixed }}
	cfg, err := Prepare(env, profile.Profile{"digital": map[string]any{"domains": []any{"https://www.Example.com"}}}, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	want := module.Config{
		"workspace":    "orchestrator_https_www_Example_com_20260102030405",
		"target_type":  "domain",
		"target_value": "https://www.Example.com",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	_, err = Prepare(env, profile.Profile{}, nil)
	if reason, ok := module.SkipReason(err); !ok || reason != SkipNoTarget {
		t.Fatalf("expected skip, got %v", err)
	}
}

func TestWorkspaceNameTruncatesAndDefaults(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := WorkspaceName("!!!", fixed); got != "orchestrator_target_20260102030405" {
		t.Fatalf("unexpected blank name %q", got)
	}
	long := strings.Repeat("a", 40)
	if got := WorkspaceName(long, fixed); got != "orchestrator_"+strings.Repeat("a", 32)+"_20260102030405" {
		t.Fatalf("unexpected long name %q", got)
	}
}

func TestFactoryReportsMissingBinaryAsUnavailable(t *testing.T) {
	reg := module.NewRegistry()
	Register(reg)
	_, err := reg.Resolve(moduleID, module.Env{}, module.Config{
		"binary":       "recon-ng-missing-for-test",
		"workspace":    "ws",
		"target_type":  "domain",
		"target_value": "example.com",
	})
	if !errors.Is(err, module.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
