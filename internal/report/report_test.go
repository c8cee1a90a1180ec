package report

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/intel-lattice/internal/profile"
)

func sampleProfile() profile.Profile {
	return profile.Profile{
		"identity": map[string]any{"full_name": "Jane Doe", "aliases": []any{"JD", ""}},
		"contact":  map[string]any{"emails": []any{"jane@co.io"}, "phones": []any{"+61400000000"}},
		"digital":  map[string]any{"ips": []any{"192.0.2.10"}, "domains": []any{"co.io"}},
		"risk":     map[string]any{"exposure_score": 42, "red_flags": []any{"Breach exposure"}},
		"orchestration": map[string]any{
			"run_id": "run-7",
			"module_results": []any{
				map[string]any{"module": "theHarvester", "status": "completed", "summary": "Module executed successfully.", "profile_section": "digital"},
				map[string]any{"module": "GHunt", "status": "completed", "summary": "Module executed successfully.", "profile_section": "digital"},
				map[string]any{"module": "Twint", "status": "unavailable", "summary": "Module implementation not found.", "profile_section": "social"},
			},
			"diagnostics": []any{"Detected dependency cycle for module 'A'."},
		},
	}
}

func TestFieldSourcesFromOrchestration(t *testing.T) {
	got := FieldSources(sampleProfile())
	want := map[string][]string{"digital": {"theHarvester", "GHunt"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("field sources mismatch (-want +got):\n%s", diff)
	}
	if len(FieldSources(profile.Profile{})) != 0 {
		t.Fatalf("expected no sources without orchestration")
	}
}

func TestMarkdownSections(t *testing.T) {
	risk := 42.0
	md := Markdown(sampleProfile(), map[string][]string{"digital": {"theHarvester"}, "legal.court_cases": nil}, &risk)
	for _, want := range []string{
		"# Intelligence Report",
		"**Risk Score Total:** 42",
		"- Full Name: Jane Doe",
		"- Date of Birth: Unknown",
		"- Primary Address: Not provided",
		"- Aliases: JD",
		"- Companies: None",
		"- Phone Numbers: +61400000000",
		"- IP Addresses: 192.0.2.10",
		"- **[RED FLAG]** Breach exposure",
		"| `digital` | theHarvester |",
		"| `legal.court_cases` | Unknown |",
		"| Twint | unavailable | social | Module implementation not found. |",
		"- Detected dependency cycle for module 'A'.",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Index(md, "## Identity Summary") > strings.Index(md, "## Sources Used") {
		t.Fatalf("sections out of order")
	}
}

func TestMarkdownEmptyProfile(t *testing.T) {
	md := Markdown(profile.Profile{}, nil, nil)
	require.NotContains(t, md, "Risk Score")
	require.Contains(t, md, "- No explicit red flags recorded.")
	require.Contains(t, md, "No module attribution data was supplied.")
	require.NotContains(t, md, "## Orchestration")
	require.True(t, strings.HasSuffix(md, "\n"))
}

func TestBuildWritesBothReports(t *testing.T) {
	dir := t.TempDir()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b, err := New(dir, WithClock(func() time.Time { return created }))
	require.NoError(t, err)

	paths, err := b.Build(Input{Subject: "jane.json", Profile: sampleProfile()})
	require.NoError(t, err)

	raw, err := os.ReadFile(paths.JSON)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, 42.0, payload["risk_score"])
	require.Equal(t, map[string]any{"digital": []any{"theHarvester", "GHunt"}}, payload["field_sources"])
	intel, ok := payload["_intel"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "run-7", intel["run"])
	require.Equal(t, []any{"GHunt", "theHarvester"}, intel["modules"])

	content, err := os.ReadFile(paths.Markdown)
	require.NoError(t, err)
	meta, body, err := ParseFrontMatter(content)
	require.NoError(t, err)
	require.Equal(t, "jane.json", meta.Subject)
	require.Equal(t, "run-7", meta.RunID)
	require.True(t, meta.CreatedAt.Equal(created))
	require.NotNil(t, meta.RiskScore)
	require.Equal(t, 42.0, *meta.RiskScore)
	require.Equal(t, intel["checksum"], meta.Checksum)
	require.True(t, strings.HasPrefix(string(body), "# Intelligence Report"))
}

func TestBuildExplicitOverrides(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	risk := 7.5
	paths, err := b.Build(Input{Profile: sampleProfile(), RiskScore: &risk, FieldSources: map[string][]string{"identity.full_name": {"manual", "manual"}}})
	require.NoError(t, err)
	content, err := os.ReadFile(paths.Markdown)
	require.NoError(t, err)
	require.Contains(t, string(content), "**Risk Score Total:** 7.5")
	require.Contains(t, string(content), "| `identity.full_name` | manual |")

	_, err = b.Build(Input{})
	require.Error(t, err)
	_, err = New(" ")
	require.Error(t, err)
}

func TestParseFrontMatterErrors(t *testing.T) {
	_, _, err := ParseFrontMatter(nil)
	require.ErrorIs(t, err, ErrMissingFrontMatter)
	_, _, err = ParseFrontMatter([]byte("# no fence\n"))
	require.ErrorIs(t, err, ErrMissingFrontMatter)
	_, _, err = ParseFrontMatter([]byte("---\nintel: {}\n"))
	require.ErrorIs(t, err, ErrMalformedFrontMatter)
	_, _, err = ParseFrontMatter([]byte("---\nintel:\n  subject: x\n---\nbody"))
	require.ErrorIs(t, err, ErrMalformedFrontMatter)
}
