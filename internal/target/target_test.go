package target

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/intel-lattice/internal/profile"
)

func TestObjectivesFromDocuments(t *testing.T) {
	p := profile.Profile{
		"metadata": map[string]any{
			"documents": []any{
				map[string]any{"name": " Map infrastructure ", "type": "Objective-Primary"},
				map[string]any{"name": "Find accounts", "type": "goal"},
				map[string]any{"name": "", "type": "objective"},
				map[string]any{"name": "Objective: correlate domain owners"},
				map[string]any{"name": "goal:   "},
				map[string]any{"name": "notes.pdf", "type": "pdf"},
				"not a document",
			},
		},
	}
	want := []string{"Map infrastructure", "Find accounts", "correlate domain owners", "goal:"}
	if diff := cmp.Diff(want, Objectives(p)); diff != "" {
		t.Fatalf("objectives mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractDefaultsObjective(t *testing.T) {
	p := profile.Profile{
		"identity": map[string]any{"full_name": "Jane Doe"},
		"contact":  map[string]any{"emails": []any{"jane@co.io"}},
	}
	objectives, targets := Extract(p)
	if diff := cmp.Diff([]string{DefaultObjective}, objectives); diff != "" {
		t.Fatalf("objectives mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Jane Doe"}, targets[BucketNames]); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"jane@co.io"}, targets[BucketEmails]); diff != "" {
		t.Fatalf("emails mismatch (-want +got):\n%s", diff)
	}
	if targets.Has(BucketDomains) {
		t.Fatalf("domains should be empty")
	}
	for _, b := range Buckets {
		if targets[b] == nil {
			t.Fatalf("bucket %s should be initialised", b)
		}
	}
}

func TestExtractWithCustomDefault(t *testing.T) {
	objectives, _ := ExtractWithDefault(profile.Profile{}, "baseline")
	if diff := cmp.Diff([]string{"baseline"}, objectives); diff != "" {
		t.Fatalf("objectives mismatch (-want +got):\n%s", diff)
	}
	objectives, _ = ExtractWithDefault(profile.Profile{}, " ")
	if diff := cmp.Diff([]string{DefaultObjective}, objectives); diff != "" {
		t.Fatalf("blank fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectCopiesVerbatim(t *testing.T) {
	p := profile.Profile{
		"identity": map[string]any{"aliases": []any{"JD", "not-validated!"}},
		"contact":  map[string]any{"phones": []any{"0400 000 000"}, "usernames": []any{"jdoe"}},
		"digital":  map[string]any{"domains": []any{"co.io"}, "ips": []any{"999.1.1.1"}},
		"business": map[string]any{"company_names": []any{"Doe Pty Ltd"}},
	}
	targets := Collect(p)
	want := Targets{
		BucketNames:        {},
		BucketAliases:      {"JD", "not-validated!"},
		BucketEmails:       {},
		BucketPhones:       {"0400 000 000"},
		BucketUsernames:    {"jdoe"},
		BucketDomains:      {"co.io"},
		BucketIPs:          {"999.1.1.1"},
		BucketCompanyNames: {"Doe Pty Ltd"},
	}
	if diff := cmp.Diff(want, targets); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
	descriptors := targets.Descriptors()
	if len(descriptors) != 7 {
		t.Fatalf("expected 7 descriptors, got %d: %+v", len(descriptors), descriptors)
	}
	if descriptors[0] != (Descriptor{Type: TypeDomain, Value: "co.io"}) {
		t.Fatalf("unexpected first descriptor %+v", descriptors[0])
	}
}

func TestCollectKeepsBlankAndNonStringEntries(t *testing.T) {
	p := profile.Profile{
		"identity": map[string]any{"full_name": "  Jane Roe ", "aliases": []any{"", nil}},
		"contact":  map[string]any{"phones": []any{42.0, "0400"}, "emails": "jane@example.com"},
	}
	targets := Collect(p)
	if diff := cmp.Diff([]string{"  Jane Roe "}, targets[BucketNames]); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"", ""}, targets[BucketAliases]); diff != "" {
		t.Fatalf("aliases (-want +got):\n%s", diff)
	}
	if !targets.Has(BucketAliases) {
		t.Fatalf("blank aliases still count as a non-empty bucket")
	}
	if diff := cmp.Diff([]string{"42", "0400"}, targets[BucketPhones]); diff != "" {
		t.Fatalf("phones (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"jane@example.com"}, targets[BucketEmails]); diff != "" {
		t.Fatalf("emails (-want +got):\n%s", diff)
	}
}

func TestPrimaryPreference(t *testing.T) {
	cases := []struct {
		name string
		p    profile.Profile
		want Descriptor
		ok   bool
	}{
		{
			name: "domain wins",
			p: profile.Profile{
				"digital":  map[string]any{"domains": []any{"co.io"}},
				"business": map[string]any{"company_names": []any{"Co"}},
			},
			want: Descriptor{Type: TypeDomain, Value: "co.io"}, ok: true,
		},
		{
			name: "company before contact",
			p: profile.Profile{
				"business": map[string]any{"company_names": []any{"Co"}},
				"contact":  map[string]any{"emails": []any{"a@co.io"}},
			},
			want: Descriptor{Type: TypeCompany, Value: "Co"}, ok: true,
		},
		{
			name: "phone as contact",
			p:    profile.Profile{"contact": map[string]any{"phones": []any{"123"}}},
			want: Descriptor{Type: TypeContact, Value: "123"}, ok: true,
		},
		{
			name: "full name fallback",
			p:    profile.Profile{"identity": map[string]any{"full_name": "Jane"}},
			want: Descriptor{Type: TypeContact, Value: "Jane"}, ok: true,
		},
		{name: "nothing", p: profile.Profile{}},
	}
	for _, tc := range cases {
		got, ok := Primary(tc.p)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: got %+v/%v want %+v/%v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}
