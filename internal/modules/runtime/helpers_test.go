package runtime

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/intel-lattice/internal/profile"
)

func TestNormalizeDomain(t *testing.T) {
	cases := map[string]string{
		"Example.COM":                "example.com",
		"https://www.example.com/a?b": "www.example.com",
		"example.com:8443":           "example.com",
		" example.com. ":             "example.com",
	}
	for in, want := range cases {
		if got := NormalizeDomain(in); got != want {
			t.Fatalf("NormalizeDomain(%q) = %q, want %q", in, got, want)
		}
	}
	if ValidDomain("localhost") || ValidDomain("bad_domain.com") || !ValidDomain("a.b.example.org") {
		t.Fatalf("domain validation mismatch")
	}
}

func TestNormalizeUsername(t *testing.T) {
	if got := NormalizeUsername("  @@jane.doe!? "); got != "jane.doe" {
		t.Fatalf("unexpected username %q", got)
	}
}

func TestMergeUniqueKeepsOrder(t *testing.T) {
	got := MergeUnique([]string{"b", "a"}, []string{"a", " ", "c"}, []string{"b", "d"})
	if diff := cmp.Diff([]any{"b", "a", "c", "d"}, got); diff != "" {
		t.Fatalf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestTargetDomainsPrefersOverride(t *testing.T) {
	doc := profile.Profile{"digital": map[string]any{"domains": []any{"co.io"}}}
	got, err := TargetDomains(doc, []string{"B.example", "a.example", "b.example"})
	if err != nil {
		t.Fatalf("TargetDomains: %v", err)
	}
	if diff := cmp.Diff([]string{"a.example", "b.example"}, got); diff != "" {
		t.Fatalf("domains mismatch (-want +got):\n%s", diff)
	}
}
