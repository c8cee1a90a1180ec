// Package runtime holds helpers shared by the built-in enrichment modules:
// lead normalisation, list merging and DNS lookups.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"

	"github.com/kingrea/intel-lattice/internal/profile"
)

var (
	domainPattern   = regexp.MustCompile(`^(?i)([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	usernameCleaner = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

	// EmailInText finds e-mail addresses embedded in free text.
	EmailInText = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// Resolver is the subset of *net.Resolver used by DNS-backed modules.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DefaultResolver returns the system resolver.
func DefaultResolver() Resolver {
	return net.DefaultResolver
}

// NormalizeDomain strips scheme, path, port and trailing dots and lower-cases.
func NormalizeDomain(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(cleaned, "://"); idx >= 0 {
		cleaned = cleaned[idx+3:]
	}
	if idx := strings.IndexByte(cleaned, '/'); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	if idx := strings.IndexByte(cleaned, ':'); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	return strings.Trim(cleaned, ".")
}

// ValidDomain reports whether domain is a syntactically valid host name with
// at least two labels.
func ValidDomain(domain string) bool {
	return len(domain) <= 253 && domainPattern.MatchString(domain)
}

// ValidEmail reports whether value looks like an e-mail address.
func ValidEmail(value string) bool {
	return len(value) <= 254 && emailPattern.MatchString(value)
}

// NormalizeUsername strips a leading @ and any character not allowed in
// handles.
func NormalizeUsername(raw string) string {
	cleaned := strings.TrimLeft(strings.TrimSpace(raw), "@")
	return usernameCleaner.ReplaceAllString(cleaned, "")
}

// EmailDomain returns the lower-cased domain part of an e-mail address.
func EmailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// MergeUnique appends incoming values to existing, dropping blanks and
// duplicates while keeping first-seen order.
func MergeUnique(existing []string, incoming ...[]string) []any {
	seen := map[string]struct{}{}
	out := []any{}
	add := func(values []string) {
		for _, value := range values {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			out = append(out, value)
		}
	}
	add(existing)
	for _, values := range incoming {
		add(values)
	}
	return out
}

// SortedSet returns the distinct non-blank values sorted.
func SortedSet(values []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

// Strings converts a string slice into the []any shape stored in profiles.
func Strings(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}

// TargetDomains returns the normalized domains to work on: the override when
// set, otherwise digital.domains.
func TargetDomains(snapshot profile.Profile, override []string) ([]string, error) {
	raw := override
	if len(raw) == 0 {
		raw = snapshot.Strings(profile.SectionDigital, "domains")
	}
	if len(raw) == 0 {
		return nil, errors.New("No target domain provided or available in profile.digital.domains")
	}
	var domains []string
	for _, entry := range raw {
		domain := NormalizeDomain(entry)
		if !ValidDomain(domain) {
			return nil, fmt.Errorf("Invalid target domain: %s", entry)
		}
		domains = append(domains, domain)
	}
	return SortedSet(domains), nil
}

// SectionList returns section.field from the snapshot as a list ready to be
// extended, never nil.
func SectionList(snapshot profile.Profile, section, field string) []any {
	list := snapshot.List(section, field)
	out := make([]any, 0, len(list))
	return append(out, list...)
}
