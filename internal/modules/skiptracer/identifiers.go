package skiptracer

import (
	"regexp"
	"strings"

	"github.com/kingrea/intel-lattice/internal/modules/runtime"
)

// Identifier kinds.
const (
	KindEmail    = "email"
	KindPhone    = "phone"
	KindUsername = "username"
)

var (
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{5,}$`)
	phoneSeparators = regexp.MustCompile(`[\s\-().]`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{2,}$`)
)

// Identifier is a normalized lookup key.
type Identifier struct {
	Kind       string
	Value      string
	Normalized string
	Valid      bool
}

// AsMap renders the identifier for the profile.
func (i Identifier) AsMap() map[string]any {
	return map[string]any{"type": i.Kind, "value": i.Value, "normalized": i.Normalized, "valid": i.Valid}
}

// NormalizePhone strips separators and, when countryCode is set, rewrites a
// national number with a leading trunk 0 to E.164.
func NormalizePhone(raw, countryCode string) (string, bool) {
	cleaned := phoneSeparators.ReplaceAllString(strings.TrimSpace(raw), "")
	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode != "" && strings.HasPrefix(cleaned, "0") {
		cleaned = "+" + countryCode + cleaned[1:]
	}
	return cleaned, phonePattern.MatchString(cleaned)
}

// Infer classifies a raw value as an e-mail, phone or username.
func Infer(raw, countryCode string) Identifier {
	value := strings.TrimSpace(raw)
	if email := strings.ToLower(value); runtime.ValidEmail(email) {
		return Identifier{Kind: KindEmail, Value: value, Normalized: email, Valid: true}
	}
	if phone, ok := NormalizePhone(value, countryCode); ok {
		return Identifier{Kind: KindPhone, Value: value, Normalized: phone, Valid: true}
	}
	username := runtime.NormalizeUsername(value)
	return Identifier{Kind: KindUsername, Value: value, Normalized: username, Valid: usernamePattern.MatchString(username)}
}

// Collect gathers identifiers from the override and the contact section's
// emails, phones and usernames, de-duplicated by kind and normalized value.
func Collect(override string, emails, phones, usernames []string, countryCode string) []Identifier {
	var candidates []string
	if strings.TrimSpace(override) != "" {
		candidates = append(candidates, override)
	}
	candidates = append(candidates, emails...)
	candidates = append(candidates, phones...)
	candidates = append(candidates, usernames...)

	seen := map[string]struct{}{}
	var out []Identifier
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		id := Infer(candidate, countryCode)
		if id.Normalized == "" {
			continue
		}
		key := id.Kind + "\x00" + id.Normalized
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	return out
}
