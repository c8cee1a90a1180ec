// Package target mines a profile for investigation objectives and concrete
// leads (names, e-mails, domains, IPs, usernames, company names).
package target

import (
	"fmt"
	"strings"

	"github.com/kingrea/intel-lattice/internal/profile"
)

// DefaultObjective is emitted when a profile declares no objectives.
const DefaultObjective = "general_osint_collection"

// Bucket names a category of extracted targets.
type Bucket string

const (
	BucketNames        Bucket = "names"
	BucketAliases      Bucket = "aliases"
	BucketEmails       Bucket = "emails"
	BucketPhones       Bucket = "phones"
	BucketUsernames    Bucket = "usernames"
	BucketDomains      Bucket = "domains"
	BucketIPs          Bucket = "ips"
	BucketCompanyNames Bucket = "company_names"
)

// Buckets lists every bucket in extraction order.
var Buckets = []Bucket{
	BucketNames,
	BucketAliases,
	BucketEmails,
	BucketPhones,
	BucketUsernames,
	BucketDomains,
	BucketIPs,
	BucketCompanyNames,
}

// ValidBucket reports whether name is a known bucket.
func ValidBucket(name string) bool {
	for _, b := range Buckets {
		if string(b) == name {
			return true
		}
	}
	return false
}

// Targets groups extracted leads by bucket. Values are copied verbatim.
type Targets map[Bucket][]string

// Has reports whether the bucket holds at least one value.
func (t Targets) Has(b Bucket) bool {
	return len(t[b]) > 0
}

// Type classifies a target descriptor.
type Type string

const (
	TypeDomain   Type = "domain"
	TypeCompany  Type = "company"
	TypeContact  Type = "contact"
	TypeEmail    Type = "email"
	TypeIP       Type = "ip"
	TypeUsername Type = "username"
)

// Descriptor is a normalized investigative lead.
type Descriptor struct {
	Type  Type   `json:"type"`
	Value string `json:"value"`
}

// Descriptors flattens the typed buckets into lead descriptors. Names,
// aliases and phones are reported as contact leads.
func (t Targets) Descriptors() []Descriptor {
	var out []Descriptor
	add := func(b Bucket, typ Type) {
		for _, value := range t[b] {
			out = append(out, Descriptor{Type: typ, Value: value})
		}
	}
	add(BucketDomains, TypeDomain)
	add(BucketCompanyNames, TypeCompany)
	add(BucketEmails, TypeEmail)
	add(BucketIPs, TypeIP)
	add(BucketUsernames, TypeUsername)
	add(BucketPhones, TypeContact)
	add(BucketNames, TypeContact)
	add(BucketAliases, TypeContact)
	return out
}

// Extract returns the profile's objectives and targets. When no objective is
// declared the default objective is returned so selection never starves.
func Extract(p profile.Profile) ([]string, Targets) {
	return ExtractWithDefault(p, DefaultObjective)
}

// ExtractWithDefault is Extract with a caller-supplied fallback objective.
func ExtractWithDefault(p profile.Profile, fallback string) ([]string, Targets) {
	objectives := Objectives(p)
	if len(objectives) == 0 {
		if strings.TrimSpace(fallback) == "" {
			fallback = DefaultObjective
		}
		objectives = []string{fallback}
	}
	return objectives, Collect(p)
}

// Objectives reads metadata.documents. A document whose type starts with
// "objective" or equals "goal" contributes its name; otherwise a name
// prefixed "objective:" or "goal:" contributes the text after the colon.
func Objectives(p profile.Profile) []string {
	var objectives []string
	for _, raw := range p.List(profile.SectionMetadata, "documents") {
		doc, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := strings.TrimSpace(stringField(doc, "name"))
		docType := strings.ToLower(strings.TrimSpace(stringField(doc, "type")))
		if strings.HasPrefix(docType, "objective") || docType == "goal" {
			if name != "" {
				objectives = append(objectives, name)
			}
			continue
		}
		lowered := strings.ToLower(name)
		if strings.HasPrefix(lowered, "objective:") || strings.HasPrefix(lowered, "goal:") {
			remainder := strings.TrimSpace(strings.SplitN(name, ":", 2)[1])
			if remainder == "" {
				remainder = name
			}
			objectives = append(objectives, remainder)
		}
	}
	return objectives
}

// Collect pulls leads from the identity, contact, digital and business
// sections without validation. List entries are kept as given, blanks
// included; non-string entries are stringified.
func Collect(p profile.Profile) Targets {
	targets := Targets{}
	for _, b := range Buckets {
		targets[b] = []string{}
	}
	if identity, ok := p.Section(profile.SectionIdentity); ok {
		if name := verbatim(identity["full_name"]); name != "" {
			targets[BucketNames] = []string{name}
		}
	}
	fill := func(b Bucket, section, field string) {
		items := p.List(section, field)
		if len(items) == 0 {
			return
		}
		values := make([]string, 0, len(items))
		for _, item := range items {
			values = append(values, verbatim(item))
		}
		targets[b] = values
	}
	fill(BucketAliases, profile.SectionIdentity, "aliases")
	fill(BucketEmails, profile.SectionContact, "emails")
	fill(BucketPhones, profile.SectionContact, "phones")
	fill(BucketUsernames, profile.SectionContact, "usernames")
	fill(BucketDomains, profile.SectionDigital, "domains")
	fill(BucketIPs, profile.SectionDigital, "ips")
	fill(BucketCompanyNames, profile.SectionBusiness, "company_names")
	return targets
}

func verbatim(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Primary derives the single lead used by modules that need one seed target.
// Preference: domain, company, e-mail, phone, then full name; the last three
// are reported as contact leads.
func Primary(p profile.Profile) (Descriptor, bool) {
	if domains := p.Strings(profile.SectionDigital, "domains"); len(domains) > 0 {
		return Descriptor{Type: TypeDomain, Value: domains[0]}, true
	}
	if companies := p.Strings(profile.SectionBusiness, "company_names"); len(companies) > 0 {
		return Descriptor{Type: TypeCompany, Value: companies[0]}, true
	}
	if emails := p.Strings(profile.SectionContact, "emails"); len(emails) > 0 {
		return Descriptor{Type: TypeContact, Value: emails[0]}, true
	}
	if phones := p.Strings(profile.SectionContact, "phones"); len(phones) > 0 {
		return Descriptor{Type: TypeContact, Value: phones[0]}, true
	}
	if name := p.String(profile.SectionIdentity, "full_name"); name != "" {
		return Descriptor{Type: TypeContact, Value: name}, true
	}
	return Descriptor{}, false
}

func stringField(doc map[string]any, key string) string {
	value, ok := doc[key].(string)
	if !ok {
		return ""
	}
	return value
}
