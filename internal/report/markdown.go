package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kingrea/intel-lattice/internal/profile"
)

// Markdown renders the analyst summary body (without front matter).
func Markdown(doc profile.Profile, sources map[string][]string, risk *float64) string {
	lines := []string{"# Intelligence Report", ""}
	if risk != nil {
		lines = append(lines, "**Risk Score Total:** "+strconv.FormatFloat(*risk, 'f', -1, 64), "")
	}
	lines = append(lines, identitySection(doc)...)
	lines = append(lines, aliasSection(doc)...)
	lines = append(lines, geoDigitalSection(doc)...)
	lines = append(lines, legalRiskSection(doc)...)
	lines = append(lines, sourcesSection(sources)...)
	lines = append(lines, orchestrationSection(doc)...)
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}

func identitySection(doc profile.Profile) []string {
	lines := []string{"## Identity Summary"}
	lines = append(lines,
		"- Full Name: "+orDefault(doc.String(profile.SectionIdentity, "full_name"), "Unknown"),
		"- Date of Birth: "+orDefault(doc.String(profile.SectionIdentity, "dob"), "Unknown"),
		"- Gender: "+orDefault(doc.String(profile.SectionIdentity, "gender"), "Unknown"),
	)
	if addresses := doc.List(profile.SectionContact, "addresses"); len(addresses) > 0 {
		lines = append(lines, "- Primary Address: "+render(addresses[0]))
	} else {
		lines = append(lines, "- Primary Address: Not provided")
	}
	return append(lines, "")
}

func aliasSection(doc profile.Profile) []string {
	socials := doc.List(profile.SectionSocial, "platforms")
	if len(socials) == 0 {
		socials = doc.List(profile.SectionSocial, "profile_links")
	}
	return []string{
		"## Known Aliases, Companies, Phones, Socials",
		"- Aliases: " + formatList(doc.List(profile.SectionIdentity, "aliases")),
		"- Companies: " + formatList(doc.List(profile.SectionBusiness, "company_names")),
		"- Phone Numbers: " + formatList(doc.List(profile.SectionContact, "phones")),
		"- Social Profiles: " + formatList(socials),
		"",
	}
}

func geoDigitalSection(doc profile.Profile) []string {
	return []string{
		"## Geo Summary and Digital Footprint",
		"- Known Cities: " + formatList(doc.List(profile.SectionGeo, "cities")),
		"- Geo Coordinates: " + formatList(doc.List(profile.SectionGeo, "geo_coordinates")),
		"- IP Addresses: " + formatList(doc.List(profile.SectionDigital, "ips")),
		"- Devices: " + formatList(doc.List(profile.SectionDigital, "devices")),
		"",
	}
}

func legalRiskSection(doc profile.Profile) []string {
	lines := []string{
		"## Legal and Exposure Risks",
		"- Bankruptcies: " + formatList(doc.List(profile.SectionLegal, "bankruptcies")),
		"- Court Cases: " + formatList(doc.List(profile.SectionLegal, "court_cases")),
		"- Sanctions: " + formatList(doc.List(profile.SectionLegal, "sanctions")),
	}
	flags := doc.List(profile.SectionRisk, "red_flags")
	if len(flags) == 0 {
		lines = append(lines, "- No explicit red flags recorded.")
	}
	for _, flag := range flags {
		lines = append(lines, "- **[RED FLAG]** "+render(flag))
	}
	return append(lines, "")
}

func sourcesSection(sources map[string][]string) []string {
	lines := []string{"## Sources Used"}
	if len(sources) == 0 {
		return append(lines, "No module attribution data was supplied.", "")
	}
	lines = append(lines, "| Field | Modules |", "| --- | --- |")
	paths := make([]string, 0, len(sources))
	for path := range sources {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		display := strings.Join(sources[path], ", ")
		if display == "" {
			display = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("| `%s` | %s |", path, display))
	}
	return append(lines, "")
}

func orchestrationSection(doc profile.Profile) []string {
	results := doc.List(profile.SectionOrchestration, "module_results")
	if len(results) == 0 {
		return nil
	}
	lines := []string{"## Orchestration", "| Module | Status | Section | Summary |", "| --- | --- | --- | --- |"}
	for _, raw := range results {
		result, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s |",
			render(result["module"]), render(result["status"]), render(result["profile_section"]),
			strings.ReplaceAll(render(result["summary"]), "|", "\\|")))
	}
	if diagnostics := doc.List(profile.SectionOrchestration, "diagnostics"); len(diagnostics) > 0 {
		lines = append(lines, "")
		for _, d := range diagnostics {
			lines = append(lines, "- "+render(d))
		}
	}
	return append(lines, "")
}

func formatList(values []any) string {
	var cleaned []string
	for _, item := range values {
		if item == nil {
			continue
		}
		if s := render(item); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return "None"
	}
	return strings.Join(cleaned, ", ")
}

// render prints scalars plainly and structured values as compact JSON.
func render(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	default:
		return fmt.Sprint(v)
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
