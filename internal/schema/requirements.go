package schema

// SectionRequirement lists the required fields of one section.
type SectionRequirement struct {
	Section  string
	Required []string
}

// RequirementIndex maps section names to their required field names, in
// schema order. It is derived once and treated as immutable.
type RequirementIndex []SectionRequirement

// Requirements derives the requirement index from the schema.
func (s *Schema) Requirements() RequirementIndex {
	if s == nil {
		return nil
	}
	index := make(RequirementIndex, 0, len(s.Sections))
	for _, section := range s.Sections {
		required := make([]string, len(section.Required))
		copy(required, section.Required)
		index = append(index, SectionRequirement{Section: section.Name, Required: required})
	}
	return index
}

// Sections returns the indexed section names in order.
func (idx RequirementIndex) Sections() []string {
	names := make([]string, 0, len(idx))
	for _, req := range idx {
		names = append(names, req.Section)
	}
	return names
}

// Required returns a copy of the required fields for section.
func (idx RequirementIndex) Required(section string) ([]string, bool) {
	for _, req := range idx {
		if req.Section == section {
			out := make([]string, len(req.Required))
			copy(out, req.Required)
			return out, true
		}
	}
	return nil, false
}
