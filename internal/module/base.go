package module

import "github.com/kingrea/intel-lattice/internal/profile"

// Base provides common plumbing for modules (identity + output section).
type Base struct {
	info    Info
	section string
}

// NewBase seeds the helper with module info and the section it writes.
func NewBase(info Info, section string) *Base {
	return &Base{info: info, section: section}
}

// Info implements Module.Info.
func (b *Base) Info() Info {
	return b.info
}

// Section returns the profile section the module writes.
func (b *Base) Section() string {
	return b.section
}

// Update wraps payload as an update to the module's section.
func (b *Base) Update(payload map[string]any) profile.Update {
	return profile.Update{b.section: payload}
}
