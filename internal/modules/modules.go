// Package modules wires the built-in enrichment modules into a registry.
package modules

import (
	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/modules/ghunt"
	"github.com/kingrea/intel-lattice/internal/modules/harvester"
	"github.com/kingrea/intel-lattice/internal/modules/photon"
	"github.com/kingrea/intel-lattice/internal/modules/reconng"
	"github.com/kingrea/intel-lattice/internal/modules/sherlock"
	"github.com/kingrea/intel-lattice/internal/modules/skiptracer"
	"github.com/kingrea/intel-lattice/internal/modules/spiderfoot"
)

// RegisterBuiltins installs all of the built-in module factories into the
// provided registry. Metagoofil and Twint are catalogued but have no
// implementation and are reported unavailable.
func RegisterBuiltins(reg *module.Registry) {
	if reg == nil {
		return
	}
	harvester.Register(reg)
	reconng.Register(reg)
	spiderfoot.Register(reg)
	photon.Register(reg)
	sherlock.Register(reg)
	ghunt.Register(reg)
	skiptracer.Register(reg)
}
