package app

import (
	"github.com/specialistvlad/tkalgrid/internal/registry"
	"github.com/specialistvlad/tkalgrid/modules/mts"
)

// coreModules is the definitive list of all validation modules that are
// compiled into the tkalgrid binary.
var coreModules = []registry.Module{
	&mts.Module{},
}
