package app

import (
	"github.com/nsafar1/vbmgrid/internal/registry"
	"github.com/nsafar1/vbmgrid/modules/command"
	"github.com/nsafar1/vbmgrid/modules/normalize"
	"github.com/nsafar1/vbmgrid/modules/smooth"
)

// coreModules is the definitive list of all operations that are compiled
// into the vbmgrid binary.
var coreModules = []registry.Module{
	&normalize.Module{},
	&smooth.Module{},
	&command.Module{},
}
