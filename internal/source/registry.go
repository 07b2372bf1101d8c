package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jeromebarre/get-obs/internal/models"
)

// Deps are the collaborators adapters may need.
type Deps struct {
	Catalogue Catalogue
	Tempo     TEMPOSource
}

var registry = map[string]func(Deps) *Adapter{
	"MODIS":   func(Deps) *Adapter { return MODIS() },
	"VIIRS":   func(Deps) *Adapter { return VIIRS() },
	"TROPOMI": func(d Deps) *Adapter { return TROPOMI(d.Catalogue) },
	"MOPITT":  func(Deps) *Adapter { return MOPITT() },
	"TEMPO":   func(d Deps) *Adapter { return TEMPO(d.Tempo) },
}

// Lookup returns the adapter for an instrument name.
func Lookup(instrument string, deps Deps) (*Adapter, error) {
	ctor, ok := registry[strings.ToUpper(instrument)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			models.ErrUnsupportedInstrument, instrument, strings.Join(Instruments(), ", "))
	}
	return ctor(deps), nil
}

// Instruments returns the supported instrument names.
func Instruments() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
