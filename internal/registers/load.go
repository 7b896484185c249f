package registers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk YAML layout of a catalog.
type catalogFile struct {
	Registers []registerEntry `yaml:"registers"`
}

type registerEntry struct {
	Index int    `yaml:"index"`
	Name  string `yaml:"name"`
	Unit  string `yaml:"unit"`
	Scale int    `yaml:"scale"` // divisor: 1, 10 or 100
}

// Load reads a catalog from a YAML file.
//
// Parameters:
//   - path: Path to the catalog file
//
// Returns:
//   - *Catalog: Immutable catalog
//   - error: If the file cannot be read or parsed, or a descriptor is invalid
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	descs := make([]Descriptor, 0, len(f.Registers))
	for _, r := range f.Registers {
		descs = append(descs, Descriptor{
			Index: r.Index,
			Name:  r.Name,
			Unit:  r.Unit,
			Scale: Scale(r.Scale),
		})
	}

	return NewCatalog(descs...)
}
