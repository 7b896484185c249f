package registers

import (
	"fmt"
	"sort"
)

// Scale is the divisor applied to a raw register value for display.
type Scale int

// Supported scales.
const (
	ScaleOne       Scale = 1
	ScaleTenth     Scale = 10
	ScaleHundredth Scale = 100
)

// Valid reports whether s is one of the supported scales.
func (s Scale) Valid() bool {
	switch s {
	case ScaleOne, ScaleTenth, ScaleHundredth:
		return true
	default:
		return false
	}
}

// Apply converts a raw register value to its physical value.
// An unset (zero) scale is treated as ScaleOne.
func (s Scale) Apply(raw uint16) float64 {
	if s == 0 {
		return float64(raw)
	}
	return float64(raw) / float64(s)
}

// String returns the scale in "x1" / "/10" notation.
func (s Scale) String() string {
	switch s {
	case 0, ScaleOne:
		return "x1"
	default:
		return fmt.Sprintf("/%d", int(s))
	}
}

// Descriptor describes a single register.
type Descriptor struct {
	Index int
	Name  string
	Unit  string
	Scale Scale
}

// Catalog is an immutable index -> Descriptor lookup.
//
// Thread Safety: a Catalog is read-only after construction and safe for
// concurrent use.
type Catalog struct {
	byIndex map[int]Descriptor
	indices []int
}

// NewCatalog builds a catalog from descriptors.
// A zero Scale defaults to ScaleOne.
func NewCatalog(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{
		byIndex: make(map[int]Descriptor, len(descs)),
		indices: make([]int, 0, len(descs)),
	}

	for _, d := range descs {
		if d.Index < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, d.Index)
		}
		if d.Scale == 0 {
			d.Scale = ScaleOne
		}
		if !d.Scale.Valid() {
			return nil, fmt.Errorf("%w: register %d has scale %d", ErrInvalidScale, d.Index, int(d.Scale))
		}
		if _, exists := c.byIndex[d.Index]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateIndex, d.Index)
		}
		c.byIndex[d.Index] = d
		c.indices = append(c.indices, d.Index)
	}

	sort.Ints(c.indices)
	return c, nil
}

// mustCatalog is used for the built-in tables, which are known valid.
func mustCatalog(descs ...Descriptor) *Catalog {
	c, err := NewCatalog(descs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Describe returns the descriptor for index, or false if the register has
// no semantic metadata. Absent registers are still stored as raw values.
func (c *Catalog) Describe(index int) (Descriptor, bool) {
	if c == nil {
		return Descriptor{}, false
	}
	d, ok := c.byIndex[index]
	return d, ok
}

// Physical returns the scaled value of raw for the register at index.
// The second return value is false when the index is not in the catalog.
func (c *Catalog) Physical(index int, raw uint16) (float64, bool) {
	d, ok := c.Describe(index)
	if !ok {
		return 0, false
	}
	return d.Scale.Apply(raw), true
}

// Descriptors returns all descriptors ordered by index.
func (c *Catalog) Descriptors() []Descriptor {
	if c == nil {
		return nil
	}
	out := make([]Descriptor, 0, len(c.indices))
	for _, idx := range c.indices {
		out = append(out, c.byIndex[idx])
	}
	return out
}

// Len returns the number of described registers.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.indices)
}
