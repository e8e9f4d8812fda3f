// Package layers describes the named overlay layers the renderer colors
package layers

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Layer is one named overlay
type Layer struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	ColorHex string `yaml:"color"`
}

// Color parses ColorHex ("#RRGGBB" or "RRGGBB") into an opaque color
func (l Layer) Color() (color.RGBA, error) {
	return ParseHex(l.ColorHex)
}

// Catalog is an ordered, read-only set of layers plus the active layer id
type Catalog struct {
	layers []Layer
	byID   map[int]int
	active int
}

// Well-known layer ids of the default catalog
const (
	Background = 0
	Peak       = 1
	Flaw       = 2
)

// DefaultLayers returns the background, peak and flaw layers
func DefaultLayers() []Layer {
	return []Layer{
		{ID: Background, Name: "background", ColorHex: "#FFFFFF"},
		{ID: Peak, Name: "peak", ColorHex: "#FF0000"},
		{ID: Flaw, Name: "flaw", ColorHex: "#00FF00"},
	}
}

// Default returns the default catalog with the flaw layer active
func Default() *Catalog {
	c, err := New(DefaultLayers(), Flaw)
	if err != nil {
		panic(err)
	}
	return c
}

// New validates layers and builds a catalog. Ids must be unique, colors must
// parse and active must name one of the layers.
func New(ls []Layer, active int) (*Catalog, error) {
	if len(ls) == 0 {
		return nil, fmt.Errorf("layer catalog is empty")
	}
	c := &Catalog{
		layers: append([]Layer(nil), ls...),
		byID:   make(map[int]int, len(ls)),
		active: active,
	}
	for i, l := range c.layers {
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate layer id %d", l.ID)
		}
		if _, err := l.Color(); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", l.ID, l.Name, err)
		}
		c.byID[l.ID] = i
	}
	if _, ok := c.byID[active]; !ok {
		return nil, fmt.Errorf("active layer %d is not in the catalog", active)
	}
	return c, nil
}

// Layers returns the layers in catalog order
func (c *Catalog) Layers() []Layer {
	return append([]Layer(nil), c.layers...)
}

// Lookup returns the layer with the given id
func (c *Catalog) Lookup(id int) (Layer, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Layer{}, false
	}
	return c.layers[i], true
}

// Active returns the active layer
func (c *Catalog) Active() Layer {
	return c.layers[c.byID[c.active]]
}

// ActiveID returns the id of the active layer
func (c *Catalog) ActiveID() int { return c.active }

// ColorOf returns the color of layer id, falling back to opaque black
func (c *Catalog) ColorOf(id int) color.RGBA {
	l, ok := c.Lookup(id)
	if !ok {
		return color.RGBA{A: 0xff}
	}
	col, _ := l.Color()
	return col
}

// ParseHex parses "#RRGGBB" or "RRGGBB"
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q: want #RRGGBB", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
