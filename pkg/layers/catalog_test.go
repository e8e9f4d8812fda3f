package layers

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	ls := c.Layers()
	require.Len(t, ls, 3)
	assert.Equal(t, "background", ls[0].Name)
	assert.Equal(t, "peak", ls[1].Name)
	assert.Equal(t, "flaw", ls[2].Name)

	assert.Equal(t, Flaw, c.ActiveID())
	assert.Equal(t, "flaw", c.Active().Name)
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, c.ColorOf(Peak))
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, c.ColorOf(Flaw))
	assert.Equal(t, color.RGBA{A: 0xff}, c.ColorOf(99))
}

func TestLayersReturnsCopy(t *testing.T) {
	c := Default()
	ls := c.Layers()
	ls[0].Name = "changed"
	assert.Equal(t, "background", c.Layers()[0].Name)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		layers []Layer
		active int
	}{
		{name: "empty", layers: nil, active: 0},
		{name: "duplicate id", layers: []Layer{{ID: 1, ColorHex: "#000000"}, {ID: 1, ColorHex: "#FFFFFF"}}, active: 1},
		{name: "bad color", layers: []Layer{{ID: 0, ColorHex: "red"}}, active: 0},
		{name: "unknown active", layers: DefaultLayers(), active: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.layers, tt.active)
			assert.Error(t, err)
		})
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#1a2B3c")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x1a, G: 0x2b, B: 0x3c, A: 0xff}, c)

	c, err = ParseHex("00ff00")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xff), c.G)

	_, err = ParseHex("#12345")
	assert.Error(t, err)
	_, err = ParseHex("#zzzzzz")
	assert.Error(t, err)
}
