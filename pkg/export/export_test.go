package export

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imglabeler/internal/models"
	"imglabeler/internal/testutil"
	"imglabeler/pkg/dataset"
	"imglabeler/pkg/layers"
	"imglabeler/pkg/session"
)

func TestMaskImage(t *testing.T) {
	m := models.NewMask(3, 2)
	m.Toggle(2, 1)

	img := MaskImage(m)
	b := img.Bounds()
	assert.Equal(t, 3, b.Dx())
	assert.Equal(t, 2, b.Dy())
	assert.Equal(t, uint8(255), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), img.GrayAt(2, 1).Y)
}

func TestOverlayColors(t *testing.T) {
	pair := testutil.Pairs(1, 3, 3)[0]
	mask := models.NewMask(3, 3)
	mask.Toggle(0, 2)

	img := Overlay(pair, mask, layers.Default())

	// diagonal cells carry the red peak label
	onLabel := img.RGBAAt(1, 1)
	assert.Greater(t, onLabel.R, onLabel.G)

	// masked cell is tinted with the active (flaw, green) layer
	masked := img.RGBAAt(0, 2)
	assert.Greater(t, masked.G, masked.R)

	plain := img.RGBAAt(0, 1)
	assert.Equal(t, plain.R, plain.G)
	assert.Equal(t, uint8(0xff), plain.A)
}

func TestBlend(t *testing.T) {
	got := blend(color.RGBA{A: 0xff}, color.RGBA{R: 255, A: 0xff})
	assert.Equal(t, uint8(100), got.R)
	assert.Equal(t, uint8(0), got.G)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, uint8(0), level(-1, 0, 10))
	assert.Equal(t, uint8(255), level(20, 0, 10))
	assert.Equal(t, uint8(127), level(5, 0, 10))
	assert.Equal(t, uint8(0), level(3, 3, 3))
}

func TestRendererAndAll(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRenderer(filepath.Join(dir, "overlays"))
	require.NoError(t, err)

	src, err := dataset.New(testutil.Pairs(3, 4, 4))
	require.NoError(t, err)
	s, err := session.New(session.Params{Dataset: src, Renderer: r})
	require.NoError(t, err)

	_, _, err = s.Display()
	require.NoError(t, err)
	_, err = s.GoTo(2)
	require.NoError(t, err)

	for _, name := range []string{"overlay_00000.png", "overlay_00002.png"} {
		f, err := os.Open(filepath.Join(dir, "overlays", name))
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dx())
	}

	n, err := All(s.Snapshot(), filepath.Join(dir, "masks"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = os.Stat(filepath.Join(dir, "masks", MaskFilename(2)))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "masks", MaskFilename(1)))
	assert.True(t, os.IsNotExist(err))
}
