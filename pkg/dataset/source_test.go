package dataset

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"imglabeler/internal/codec"
	"imglabeler/internal/testutil"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fast.data")
	pairs := testutil.Pairs(3, 4, 5)
	require.NoError(t, Write(path, pairs, 0))

	src, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, src.Len())

	for i := range pairs {
		got, err := src.Get(i)
		require.NoError(t, err)
		assert.True(t, mat.Equal(pairs[i].Image, got.Image), "image %d", i)
		assert.True(t, pairs[i].Label.Equal(got.Label), "label %d", i)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	good, err := Encode(testutil.Pairs(2, 3, 3), 0)
	require.NoError(t, err)

	mismatched, err := codec.Encode(codec.KindDataset, artifact{Pairs: []codec.Pair{{
		Image: codec.Matrix{Rows: 2, Cols: 2, Data: []float64{1, 2, 3, 4}},
		Label: codec.Bits{Rows: 2, Cols: 1, Bits: []byte{0, 1}},
	}}}, 0)
	require.NoError(t, err)

	empty, err := codec.Encode(codec.KindDataset, artifact{}, 0)
	require.NoError(t, err)

	overflow, err := codec.Encode(codec.KindDataset, artifact{Pairs: []codec.Pair{{
		Image: codec.Matrix{Rows: 1 << 32, Cols: 1 << 32},
		Label: codec.Bits{Rows: 1 << 32, Cols: 1 << 32},
	}}}, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated", data: good[:len(good)/2]},
		{name: "garbage", data: []byte("not a dataset at all")},
		{name: "shape mismatch", data: mismatched},
		{name: "empty sequence", data: empty},
		{name: "overflowing shape", data: overflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, tt.data, 0644))

			_, err := Load(path)
			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr), "got %v", err)
			assert.Equal(t, path, loadErr.Path)
		})
	}

	t.Run("over payload limit", func(t *testing.T) {
		path := filepath.Join(dir, "big")
		require.NoError(t, os.WriteFile(path, good, 0644))
		_, err := Load(path, codec.WithMaxPayload(16))
		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr), "got %v", err)
		assert.True(t, errors.Is(err, codec.ErrFormat))

		_, err = Load(path)
		assert.NoError(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope"))
		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestGetOutOfRange(t *testing.T) {
	src, err := New(testutil.Pairs(2, 2, 2))
	require.NoError(t, err)

	for _, idx := range []int{-1, 2, 100} {
		_, err := src.Get(idx)
		var idxErr *IndexError
		require.True(t, errors.As(err, &idxErr))
		assert.Equal(t, idx, idxErr.Index)
		assert.Equal(t, 2, idxErr.Len)
	}
}

func TestReplace(t *testing.T) {
	src, err := New(testutil.Pairs(2, 2, 2))
	require.NoError(t, err)

	require.Error(t, src.Replace(nil))
	assert.Equal(t, 2, src.Len())

	require.NoError(t, src.Replace(testutil.Pairs(5, 3, 3)))
	assert.Equal(t, 5, src.Len())
}

func TestSummary(t *testing.T) {
	pairs := testutil.Pairs(2, 4, 4)
	pairs[1].Label.Fill(1)
	src, err := New(pairs)
	require.NoError(t, err)

	sum := src.Summary()
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, 4, sum.MinRows)
	assert.Equal(t, 4, sum.MaxCols)
	assert.InDelta(t, (0.25+1.0)/2, sum.MeanCoverage, 1e-12)
	assert.Greater(t, sum.StdCoverage, 0.0)
}

func writeGray(t *testing.T, path string, w, h int, px func(x, y int) uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.SetGray(x, y, color.Gray{Y: px(x, y)})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestImport(t *testing.T) {
	imgDir, labelDir := t.TempDir(), t.TempDir()

	for _, name := range []string{"shot_10.png", "shot_2.png"} {
		writeGray(t, filepath.Join(imgDir, name), 3, 2, func(x, y int) uint8 { return 255 })
		writeGray(t, filepath.Join(labelDir, name), 3, 2, func(x, y int) uint8 {
			if x == 2 && y == 1 {
				return 255
			}
			return 0
		})
	}
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, "notes.txt"), []byte("x"), 0644))

	pairs, err := Import(imgDir, labelDir)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	rows, cols := pairs[0].Shape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
	assert.InDelta(t, 1.0, pairs[0].Image.At(2, 1), 1e-9)
	v, _ := pairs[0].Label.At(2, 1)
	assert.Equal(t, byte(1), v)
	assert.Equal(t, 1, pairs[0].Label.Count())
}

func TestImportMissingLabel(t *testing.T) {
	imgDir, labelDir := t.TempDir(), t.TempDir()
	writeGray(t, filepath.Join(imgDir, "a1.png"), 2, 2, func(x, y int) uint8 { return 0 })

	_, err := Import(imgDir, labelDir)
	assert.Error(t, err)
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, 12, extractNumber("run_0012.png"))
	assert.Equal(t, 0, extractNumber("plain.png"))
	assert.Less(t, extractNumber("img2.png"), extractNumber("img10.png"))
}
