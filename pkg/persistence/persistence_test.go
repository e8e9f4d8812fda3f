package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"imglabeler/internal/codec"
	"imglabeler/internal/models"
	"imglabeler/internal/testutil"
	"imglabeler/pkg/randstate"
)

var recordCmp = []cmp.Option{
	cmp.Comparer(func(a, b *models.Bitmap) bool { return a.Equal(b) }),
	cmp.Comparer(func(a, b *mat.Dense) bool { return mat.Equal(a, b) }),
	cmp.Comparer(func(a, b randstate.Checkpoint) bool { return a.Equal(b) }),
}

func testRecord(t *testing.T) Record {
	t.Helper()
	gens := randstate.New(11)
	cp0, err := gens.Capture()
	require.NoError(t, err)
	gens.General().Uint64()
	gens.Array().Float64()
	cp2, err := gens.Capture()
	require.NoError(t, err)

	mask0 := models.NewMask(4, 4)
	_, err = mask0.BlockToggle(models.Rect{X0: 0, X1: 2, Y0: 0, Y1: 2})
	require.NoError(t, err)
	mask2 := models.NewMask(4, 4)
	mask2.Toggle(3, 1)

	return Record{
		SessionID:   "2026_1015_0930_12",
		Pairs:       testutil.Pairs(3, 4, 4),
		Masks:       map[int]*models.Bitmap{0: mask0, 2: mask2},
		Checkpoints: map[int]randstate.Checkpoint{0: cp0, 2: cp2},
		Current:     cp2,
		Cursor:      2,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	rec := testRecord(t)
	data, err := Save(rec, 0)
	require.NoError(t, err)

	got, err := Load(data)
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got, recordCmp...); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveDeterministic(t *testing.T) {
	rec := testRecord(t)
	a, err := Save(rec, 0)
	require.NoError(t, err)
	b, err := Save(rec.Clone(), 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	loaded, err := Load(a)
	require.NoError(t, err)
	c, err := Save(loaded, 0)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestLoadCorrupt(t *testing.T) {
	good, err := Save(testRecord(t), 0)
	require.NoError(t, err)

	datasetArtifact, err := codec.Encode(codec.KindDataset, struct{}{}, 0)
	require.NoError(t, err)

	for name, data := range map[string][]byte{
		"empty":      nil,
		"garbage":    []byte("pickle? no."),
		"truncated":  good[:len(good)-8],
		"wrong kind": datasetArtifact,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(data)
			assert.ErrorIs(t, err, ErrCorruptSession)
		})
	}
}

func encodeWire(t *testing.T, mutate func(*wireRecord)) []byte {
	t.Helper()
	rec := testRecord(t)
	w := wireRecord{
		SessionID:   rec.SessionID,
		Masks:       map[int]codec.Bits{},
		Checkpoints: map[int]wireCheckpoint{},
		Current:     wireCheckpoint(rec.Current),
		Cursor:      rec.Cursor,
	}
	for _, p := range rec.Pairs {
		w.Pairs = append(w.Pairs, codec.PairFrom(p))
	}
	for idx, m := range rec.Masks {
		w.Masks[idx] = codec.BitsFrom(m)
	}
	for idx, cp := range rec.Checkpoints {
		w.Checkpoints[idx] = wireCheckpoint(cp)
	}
	mutate(&w)
	data, err := codec.Encode(codec.KindSession, w, 0)
	require.NoError(t, err)
	return data
}

func TestLoadInconsistent(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*wireRecord)
		want   error
	}{
		{"cursor past end", func(w *wireRecord) { w.Cursor = 3 }, ErrCorruptSession},
		{"negative cursor", func(w *wireRecord) { w.Cursor = -1 }, ErrCorruptSession},
		{"mask index out of range", func(w *wireRecord) { w.Masks[7] = w.Masks[0] }, ErrCorruptSession},
		{"checkpoint index out of range", func(w *wireRecord) { w.Checkpoints[-2] = w.Checkpoints[0] }, ErrCorruptSession},
		{"bad checkpoint blob", func(w *wireRecord) { w.Checkpoints[0] = wireCheckpoint{General: []byte("x")} }, ErrCorruptSession},
		{"no pairs", func(w *wireRecord) { w.Pairs = nil }, ErrCorruptSession},
		{"non-binary mask", func(w *wireRecord) { w.Masks[0].Bits[0] = 5 }, ErrCorruptSession},
		{"missing id", func(w *wireRecord) { w.SessionID = "" }, ErrCorruptSession},
		{"mask shape", func(w *wireRecord) {
			w.Masks[0] = codec.BitsFrom(models.NewMask(2, 8))
		}, ErrSchemaMismatch},
		{"overflowing pair shape", func(w *wireRecord) {
			w.Pairs[0] = codec.Pair{
				Image: codec.Matrix{Rows: 1 << 32, Cols: 1 << 32},
				Label: codec.Bits{Rows: 1 << 32, Cols: 1 << 32},
			}
		}, ErrCorruptSession},
		{"overflowing mask shape", func(w *wireRecord) {
			w.Masks[0] = codec.Bits{Rows: 1 << 32, Cols: 1 << 32}
		}, ErrCorruptSession},
		{"pair shape", func(w *wireRecord) {
			w.Pairs[1].Label = codec.BitsFrom(models.NewBitmap(4, 3, 0))
		}, ErrSchemaMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(encodeWire(t, tt.mutate))
			if !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadPayloadLimit(t *testing.T) {
	data, err := Save(testRecord(t), 0)
	require.NoError(t, err)

	_, err = Load(data, codec.WithMaxPayload(64))
	assert.ErrorIs(t, err, ErrCorruptSession)
	assert.ErrorIs(t, err, codec.ErrFormat)

	_, err = Load(data, codec.WithMaxPayload(codec.DefaultMaxPayload))
	assert.NoError(t, err)
}

func TestSaveRejectsInvalidRecord(t *testing.T) {
	rec := testRecord(t)
	rec.Masks[1] = models.NewMask(5, 5)
	_, err := Save(rec, 0)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestSaveFileLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "2026_1015_0930_12.session")
	rec := testRecord(t)

	require.NoError(t, SaveFile(path, rec, 3))
	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(rec, got, recordCmp...))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")

	_, err = LoadFile(filepath.Join(dir, "missing.session"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, ErrCorruptSession)
}
