// Package codec frames the binary artifacts written by imglabeler.
//
// Every artifact starts with the magic "XRDL", one kind byte and one format
// version byte, followed by a single zstd frame holding deterministic CBOR.
// Encoding the same value twice yields identical bytes.
package codec

import (
	"errors"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/mat"

	"imglabeler/internal/models"
)

const magic = "XRDL"

// Version is the current artifact format version
const Version byte = 1

const headerLen = len(magic) + 2

// Kind distinguishes dataset artifacts from session artifacts
type Kind byte

const (
	KindDataset Kind = 'D'
	KindSession Kind = 'S'
)

func (k Kind) String() string {
	switch k {
	case KindDataset:
		return "dataset"
	case KindSession:
		return "session"
	}
	return fmt.Sprintf("kind(%#x)", byte(k))
}

var (
	// ErrFormat reports bytes that are not a readable imglabeler artifact
	ErrFormat = errors.New("not an imglabeler artifact")
	// ErrKind reports an artifact of the wrong kind
	ErrKind = errors.New("unexpected artifact kind")
	// ErrVersion reports an unsupported format version
	ErrVersion = errors.New("unsupported artifact version")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements:  2147483647,
		MaxMapPairs:       2147483647,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode marshals v and wraps it in an artifact of the given kind.
// level is a zstd compression level; values <= 0 select the library default.
func Encode(kind Kind, v any, level int) ([]byte, error) {
	payload, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", kind, err)
	}

	encLevel := zstd.SpeedDefault
	if level > 0 {
		encLevel = zstd.EncoderLevelFromZstd(level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()

	out := make([]byte, 0, headerLen+len(payload)/2)
	out = append(out, magic...)
	out = append(out, byte(kind), Version)
	return enc.EncodeAll(payload, out), nil
}

// DefaultMaxPayload caps the decompressed size of an artifact
const DefaultMaxPayload uint64 = 1 << 30

type decodeConfig struct {
	maxPayload uint64
}

// DecodeOption adjusts how Decode reads an artifact
type DecodeOption func(*decodeConfig)

// WithMaxPayload limits the decompressed payload to n bytes. Larger
// artifacts fail with ErrFormat before their contents are allocated.
// Zero keeps DefaultMaxPayload.
func WithMaxPayload(n uint64) DecodeOption {
	return func(c *decodeConfig) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// Decode checks the artifact header and unmarshals the payload into v
func Decode(kind Kind, data []byte, v any, opts ...DecodeOption) error {
	cfg := decodeConfig{maxPayload: DefaultMaxPayload}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(data) < headerLen || string(data[:len(magic)]) != magic {
		return ErrFormat
	}
	if got := Kind(data[len(magic)]); got != kind {
		return fmt.Errorf("%w: got %s, want %s", ErrKind, got, kind)
	}
	if ver := data[len(magic)+1]; ver != Version {
		return fmt.Errorf("%w: %d", ErrVersion, ver)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(cfg.maxPayload))
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(data[headerLen:], nil)
	if err != nil {
		return fmt.Errorf("%w: decompressing: %w", ErrFormat, err)
	}
	if err := decMode.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrFormat, kind, err)
	}
	return nil
}

// Matrix is the wire form of a real-valued 2D array
type Matrix struct {
	Rows int       `cbor:"1,keyasint"`
	Cols int       `cbor:"2,keyasint"`
	Data []float64 `cbor:"3,keyasint"`
}

// MatrixFrom copies a gonum matrix into its wire form
func MatrixFrom(m *mat.Dense) Matrix {
	rows, cols := m.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return Matrix{Rows: rows, Cols: cols, Data: data}
}

// Dense rebuilds the matrix, validating its shape
func (m Matrix) Dense() (*mat.Dense, error) {
	if err := models.CheckShape(m.Rows, m.Cols, len(m.Data)); err != nil {
		return nil, fmt.Errorf("matrix: %w", err)
	}
	return mat.NewDense(m.Rows, m.Cols, slices.Clone(m.Data)), nil
}

// Bits is the wire form of a binary 2D array
type Bits struct {
	Rows int    `cbor:"1,keyasint"`
	Cols int    `cbor:"2,keyasint"`
	Bits []byte `cbor:"3,keyasint"`
}

// BitsFrom copies a bitmap into its wire form
func BitsFrom(b *models.Bitmap) Bits {
	return Bits{Rows: b.Rows(), Cols: b.Cols(), Bits: b.Bytes()}
}

// Bitmap rebuilds the bitmap, validating shape and cell values
func (b Bits) Bitmap() (*models.Bitmap, error) {
	return models.BitmapFromBytes(b.Rows, b.Cols, b.Bits)
}

// Pair is the wire form of one (image, label) dataset entry
type Pair struct {
	Image Matrix `cbor:"1,keyasint"`
	Label Bits   `cbor:"2,keyasint"`
}

// PairFrom copies an image pair into its wire form
func PairFrom(p models.ImagePair) Pair {
	return Pair{Image: MatrixFrom(p.Image), Label: BitsFrom(p.Label)}
}

// ImagePair rebuilds the pair. Arrays that cannot be rebuilt are reported
// as plain errors; a shape disagreement between image and label is reported
// through ErrShape so callers can tell the two apart.
func (p Pair) ImagePair() (models.ImagePair, error) {
	img, err := p.Image.Dense()
	if err != nil {
		return models.ImagePair{}, fmt.Errorf("image: %w", err)
	}
	label, err := p.Label.Bitmap()
	if err != nil {
		return models.ImagePair{}, fmt.Errorf("label: %w", err)
	}
	pair, err := models.NewImagePair(img, label)
	if err != nil {
		return models.ImagePair{}, fmt.Errorf("%w: %v", ErrShape, err)
	}
	return pair, nil
}

// ErrShape reports an image and label whose shapes disagree
var ErrShape = errors.New("image and label shapes differ")
