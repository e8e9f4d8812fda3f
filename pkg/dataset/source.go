// Package dataset holds the ordered, fixed-length collection of
// (image, label) pairs a labeling session works through.
package dataset

import (
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/stat"

	"imglabeler/internal/codec"
	"imglabeler/internal/models"
)

// LoadError reports a dataset artifact that is missing, truncated or malformed
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading dataset %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IndexError reports an access outside [0, Len)
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("dataset index %d out of range [0, %d)", e.Index, e.Len)
}

// artifact is the on-disk dataset layout
type artifact struct {
	Pairs []codec.Pair `cbor:"1,keyasint"`
}

// Source is a randomly indexable sequence of image pairs, loaded once
type Source struct {
	pairs []models.ImagePair
}

// New wraps already-loaded pairs. The sequence must be non-empty and every
// pair must have matching image and label shapes.
func New(pairs []models.ImagePair) (*Source, error) {
	if err := validate(pairs); err != nil {
		return nil, err
	}
	return &Source{pairs: pairs}, nil
}

// Load reads a dataset artifact from path
func Load(path string, opts ...codec.DecodeOption) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	pairs, err := Decode(data, opts...)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &Source{pairs: pairs}, nil
}

// Decode parses dataset artifact bytes into pairs
func Decode(data []byte, opts ...codec.DecodeOption) ([]models.ImagePair, error) {
	var a artifact
	if err := codec.Decode(codec.KindDataset, data, &a, opts...); err != nil {
		return nil, err
	}
	pairs := make([]models.ImagePair, len(a.Pairs))
	for i, wp := range a.Pairs {
		p, err := wp.ImagePair()
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		pairs[i] = p
	}
	if err := validate(pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Encode serializes pairs into dataset artifact bytes
func Encode(pairs []models.ImagePair, level int) ([]byte, error) {
	if err := validate(pairs); err != nil {
		return nil, err
	}
	a := artifact{Pairs: make([]codec.Pair, len(pairs))}
	for i, p := range pairs {
		a.Pairs[i] = codec.PairFrom(p)
	}
	return codec.Encode(codec.KindDataset, a, level)
}

// Write saves pairs as a dataset artifact at path
func Write(path string, pairs []models.ImagePair, level int) error {
	data, err := Encode(pairs, level)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing dataset file: %w", err)
	}
	return nil
}

// Validate checks that pairs form a usable dataset: non-empty, with every
// image matching its label's shape. Shape disagreements wrap codec.ErrShape.
func Validate(pairs []models.ImagePair) error {
	return validate(pairs)
}

func validate(pairs []models.ImagePair) error {
	if len(pairs) == 0 {
		return errors.New("dataset is empty")
	}
	for i, p := range pairs {
		if p.Image == nil || p.Label == nil {
			return fmt.Errorf("pair %d: missing image or label", i)
		}
		rows, cols := p.Image.Dims()
		if rows != p.Label.Rows() || cols != p.Label.Cols() {
			return fmt.Errorf("pair %d: %w: image %dx%d, label %dx%d",
				i, codec.ErrShape, rows, cols, p.Label.Rows(), p.Label.Cols())
		}
	}
	return nil
}

// Len returns N, the number of pairs
func (s *Source) Len() int { return len(s.pairs) }

// Get returns the pair at idx. The returned label is shared with the source.
func (s *Source) Get(idx int) (models.ImagePair, error) {
	if idx < 0 || idx >= len(s.pairs) {
		return models.ImagePair{}, &IndexError{Index: idx, Len: len(s.pairs)}
	}
	return s.pairs[idx], nil
}

// Pairs returns the backing sequence
func (s *Source) Pairs() []models.ImagePair { return s.pairs }

// Replace swaps the whole sequence. It is used when a saved session is restored.
func (s *Source) Replace(pairs []models.ImagePair) error {
	if err := validate(pairs); err != nil {
		return err
	}
	s.pairs = pairs
	return nil
}

// Summary describes a loaded dataset
type Summary struct {
	Count        int
	MinRows      int
	MaxRows      int
	MinCols      int
	MaxCols      int
	MeanCoverage float64 // mean fraction of label cells set to 1
	StdCoverage  float64
}

// Summary computes shape ranges and label coverage statistics
func (s *Source) Summary() Summary {
	sum := Summary{Count: len(s.pairs)}
	coverage := make([]float64, len(s.pairs))
	for i, p := range s.pairs {
		rows, cols := p.Shape()
		if i == 0 || rows < sum.MinRows {
			sum.MinRows = rows
		}
		if rows > sum.MaxRows {
			sum.MaxRows = rows
		}
		if i == 0 || cols < sum.MinCols {
			sum.MinCols = cols
		}
		if cols > sum.MaxCols {
			sum.MaxCols = cols
		}
		coverage[i] = float64(p.Label.Count()) / float64(rows*cols)
	}
	if len(coverage) > 1 {
		sum.MeanCoverage, sum.StdCoverage = stat.MeanStdDev(coverage, nil)
	} else if len(coverage) == 1 {
		sum.MeanCoverage = coverage[0]
	}
	return sum
}
