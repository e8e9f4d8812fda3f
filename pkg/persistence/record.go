// Package persistence saves and restores a complete labeling session as a
// single binary artifact.
package persistence

import (
	"errors"
	"fmt"

	"imglabeler/internal/codec"
	"imglabeler/internal/models"
	"imglabeler/pkg/dataset"
	"imglabeler/pkg/randstate"
)

var (
	// ErrCorruptSession reports an artifact that cannot be parsed into a session
	ErrCorruptSession = errors.New("corrupt session")
	// ErrSchemaMismatch reports array shapes that disagree within a session
	ErrSchemaMismatch = errors.New("session schema mismatch")
)

// Record is the full persisted state of a session
type Record struct {
	SessionID string
	Pairs     []models.ImagePair
	// Masks holds every mask created so far, keyed by image index
	Masks map[int]*models.Bitmap
	// Checkpoints holds the generator state captured at each index's first visit
	Checkpoints map[int]randstate.Checkpoint
	// Current is the last-active checkpoint, the single state older tools saved
	Current randstate.Checkpoint
	Cursor  int
}

// Validate checks the record's internal consistency. Structural problems wrap
// ErrCorruptSession; shape disagreements wrap ErrSchemaMismatch.
func (r Record) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrCorruptSession)
	}
	if err := dataset.Validate(r.Pairs); err != nil {
		if errors.Is(err, codec.ErrShape) {
			return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		return fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	n := len(r.Pairs)
	if r.Cursor < 0 || r.Cursor >= n {
		return fmt.Errorf("%w: cursor %d outside [0, %d)", ErrCorruptSession, r.Cursor, n)
	}
	for idx, m := range r.Masks {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: mask index %d outside [0, %d)", ErrCorruptSession, idx, n)
		}
		if m == nil {
			return fmt.Errorf("%w: mask %d is missing", ErrCorruptSession, idx)
		}
		rows, cols := r.Pairs[idx].Shape()
		if m.Rows() != rows || m.Cols() != cols {
			return fmt.Errorf("%w: mask %d is %dx%d, label is %dx%d",
				ErrSchemaMismatch, idx, m.Rows(), m.Cols(), rows, cols)
		}
	}
	for idx, cp := range r.Checkpoints {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: checkpoint index %d outside [0, %d)", ErrCorruptSession, idx, n)
		}
		if err := cp.Validate(); err != nil {
			return fmt.Errorf("%w: checkpoint %d: %v", ErrCorruptSession, idx, err)
		}
	}
	if !r.Current.IsZero() {
		if err := r.Current.Validate(); err != nil {
			return fmt.Errorf("%w: current checkpoint: %v", ErrCorruptSession, err)
		}
	}
	return nil
}

// Clone deep-copies the record
func (r Record) Clone() Record {
	out := Record{
		SessionID:   r.SessionID,
		Pairs:       make([]models.ImagePair, len(r.Pairs)),
		Masks:       make(map[int]*models.Bitmap, len(r.Masks)),
		Checkpoints: make(map[int]randstate.Checkpoint, len(r.Checkpoints)),
		Current:     r.Current.Clone(),
		Cursor:      r.Cursor,
	}
	for i, p := range r.Pairs {
		out.Pairs[i] = p.Clone()
	}
	for idx, m := range r.Masks {
		out.Masks[idx] = m.Clone()
	}
	for idx, cp := range r.Checkpoints {
		out.Checkpoints[idx] = cp.Clone()
	}
	return out
}
