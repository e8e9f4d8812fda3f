package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"imglabeler/internal/codec"
	"imglabeler/internal/models"
	"imglabeler/pkg/randstate"
)

type wireCheckpoint struct {
	General []byte `cbor:"1,keyasint"`
	Array   []byte `cbor:"2,keyasint"`
}

// wireRecord fixes the field order of the artifact. Map keys are sorted by
// the deterministic encoder, so equal records encode to equal bytes.
type wireRecord struct {
	SessionID   string                 `cbor:"1,keyasint"`
	Pairs       []codec.Pair           `cbor:"2,keyasint"`
	Masks       map[int]codec.Bits     `cbor:"3,keyasint"`
	Checkpoints map[int]wireCheckpoint `cbor:"4,keyasint"`
	Current     wireCheckpoint         `cbor:"5,keyasint"`
	Cursor      int                    `cbor:"6,keyasint"`
}

// Save serializes a record. level is the zstd compression level (<= 0 for the default).
func Save(r Record, level int) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to save: %w", err)
	}

	w := wireRecord{
		SessionID:   r.SessionID,
		Pairs:       make([]codec.Pair, len(r.Pairs)),
		Masks:       make(map[int]codec.Bits, len(r.Masks)),
		Checkpoints: make(map[int]wireCheckpoint, len(r.Checkpoints)),
		Current:     wireCheckpoint(r.Current),
		Cursor:      r.Cursor,
	}
	for i, p := range r.Pairs {
		w.Pairs[i] = codec.PairFrom(p)
	}
	for idx, m := range r.Masks {
		w.Masks[idx] = codec.BitsFrom(m)
	}
	for idx, cp := range r.Checkpoints {
		w.Checkpoints[idx] = wireCheckpoint(cp)
	}
	return codec.Encode(codec.KindSession, w, level)
}

// Load parses a session artifact. Unreadable or inconsistent artifacts fail
// with ErrCorruptSession, as do artifacts larger than the payload limit;
// mismatched array shapes fail with ErrSchemaMismatch.
func Load(data []byte, opts ...codec.DecodeOption) (Record, error) {
	var w wireRecord
	if err := codec.Decode(codec.KindSession, data, &w, opts...); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}

	r := Record{
		SessionID:   w.SessionID,
		Pairs:       make([]models.ImagePair, len(w.Pairs)),
		Masks:       make(map[int]*models.Bitmap, len(w.Masks)),
		Checkpoints: make(map[int]randstate.Checkpoint, len(w.Checkpoints)),
		Current:     randstate.Checkpoint(w.Current),
		Cursor:      w.Cursor,
	}
	for i, wp := range w.Pairs {
		p, err := wp.ImagePair()
		if err != nil {
			if errors.Is(err, codec.ErrShape) {
				return Record{}, fmt.Errorf("%w: pair %d: %v", ErrSchemaMismatch, i, err)
			}
			return Record{}, fmt.Errorf("%w: pair %d: %v", ErrCorruptSession, i, err)
		}
		r.Pairs[i] = p
	}
	for idx, wb := range w.Masks {
		m, err := wb.Bitmap()
		if err != nil {
			return Record{}, fmt.Errorf("%w: mask %d: %v", ErrCorruptSession, idx, err)
		}
		r.Masks[idx] = m
	}
	for idx, cp := range w.Checkpoints {
		r.Checkpoints[idx] = randstate.Checkpoint(cp)
	}

	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// SaveFile writes the artifact atomically: a temp file in the same directory
// is renamed over path once fully written.
func SaveFile(path string, r Record, level int) error {
	data, err := Save(r, level)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("error syncing session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error replacing session file: %w", err)
	}
	return nil
}

// LoadFile reads and parses the artifact at path
func LoadFile(path string, opts ...codec.DecodeOption) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("error reading session file: %w", err)
	}
	return Load(data, opts...)
}
