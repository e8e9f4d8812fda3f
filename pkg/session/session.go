// Package session implements the annotation session engine: per-image mask
// state, the navigation cursor, the mouse-mode state machine and region edits.
//
// A Session is driven by an input mapper that calls Next, Prev, GoTo,
// SetMouseMode and ClickAt with coordinates already in array space, and it
// reports every displayed or edited frame to a Renderer. It is not safe for
// concurrent use; events are processed one at a time, to completion.
package session

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"imglabeler/internal/codec"
	"imglabeler/internal/models"
	"imglabeler/pkg/dataset"
	"imglabeler/pkg/layers"
	"imglabeler/pkg/persistence"
	"imglabeler/pkg/randstate"
)

// IDLayout formats the creation time into a session id
const IDLayout = "2006_0102_1504_05"

// ErrNotDisplayed is returned by ClickAt before the current image was ever displayed
var ErrNotDisplayed = errors.New("current image has not been displayed")

// OutOfRangeWarning is returned by GoTo when the requested index was clamped.
// The navigation itself succeeded.
type OutOfRangeWarning struct {
	Requested int
	Clamped   int
}

func (w *OutOfRangeWarning) Error() string {
	return fmt.Sprintf("image %d out of range, showing %d", w.Requested, w.Clamped)
}

// Params configures a new session
type Params struct {
	// Dataset is required and must hold at least one pair
	Dataset *dataset.Source

	// Catalog defaults to layers.Default()
	Catalog *layers.Catalog

	// Generators defaults to generators seeded with 0
	Generators *randstate.Generators

	// Renderer receives every displayed or edited frame; nil discards them
	Renderer Renderer

	// Logger defaults to a no-op logger
	Logger *zap.Logger

	// Now stamps the session id; zero means time.Now()
	Now time.Time
}

// Session is the mutable state of one labeling run
type Session struct {
	id       string
	data     *dataset.Source
	catalog  *layers.Catalog
	gens     *randstate.Generators
	renderer Renderer
	base     *zap.Logger
	log      *zap.Logger

	cursor      int
	masks       map[int]*models.Bitmap
	checkpoints map[int]randstate.Checkpoint
	current     randstate.Checkpoint

	mode    models.MouseMode
	pending []models.Point
}

// New creates a session at cursor 0 with no masks or checkpoints yet.
// Call Display to show the first image.
func New(p Params) (*Session, error) {
	if p.Dataset == nil || p.Dataset.Len() == 0 {
		return nil, errors.New("session needs a non-empty dataset")
	}
	if p.Catalog == nil {
		p.Catalog = layers.Default()
	}
	if p.Generators == nil {
		p.Generators = randstate.New(0)
	}
	if p.Renderer == nil {
		p.Renderer = Discard
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}

	s := &Session{
		id:          p.Now.Format(IDLayout),
		data:        p.Dataset,
		catalog:     p.Catalog,
		gens:        p.Generators,
		renderer:    p.Renderer,
		base:        p.Logger,
		masks:       make(map[int]*models.Bitmap),
		checkpoints: make(map[int]randstate.Checkpoint),
		mode:        models.ModeOff,
	}
	s.log = s.base.With(zap.String("session", s.id))
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// DefaultFilename is the suggested file name for the session artifact
func (s *Session) DefaultFilename() string { return s.id + ".session" }

// Len returns N, the number of images
func (s *Session) Len() int { return s.data.Len() }

// Cursor returns the index of the current image
func (s *Session) Cursor() int { return s.cursor }

// Catalog returns the layer catalog
func (s *Session) Catalog() *layers.Catalog { return s.catalog }

// Generators returns the generators whose state is checkpointed per image
func (s *Session) Generators() *randstate.Generators { return s.gens }

// Title is the caption shown above the current image
func (s *Session) Title() string {
	return fmt.Sprintf("Sequence number: %d/%d", s.cursor, s.data.Len()-1)
}

// Mask returns a copy of the mask for idx, if one was created
func (s *Session) Mask(idx int) (*models.Bitmap, bool) {
	m, ok := s.masks[idx]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// MaskCount returns how many images have a mask
func (s *Session) MaskCount() int { return len(s.masks) }

// Checkpoint returns the generator state captured at idx's first display
func (s *Session) Checkpoint(idx int) (randstate.Checkpoint, bool) {
	cp, ok := s.checkpoints[idx]
	return cp.Clone(), ok
}

func (s *Session) clamp(idx int) int {
	n := s.data.Len()
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// Display shows the current image. See DisplayAt.
func (s *Session) Display() (models.ImagePair, *models.Bitmap, error) {
	return s.DisplayAt(s.cursor)
}

// DisplayAt moves the cursor to idx (clamped to [0, N-1]) and shows that image.
//
// The first display of an index creates its all-1s mask and records the
// current generator state as its checkpoint. Later displays restore that
// checkpoint, discarding any generator advancement since. The returned mask
// is a copy.
func (s *Session) DisplayAt(idx int) (models.ImagePair, *models.Bitmap, error) {
	s.cursor = s.clamp(idx)
	pair, mask, err := s.visit()
	if err != nil {
		return models.ImagePair{}, nil, err
	}
	s.render(pair, mask, RefreshAll)
	return pair, mask.Clone(), nil
}

// visit performs the lazy per-index initialization for the cursor
func (s *Session) visit() (models.ImagePair, *models.Bitmap, error) {
	pair, err := s.data.Get(s.cursor)
	if err != nil {
		return models.ImagePair{}, nil, err
	}

	if cp, ok := s.checkpoints[s.cursor]; ok {
		if err := s.gens.Restore(cp); err != nil {
			return models.ImagePair{}, nil, fmt.Errorf("restoring checkpoint %d: %w", s.cursor, err)
		}
		s.current = cp
	} else {
		cp, err := s.gens.Capture()
		if err != nil {
			return models.ImagePair{}, nil, err
		}
		s.checkpoints[s.cursor] = cp
		s.current = cp
	}

	mask, ok := s.masks[s.cursor]
	if !ok {
		rows, cols := pair.Shape()
		mask = models.NewMask(rows, cols)
		s.masks[s.cursor] = mask
		s.log.Debug("created mask", zap.Int("index", s.cursor), zap.Int("rows", rows), zap.Int("cols", cols))
	}
	return pair, mask, nil
}

// Next advances to the following image, rolling over from N-1 to 0
func (s *Session) Next() (int, error) {
	s.cursor = (s.cursor + 1) % s.data.Len()
	s.log.Debug("next", zap.Int("index", s.cursor))
	if _, _, err := s.Display(); err != nil {
		return s.cursor, err
	}
	return s.cursor, nil
}

// Prev steps back to the previous image, rolling over from 0 to N-1.
// Nothing is redisplayed when the index does not change (N == 1).
func (s *Session) Prev() (int, error) {
	n := s.data.Len()
	prev := (s.cursor - 1 + n) % n
	if prev == s.cursor {
		return s.cursor, nil
	}
	s.cursor = prev
	s.log.Debug("prev", zap.Int("index", s.cursor))
	if _, _, err := s.Display(); err != nil {
		return s.cursor, err
	}
	return s.cursor, nil
}

// GoTo jumps to idx. An index outside [0, N-1] is clamped and reported with
// an *OutOfRangeWarning; the cursor still moves and the image is displayed.
func (s *Session) GoTo(idx int) (int, error) {
	clamped := s.clamp(idx)
	s.cursor = clamped
	if _, _, err := s.Display(); err != nil {
		return s.cursor, err
	}
	if clamped != idx {
		s.log.Warn("index out of range", zap.Int("requested", idx), zap.Int("clamped", clamped))
		return s.cursor, &OutOfRangeWarning{Requested: idx, Clamped: clamped}
	}
	return s.cursor, nil
}

// Restore replaces the whole session state with a saved record: dataset
// contents, masks, checkpoints, cursor and id. The record is validated first
// and nothing changes if it is rejected. The restored current image is then
// displayed.
func (s *Session) Restore(r persistence.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = r.Clone()

	if !r.Current.IsZero() {
		if err := s.gens.Restore(r.Current); err != nil {
			return fmt.Errorf("%w: %v", persistence.ErrCorruptSession, err)
		}
	}
	if err := s.data.Replace(r.Pairs); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrSchemaMismatch, err)
	}

	s.id = r.SessionID
	s.masks = r.Masks
	s.checkpoints = r.Checkpoints
	s.current = r.Current
	s.cursor = r.Cursor
	s.pending = nil
	s.log = s.base.With(zap.String("session", s.id))

	s.log.Info("session restored",
		zap.Int("images", s.data.Len()),
		zap.Int("masks", len(s.masks)),
		zap.Int("cursor", s.cursor))
	_, _, err := s.Display()
	return err
}

// Snapshot captures the full session state as a record that shares no
// memory with the live session
func (s *Session) Snapshot() persistence.Record {
	r := persistence.Record{
		SessionID:   s.id,
		Pairs:       s.data.Pairs(),
		Masks:       s.masks,
		Checkpoints: s.checkpoints,
		Current:     s.current,
		Cursor:      s.cursor,
	}
	return r.Clone()
}

// SaveFile writes the session artifact to path
func (s *Session) SaveFile(path string, level int) error {
	if err := persistence.SaveFile(path, s.Snapshot(), level); err != nil {
		return err
	}
	s.log.Info("state saved", zap.String("path", path), zap.Int("masks", len(s.masks)))
	return nil
}

// LoadFile reads a session artifact and restores it. On error the session is unchanged.
func (s *Session) LoadFile(path string, opts ...codec.DecodeOption) error {
	r, err := persistence.LoadFile(path, opts...)
	if err != nil {
		return err
	}
	if err := s.Restore(r); err != nil {
		return err
	}
	s.log.Info("state loaded", zap.String("path", path))
	return nil
}
