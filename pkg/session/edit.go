package session

import (
	"fmt"

	"go.uber.org/zap"

	"imglabeler/internal/models"
)

// ClickOutcome says what a click did
type ClickOutcome int

const (
	// ClickIgnored means the click changed nothing: mouse mode is off or a
	// single-pixel toggle landed outside the image
	ClickIgnored ClickOutcome = iota
	// ClickPending means the first corner of a region was recorded
	ClickPending
	// ClickApplied means a pixel or region was edited
	ClickApplied
)

func (o ClickOutcome) String() string {
	switch o {
	case ClickIgnored:
		return "ignored"
	case ClickPending:
		return "pending"
	case ClickApplied:
		return "applied"
	}
	return fmt.Sprintf("ClickOutcome(%d)", int(o))
}

// MouseMode returns the current mouse mode
func (s *Session) MouseMode() models.MouseMode { return s.mode }

// PendingClicks returns the corners collected for an unfinished region edit
func (s *Session) PendingClicks() []models.Point {
	return append([]models.Point(nil), s.pending...)
}

// SetMouseMode switches the mouse mode. Any transition, including to the same
// mode, abandons a half-collected region.
func (s *Session) SetMouseMode(mode models.MouseMode) error {
	switch mode {
	case models.ModeOff, models.ModeLabel, models.ModeLabelRange, models.ModeMask:
	default:
		return fmt.Errorf("unknown mouse mode %d", int(mode))
	}
	if len(s.pending) > 0 {
		s.log.Debug("discarding pending region", zap.Int("clicks", len(s.pending)))
	}
	s.mode = mode
	s.pending = nil
	s.log.Debug("mouse mode", zap.Stringer("mode", mode))
	return nil
}

// ClickAt handles a click at array coordinates (x, y) on the current image.
//
// Label mode toggles one mask pixel; clicks outside the image are ignored.
// LabelRange and Mask modes collect two corners, clamp each to [0, size-1]
// per axis and block-toggle the inclusive rectangle between them on the label
// or the mask respectively: an all-0 region becomes all 1, anything else
// becomes all 0.
func (s *Session) ClickAt(x, y int) (ClickOutcome, error) {
	if s.mode == models.ModeOff {
		return ClickIgnored, nil
	}

	mask, ok := s.masks[s.cursor]
	if !ok {
		return ClickIgnored, ErrNotDisplayed
	}
	pair, err := s.data.Get(s.cursor)
	if err != nil {
		return ClickIgnored, err
	}

	if s.mode == models.ModeLabel {
		if !mask.Toggle(x, y) {
			return ClickIgnored, nil
		}
		s.log.Debug("toggled pixel", zap.Int("index", s.cursor), zap.Int("x", x), zap.Int("y", y))
		s.render(pair, mask, Refresh{Mask: true})
		return ClickApplied, nil
	}

	s.pending = append(s.pending, models.Point{X: x, Y: y})
	if len(s.pending) < 2 {
		return ClickPending, nil
	}

	rows, cols := pair.Shape()
	rect := models.NewRect(s.pending[0], s.pending[1], rows, cols)
	s.pending = nil

	target, refresh := mask, Refresh{Mask: true}
	if s.mode == models.ModeLabelRange {
		target, refresh = pair.Label, Refresh{Label: true}
	}
	v, err := target.BlockToggle(rect)
	if err != nil {
		return ClickIgnored, err
	}
	s.log.Debug("toggled region",
		zap.Stringer("mode", s.mode),
		zap.Int("index", s.cursor),
		zap.Int("x0", rect.X0), zap.Int("x1", rect.X1),
		zap.Int("y0", rect.Y0), zap.Int("y1", rect.Y1),
		zap.Uint8("value", v))
	s.render(pair, mask, refresh)
	return ClickApplied, nil
}
