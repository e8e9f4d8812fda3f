package session

import (
	"go.uber.org/zap"

	"imglabeler/internal/models"
	"imglabeler/pkg/layers"
)

// Refresh marks which layers of a frame changed
type Refresh struct {
	Image bool
	Label bool
	Mask  bool
}

// RefreshAll redraws every layer
var RefreshAll = Refresh{Image: true, Label: true, Mask: true}

// Frame is what the renderer receives. Label and Mask are copies; Image is
// shared with the dataset and must not be modified.
type Frame struct {
	Index   int
	Len     int
	Title   string
	Pair    models.ImagePair
	Mask    *models.Bitmap
	Catalog *layers.Catalog
	Refresh Refresh
}

// Renderer draws frames. Errors are logged by the session and never abort
// navigation or editing.
type Renderer interface {
	Render(Frame) error
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(Frame) error

// Render calls f
func (f RendererFunc) Render(fr Frame) error { return f(fr) }

// Discard drops every frame
var Discard Renderer = RendererFunc(func(Frame) error { return nil })

func (s *Session) render(pair models.ImagePair, mask *models.Bitmap, r Refresh) {
	fr := Frame{
		Index:   s.cursor,
		Len:     s.data.Len(),
		Title:   s.Title(),
		Pair:    models.ImagePair{Image: pair.Image, Label: pair.Label.Clone()},
		Mask:    mask.Clone(),
		Catalog: s.catalog,
		Refresh: r,
	}
	if err := s.renderer.Render(fr); err != nil {
		s.log.Warn("render failed", zap.Int("index", s.cursor), zap.Error(err))
	}
}
