// Package export writes masks and overlays as PNG files so a session can be
// reviewed outside the labeler.
package export

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"imglabeler/internal/models"
	"imglabeler/pkg/layers"
	"imglabeler/pkg/persistence"
	"imglabeler/pkg/preprocess"
	"imglabeler/pkg/session"
)

// OverlayAlpha is the opacity of label and mask overlays
const OverlayAlpha = 100

// MaskImage renders a mask as grayscale: 1 is white, 0 is black.
// Cell [x, y] becomes pixel (x, y).
func MaskImage(m *models.Bitmap) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Rows(), m.Cols()))
	for x := 0; x < m.Rows(); x++ {
		for y := 0; y < m.Cols(); y++ {
			if v, _ := m.At(x, y); v == 1 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// Overlay composes the image, scaled to its display levels, with the label
// drawn in the peak color and masked-out cells drawn in the active layer's color
func Overlay(pair models.ImagePair, mask *models.Bitmap, catalog *layers.Catalog) *image.RGBA {
	rows, cols := pair.Shape()
	out := image.NewRGBA(image.Rect(0, 0, rows, cols))
	lo, hi := preprocess.DisplayLevels(pair.Image)

	labelColor := catalog.ColorOf(layers.Peak)
	maskColor := catalog.ColorOf(catalog.ActiveID())

	for x := 0; x < rows; x++ {
		for y := 0; y < cols; y++ {
			g := level(pair.Image.At(x, y), lo, hi)
			px := color.RGBA{R: g, G: g, B: g, A: 0xff}
			if v, _ := pair.Label.At(x, y); v == 1 {
				px = blend(px, labelColor)
			}
			if mask != nil {
				if v, _ := mask.At(x, y); v == 0 {
					px = blend(px, maskColor)
				}
			}
			out.SetRGBA(x, y, px)
		}
	}
	return out
}

func level(v, lo, hi float64) uint8 {
	if hi <= lo {
		if v > lo {
			return 255
		}
		return 0
	}
	return uint8(math.Max(0, math.Min(255, (v-lo)/(hi-lo)*255)))
}

func blend(dst, src color.RGBA) color.RGBA {
	mix := func(d, s uint8) uint8 {
		return uint8((int(s)*OverlayAlpha + int(d)*(255-OverlayAlpha)) / 255)
	}
	return color.RGBA{R: mix(dst.R, src.R), G: mix(dst.G, src.G), B: mix(dst.B, src.B), A: 0xff}
}

// SavePNG writes img to filename
func SavePNG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// MaskFilename is the file name used for the mask of image idx
func MaskFilename(idx int) string {
	return fmt.Sprintf("mask_%05d.png", idx)
}

// All writes every mask in the record into outputDir and returns how many were written
func All(r persistence.Record, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}
	n := 0
	for idx := range r.Pairs {
		m, ok := r.Masks[idx]
		if !ok {
			continue
		}
		if err := SavePNG(MaskImage(m), filepath.Join(outputDir, MaskFilename(idx))); err != nil {
			return n, fmt.Errorf("mask %d: %w", idx, err)
		}
		n++
	}
	return n, nil
}

// Renderer writes an overlay PNG for each frame it receives
type Renderer struct {
	dir string
}

// NewRenderer creates outputDir and returns a renderer writing into it
func NewRenderer(outputDir string) (*Renderer, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	return &Renderer{dir: outputDir}, nil
}

// Render writes overlay_<idx>.png for the frame
func (r *Renderer) Render(f session.Frame) error {
	img := Overlay(f.Pair, f.Mask, f.Catalog)
	return SavePNG(img, filepath.Join(r.dir, fmt.Sprintf("overlay_%05d.png", f.Index)))
}

var _ session.Renderer = (*Renderer)(nil)
