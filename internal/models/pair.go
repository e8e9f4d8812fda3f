package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ImagePair is one dataset entry: a diffraction image and its ground-truth label
type ImagePair struct {
	// Image holds the detector intensities. It is never modified after load.
	Image *mat.Dense

	// Label is the ground-truth peak annotation, same shape as Image.
	// Only a LabelRange block toggle may change it.
	Label *Bitmap
}

// NewImagePair pairs an image with its label after checking their shapes agree
func NewImagePair(img *mat.Dense, label *Bitmap) (ImagePair, error) {
	if img == nil || label == nil {
		return ImagePair{}, fmt.Errorf("image and label are required")
	}
	rows, cols := img.Dims()
	if rows != label.Rows() || cols != label.Cols() {
		return ImagePair{}, fmt.Errorf("image shape %dx%d does not match label shape %dx%d",
			rows, cols, label.Rows(), label.Cols())
	}
	return ImagePair{Image: img, Label: label}, nil
}

// Shape returns the (x, y) extent shared by the image and its label
func (p ImagePair) Shape() (rows, cols int) {
	return p.Label.Rows(), p.Label.Cols()
}

// Clone deep-copies both arrays
func (p ImagePair) Clone() ImagePair {
	img := mat.DenseCopyOf(p.Image)
	return ImagePair{Image: img, Label: p.Label.Clone()}
}

// MouseMode selects what a click on the image does
type MouseMode int

const (
	// ModeOff ignores clicks entirely
	ModeOff MouseMode = iota
	// ModeLabel toggles a single mask pixel per click
	ModeLabel
	// ModeLabelRange block-toggles a rectangle of the label after two clicks
	ModeLabelRange
	// ModeMask block-toggles a rectangle of the mask after two clicks
	ModeMask
)

var modeNames = map[MouseMode]string{
	ModeOff:        "off",
	ModeLabel:      "label",
	ModeLabelRange: "label-range",
	ModeMask:       "mask",
}

func (m MouseMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MouseMode(%d)", int(m))
}

// ParseMouseMode maps a mode name back to its MouseMode
func ParseMouseMode(name string) (MouseMode, error) {
	for mode, n := range modeNames {
		if n == name {
			return mode, nil
		}
	}
	return ModeOff, fmt.Errorf("unknown mouse mode %q (must be off, label, label-range or mask)", name)
}

// Point is a click position already resolved to array coordinates
type Point struct {
	X, Y int
}

// Rect is an inclusive rectangle X0..X1 × Y0..Y1
type Rect struct {
	X0, X1 int
	Y0, Y1 int
}

// NewRect clamps both corners to [0, size-1] on each axis and sorts them
func NewRect(a, b Point, rows, cols int) Rect {
	x0, x1 := clamp(a.X, 0, rows-1), clamp(b.X, 0, rows-1)
	y0, y1 := clamp(a.Y, 0, cols-1), clamp(b.Y, 0, cols-1)
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return Rect{X0: x0, X1: x1, Y0: y0, Y1: y1}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
