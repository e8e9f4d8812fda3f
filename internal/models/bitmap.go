package models

import (
	"bytes"
	"fmt"
)

// Bitmap is an owned 2D array of {0,1} values stored row-major.
// The first axis is x and the second is y, so At(x, y) reads row x, column y.
type Bitmap struct {
	rows int
	cols int
	bits []byte
}

// NewBitmap allocates a rows×cols bitmap with every cell set to fill
func NewBitmap(rows, cols int, fill byte) *Bitmap {
	b := &Bitmap{rows: rows, cols: cols, bits: make([]byte, rows*cols)}
	if fill != 0 {
		b.Fill(1)
	}
	return b
}

// NewMask returns the initial all-1s (fully visible) mask for a label shape
func NewMask(rows, cols int) *Bitmap {
	return NewBitmap(rows, cols, 1)
}

// CheckShape reports whether n cells fill a rows×cols array. The product is
// never formed, so dimensions read from a file cannot overflow it.
func CheckShape(rows, cols, n int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("invalid shape %dx%d", rows, cols)
	}
	if n%cols != 0 || n/cols != rows {
		return fmt.Errorf("shape %dx%d does not match %d cells", rows, cols, n)
	}
	return nil
}

// BitmapFromBytes copies bits into a new bitmap, rejecting values other than 0 and 1
func BitmapFromBytes(rows, cols int, bits []byte) (*Bitmap, error) {
	if err := CheckShape(rows, cols, len(bits)); err != nil {
		return nil, fmt.Errorf("bitmap: %w", err)
	}
	for i, v := range bits {
		if v > 1 {
			return nil, fmt.Errorf("bitmap cell %d holds %d, want 0 or 1", i, v)
		}
	}
	return &Bitmap{rows: rows, cols: cols, bits: bytes.Clone(bits)}, nil
}

// Rows is the extent of the x axis
func (b *Bitmap) Rows() int { return b.rows }

// Cols is the extent of the y axis
func (b *Bitmap) Cols() int { return b.cols }

// Bytes returns a copy of the row-major cells
func (b *Bitmap) Bytes() []byte { return bytes.Clone(b.bits) }

// Contains reports whether (x, y) addresses a cell
func (b *Bitmap) Contains(x, y int) bool {
	return x >= 0 && x < b.rows && y >= 0 && y < b.cols
}

// At returns the cell at (x, y); ok is false when the coordinate is outside the bitmap
func (b *Bitmap) At(x, y int) (v byte, ok bool) {
	if !b.Contains(x, y) {
		return 0, false
	}
	return b.bits[x*b.cols+y], true
}

// Set writes v (0 or 1) at (x, y)
func (b *Bitmap) Set(x, y int, v byte) error {
	if !b.Contains(x, y) {
		return fmt.Errorf("cell (%d, %d) outside %dx%d bitmap", x, y, b.rows, b.cols)
	}
	if v > 1 {
		return fmt.Errorf("bitmap value %d, want 0 or 1", v)
	}
	b.bits[x*b.cols+y] = v
	return nil
}

// Toggle flips the cell at (x, y) and reports whether the coordinate was in bounds
func (b *Bitmap) Toggle(x, y int) bool {
	if !b.Contains(x, y) {
		return false
	}
	b.bits[x*b.cols+y] ^= 1
	return true
}

// Fill sets every cell to v
func (b *Bitmap) Fill(v byte) {
	for i := range b.bits {
		b.bits[i] = v & 1
	}
}

// ContainsRect reports whether r is well formed and lies inside the bitmap
func (b *Bitmap) ContainsRect(r Rect) bool {
	return r.X0 <= r.X1 && r.Y0 <= r.Y1 && b.Contains(r.X0, r.Y0) && b.Contains(r.X1, r.Y1)
}

// AllEqual reports whether every cell inside r holds v.
// It is false for a rectangle outside the bitmap.
func (b *Bitmap) AllEqual(r Rect, v byte) bool {
	if !b.ContainsRect(r) {
		return false
	}
	for x := r.X0; x <= r.X1; x++ {
		row := b.bits[x*b.cols : (x+1)*b.cols]
		for y := r.Y0; y <= r.Y1; y++ {
			if row[y] != v {
				return false
			}
		}
	}
	return true
}

// FillRect sets every cell inside r to v
func (b *Bitmap) FillRect(r Rect, v byte) error {
	if !b.ContainsRect(r) {
		return fmt.Errorf("rect %+v outside %dx%d bitmap", r, b.rows, b.cols)
	}
	for x := r.X0; x <= r.X1; x++ {
		row := b.bits[x*b.cols : (x+1)*b.cols]
		for y := r.Y0; y <= r.Y1; y++ {
			row[y] = v & 1
		}
	}
	return nil
}

// BlockToggle sets the whole rectangle to 1 if it is entirely 0, otherwise to 0.
// It returns the value written; a rectangle outside the bitmap is an error
// and leaves it unchanged.
func (b *Bitmap) BlockToggle(r Rect) (byte, error) {
	var v byte
	if b.AllEqual(r, 0) {
		v = 1
	}
	if err := b.FillRect(r, v); err != nil {
		return 0, err
	}
	return v, nil
}

// Count returns how many cells are set to 1
func (b *Bitmap) Count() int {
	n := 0
	for _, v := range b.bits {
		n += int(v)
	}
	return n
}

// Clone returns an independent copy
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{rows: b.rows, cols: b.cols, bits: bytes.Clone(b.bits)}
}

// Equal reports whether both bitmaps have the same shape and contents
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.rows == o.rows && b.cols == o.cols && bytes.Equal(b.bits, o.bits)
}
