// Package testutil builds small synthetic datasets for tests.
package testutil

import (
	"gonum.org/v1/gonum/mat"

	"imglabeler/internal/models"
)

// Pairs returns n image pairs of the given shape. Image values encode their
// pair index and position; label cells are set on the diagonal.
func Pairs(n, rows, cols int) []models.ImagePair {
	pairs := make([]models.ImagePair, n)
	for i := range pairs {
		img := mat.NewDense(rows, cols, nil)
		label := models.NewBitmap(rows, cols, 0)
		for x := 0; x < rows; x++ {
			for y := 0; y < cols; y++ {
				img.Set(x, y, float64(i*1000+x*cols+y)/10)
				if x == y {
					_ = label.Set(x, y, 1)
				}
			}
		}
		pairs[i] = models.ImagePair{Image: img, Label: label}
	}
	return pairs
}
