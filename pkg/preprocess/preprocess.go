// Package preprocess holds the transforms applied to an image after it is
// retrieved for display
package preprocess

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"imglabeler/pkg/randstate"
)

// LevelSpan is how many standard deviations above the mean the display range extends
const LevelSpan = 6.0

// DisplayLevels returns the intensity window used to render an image:
// from the mean to the mean plus LevelSpan standard deviations
func DisplayLevels(img *mat.Dense) (lo, hi float64) {
	rows, cols := img.Dims()
	values := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		values = append(values, img.RawRowView(i)...)
	}
	mean := stat.Mean(values, nil)
	std := stat.PopStdDev(values, nil)
	return mean, mean + LevelSpan*std
}

// Jitter returns a perturbed copy of img: a gain drawn from the general
// generator scales the image and per-pixel Gaussian noise with standard
// deviation sigma is drawn from the array generator. With sigma <= 0 the
// image is copied unchanged and no numbers are drawn.
func Jitter(img *mat.Dense, sigma float64, gens *randstate.Generators) *mat.Dense {
	out := mat.DenseCopyOf(img)
	if sigma <= 0 {
		return out
	}

	gain := 1 + sigma*(2*gens.General().Float64()-1)
	out.Scale(gain, out)

	noise := gens.Array()
	out.Apply(func(_, _ int, v float64) float64 {
		return v + sigma*noise.NormFloat64()
	}, out)
	return out
}
