package dataset

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"imglabeler/internal/models"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Import builds pairs from two directories of grayscale images. Every image in
// imageDir needs a label image with the same base name in labelDir. Files are
// ordered by the number embedded in their names.
//
// Pixel (x, y) of a file becomes array cell [x, y], so the x axis is the image
// width. Label pixels brighter than zero become 1.
func Import(imageDir, labelDir string) ([]models.ImagePair, error) {
	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no PNG or JPG images found in %s", imageDir)
	}

	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := extractNumber(names[i]), extractNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	labels, err := indexByStem(labelDir)
	if err != nil {
		return nil, err
	}

	pairs := make([]models.ImagePair, 0, len(names))
	for _, name := range names {
		img, err := loadImage(filepath.Join(imageDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		labelName, ok := labels[stem(name)]
		if !ok {
			return nil, fmt.Errorf("no label for image %s in %s", name, labelDir)
		}
		labelImg, err := loadImage(filepath.Join(labelDir, labelName))
		if err != nil {
			return nil, fmt.Errorf("failed to load label %s: %w", labelName, err)
		}

		pair, err := models.NewImagePair(imageToDense(img), imageToBitmap(labelImg))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func indexByStem(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if !e.IsDir() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			out[stem(e.Name())] = e.Name()
		}
	}
	return out, nil
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// extractNumber returns the digits of a file name as an int, or 0 when there are none
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

// imageToDense converts the red channel to intensities in [0, 1]
func imageToDense(img image.Image) *mat.Dense {
	b := img.Bounds()
	m := mat.NewDense(b.Dx(), b.Dy(), nil)
	for x := 0; x < b.Dx(); x++ {
		for y := 0; y < b.Dy(); y++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			m.Set(x, y, float64(r)/65535.0)
		}
	}
	return m
}

func imageToBitmap(img image.Image) *models.Bitmap {
	b := img.Bounds()
	bm := models.NewBitmap(b.Dx(), b.Dy(), 0)
	for x := 0; x < b.Dx(); x++ {
		for y := 0; y < b.Dy(); y++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if r > 0 {
				_ = bm.Set(x, y, 1)
			}
		}
	}
	return bm
}
