// Package motion estimates camera stability and text likelihood from
// low-resolution luminance samples of captured frames.
package motion

import (
	"image"
	"image/draw"
	"sync"

	"github.com/nfnt/resize"
)

const (
	// Side of the square low-resolution sample.
	sampleSize = 64
	sampleArea = sampleSize * sampleSize

	// Maximum possible sum of per-channel differences. 765 is the
	// collapsed channels*255 product; the 0.05/0.15 stability thresholds
	// were tuned against this exact constant, so it must not be restated
	// as 3*255*4096.
	motionScoreScale = sampleArea * 765

	// Luminance step between horizontal neighbors that counts as an edge.
	edgeThreshold = 50

	// Edge count that saturates the density score.
	edgeScale = 800
)

// Estimator computes frame-to-frame motion and edge-density scores.
// It owns a single previous-frame sample slot: each MotionScore call
// compares against it and then replaces it.
type Estimator struct {
	mu   sync.Mutex
	prev []uint8 // RGB triples of the previous 64x64 sample, nil until first use
}

// New creates an estimator with no previous frame.
func New() *Estimator {
	return &Estimator{}
}

// MotionScore returns the normalized difference between img and the
// previous sample in [0,1]. The first call has nothing to compare
// against and returns 1.0, "definitely moving".
func (e *Estimator) MotionScore(img image.Image) float64 {
	cur := sampleRGB(img)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.prev == nil {
		e.prev = cur
		return 1.0
	}

	var sum int64
	for i := range cur {
		d := int64(cur[i]) - int64(e.prev[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	e.prev = cur

	return float64(sum) / float64(motionScoreScale)
}

// TextDensity returns a [0,1] score of high-contrast horizontal edges in
// the center 50%-by-50% crop of img, a cheap proxy for printed text.
func (e *Estimator) TextDensity(img image.Image) float64 {
	cur := sampleRGB(centerCrop(img))

	edges := 0
	for y := 0; y < sampleSize; y++ {
		row := y * sampleSize * 3
		for x := 0; x < sampleSize-1; x++ {
			i := row + x*3
			// Unweighted RGB sum approximates luminance well enough here.
			la := int(cur[i]) + int(cur[i+1]) + int(cur[i+2])
			lb := int(cur[i+3]) + int(cur[i+4]) + int(cur[i+5])
			d := la - lb
			if d < 0 {
				d = -d
			}
			if d > edgeThreshold {
				edges++
			}
		}
	}

	score := float64(edges) / edgeScale
	if score > 1 {
		score = 1
	}
	return score
}

// Reset drops the previous sample so the next MotionScore returns 1.0.
func (e *Estimator) Reset() {
	e.mu.Lock()
	e.prev = nil
	e.mu.Unlock()
}

// sampleRGB downsamples img to 64x64 and returns its pixels as RGB triples.
func sampleRGB(img image.Image) []uint8 {
	small := resize.Resize(sampleSize, sampleSize, img, resize.Bilinear)
	out := make([]uint8, sampleArea*3)
	b := small.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := small.At(x, y).RGBA()
			out[i] = uint8(r >> 8)
			out[i+1] = uint8(g >> 8)
			out[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
	return out
}

// centerCrop copies the middle 50%-by-50% region of img.
func centerCrop(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	crop := image.Rect(0, 0, w/2, h/2)
	dst := image.NewRGBA(crop)
	src := image.Pt(b.Min.X+w/4, b.Min.Y+h/4)
	draw.Draw(dst, crop, img, src, draw.Src)
	return dst
}
