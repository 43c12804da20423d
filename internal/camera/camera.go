// Package camera provides still-frame sources for the reading pipeline and
// the motion/density view over them.
package camera

import (
	"bytes"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder

	"github.com/sightlens/platform/internal/apperr"
	"github.com/sightlens/platform/internal/motion"
)

// Source supplies encoded still frames.
type Source interface {
	// Capture returns the current frame as encoded image bytes.
	Capture() ([]byte, error)
	Close()
}

// Camera pairs a frame source with the motion/density estimator.
type Camera struct {
	src Source
	est *motion.Estimator
}

// New creates a camera over the given source.
func New(src Source) *Camera {
	return &Camera{src: src, est: motion.New()}
}

// Frame returns the current encoded frame.
func (c *Camera) Frame() ([]byte, error) {
	return c.src.Capture()
}

// MotionScore samples the current frame against the previous sample.
// Returns 1.0 on the first call of a session.
func (c *Camera) MotionScore() (float64, error) {
	img, err := c.decodeCurrent()
	if err != nil {
		return 0, err
	}
	return c.est.MotionScore(img), nil
}

// TextDensity estimates how text-like the center of the current frame is.
func (c *Camera) TextDensity() (float64, error) {
	img, err := c.decodeCurrent()
	if err != nil {
		return 0, err
	}
	return c.est.TextDensity(img), nil
}

// ResetMotion drops the previous-frame sample, e.g. when a new scanning
// session starts and old motion history would be misleading.
func (c *Camera) ResetMotion() {
	c.est.Reset()
}

// Close releases the underlying source.
func (c *Camera) Close() {
	c.src.Close()
}

func (c *Camera) decodeCurrent() (image.Image, error) {
	data, err := c.src.Capture()
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCaptureFailed, "undecodable frame")
	}
	return img, nil
}
