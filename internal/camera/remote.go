package camera

import (
	"github.com/sightlens/platform/internal/apperr"
	"github.com/sightlens/platform/internal/syncx"
)

// Remote is a Source fed by frames a companion client pushes over the
// control connection. It holds only the latest frame; older frames are
// overwritten, never queued.
type Remote struct {
	frame *syncx.RWGuard[[]byte]
}

// NewRemote creates an empty remote source.
func NewRemote() *Remote {
	return &Remote{frame: syncx.NewGuard[[]byte](nil)}
}

// Push stores data as the latest frame. The slice is not copied; the
// caller must not reuse it.
func (r *Remote) Push(data []byte) {
	if len(data) == 0 {
		return
	}
	r.frame.Set(data)
}

// Capture returns the latest pushed frame.
func (r *Remote) Capture() ([]byte, error) {
	data := r.frame.Get()
	if data == nil {
		return nil, apperr.New(apperr.CodeCaptureFailed, "no frame received yet")
	}
	return data, nil
}

// Close drops the held frame.
func (r *Remote) Close() {
	r.frame.Set(nil)
}
