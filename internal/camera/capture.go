package camera

import (
	"os"

	"github.com/sightlens/platform/internal/apperr"
)

// backend implements platform-specific raw still capture. It reports
// CodeCameraUnavailable when the capture tool or device is missing, so
// callers can tell a dead camera from a transiently failed frame.
type backend interface {
	captureRaw() ([]byte, error)
	cleanup()
}

// localSource wraps an exec-based capture backend.
type localSource struct {
	backend
	tempDir string
}

func newLocal(b backend, tempDir string) *localSource {
	return &localSource{backend: b, tempDir: tempDir}
}

// Capture grabs one still from the device camera.
func (s *localSource) Capture() ([]byte, error) {
	data, err := s.captureRaw()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.CodeCaptureFailed, "camera capture produced no frame")
	}
	return data, nil
}

// Close cleans up the backend and its temp directory.
func (s *localSource) Close() {
	s.cleanup()
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}
