//go:build windows

package camera

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sightlens/platform/internal/apperr"
)

type windowsBackend struct{ tempDir string }

func (w *windowsBackend) captureRaw() ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCameraUnavailable, "ffmpeg not installed")
	}
	tmpFile := filepath.Join(w.tempDir, "frame.jpg")
	cmd := exec.Command("ffmpeg", "-y", "-f", "dshow", "-i", "video=Integrated Camera",
		"-frames:v", "1", tmpFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Error("camera capture failed", "error", err, "stderr", stderr.String())
		return nil, apperr.Wrap(err, apperr.CodeCameraUnavailable, "camera device unavailable")
	}
	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCaptureFailed, "read captured frame")
	}
	os.Remove(tmpFile)
	return data, nil
}

func (w *windowsBackend) cleanup() {}

// NewLocal creates a platform-specific camera source.
func NewLocal() Source {
	tmpDir, err := os.MkdirTemp("", "sightlens-camera-*")
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		tmpDir = os.TempDir()
	}
	return newLocal(&windowsBackend{tempDir: tmpDir}, tmpDir)
}
