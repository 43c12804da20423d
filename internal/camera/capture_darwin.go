//go:build darwin

package camera

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sightlens/platform/internal/apperr"
)

type darwinBackend struct{ tempDir string }

func (d *darwinBackend) captureRaw() ([]byte, error) {
	if _, err := exec.LookPath("imagesnap"); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCameraUnavailable, "imagesnap not installed")
	}
	tmpFile := filepath.Join(d.tempDir, "frame.jpg")
	// -w gives the sensor time to adjust exposure before the still.
	cmd := exec.Command("imagesnap", "-q", "-w", "0.5", tmpFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Error("imagesnap failed", "error", err, "stderr", stderr.String())
		return nil, apperr.Wrap(err, apperr.CodeCameraUnavailable, "camera device unavailable")
	}
	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCaptureFailed, "read captured frame")
	}
	os.Remove(tmpFile)
	return data, nil
}

func (d *darwinBackend) cleanup() {}

// NewLocal creates a platform-specific camera source.
func NewLocal() Source {
	tmpDir, err := os.MkdirTemp("", "sightlens-camera-*")
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		tmpDir = os.TempDir()
	}
	return newLocal(&darwinBackend{tempDir: tmpDir}, tmpDir)
}
