//go:build linux

package camera

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sightlens/platform/internal/apperr"
)

type linuxBackend struct{ tempDir string }

func (l *linuxBackend) captureRaw() ([]byte, error) {
	tmpFile := filepath.Join(l.tempDir, "frame.jpg")
	// Try fswebcam first, fall back to libcamera-jpeg (Raspberry Pi)
	var cmd *exec.Cmd
	if _, err := exec.LookPath("fswebcam"); err == nil {
		cmd = exec.Command("fswebcam", "--no-banner", "--jpeg", "90", tmpFile)
	} else if _, err := exec.LookPath("libcamera-jpeg"); err == nil {
		cmd = exec.Command("libcamera-jpeg", "-n", "-t", "1", "-o", tmpFile)
	} else {
		return nil, apperr.New(apperr.CodeCameraUnavailable,
			"no camera tool found (install fswebcam or libcamera-apps)")
	}
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

func (l *linuxBackend) cleanup() {}

// NewLocal creates a platform-specific camera source.
func NewLocal() Source {
	tmpDir, err := os.MkdirTemp("", "sightlens-camera-*")
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		tmpDir = os.TempDir()
	}
	return newLocal(&linuxBackend{tempDir: tmpDir}, tmpDir)
}
