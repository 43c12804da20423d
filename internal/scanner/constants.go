package scanner

import "time"

// Status lines surfaced to the UI overlay.
const (
	StatusDefault     = "Hold to scan"
	StatusScanning    = "Scanning for text"
	StatusAnalyzing   = "Analyzing"
	StatusCameraDown  = "Camera unavailable"
	SpokenCaptureFail = "Capture failed"
	SpokenSceneFail   = "Could not describe the scene"
	SpokenWritingFail = "Could not read the handwriting"
)

// Defaults used when no configuration override is supplied.
const (
	DefaultScanInterval       = 200 * time.Millisecond
	DefaultMotionStable       = 0.05
	DefaultMotionReset        = 0.15
	DefaultSimilarityIdle     = 0.7
	DefaultSimilaritySpeaking = 0.4
	DefaultMaxFrameDistance   = 10
	DefaultSwipeFraction      = 0.15
	DefaultSwipeMaxUnits      = 150.0
)

const eventBuffer = 64
