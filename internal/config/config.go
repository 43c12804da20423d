// Package config handles platform configuration
package config

import (
	"os"
	"strconv"
)

type Config struct {
	HTTPAddr string

	// Inference service (OCR, vision, speech) endpoint.
	InferenceURL string
	InferenceKey string
	OCRModel     string
	VisionModel  string
	STTModel     string
	TTSModel     string
	TTSVoice     string

	// Camera frame source: "local" (exec capture) or "remote" (pushed frames).
	CameraSource string

	// Scan loop tuning.
	ScanIntervalMS     int
	GuidanceIntervalMS int
	MotionStable       float64 // below: target has settled, scan
	MotionReset        float64 // above: target in transit, wait
	SimilarityIdle     float64 // dedup threshold when not speaking
	SimilaritySpeaking float64 // looser threshold while speaking
	MaxFrameDistance   int     // pHash distance under which a frame is "the same"

	// Gesture tuning.
	SwipeFraction float64 // fraction of viewport height for an upward swipe
	SwipeMaxUnits float64 // cap on the swipe distance threshold

	// Speech defaults.
	SpeechRate   float64
	SpeechPitch  float64
	SpeechVolume float64
	SampleRate   int

	GuidanceEnabled bool
}

func Load() *Config {
	return &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8000"),
		InferenceURL:       getEnv("INFERENCE_URL", "http://localhost:8080/v1"),
		InferenceKey:       getEnv("INFERENCE_KEY", ""),
		OCRModel:           getEnv("OCR_MODEL", "gpt-4o-mini"),
		VisionModel:        getEnv("VISION_MODEL", "gpt-4o"),
		STTModel:           getEnv("STT_MODEL", "whisper-1"),
		TTSModel:           getEnv("TTS_MODEL", "tts-1"),
		TTSVoice:           getEnv("TTS_VOICE", "alloy"),
		CameraSource:       getEnv("CAMERA_SOURCE", "remote"),
		ScanIntervalMS:     getEnvInt("SCAN_INTERVAL_MS", 200),
		GuidanceIntervalMS: getEnvInt("GUIDANCE_INTERVAL_MS", 150),
		MotionStable:       getEnvFloat("MOTION_STABLE", 0.05),
		MotionReset:        getEnvFloat("MOTION_RESET", 0.15),
		SimilarityIdle:     getEnvFloat("SIMILARITY_IDLE", 0.7),
		SimilaritySpeaking: getEnvFloat("SIMILARITY_SPEAKING", 0.4),
		MaxFrameDistance:   getEnvInt("MAX_FRAME_DISTANCE", 10),
		SwipeFraction:      getEnvFloat("SWIPE_FRACTION", 0.15),
		SwipeMaxUnits:      getEnvFloat("SWIPE_MAX_UNITS", 150),
		SpeechRate:         getEnvFloat("SPEECH_RATE", 1.0),
		SpeechPitch:        getEnvFloat("SPEECH_PITCH", 1.0),
		SpeechVolume:       getEnvFloat("SPEECH_VOLUME", 1.0),
		SampleRate:         getEnvInt("SAMPLE_RATE", 24000),
		GuidanceEnabled:    getEnvBool("GUIDANCE_ENABLED", false),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
