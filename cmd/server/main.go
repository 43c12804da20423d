// Sightlens server - turns a camera feed into spoken text for blind and
// low-vision users.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sightlens/platform/internal/audio"
	"github.com/sightlens/platform/internal/camera"
	"github.com/sightlens/platform/internal/classify"
	"github.com/sightlens/platform/internal/command"
	"github.com/sightlens/platform/internal/config"
	"github.com/sightlens/platform/internal/guidance"
	"github.com/sightlens/platform/internal/inference"
	"github.com/sightlens/platform/internal/scanner"
	"github.com/sightlens/platform/internal/scanner/history"
	"github.com/sightlens/platform/internal/server"
	"github.com/sightlens/platform/internal/speech"
)

// audioGuide maps text density onto an audible tick: the denser the
// text under the camera, the higher the tone.
type audioGuide struct {
	player     *audio.Player
	sampleRate float64
}

func (g *audioGuide) Guide(density float64) {
	if density < 0.05 {
		return
	}
	freq := 300 + 900*density
	g.player.Pulse(freq, 40*time.Millisecond, g.sampleRate)
}

// toneNotifier acknowledges voice commands with a short beep.
type toneNotifier struct {
	player     *audio.Player
	sampleRate float64
}

func (n *toneNotifier) Acknowledge() {
	n.player.Pulse(1200, 60*time.Millisecond, n.sampleRate)
}

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()

	client := inference.New(cfg.InferenceURL, cfg.InferenceKey, inference.Models{
		OCR:    cfg.OCRModel,
		Vision: cfg.VisionModel,
		STT:    cfg.STTModel,
		TTS:    cfg.TTSModel,
		Voice:  cfg.TTSVoice,
	})

	// Warm up in the background; the first scan blocks on model load
	// anyway and startup should not.
	go func() {
		if err := client.Warmup(context.Background()); err != nil {
			slog.Error("inference warmup failed", "url", cfg.InferenceURL, "error", err)
			return
		}
		slog.Info("inference service ready", "url", cfg.InferenceURL)
	}()

	// Camera: a device-local capture command, or frames pushed over the
	// WebSocket by the client app.
	var (
		src       camera.Source
		frameSink server.FrameSink
	)
	if cfg.CameraSource == "local" {
		src = camera.NewLocal()
	} else {
		remote := camera.NewRemote()
		src = remote
		frameSink = remote
	}
	cam := camera.New(src)
	defer cam.Close()

	player, err := audio.NewPlayer()
	if err != nil {
		slog.Error("audio output unavailable", "error", err)
		os.Exit(1)
	}
	defer player.Close()

	engine := speech.NewEngine(client, player, speech.Config{
		Rate:   cfg.SpeechRate,
		Pitch:  cfg.SpeechPitch,
		Volume: cfg.SpeechVolume,
	})

	scan := scanner.New(scanner.ConfigFrom(cfg), cam, client, client, engine, classify.New(classify.DefaultConfig()))
	defer scan.Close()

	hist := history.NewStore(100)
	scan.SetRecorder(hist)

	sampleRate := float64(cfg.SampleRate)
	guide := guidance.NewPoller(cam,
		&audioGuide{player: player, sampleRate: sampleRate},
		time.Duration(cfg.GuidanceIntervalMS)*time.Millisecond)
	defer guide.Stop()
	if cfg.GuidanceEnabled {
		guide.Start()
	}

	dispatch := command.NewDispatcher(scan, engine, &toneNotifier{player: player, sampleRate: sampleRate})

	srv := server.New(scan, dispatch, frameSink, client, guide, hist)

	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srv.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("sightlens server starting", "http", cfg.HTTPAddr, "camera", cfg.CameraSource)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	engine.Stop()
	slog.Info("shutdown complete")
}
