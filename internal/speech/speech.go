// Package speech turns text into audible output and tracks whether the
// system is currently talking.
package speech

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sightlens/platform/internal/audio"
	"github.com/sightlens/platform/internal/syncx"
	"github.com/sightlens/platform/internal/trace"
)

// Rate, pitch and volume bounds. Adjustments clamp instead of failing.
const (
	MinRate   = 0.5
	MaxRate   = 2.0
	MinPitch  = 0.5
	MaxPitch  = 2.0
	MinVolume = 0.1
	MaxVolume = 1.0

	AdjustStep = 0.2
)

// Config holds the current speaking parameters.
type Config struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

// Clamp returns the config with every field forced into its valid range.
func (c Config) Clamp() Config {
	c.Rate = clamp(c.Rate, MinRate, MaxRate)
	c.Pitch = clamp(c.Pitch, MinPitch, MaxPitch)
	c.Volume = clamp(c.Volume, MinVolume, MaxVolume)
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Synthesizer produces WAV audio for text at a speaking rate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, rate float64) ([]byte, error)
}

// Output plays decoded samples. Satisfied by *audio.Player.
type Output interface {
	Play(samples []float32, sampleRate float64)
	Stop()
	Playing() bool
	SetGain(g float64)
}

// Engine serializes speech: a new utterance always interrupts the one
// in progress.
type Engine struct {
	synth Synthesizer
	out   Output
	cfg   *syncx.RWGuard[Config]

	mu   sync.Mutex
	gen  uint64 // current utterance; stale synth results are dropped
	wg   sync.WaitGroup
	busy atomic.Int32 // utterances being synthesized, before playback starts
}

// NewEngine creates a speech engine with the given initial config.
func NewEngine(synth Synthesizer, out Output, cfg Config) *Engine {
	cfg = cfg.Clamp()
	out.SetGain(cfg.Volume)
	return &Engine{synth: synth, out: out, cfg: syncx.NewGuard(cfg)}
}

// Config returns the current speaking parameters.
func (e *Engine) Config() Config {
	return e.cfg.Get()
}

// Speak synthesizes and plays text, interrupting any prior utterance.
// Synthesis runs asynchronously; failures are logged and swallowed so a
// bad utterance never wedges the scan loop.
func (e *Engine) Speak(ctx context.Context, text string) {
	if text == "" {
		return
	}

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	e.out.Stop()
	e.busy.Add(1)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.busy.Add(-1)

		cfg := e.cfg.Get()
		data, err := e.synth.Synthesize(ctx, text, cfg.Rate)
		if err != nil {
			trace.Logger(ctx).Warn("speech synthesis failed", "error", err)
			return
		}
		samples, rate, err := audio.DecodeWAV(data)
		if err != nil {
			trace.Logger(ctx).Warn("speech audio undecodable", "error", err)
			return
		}

		// Check-and-play under the lock so Stop cannot slip between
		// the staleness check and the start of playback.
		e.mu.Lock()
		defer e.mu.Unlock()
		if gen != e.gen {
			return
		}

		// Pitch is applied by scaling the playback rate. This also
		// scales duration, which the separate rate control compensates
		// for in practice.
		e.out.SetGain(cfg.Volume)
		e.out.Play(samples, float64(rate)*cfg.Pitch)
	}()
}

// Stop halts the current utterance and invalidates any synthesis in flight.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.out.Stop()
}

// IsSpeaking reports whether an utterance is being synthesized or played.
func (e *Engine) IsSpeaking() bool {
	return e.busy.Load() > 0 || e.out.Playing()
}

// AdjustVolume shifts the volume by delta and returns the new config.
func (e *Engine) AdjustVolume(delta float64) Config {
	cfg := e.cfg.Update(func(c *Config) {
		c.Volume = clamp(c.Volume+delta, MinVolume, MaxVolume)
	})
	e.out.SetGain(cfg.Volume)
	return cfg
}

// AdjustRate shifts the speaking rate by delta and returns the new config.
func (e *Engine) AdjustRate(delta float64) Config {
	return e.cfg.Update(func(c *Config) {
		c.Rate = clamp(c.Rate+delta, MinRate, MaxRate)
	})
}

// AdjustPitch shifts the pitch by delta and returns the new config.
func (e *Engine) AdjustPitch(delta float64) Config {
	return e.cfg.Update(func(c *Config) {
		c.Pitch = clamp(c.Pitch+delta, MinPitch, MaxPitch)
	})
}

// Wait blocks until in-flight synthesis goroutines finish. Test hook
// and shutdown aid.
func (e *Engine) Wait() {
	e.wg.Wait()
}
