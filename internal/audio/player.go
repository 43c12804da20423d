// Package audio handles local audio output: spoken audio playback,
// acknowledgment pulses, and guidance ticks.
package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/sightlens/platform/internal/apperr"
	"github.com/sightlens/platform/internal/syncx"
)

const framesPerBuffer = 1024

// Player plays float32 sample buffers on the default output device.
// At most one buffer plays at a time; a new Play interrupts the old one.
type Player struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	playing bool
	wg      sync.WaitGroup
	gain    *syncx.RWGuard[float64]
}

// NewPlayer initializes portaudio and creates a player.
func NewPlayer() (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeAudioOutputFailed, "portaudio init")
	}
	return &Player{gain: syncx.NewGuard(1.0)}, nil
}

// SetGain sets the output gain, clamped to [0,1].
func (p *Player) SetGain(g float64) {
	if g < 0 {
		g = 0
	}
	if g > 1 {
		g = 1
	}
	p.gain.Set(g)
}

// Play starts asynchronous playback of samples at the given rate,
// interrupting any buffer already playing.
func (p *Player) Play(samples []float32, sampleRate float64) {
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.cancel = cancel
	p.playing = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()
		}()
		if err := p.stream(ctx, samples, sampleRate); err != nil {
			slog.Debug("playback ended", "error", err)
		}
	}()
}

// Pulse plays a short tone if nothing else is playing. Used for haptic
// acknowledgment on devices without a vibration motor; spoken output
// already signals activity, so a pulse never interrupts it.
func (p *Player) Pulse(freq float64, dur time.Duration, sampleRate float64) {
	if p.Playing() {
		return
	}
	p.Play(Tone(freq, dur, sampleRate), sampleRate)
}

// Stop interrupts the current playback, if any, and waits for the
// output stream to release.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Playing reports whether a buffer is currently being played.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close stops playback and terminates portaudio.
func (p *Player) Close() {
	p.Stop()
	if err := portaudio.Terminate(); err != nil {
		slog.Warn("portaudio terminate failed", "error", err)
	}
}

func (p *Player) stream(ctx context.Context, samples []float32, sampleRate float64) error {
	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, sampleRate, len(buf), &buf)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeAudioOutputFailed, "open output stream")
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return apperr.Wrap(err, apperr.CodeAudioOutputFailed, "start output stream")
	}
	defer stream.Stop()

	for off := 0; off < len(samples); off += framesPerBuffer {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		gain := float32(p.gain.Get())
		n := copy(buf, samples[off:])
		for i := range buf {
			if i < n {
				buf[i] *= gain
			} else {
				buf[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return apperr.Wrap(err, apperr.CodeAudioOutputFailed, "write output stream")
		}
	}
	return nil
}
