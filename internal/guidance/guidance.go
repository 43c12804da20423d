// Package guidance runs the ambient audio-guidance loop: it samples how
// text-like the center of the view is and feeds the level to an audible
// sink so a user can aim the camera before scanning.
package guidance

import (
	"log/slog"
	"sync"
	"time"
)

// Meter measures text density for the current frame, 0 to 1.
type Meter interface {
	TextDensity() (float64, error)
}

// Sink receives each density sample, e.g. to modulate a ticking tone.
type Sink interface {
	Guide(density float64)
}

// Poller samples the meter on a fixed period while enabled.
type Poller struct {
	meter    Meter
	sink     Sink
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPoller creates a guidance poller. It starts stopped.
func NewPoller(meter Meter, sink Sink, interval time.Duration) *Poller {
	return &Poller{meter: meter, sink: sink, interval: interval}
}

// Start begins polling. Idempotent; a running poller is left alone.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		return
	}
	stop := make(chan struct{})
	p.stopCh = stop

	p.wg.Add(1)
	go p.run(stop)
}

// Stop halts polling and waits for the loop to exit. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	stop := p.stopCh
	p.stopCh = nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	p.wg.Wait()
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCh != nil
}

func (p *Poller) run(stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			density, err := p.meter.TextDensity()
			if err != nil {
				slog.Debug("density sample failed", "error", err)
				continue
			}
			p.sink.Guide(density)
		}
	}
}
