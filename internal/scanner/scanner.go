// Package scanner drives the read-aloud pipeline: it watches camera
// motion, decides when a frame is worth recognizing, filters the result
// through the classifier and the fuzzy comparator, and hands genuinely
// new text to speech.
package scanner

import (
	"bytes"
	"context"
	"image"
	"sync"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/sightlens/platform/internal/apperr"
	"github.com/sightlens/platform/internal/classify"
	"github.com/sightlens/platform/internal/config"
	"github.com/sightlens/platform/internal/textmatch"
	"github.com/sightlens/platform/internal/trace"
)

// Frames is the camera surface the scanner polls.
type Frames interface {
	Frame() ([]byte, error)
	MotionScore() (float64, error)
	ResetMotion()
}

// Recognizer performs OCR on an encoded frame.
type Recognizer interface {
	RecognizeText(ctx context.Context, imageData []byte) (string, float64, error)
}

// Analyzer serves the blocking description flows.
type Analyzer interface {
	AnalyzeScene(ctx context.Context, imageData []byte) (string, error)
	ReadHandwriting(ctx context.Context, imageData []byte) (string, error)
}

// Speaker is the speech surface the scanner talks through.
type Speaker interface {
	Speak(ctx context.Context, text string)
	Stop()
	IsSpeaking() bool
}

// Recorder receives every spoken announcement, e.g. for a history log.
type Recorder interface {
	Record(text string)
}

// Config tunes the scan loop.
type Config struct {
	ScanInterval       time.Duration
	MotionStable       float64 // below: target has settled, scan
	MotionReset        float64 // above: target in transit, wait
	SimilarityIdle     float64
	SimilaritySpeaking float64
	MaxFrameDistance   int // pHash Hamming distance under which a frame is "the same"
	SwipeFraction      float64
	SwipeMaxUnits      float64
}

// DefaultConfig returns the calibrated production tuning.
func DefaultConfig() Config {
	return Config{
		ScanInterval:       DefaultScanInterval,
		MotionStable:       DefaultMotionStable,
		MotionReset:        DefaultMotionReset,
		SimilarityIdle:     DefaultSimilarityIdle,
		SimilaritySpeaking: DefaultSimilaritySpeaking,
		MaxFrameDistance:   DefaultMaxFrameDistance,
		SwipeFraction:      DefaultSwipeFraction,
		SwipeMaxUnits:      DefaultSwipeMaxUnits,
	}
}

// ConfigFrom maps the service configuration onto scanner tuning.
func ConfigFrom(c *config.Config) Config {
	return Config{
		ScanInterval:       time.Duration(c.ScanIntervalMS) * time.Millisecond,
		MotionStable:       c.MotionStable,
		MotionReset:        c.MotionReset,
		SimilarityIdle:     c.SimilarityIdle,
		SimilaritySpeaking: c.SimilaritySpeaking,
		MaxFrameDistance:   c.MaxFrameDistance,
		SwipeFraction:      c.SwipeFraction,
		SwipeMaxUnits:      c.SwipeMaxUnits,
	}
}

// Scanner owns the mode state machine and all scan-session state.
type Scanner struct {
	cfg        Config
	frames     Frames
	recognizer Recognizer
	analyzer   Analyzer
	speaker    Speaker
	classifier *classify.Classifier
	recorder   Recorder // optional

	mu         sync.Mutex
	mode       Mode
	epoch      uint64 // bumped on every session change; stale async results check it
	inFlight   bool   // at most one recognition attempt at a time
	lastSpoken string
	lastHash   *goimagehash.ImageHash
	stopCh     chan struct{} // closes when the current scan session ends

	wg     sync.WaitGroup
	events chan Event
}

// New creates a scanner in Paused mode.
func New(cfg Config, frames Frames, rec Recognizer, an Analyzer, sp Speaker, cl *classify.Classifier) *Scanner {
	return &Scanner{
		cfg:        cfg,
		frames:     frames,
		recognizer: rec,
		analyzer:   an,
		speaker:    sp,
		classifier: cl,
		events:     make(chan Event, eventBuffer),
	}
}

// SetRecorder attaches an announcement recorder. Call before starting.
func (s *Scanner) SetRecorder(r Recorder) { s.recorder = r }

// Events returns the UI event stream. Events are dropped, never
// blocked on, when the consumer falls behind.
func (s *Scanner) Events() <-chan Event { return s.events }

// Mode returns the current mode.
func (s *Scanner) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// LastSpoken returns the deduplication anchor, the most recently spoken text.
func (s *Scanner) LastSpoken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSpoken
}

// StartScanning begins a scan session: Paused -> Scanning. The spoken
// anchor, frame hash and motion history are cleared so the new session
// starts fresh. No-op outside Paused.
func (s *Scanner) StartScanning() {
	s.mu.Lock()
	if s.mode != ModePaused {
		s.mu.Unlock()
		return
	}
	s.mode = ModeScanning
	s.epoch++
	epoch := s.epoch
	s.lastSpoken = ""
	s.lastHash = nil
	s.inFlight = false
	stop := make(chan struct{})
	s.stopCh = stop
	s.mu.Unlock()

	s.frames.ResetMotion()
	s.emit(Event{Type: EventMode, Mode: ModeScanning.String(), Text: StatusScanning})

	s.wg.Add(1)
	go s.pollLoop(epoch, stop)
}

// StopScanning ends the scan session: Scanning -> Paused. haltSpeech
// additionally cuts off any utterance in progress ("stop" command);
// a plain gesture release lets the current caption finish.
func (s *Scanner) StopScanning(haltSpeech bool) {
	s.mu.Lock()
	if s.mode != ModeScanning {
		s.mu.Unlock()
		if haltSpeech {
			s.speaker.Stop()
		}
		return
	}
	s.endSessionLocked()
	s.mode = ModePaused
	s.mu.Unlock()

	if haltSpeech {
		s.speaker.Stop()
	}
	s.emit(Event{Type: EventMode, Mode: ModePaused.String(), Text: StatusDefault})
}

// ReleaseGesture handles the hold gesture ending. An upward swipe past
// the distance threshold requests handwriting analysis; anything
// shorter just stops the session.
func (s *Scanner) ReleaseGesture(ctx context.Context, swipeUp, viewportHeight float64) {
	threshold := s.cfg.SwipeFraction * viewportHeight
	if threshold > s.cfg.SwipeMaxUnits {
		threshold = s.cfg.SwipeMaxUnits
	}
	if swipeUp >= threshold {
		s.ReadHandwriting(ctx)
		return
	}
	s.StopScanning(false)
}

// CancelGesture handles pointer cancel/leave: the session stops, speech
// is left alone.
func (s *Scanner) CancelGesture() {
	s.StopScanning(false)
}

// DescribeScene runs the blocking scene-description flow.
func (s *Scanner) DescribeScene(ctx context.Context) {
	s.analyze(ctx, s.analyzer.AnalyzeScene, SpokenSceneFail)
}

// ReadHandwriting runs the blocking handwriting flow.
func (s *Scanner) ReadHandwriting(ctx context.Context) {
	s.analyze(ctx, s.analyzer.ReadHandwriting, SpokenWritingFail)
}

// Close tears down any running session and waits for workers to drain.
func (s *Scanner) Close() {
	s.StopScanning(true)
	s.wg.Wait()
}

// Wait blocks until background workers finish. Test hook.
func (s *Scanner) Wait() { s.wg.Wait() }

// pollLoop is the Scanning-mode motion poll. It runs until the session
// ends and never outlives its epoch.
func (s *Scanner) pollLoop(epoch uint64, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.pollOnce(epoch)
		}
	}
}

func (s *Scanner) pollOnce(epoch uint64) {
	score, err := s.frames.MotionScore()
	if err != nil {
		if apperr.IsCode(err, apperr.CodeCameraUnavailable) {
			// Hardware failure is terminal for the session.
			s.StopScanning(false)
			s.emit(Event{Type: EventStatus, Text: StatusCameraDown})
			return
		}
		// Transient: remote frames may simply not have arrived yet.
		return
	}

	switch {
	case score >= s.cfg.MotionReset:
		// Target in transit, wait for it to settle.
		return
	case score >= s.cfg.MotionStable:
		// Not settled enough yet, neither reset nor trigger.
		return
	}

	s.mu.Lock()
	if s.mode != ModeScanning || s.epoch != epoch || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.scanOnce(epoch)
}

// scanOnce performs one capture+recognition attempt. Failures abandon
// the attempt silently; the user re-triggers by re-holding.
func (s *Scanner) scanOnce(epoch uint64) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if s.epoch == epoch {
			s.inFlight = false
		}
		s.mu.Unlock()
	}()

	ctx := context.Background()
	log := trace.Logger(ctx)

	frame, err := s.frames.Frame()
	if err != nil {
		log.Debug("scan capture failed", "error", err)
		return
	}
	if s.sameAsLastFrame(frame, epoch) {
		return
	}

	text, confidence, err := s.recognizer.RecognizeText(ctx, frame)
	if err != nil {
		log.Debug("recognition failed", "error", err)
		return
	}
	s.applyResult(ctx, epoch, text, confidence)
}

// sameAsLastFrame compares the frame's perceptual hash to the previous
// scanned frame so a static scene does not burn recognition calls.
func (s *Scanner) sameAsLastFrame(frame []byte, epoch uint64) bool {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return false
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return true // stale attempt, skip the recognizer entirely
	}
	if s.lastHash != nil {
		if dist, err := s.lastHash.Distance(hash); err == nil && dist <= s.cfg.MaxFrameDistance {
			return true
		}
	}
	s.lastHash = hash
	return false
}

// applyResult applies a recognition result if the session is still the
// one that issued it.
func (s *Scanner) applyResult(ctx context.Context, epoch uint64, text string, confidence float64) {
	s.mu.Lock()
	if s.mode != ModeScanning || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	last := s.lastSpoken
	s.mu.Unlock()

	if !s.classifier.Meaningful(text, confidence) {
		// Keep an in-progress spoken caption on screen; only refresh
		// the hint when nothing is being said.
		if !s.speaker.IsSpeaking() {
			s.emit(Event{Type: EventStatus, Text: StatusScanning})
		}
		return
	}

	threshold := s.cfg.SimilarityIdle
	if s.speaker.IsSpeaking() {
		threshold = s.cfg.SimilaritySpeaking
	}
	if textmatch.Similar(text, last, threshold) {
		s.emit(Event{Type: EventStatus, Text: text})
		return
	}

	s.mu.Lock()
	if s.mode != ModeScanning || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.lastSpoken = text
	s.mu.Unlock()

	trace.Logger(ctx).Info("speaking recognized text", "chars", len(text), "confidence", confidence)
	s.emit(Event{Type: EventHaptic})
	s.emit(Event{Type: EventFlash})
	s.emit(Event{Type: EventSpoken, Text: text})
	if s.recorder != nil {
		s.recorder.Record(text)
	}
	s.speaker.Speak(ctx, text)
}

// analyze runs a blocking remote flow: any -> Analyzing -> Paused.
// Analyzing is never entered without guaranteeing the return to Paused.
func (s *Scanner) analyze(ctx context.Context, fn func(context.Context, []byte) (string, error), failPhrase string) {
	s.mu.Lock()
	if s.mode == ModeAnalyzing {
		s.mu.Unlock()
		return
	}
	if s.mode == ModeScanning {
		s.endSessionLocked()
	}
	s.mode = ModeAnalyzing
	s.epoch++
	s.mu.Unlock()

	s.speaker.Stop()
	s.emit(Event{Type: EventMode, Mode: ModeAnalyzing.String(), Text: StatusAnalyzing})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.mode = ModePaused
			s.mu.Unlock()
			s.emit(Event{Type: EventMode, Mode: ModePaused.String(), Text: StatusDefault})
		}()

		frame, err := s.frames.Frame()
		if err != nil {
			trace.Logger(ctx).Warn("analysis capture failed", "error", err)
			s.speaker.Speak(ctx, SpokenCaptureFail)
			return
		}

		result, err := fn(ctx, frame)
		if err != nil || result == "" {
			trace.Logger(ctx).Warn("analysis failed", "error", err)
			s.speaker.Speak(ctx, failPhrase)
			return
		}

		if s.recorder != nil {
			s.recorder.Record(result)
		}
		s.emit(Event{Type: EventSpoken, Text: result})
		s.speaker.Speak(ctx, result)
	}()
}

// endSessionLocked invalidates the running scan session. Caller holds mu.
func (s *Scanner) endSessionLocked() {
	s.epoch++
	s.inFlight = false
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *Scanner) emit(e Event) {
	select {
	case s.events <- e:
	default:
		// Consumer is behind; UI events are advisory, drop.
	}
}
