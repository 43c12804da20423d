package scanner

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/sightlens/platform/internal/apperr"
	"github.com/sightlens/platform/internal/classify"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ScanInterval = 5 * time.Millisecond
	cfg.MaxFrameDistance = -1 // frame-skip off unless a test wants it
	return cfg
}

func testClassifier() *classify.Classifier {
	return classify.New(classify.DefaultConfig())
}

type mockFrames struct {
	mu        sync.Mutex
	frame     []byte
	err       error
	motion    float64
	motionErr error
	resets    int
}

func (m *mockFrames) Frame() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame, m.err
}

func (m *mockFrames) MotionScore() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.motion, m.motionErr
}

func (m *mockFrames) ResetMotion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

func (m *mockFrames) set(frame []byte, motion float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = frame
	m.motion = motion
}

type mockRecognizer struct {
	mu      sync.Mutex
	text    string
	conf    float64
	err     error
	calls   int
	blockCh chan struct{} // non-nil: calls block until closed
}

func (m *mockRecognizer) RecognizeText(ctx context.Context, img []byte) (string, float64, error) {
	m.mu.Lock()
	m.calls++
	block := m.blockCh
	text, conf, err := m.text, m.conf, m.err
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	return text, conf, err
}

func (m *mockRecognizer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockAnalyzer struct {
	mu          sync.Mutex
	scene       string
	handwriting string
	err         error
	sceneCalls  int
	blockCh     chan struct{}
}

func (m *mockAnalyzer) AnalyzeScene(ctx context.Context, img []byte) (string, error) {
	m.mu.Lock()
	m.sceneCalls++
	block := m.blockCh
	out, err := m.scene, m.err
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	return out, err
}

func (m *mockAnalyzer) ReadHandwriting(ctx context.Context, img []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handwriting, m.err
}

type mockSpeaker struct {
	mu       sync.Mutex
	spoken   []string
	stops    int
	speaking bool
}

func (m *mockSpeaker) Speak(ctx context.Context, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, text)
}

func (m *mockSpeaker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *mockSpeaker) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

func (m *mockSpeaker) spokenTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.spoken))
	copy(out, m.spoken)
	return out
}

type mockRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (m *mockRecorder) Record(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
}

func newTestScanner(cfg Config) (*Scanner, *mockFrames, *mockRecognizer, *mockAnalyzer, *mockSpeaker) {
	frames := &mockFrames{frame: []byte("frame"), motion: 0.01}
	rec := &mockRecognizer{}
	an := &mockAnalyzer{}
	sp := &mockSpeaker{}
	return New(cfg, frames, rec, an, sp, testClassifier()), frames, rec, an, sp
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func drainEvents(s *Scanner) map[EventType][]Event {
	out := map[EventType][]Event{}
	for {
		select {
		case e := <-s.Events():
			out[e.Type] = append(out[e.Type], e)
		default:
			return out
		}
	}
}

func TestStartScanningEntersScanningAndResetsMotion(t *testing.T) {
	s, frames, _, _, _ := newTestScanner(testConfig())
	defer s.Close()

	s.StartScanning()
	if s.Mode() != ModeScanning {
		t.Fatalf("mode = %v, want scanning", s.Mode())
	}
	frames.mu.Lock()
	resets := frames.resets
	frames.mu.Unlock()
	if resets != 1 {
		t.Errorf("motion resets = %d, want 1", resets)
	}

	events := drainEvents(s)
	if len(events[EventMode]) != 1 || events[EventMode][0].Mode != "scanning" {
		t.Errorf("mode events = %+v", events[EventMode])
	}
}

func TestStartScanningOnlyFromPaused(t *testing.T) {
	s, frames, _, _, _ := newTestScanner(testConfig())
	defer s.Close()

	s.StartScanning()
	s.StartScanning()

	frames.mu.Lock()
	resets := frames.resets
	frames.mu.Unlock()
	if resets != 1 {
		t.Errorf("second StartScanning should be a no-op, resets = %d", resets)
	}
}

func TestScanSpeaksMeaningfulText(t *testing.T) {
	s, _, rec, _, sp := newTestScanner(testConfig())
	defer s.Close()

	rec.mu.Lock()
	rec.text, rec.conf = "EXIT on the left", 90
	rec.mu.Unlock()

	reco := &mockRecorder{}
	s.SetRecorder(reco)
	s.StartScanning()

	waitFor(t, 2*time.Second, func() bool { return len(sp.spokenTexts()) > 0 }, "text never spoken")

	if got := sp.spokenTexts()[0]; got != "EXIT on the left" {
		t.Errorf("spoke %q", got)
	}
	if s.LastSpoken() != "EXIT on the left" {
		t.Errorf("LastSpoken = %q", s.LastSpoken())
	}

	events := drainEvents(s)
	if len(events[EventHaptic]) == 0 || len(events[EventFlash]) == 0 || len(events[EventSpoken]) == 0 {
		t.Errorf("missing announcement events: %+v", events)
	}

	reco.mu.Lock()
	recorded := len(reco.texts)
	reco.mu.Unlock()
	if recorded != 1 {
		t.Errorf("recorded = %d announcements, want 1", recorded)
	}
}

func TestDuplicateTextSpokenOnce(t *testing.T) {
	s, _, rec, _, sp := newTestScanner(testConfig())
	defer s.Close()

	rec.mu.Lock()
	rec.text, rec.conf = "Push the door", 90
	rec.mu.Unlock()

	s.StartScanning()
	waitFor(t, 2*time.Second, func() bool { return rec.callCount() >= 3 }, "recognizer not polled")

	if spoken := sp.spokenTexts(); len(spoken) != 1 {
		t.Errorf("spoke %d times, want 1: %v", len(spoken), spoken)
	}
}

func TestCameraUnavailableStopsSession(t *testing.T) {
	s, frames, rec, _, _ := newTestScanner(testConfig())
	defer s.Close()

	frames.mu.Lock()
	frames.motionErr = apperr.New(apperr.CodeCameraUnavailable, "no camera tool found")
	frames.mu.Unlock()

	s.StartScanning()

	var sawCameraDown bool
	waitFor(t, 2*time.Second, func() bool {
		for evts := drainEvents(s); len(evts) > 0; evts = drainEvents(s) {
			for _, e := range evts[EventStatus] {
				if e.Text == StatusCameraDown {
					sawCameraDown = true
				}
			}
		}
		return sawCameraDown && s.Mode() == ModePaused
	}, "dead camera never surfaced as a persistent status")

	if rec.callCount() != 0 {
		t.Errorf("recognizer called %d times with no camera", rec.callCount())
	}

	// No retries: the loop is gone, nothing keeps sampling.
	time.Sleep(50 * time.Millisecond)
	if s.Mode() != ModePaused {
		t.Errorf("mode = %v, want to stay paused", s.Mode())
	}
}

func TestTransientCaptureErrorKeepsPolling(t *testing.T) {
	s, frames, _, _, _ := newTestScanner(testConfig())
	defer s.Close()

	// A remote source reports CAPTURE_FAILED until the first frame
	// arrives; that must not tear the session down.
	frames.mu.Lock()
	frames.motionErr = apperr.New(apperr.CodeCaptureFailed, "no frame received yet")
	frames.mu.Unlock()

	s.StartScanning()
	time.Sleep(50 * time.Millisecond)

	if s.Mode() != ModeScanning {
		t.Errorf("mode = %v, want still scanning through transient errors", s.Mode())
	}
	if evts := drainEvents(s); len(evts[EventStatus]) != 0 {
		t.Errorf("transient error emitted status events: %+v", evts[EventStatus])
	}
}

func TestMidZoneMotionNeitherTriggersNorResets(t *testing.T) {
	s, frames, rec, _, _ := newTestScanner(testConfig())
	defer s.Close()

	// Between stable (0.05) and reset (0.15): not settled, no scan.
	frames.set([]byte("frame"), 0.10)
	s.StartScanning()
	time.Sleep(50 * time.Millisecond)

	if rec.callCount() != 0 {
		t.Errorf("recognizer called %d times in the settling zone", rec.callCount())
	}
	if s.Mode() != ModeScanning {
		t.Errorf("mode = %v, want still scanning", s.Mode())
	}
}

func TestHighMotionBlocksScanning(t *testing.T) {
	s, frames, rec, _, _ := newTestScanner(testConfig())
	defer s.Close()

	frames.set([]byte("frame"), 0.5)
	s.StartScanning()
	time.Sleep(50 * time.Millisecond)

	if rec.callCount() != 0 {
		t.Errorf("recognizer called %d times during motion", rec.callCount())
	}
}

func TestSingleScanInFlight(t *testing.T) {
	s, _, rec, _, _ := newTestScanner(testConfig())
	defer s.Close()

	block := make(chan struct{})
	rec.mu.Lock()
	rec.blockCh = block
	rec.text, rec.conf = "EXIT", 90
	rec.mu.Unlock()

	s.StartScanning()
	waitFor(t, 2*time.Second, func() bool { return rec.callCount() == 1 }, "first scan never started")
	time.Sleep(50 * time.Millisecond) // many poll ticks pass while blocked

	if rec.callCount() != 1 {
		t.Errorf("recognizer called %d times while one was in flight", rec.callCount())
	}
	close(block)
}

func TestStaleResultAfterStopIsDropped(t *testing.T) {
	s, _, rec, _, sp := newTestScanner(testConfig())
	defer s.Close()

	block := make(chan struct{})
	rec.mu.Lock()
	rec.blockCh = block
	rec.text, rec.conf = "STALE TEXT", 90
	rec.mu.Unlock()

	s.StartScanning()
	waitFor(t, 2*time.Second, func() bool { return rec.callCount() == 1 }, "scan never started")

	s.StopScanning(false)
	close(block)
	s.Wait()

	if s.LastSpoken() != "" {
		t.Errorf("stale result mutated LastSpoken: %q", s.LastSpoken())
	}
	if spoken := sp.spokenTexts(); len(spoken) != 0 {
		t.Errorf("stale result was spoken: %v", spoken)
	}
}

func TestStopScanningHaltsSpeech(t *testing.T) {
	s, _, _, _, sp := newTestScanner(testConfig())
	defer s.Close()

	s.StartScanning()
	s.StopScanning(true)

	sp.mu.Lock()
	stops := sp.stops
	sp.mu.Unlock()
	if stops == 0 {
		t.Error("StopScanning(true) must halt ongoing speech")
	}
	if s.Mode() != ModePaused {
		t.Errorf("mode = %v, want paused", s.Mode())
	}
}

func encodeJPEG(t *testing.T, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIdenticalFramesSkipRecognition(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFrameDistance = DefaultMaxFrameDistance
	s, frames, rec, _, _ := newTestScanner(cfg)
	defer s.Close()

	frames.set(encodeJPEG(t, color.RGBA{R: 120, G: 120, B: 120, A: 255}), 0.01)
	rec.mu.Lock()
	rec.text, rec.conf = "", 0
	rec.mu.Unlock()

	s.StartScanning()
	waitFor(t, 2*time.Second, func() bool { return rec.callCount() == 1 }, "first frame never recognized")
	time.Sleep(100 * time.Millisecond)

	if rec.callCount() != 1 {
		t.Errorf("static frame recognized %d times, want 1", rec.callCount())
	}
}

func TestRecognitionFailureAbandonedSilently(t *testing.T) {
	s, _, rec, _, sp := newTestScanner(testConfig())
	defer s.Close()

	rec.mu.Lock()
	rec.err = errors.New("model fell over")
	rec.mu.Unlock()

	s.StartScanning()
	waitFor(t, 2*time.Second, func() bool { return rec.callCount() >= 2 }, "scan loop stalled after failure")

	if spoken := sp.spokenTexts(); len(spoken) != 0 {
		t.Errorf("failure should be silent, spoke %v", spoken)
	}
	if s.Mode() != ModeScanning {
		t.Errorf("mode = %v, want still scanning", s.Mode())
	}
}

func TestReleaseGestureShortSwipeStops(t *testing.T) {
	s, _, _, an, _ := newTestScanner(testConfig())
	defer s.Close()

	s.StartScanning()
	s.ReleaseGesture(context.Background(), 30, 400) // threshold 60

	if s.Mode() != ModePaused {
		t.Errorf("mode = %v, want paused", s.Mode())
	}
	an.mu.Lock()
	calls := an.sceneCalls
	an.mu.Unlock()
	if calls != 0 {
		t.Error("short swipe must not trigger analysis")
	}
}

func TestReleaseGestureLongSwipeReadsHandwriting(t *testing.T) {
	s, _, _, an, sp := newTestScanner(testConfig())
	defer s.Close()

	an.mu.Lock()
	an.handwriting = "Dear diary"
	an.mu.Unlock()

	s.StartScanning()
	// Viewport 2000 caps the threshold at 150 units.
	s.ReleaseGesture(context.Background(), 160, 2000)
	s.Wait()

	spoken := sp.spokenTexts()
	if len(spoken) == 0 || spoken[len(spoken)-1] != "Dear diary" {
		t.Errorf("spoken = %v, want handwriting result", spoken)
	}
	if s.Mode() != ModePaused {
		t.Errorf("mode = %v, want paused after analysis", s.Mode())
	}
}

func TestSwipeBelowCapUsesFraction(t *testing.T) {
	s, _, _, an, _ := newTestScanner(testConfig())
	defer s.Close()

	an.mu.Lock()
	an.handwriting = "note"
	an.mu.Unlock()

	s.StartScanning()
	s.ReleaseGesture(context.Background(), 70, 400) // threshold 60, swipe passes
	s.Wait()

	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()
	if mode != ModePaused {
		t.Errorf("mode = %v, want paused", mode)
	}
}

func TestAnalyzeFailureReturnsToPaused(t *testing.T) {
	s, _, _, an, sp := newTestScanner(testConfig())
	defer s.Close()

	an.mu.Lock()
	an.err = errors.New("remote exploded")
	an.mu.Unlock()

	s.DescribeScene(context.Background())
	s.Wait()

	if s.Mode() != ModePaused {
		t.Errorf("mode = %v, analysis must always return to paused", s.Mode())
	}
	spoken := sp.spokenTexts()
	if len(spoken) != 1 || spoken[0] != SpokenSceneFail {
		t.Errorf("spoken = %v, want failure phrase", spoken)
	}
}

func TestAnalyzeCaptureFailure(t *testing.T) {
	s, frames, _, _, sp := newTestScanner(testConfig())
	defer s.Close()

	frames.mu.Lock()
	frames.err = errors.New("no frame")
	frames.mu.Unlock()

	s.DescribeScene(context.Background())
	s.Wait()

	spoken := sp.spokenTexts()
	if len(spoken) != 1 || spoken[0] != SpokenCaptureFail {
		t.Errorf("spoken = %v, want %q", spoken, SpokenCaptureFail)
	}
	if s.Mode() != ModePaused {
		t.Errorf("mode = %v, want paused", s.Mode())
	}
}

func TestDescribeSceneSpeaksResult(t *testing.T) {
	s, _, _, an, sp := newTestScanner(testConfig())
	defer s.Close()

	an.mu.Lock()
	an.scene = "A hallway with an exit sign"
	an.mu.Unlock()

	s.DescribeScene(context.Background())
	s.Wait()

	spoken := sp.spokenTexts()
	if len(spoken) != 1 || spoken[0] != "A hallway with an exit sign" {
		t.Errorf("spoken = %v", spoken)
	}
}

func TestAnalyzingGatesSecondAnalysis(t *testing.T) {
	s, _, _, an, _ := newTestScanner(testConfig())
	defer s.Close()

	block := make(chan struct{})
	an.mu.Lock()
	an.blockCh = block
	an.scene = "slow"
	an.mu.Unlock()

	s.DescribeScene(context.Background())
	waitFor(t, 2*time.Second, func() bool {
		an.mu.Lock()
		defer an.mu.Unlock()
		return an.sceneCalls == 1
	}, "first analysis never started")

	s.DescribeScene(context.Background()) // must be rejected by the mode gate
	close(block)
	s.Wait()

	an.mu.Lock()
	calls := an.sceneCalls
	an.mu.Unlock()
	if calls != 1 {
		t.Errorf("scene calls = %d, want the second attempt gated", calls)
	}
}

func TestAnalyzeFromScanningStopsSession(t *testing.T) {
	s, _, rec, an, _ := newTestScanner(testConfig())
	defer s.Close()

	an.mu.Lock()
	an.scene = "scene"
	an.mu.Unlock()

	s.StartScanning()
	s.DescribeScene(context.Background())
	s.Wait()

	calls := rec.callCount()
	time.Sleep(50 * time.Millisecond)
	if rec.callCount() != calls {
		t.Error("scan poll still running after analysis took over")
	}
	if s.Mode() != ModePaused {
		t.Errorf("mode = %v, want paused", s.Mode())
	}
}

func TestMeaninglessTextDoesNotAnchor(t *testing.T) {
	s, _, rec, _, sp := newTestScanner(testConfig())
	defer s.Close()

	rec.mu.Lock()
	rec.text, rec.conf = "||--__", 95
	rec.mu.Unlock()

	s.StartScanning()
	waitFor(t, 2*time.Second, func() bool { return rec.callCount() >= 2 }, "scan loop stalled")

	if s.LastSpoken() != "" {
		t.Errorf("LastSpoken = %q, meaningless text must not anchor", s.LastSpoken())
	}
	if spoken := sp.spokenTexts(); len(spoken) != 0 {
		t.Errorf("spoke meaningless text: %v", spoken)
	}
}

func TestLooserThresholdWhileSpeaking(t *testing.T) {
	s, _, rec, _, sp := newTestScanner(testConfig())
	defer s.Close()

	// "Exit left" vs "Exit sign" sits at similarity 0.5: a duplicate
	// under the speaking threshold (0.4), new text when idle (0.7).
	rec.mu.Lock()
	rec.text, rec.conf = "Exit left", 90
	rec.mu.Unlock()

	s.StartScanning()
	waitFor(t, 2*time.Second, func() bool { return len(sp.spokenTexts()) == 1 }, "first text never spoken")

	sp.mu.Lock()
	sp.speaking = true
	sp.mu.Unlock()
	rec.mu.Lock()
	rec.text = "Exit sign"
	rec.mu.Unlock()

	before := rec.callCount()
	waitFor(t, 2*time.Second, func() bool { return rec.callCount() >= before+2 }, "scan loop stalled")
	if spoken := sp.spokenTexts(); len(spoken) != 1 {
		t.Fatalf("spoke %d times, want no interruption while speaking: %v", len(spoken), spoken)
	}

	// Once speech finishes, the same text is different enough to announce.
	sp.mu.Lock()
	sp.speaking = false
	sp.mu.Unlock()
	waitFor(t, 2*time.Second, func() bool { return len(sp.spokenTexts()) == 2 }, "new text never spoken once idle")

	if got := sp.spokenTexts()[1]; got != "Exit sign" {
		t.Errorf("second announcement = %q", got)
	}
}
