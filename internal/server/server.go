// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sightlens/platform/internal/command"
	"github.com/sightlens/platform/internal/guidance"
	"github.com/sightlens/platform/internal/scanner"
	"github.com/sightlens/platform/internal/scanner/history"
	"github.com/sightlens/platform/internal/trace"
)

// Message types.
type Message struct {
	Type string `json:"type"`
}

// FrameMessage carries one encoded camera frame from the device.
type FrameMessage struct {
	Type string `json:"type"`
	Data string `json:"data"` // base64 JPEG or PNG
}

// GestureMessage carries hold-gesture transitions.
type GestureMessage struct {
	Type     string  `json:"type"`
	Phase    string  `json:"phase"` // press, release, cancel
	SwipeUp  float64 `json:"swipe_up,omitempty"`
	Viewport float64 `json:"viewport,omitempty"`
	TraceID  string  `json:"trace_id,omitempty"`
}

// CommandMessage carries an already-transcribed command utterance.
type CommandMessage struct {
	Type      string `json:"type"`
	Utterance string `json:"utterance"`
	TraceID   string `json:"trace_id,omitempty"`
}

// VoiceMessage carries a recorded voice clip for transcription.
type VoiceMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64 WAV
}

type RateLimitedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// FrameSink receives pushed camera frames.
type FrameSink interface {
	Push(frame []byte)
}

// Transcriber converts a voice clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	scan       *scanner.Scanner
	dispatch   *command.Dispatcher
	frames     FrameSink   // nil when the camera is local
	stt        Transcriber // nil disables the voice endpoint
	guide      *guidance.Poller
	log        *history.Store
	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a new server and starts the event broadcaster.
func New(scan *scanner.Scanner, dispatch *command.Dispatcher, frames FrameSink, stt Transcriber, guide *guidance.Poller, log *history.Store) *Server {
	s := &Server{
		scan:       scan,
		dispatch:   dispatch,
		frames:     frames,
		stt:        stt,
		guide:      guide,
		log:        log,
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}

	go s.broadcastEvents()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/guidance/start", s.handleGuidanceStart)
	mux.HandleFunc("POST /api/guidance/stop", s.handleGuidanceStop)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, RateLimitedMessage{
				Type:    "error",
				Message: "rate limit exceeded",
			})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "frame":
			s.handleFrame(baseCtx, msg)
		case "gesture":
			s.handleGesture(baseCtx, msg)
		case "command":
			s.handleCommand(baseCtx, msg)
		case "voice":
			s.handleVoice(baseCtx, msg)
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, raw json.RawMessage) {
	if s.frames == nil {
		return
	}
	var msg FrameMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	data, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		trace.Logger(ctx).Debug("undecodable frame payload", "error", err)
		return
	}
	s.frames.Push(data)
}

func (s *Server) handleGesture(ctx context.Context, raw json.RawMessage) {
	var msg GestureMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	ctx = s.messageContext(ctx, msg.TraceID)
	ctx, span := trace.StartSpan(ctx, "gesture_"+msg.Phase)
	defer span.End()

	switch msg.Phase {
	case "press":
		s.scan.StartScanning()
	case "release":
		s.scan.ReleaseGesture(ctx, msg.SwipeUp, msg.Viewport)
	case "cancel":
		s.scan.CancelGesture()
	}
}

func (s *Server) handleCommand(ctx context.Context, raw json.RawMessage) {
	var msg CommandMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	ctx = s.messageContext(ctx, msg.TraceID)
	s.dispatch.HandleUtterance(ctx, msg.Utterance)
}

func (s *Server) handleVoice(ctx context.Context, raw json.RawMessage) {
	if s.stt == nil {
		return
	}
	var msg VoiceMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	audio, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		trace.Logger(ctx).Debug("undecodable voice payload", "error", err)
		return
	}

	// Transcription blocks on the remote service; keep the read loop free.
	go func() {
		ctx, span := trace.StartSpan(ctx, "voice_command")
		defer span.End()

		text, err := s.stt.Transcribe(ctx, audio)
		if err != nil {
			trace.Logger(ctx).Warn("voice transcription failed", "error", err)
			return
		}
		s.dispatch.HandleUtterance(ctx, text)
	}()
}

// messageContext continues a client-supplied trace or starts a fresh one.
func (s *Server) messageContext(ctx context.Context, traceID string) context.Context {
	if traceID != "" {
		tc := trace.NewChild(trace.Context{TraceID: traceID})
		return trace.WithContext(ctx, tc)
	}
	ctx, _ = trace.EnsureContext(ctx)
	return ctx
}

// broadcastEvents fans scanner events out to every connected client.
func (s *Server) broadcastEvents() {
	for evt := range s.scan.Events() {
		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn, e scanner.Event) {
				_ = wsjson.Write(context.Background(), c, e)
			}(conn, evt)
		}
		s.mu.RUnlock()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"mode":        s.scan.Mode().String(),
		"last_spoken": truncate(s.scan.LastSpoken(), TextPreviewLimit),
	})
}

// truncate shortens s to at most limit runes. Byte slicing would split
// multibyte characters in non-Latin announcements.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		json.NewEncoder(w).Encode(map[string]string{"announcements": ""})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"announcements": s.log.Recent(300),
	})
}

func (s *Server) handleGuidanceStart(w http.ResponseWriter, r *http.Request) {
	s.guide.Start()
	json.NewEncoder(w).Encode(map[string]string{"status": "guidance_started"})
}

func (s *Server) handleGuidanceStop(w http.ResponseWriter, r *http.Request) {
	s.guide.Stop()
	json.NewEncoder(w).Encode(map[string]string{"status": "guidance_stopped"})
}
