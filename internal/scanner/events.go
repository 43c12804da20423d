package scanner

// Mode is the top-level reading state. Exactly one is active.
type Mode int32

const (
	ModePaused Mode = iota
	ModeScanning
	ModeAnalyzing
)

func (m Mode) String() string {
	switch m {
	case ModePaused:
		return "paused"
	case ModeScanning:
		return "scanning"
	case ModeAnalyzing:
		return "analyzing"
	default:
		return "unknown"
	}
}

// EventType tags outbound scanner events.
type EventType string

const (
	EventMode   EventType = "mode"   // mode transition, Text holds the status line
	EventStatus EventType = "status" // status line update only
	EventSpoken EventType = "spoken" // new text handed to speech
	EventHaptic EventType = "haptic" // brief vibration pulse
	EventFlash  EventType = "flash"  // transient visual flash
)

// Event is a UI-facing notification from the scan pipeline.
type Event struct {
	Type EventType `json:"type"`
	Mode string    `json:"mode,omitempty"`
	Text string    `json:"text,omitempty"`
}
