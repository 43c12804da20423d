// Package command parses spoken utterances into control tokens and
// dispatches them to the reading pipeline.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/sightlens/platform/internal/speech"
	"github.com/sightlens/platform/internal/trace"
)

// Token is a recognized voice command.
type Token string

const (
	Stop        Token = "stop"
	Read        Token = "read"
	Describe    Token = "describe"
	Handwriting Token = "handwriting"
	Louder      Token = "louder"
	Quieter     Token = "quieter"
	Faster      Token = "faster"
	Slower      Token = "slower"
	Help        Token = "help"
)

// keywords maps trigger words to tokens. Matching is word-level so
// "please stop reading" still triggers Stop.
var keywords = map[string]Token{
	"stop":        Stop,
	"pause":       Stop,
	"quiet":       Stop,
	"read":        Read,
	"scan":        Read,
	"start":       Read,
	"describe":    Describe,
	"scene":       Describe,
	"handwriting": Handwriting,
	"handwritten": Handwriting,
	"louder":      Louder,
	"quieter":     Quieter,
	"softer":      Quieter,
	"faster":      Faster,
	"slower":      Slower,
	"help":        Help,
}

// Parse extracts a command token from a transcribed utterance. The
// second return is false when no keyword matches.
func Parse(utterance string) (Token, bool) {
	for _, word := range strings.Fields(strings.ToLower(utterance)) {
		word = strings.Trim(word, ".,!?")
		if tok, ok := keywords[word]; ok {
			return tok, true
		}
	}
	return "", false
}

// Actions is the subset of the scan pipeline commands can drive.
type Actions interface {
	StartScanning()
	StopScanning(haltSpeech bool)
	DescribeScene(ctx context.Context)
	ReadHandwriting(ctx context.Context)
}

// Speaker is the voice feedback surface for command echoes.
type Speaker interface {
	Speak(ctx context.Context, text string)
	AdjustVolume(delta float64) speech.Config
	AdjustRate(delta float64) speech.Config
}

// Notifier delivers non-speech acknowledgment (vibration or a tone).
type Notifier interface {
	Acknowledge()
}

// Dispatcher routes parsed tokens to pipeline actions.
type Dispatcher struct {
	actions Actions
	speaker Speaker
	notify  Notifier
}

// NewDispatcher wires a dispatcher to its collaborators.
func NewDispatcher(actions Actions, speaker Speaker, notify Notifier) *Dispatcher {
	return &Dispatcher{actions: actions, speaker: speaker, notify: notify}
}

const helpText = "Say read to start scanning, stop to pause, describe for the scene, " +
	"handwriting to read handwriting, louder or quieter for volume, faster or slower for speed."

// Dispatch executes a token. Every recognized command acknowledges
// through the notifier before acting.
func (d *Dispatcher) Dispatch(ctx context.Context, tok Token) {
	trace.Logger(ctx).Info("voice command", "token", string(tok))
	d.notify.Acknowledge()

	switch tok {
	case Stop:
		d.actions.StopScanning(true)
	case Read:
		d.actions.StartScanning()
	case Describe:
		d.actions.DescribeScene(ctx)
	case Handwriting:
		d.actions.ReadHandwriting(ctx)
	case Louder:
		cfg := d.speaker.AdjustVolume(speech.AdjustStep)
		d.speaker.Speak(ctx, fmt.Sprintf("Volume %d percent", int(cfg.Volume*100+0.5)))
	case Quieter:
		cfg := d.speaker.AdjustVolume(-speech.AdjustStep)
		d.speaker.Speak(ctx, fmt.Sprintf("Volume %d percent", int(cfg.Volume*100+0.5)))
	case Faster:
		cfg := d.speaker.AdjustRate(speech.AdjustStep)
		d.speaker.Speak(ctx, fmt.Sprintf("Speed %.1f", cfg.Rate))
	case Slower:
		cfg := d.speaker.AdjustRate(-speech.AdjustStep)
		d.speaker.Speak(ctx, fmt.Sprintf("Speed %.1f", cfg.Rate))
	case Help:
		d.speaker.Speak(ctx, helpText)
	}
}

// HandleUtterance parses and dispatches a transcription. Unrecognized
// utterances are ignored silently.
func (d *Dispatcher) HandleUtterance(ctx context.Context, utterance string) bool {
	tok, ok := Parse(utterance)
	if !ok {
		trace.Logger(ctx).Debug("unrecognized utterance", "text", utterance)
		return false
	}
	d.Dispatch(ctx, tok)
	return true
}
