// Package classify decides whether recognized text is worth speaking.
package classify

import (
	"strings"
	"unicode"
)

// Config holds classification thresholds and the common-word dictionary.
type Config struct {
	// Confidence required for text with no dictionary hit.
	BaseConfidence float64
	// Confidence required when a dictionary word is present.
	DictConfidence float64
	// Confidence required for non-Latin script text.
	ScriptConfidence float64
	// Minimum fraction of alphanumeric characters for Latin text.
	MinAlnumRatio float64
	// Lower-cased common words that justify trusting lower confidence.
	Dictionary map[string]struct{}
}

// DefaultConfig returns the tuned production thresholds.
func DefaultConfig() Config {
	return Config{
		BaseConfidence:   60,
		DictConfidence:   40,
		ScriptConfidence: 50,
		MinAlnumRatio:    0.5,
		Dictionary:       commonWords,
	}
}

// Classifier is a stateless meaningful-text gate.
type Classifier struct {
	cfg Config
}

// New creates a classifier with the given config.
func New(cfg Config) *Classifier {
	if cfg.Dictionary == nil {
		cfg.Dictionary = commonWords
	}
	return &Classifier{cfg: cfg}
}

// Meaningful reports whether text with the given OCR confidence (0-100)
// should be spoken. Recognition engines report confidence that is not
// calibrated uniformly across scripts or vocabulary, so a dictionary hit
// lowers the bar while unusual text must clear a higher one.
func (c *Classifier) Meaningful(text string, confidence float64) bool {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < 2 {
		return false
	}

	// Non-Latin scripts are validated by confidence alone; the ratio and
	// dictionary heuristics below only make sense for Latin text.
	if containsScriptRune(text) {
		return confidence >= c.cfg.ScriptConfidence
	}

	if alnumRatio(text) < c.cfg.MinAlnumRatio {
		return false
	}

	threshold := c.cfg.BaseConfidence
	if c.hasDictionaryWord(text) {
		threshold = c.cfg.DictConfidence
	}
	return confidence >= threshold
}

// scriptRanges covers Devanagari, Bengali, and Arabic/Urdu.
var scriptRanges = [...][2]rune{
	{0x0900, 0x097F}, // Devanagari
	{0x0980, 0x09FF}, // Bengali
	{0x0600, 0x06FF}, // Arabic
}

// InScriptRange reports whether r falls in one of the supported
// non-Latin script ranges. Shared with text comparison so script
// characters are never stripped during normalization.
func InScriptRange(r rune) bool {
	for _, rng := range scriptRanges {
		if r >= rng[0] && r <= rng[1] {
			return true
		}
	}
	return false
}

func containsScriptRune(s string) bool {
	for _, r := range s {
		if InScriptRange(r) {
			return true
		}
	}
	return false
}

func alnumRatio(s string) float64 {
	total, alnum := 0, 0
	for _, r := range s {
		total++
		if isLatinAlnum(r) {
			alnum++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alnum) / float64(total)
}

func isLatinAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func (c *Classifier) hasDictionaryWord(s string) bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := c.cfg.Dictionary[w]; ok {
			return true
		}
	}
	return false
}
