// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Text truncation limit for API responses
	TextPreviewLimit = 500

	// Per-connection rate limiting. The budget leaves room for a
	// steady frame stream plus control messages.
	RateLimitMessages = 60          // Max messages per connection per window
	RateLimitWindow   = time.Second // Sliding window duration
)
