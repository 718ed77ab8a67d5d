package domain

import "time"

// ==== WebSocket Constants ====

// MaxMessageSize is the maximum allowed inbound frame size in bytes
const MaxMessageSize = 64 * 1024

// SendBufferSize is the per-session outbound queue length
const SendBufferSize = 256

// ==== Protocol Limits ====

const (
	// MaxUsernameLength caps LOGIN names (runes)
	MaxUsernameLength = 32

	// MaxPointsPerEvent caps the points in one DRAW_POINTS
	MaxPointsPerEvent = 2048
)

// ==== Rate Limit Constants ====

const (
	// DefaultRateLimitAPI is the default rate limit for API endpoints (requests/sec)
	DefaultRateLimitAPI = 10

	// DefaultRateLimitWS is the default rate limit for WebSocket connections (req/sec)
	DefaultRateLimitWS = 5

	// DefaultDrawRate is the sustained DRAW_POINTS rate per session (events/sec).
	// Zero disables draw limiting; every valid stroke is relayed.
	DefaultDrawRate = 0

	// DefaultDrawBurst is the DRAW_POINTS burst per session once a draw rate is set
	DefaultDrawBurst = 240
)

// ==== Timing Constants ====

const (
	// WriteWait is the time allowed to write a frame to the peer
	WriteWait = 10 * time.Second

	// PongWait is the time allowed to read the next pong from the peer
	PongWait = 60 * time.Second

	// PingPeriod must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// ShutdownGracePeriod bounds the HTTP server shutdown
	ShutdownGracePeriod = 30 * time.Second
)
