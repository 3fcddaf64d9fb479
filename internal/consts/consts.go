// Package consts holds process-wide immutable values shared by the session
// components. Nothing in here is mutable at runtime.
package consts

import "time"

// SDK identity
const (
	// SDKName is reported in the User-Agent of REST calls.
	SDKName = "webmessaging-go"
	// SDKVersion is the library version.
	SDKVersion = "1.4.0"
)

// Pagination
const (
	// DefaultPageSize is the history page size. The gateway uses the same
	// value, changing it requires a protocol version bump.
	DefaultPageSize = 25
)

// JWT handling
const (
	// JwtExpiryMargin is subtracted from a JWT's expiry before it is
	// considered usable.
	JwtExpiryMargin = 5 * time.Second
	// MaxConfigureRetries bounds configure attempts after a 401 on an
	// authenticated session.
	MaxConfigureRetries = 3
)

// Cooldowns for rate-limited frames
const (
	// HealthCheckCooldown is the minimum gap between two echo frames.
	HealthCheckCooldown = 30 * time.Second
	// TypingCooldown is the minimum gap between two typing frames.
	TypingCooldown = 5 * time.Second
	// TypingIndicatorDuration is reported to the agent with a typing event.
	TypingIndicatorDuration = 5 * time.Second
)

// HealthCheckID is the custom message id carried by echo frames so the echo
// can be told apart from real messages.
const HealthCheckID = "SGVhbHRoQ2hlY2tNZXNzYWdlSWQ="

// Reconnection
const (
	// DefaultReconnectionTimeout is the retry budget after the first failure.
	DefaultReconnectionTimeout = 300 * time.Second
	// ReconnectInitialInterval is the first backoff delay.
	ReconnectInitialInterval = 1 * time.Second
	// ReconnectMaxInterval caps a single backoff delay.
	ReconnectMaxInterval = 30 * time.Second
)

// Socket
const (
	// NormalClosureCode is the close code used by Disconnect.
	NormalClosureCode = 1000
	// NormalClosureReason is the reason sent with NormalClosureCode.
	NormalClosureReason = "The user has closed the connection."
	// ForbiddenCloseCode is what the gateway closes with when the origin or
	// deployment is not allowed.
	ForbiddenCloseCode = 1008
	// MaxFileNameLength is the longest file name the gateway accepts.
	MaxFileNameLength = 255
	// MaxReadBytes caps one inbound frame.
	MaxReadBytes = 1024 * 1024
)

// Timeouts for various operations
const (
	// HTTPTimeout applies to REST calls except uploads.
	HTTPTimeout = 30 * time.Second
	// UploadTimeout applies to a single presigned upload.
	UploadTimeout = 5 * time.Minute
	// DialTimeout applies to the websocket handshake.
	DialTimeout = 10 * time.Second
)
