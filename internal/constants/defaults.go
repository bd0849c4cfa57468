package constants

// Channel lifecycle values
const (
	DefaultReconnectDelaySec = 3
	DefaultReadyGraceMs      = 1500
	DefaultSendTimeoutSec    = 5
	DefaultDialTimeoutSec    = 10
)

// Websocket close codes with application meaning
const (
	CloseCodeNormal      = 1000
	CloseCodeAuthFailure = 4001
)

// Typing and notification timing
const (
	DefaultTypingIdleMs     = 1000
	DefaultNotifyArmDelayMs = 1000
	DefaultNotifySkewSec    = 10
	DefaultNotifyMaxAgeSec  = 30
)

// Call engine values
const (
	DefaultCallTickSec = 1
)

// Pending-message monitor values
const (
	DefaultPendingCheckIntervalSec = 30
	DefaultPendingStaleSec         = 60
)

// HTTP and diagnostics server values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultDiagPort              = 8096
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Circuit breaker defaults for the persistence API client
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerResetSec    = 30
)

// Privacy settings
const (
	DefaultMessageIDLength = 8
)

// Frame handling
const (
	MaxInboundFrameBytes = 64 * 1024
	MaxMessageRunes      = 4096
)
