package models

// Config holds the application configuration
type Config struct {
	Server       ServerConfig       `json:"server"`
	API          APIConfig          `json:"api"`
	User         UserConfig         `json:"user"`
	Channel      ChannelConfig      `json:"channel"`
	Typing       TypingConfig       `json:"typing"`
	Notification NotificationConfig `json:"notification"`
	Pending      PendingConfig      `json:"pending"`
	Tracing      TracingConfig      `json:"tracing"`
	LogLevel     string             `json:"log_level"`
}

// ServerConfig holds the diagnostics HTTP server configuration
type ServerConfig struct {
	Port int `json:"port"`
}

// APIConfig holds the chat persistence API configuration
type APIConfig struct {
	BaseURL            string `json:"base_url"`
	AuthToken          string `json:"auth_token"`
	TimeoutSec         int    `json:"timeoutSec"`
	BreakerMaxFailures int    `json:"breakerMaxFailures"`
	BreakerResetSec    int    `json:"breakerResetSec"`
}

// UserConfig identifies the local user on whose behalf channels connect
type UserConfig struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	ConversationID int64  `json:"conversation_id"`
}

// ChannelConfig holds websocket channel configuration
type ChannelConfig struct {
	StreamURL         string `json:"stream_url"`
	UserStreamURL     string `json:"user_stream_url"`
	ReconnectDelaySec int    `json:"reconnectDelaySec"`
	ReadyGraceMs      int    `json:"readyGraceMs"`
	DialTimeoutSec    int    `json:"dialTimeoutSec"`
	SendTimeoutSec    int    `json:"sendTimeoutSec"`
}

// TypingConfig holds typing indicator configuration
type TypingConfig struct {
	IdleMs int `json:"idleMs"`
}

// NotificationConfig holds notification gating configuration
type NotificationConfig struct {
	ArmDelayMs int `json:"armDelayMs"`
	SkewSec    int `json:"skewSec"`
	MaxAgeSec  int `json:"maxAgeSec"`
}

// PendingConfig holds stale pending message monitoring configuration
type PendingConfig struct {
	CheckIntervalSec int `json:"checkIntervalSec"`
	StaleSec         int `json:"staleSec"`
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	Endpoint     string  `json:"endpoint"`
	SampleRate   float64 `json:"sampleRate"`
	UseStdout    bool    `json:"useStdout"`
	ServiceName  string  `json:"serviceName"`
	Environment  string  `json:"environment"`
	TimeoutSec   int     `json:"timeoutSec"`
	InsecureMode bool    `json:"insecureMode"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
