package config

import (
	"encoding/json"
	"fmt"
	"os"

	"chatwire/internal/constants"
	"chatwire/internal/models"
	"chatwire/internal/security"
)

var (
	ErrMissingAPIBaseURL    = models.ConfigError{Message: "missing chat API base URL"}
	ErrMissingStreamURL     = models.ConfigError{Message: "missing conversation stream URL"}
	ErrMissingUserStreamURL = models.ConfigError{Message: "missing user stream URL"}
	ErrMissingUserID        = models.ConfigError{Message: "missing user ID"}
	ErrMissingConversation  = models.ConfigError{Message: "missing conversation ID"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.API.BaseURL == "" {
		return ErrMissingAPIBaseURL
	}
	if c.Channel.StreamURL == "" {
		return ErrMissingStreamURL
	}
	if c.Channel.UserStreamURL == "" {
		return ErrMissingUserStreamURL
	}
	if c.User.ID <= 0 {
		return ErrMissingUserID
	}
	if c.User.ConversationID <= 0 {
		return ErrMissingConversation
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultDiagPort
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.API.BreakerMaxFailures <= 0 {
		c.API.BreakerMaxFailures = constants.DefaultBreakerMaxFailures
	}
	if c.API.BreakerResetSec <= 0 {
		c.API.BreakerResetSec = constants.DefaultBreakerResetSec
	}
	if c.Channel.ReconnectDelaySec <= 0 {
		c.Channel.ReconnectDelaySec = constants.DefaultReconnectDelaySec
	}
	if c.Channel.ReadyGraceMs <= 0 {
		c.Channel.ReadyGraceMs = constants.DefaultReadyGraceMs
	}
	if c.Channel.DialTimeoutSec <= 0 {
		c.Channel.DialTimeoutSec = constants.DefaultDialTimeoutSec
	}
	if c.Channel.SendTimeoutSec <= 0 {
		c.Channel.SendTimeoutSec = constants.DefaultSendTimeoutSec
	}
	if c.Typing.IdleMs <= 0 {
		c.Typing.IdleMs = constants.DefaultTypingIdleMs
	}
	if c.Notification.ArmDelayMs <= 0 {
		c.Notification.ArmDelayMs = constants.DefaultNotifyArmDelayMs
	}
	if c.Notification.SkewSec <= 0 {
		c.Notification.SkewSec = constants.DefaultNotifySkewSec
	}
	if c.Notification.MaxAgeSec <= 0 {
		c.Notification.MaxAgeSec = constants.DefaultNotifyMaxAgeSec
	}
	if c.Pending.CheckIntervalSec <= 0 {
		c.Pending.CheckIntervalSec = constants.DefaultPendingCheckIntervalSec
	}
	if c.Pending.StaleSec <= 0 {
		c.Pending.StaleSec = constants.DefaultPendingStaleSec
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("CHATWIRE_API_URL"); url != "" {
		c.API.BaseURL = url
	}

	// SECURITY: API tokens should be set via environment variables
	if token := os.Getenv("CHATWIRE_API_TOKEN"); token != "" {
		c.API.AuthToken = token
	}

	if url := os.Getenv("CHATWIRE_STREAM_URL"); url != "" {
		c.Channel.StreamURL = url
	}
	if url := os.Getenv("CHATWIRE_USER_STREAM_URL"); url != "" {
		c.Channel.UserStreamURL = url
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if err := security.ValidateAPIBaseURL(c.API.BaseURL); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid API base URL: %v", err)}
	}
	if err := security.ValidateStreamURL(c.Channel.StreamURL); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid stream URL: %v", err)}
	}
	if err := security.ValidateStreamURL(c.Channel.UserStreamURL); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid user stream URL: %v", err)}
	}

	// Check if we're in production mode
	isProduction := os.Getenv("CHATWIRE_ENV") == "production"

	if isProduction {
		// In production, the API token is mandatory
		if c.API.AuthToken == "" {
			return models.ConfigError{Message: "API auth token is required in production (set CHATWIRE_API_TOKEN environment variable)"}
		}

		if len(c.API.AuthToken) < 32 {
			return models.ConfigError{Message: "API auth token must be at least 32 characters long"}
		}

		// Debug logging leaks message metadata
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.API.AuthToken == "" {
		fmt.Fprintf(os.Stderr, "WARNING: API auth token not set. Set CHATWIRE_API_TOKEN environment variable for authenticated requests.\n")
	}

	return nil
}
