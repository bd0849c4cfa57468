package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatwire/internal/config"
	"chatwire/internal/constants"
	"chatwire/internal/models"
	"chatwire/internal/service"
	"chatwire/internal/tracing"
	"chatwire/pkg/chatapi"
	"chatwire/pkg/rtc"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("Chatwire %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

// app bundles the running components for the diagnostics server.
type app struct {
	conversation *service.ChannelManager
	user         *service.ChannelManager
	store        *service.MessageStore
	typing       *service.TypingCoordinator
	calls        *service.CallEngine
	bus          *service.EventBus
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting Chatwire")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg)

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	apiClient := chatapi.NewClient(chatapi.ClientConfig{
		BaseURL:            cfg.API.BaseURL,
		AuthToken:          cfg.API.AuthToken,
		Timeout:            time.Duration(cfg.API.TimeoutSec) * time.Second,
		BreakerMaxFailures: uint32(cfg.API.BreakerMaxFailures),
		BreakerResetAfter:  time.Duration(cfg.API.BreakerResetSec) * time.Second,
	}, logger)

	if err := apiClient.HealthCheck(ctx); err != nil {
		logger.Warnf("Chat API health check failed: %v. Edits and deletions may not persist.", err)
	}

	bus := service.NewEventBus(0, logger)
	clock := models.NewSessionClock()

	header := http.Header{}
	if cfg.API.AuthToken != "" {
		header.Set("Authorization", "Token "+cfg.API.AuthToken)
	}
	dialer := service.NewWSDialer(header)

	// gate is bound below; the hook only fires once the channel has
	// started, well after the assignment.
	var gate *service.NotificationGate
	conversation := service.NewChannelManager(service.ChannelManagerOptions{
		Name:           "conversation",
		URL:            cfg.Channel.StreamURL,
		Dialer:         dialer,
		ReconnectDelay: time.Duration(cfg.Channel.ReconnectDelaySec) * time.Second,
		ReadyGrace:     time.Duration(cfg.Channel.ReadyGraceMs) * time.Millisecond,
		DialTimeout:    time.Duration(cfg.Channel.DialTimeoutSec) * time.Second,
		SendTimeout:    time.Duration(cfg.Channel.SendTimeoutSec) * time.Second,
		Clock:          clock,
		Bus:            bus,
		Logger:         logger,
		OnDisconnect:   func() { gate.Disarm() },
	})

	user := service.NewChannelManager(service.ChannelManagerOptions{
		Name:           "user",
		URL:            cfg.Channel.UserStreamURL,
		Dialer:         dialer,
		ReconnectDelay: time.Duration(cfg.Channel.ReconnectDelaySec) * time.Second,
		ReadyGrace:     time.Duration(cfg.Channel.ReadyGraceMs) * time.Millisecond,
		DialTimeout:    time.Duration(cfg.Channel.DialTimeoutSec) * time.Second,
		SendTimeout:    time.Duration(cfg.Channel.SendTimeoutSec) * time.Second,
		Bus:            bus,
		Logger:         logger,
	})

	store := service.NewMessageStore(cfg.User.ID, cfg.User.Username, conversation, apiClient, bus, logger)
	typing := service.NewTypingCoordinator(cfg.User.ID,
		time.Duration(cfg.Typing.IdleMs)*time.Millisecond, conversation, bus, logger)
	gate = service.NewNotificationGate(service.NotificationGateOptions{
		UserID:   cfg.User.ID,
		Clock:    clock,
		Channel:  conversation,
		Bus:      bus,
		Logger:   logger,
		ArmDelay: time.Duration(cfg.Notification.ArmDelayMs) * time.Millisecond,
		Skew:     time.Duration(cfg.Notification.SkewSec) * time.Second,
		MaxAge:   time.Duration(cfg.Notification.MaxAgeSec) * time.Second,
	})
	calls := service.NewCallEngine(service.CallEngineOptions{
		UserID:  cfg.User.ID,
		Channel: user,
		Devices: rtc.NewNullMediaDevices(),
		Factory: rtc.NewNullFactory(),
		Bus:     bus,
		Logger:  logger,
	})

	store.OnSend(gate.NotifySend)

	router := service.NewRouter(store, typing, gate, calls, logger)
	conversation.SetHandler(router.ConversationHandler())
	user.SetHandler(router.UserHandler())

	ctxWithVerbose := context.WithValue(ctx, service.VerboseContextKey, *verbose)

	if err := conversation.Start(ctxWithVerbose); err != nil {
		return fmt.Errorf("failed to start conversation channel: %w", err)
	}
	defer conversation.Stop()

	if err := user.Start(ctxWithVerbose); err != nil {
		return fmt.Errorf("failed to start user channel: %w", err)
	}
	defer user.Stop()

	monitor := service.NewPendingMonitor(store,
		time.Duration(cfg.Pending.CheckIntervalSec)*time.Second,
		time.Duration(cfg.Pending.StaleSec)*time.Second, logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	go drainEvents(ctx, bus, logger)

	components := &app{
		conversation: conversation,
		user:         user,
		store:        store,
		typing:       typing,
		calls:        calls,
		bus:          bus,
	}

	server := NewServer(cfg, components, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}

	if cfg.LogLevel == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// drainEvents keeps a subscription flowing so bus delivery never backs up
// when no UI is attached, and surfaces the stream at debug level.
func drainEvents(ctx context.Context, bus *service.EventBus, logger *logrus.Logger) {
	events, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logger.WithFields(logrus.Fields{
				"kind": event.Kind,
			}).Debug("Event published")
		}
	}
}
