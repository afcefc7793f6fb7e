// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fiscaldesk/support-platform/internal/config"
	"github.com/fiscaldesk/support-platform/internal/handler"
	"github.com/fiscaldesk/support-platform/internal/llm"
	natsclient "github.com/fiscaldesk/support-platform/internal/nats"
	"github.com/fiscaldesk/support-platform/internal/notify"
	"github.com/fiscaldesk/support-platform/internal/service"
	"github.com/fiscaldesk/support-platform/internal/store"
	"github.com/fiscaldesk/support-platform/internal/trigger"
	"github.com/fiscaldesk/support-platform/pkg/logger"
	"github.com/fiscaldesk/support-platform/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "support-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment(cfg.LogLevel)
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("env", cfg.Environment), zap.String("store", cfg.StoreDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Event bus is optional; without it events stay in-process.
	var (
		natsClient *natsclient.Client
		streams    *natsclient.StreamManager
	)
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		streams = natsclient.NewStreamManager(natsClient)
		if err := streams.EnsureStreams(ctx); err != nil {
			return fmt.Errorf("failed to ensure streams: %w", err)
		}
	}

	// Notifications
	dispatcherOpts := []notify.Option{
		notify.WithMailer(newMailer(cfg, log)),
		notify.WithEmailTimeout(cfg.EmailTimeout),
	}
	if streams != nil {
		dispatcherOpts = append(dispatcherOpts, notify.WithPublisher(streams))
	}
	dispatcher := notify.NewDispatcher(st, log, dispatcherOpts...)

	triggers := trigger.New(dispatcher, newDirectory(cfg), cfg.BroadcastWorkers, log)
	eventRouter := trigger.NewRouter(triggers)
	handoffNotifier := trigger.NewHandoffNotifier(triggers, log)

	// Conversations
	publishers := service.MultiPublisher{handoffNotifier}
	if streams != nil {
		publishers = append(publishers, streams)
	}
	phrases := cfg.EscalationPhrases
	if len(phrases) == 0 {
		phrases = service.DefaultEscalationPhrases
	}
	conversationSvc := service.NewConversationService(st, log,
		service.WithPublisher(publishers),
		service.WithDetector(service.NewPhraseDetector(phrases)),
	)
	assistant := service.NewAssistant(conversationSvc, newLLMClient(cfg, log), cfg.AssistantModel, cfg.AssistantTimeout, log)
	sweeper := service.NewHandoffSweeper(conversationSvc, st, cfg.HandoffTimeout, cfg.HandoffSweepEvery, log)

	// HTTP
	checks := map[string]handler.Pinger{"store": st}
	if natsClient != nil {
		checks["nats"] = natsClient
	}
	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Health:            handler.NewHealthHandler(checks),
		Conversations:     handler.NewConversationHandler(conversationSvc, log),
		Messages:          handler.NewMessageHandler(conversationSvc, assistant, log),
		Stream:            handler.NewStreamHandler(conversationSvc, cfg.StreamPollInterval, log),
		Notifications:     handler.NewNotificationHandler(dispatcher, log),
		Events:            handler.NewEventHandler(eventRouter, log),
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
		// Open streams end with the process instead of holding up shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		return dispatcher.RunJanitor(gctx, cfg.NotificationJanitor)
	})

	if natsClient != nil {
		consumer := natsclient.NewEventConsumer(natsClient, eventRouter, log)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()

	if assistant != nil {
		assistant.Wait()
	}
	handoffNotifier.Wait()
	dispatcher.Wait()

	log.Info("server stopped")
	return err
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		st, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	}
}

func newMailer(cfg *config.Config, log *logger.Logger) notify.Mailer {
	if cfg.MailRelayURL == "" {
		log.Info("no mail relay configured, emails are only logged")
		return notify.NewLogMailer(log)
	}
	return notify.NewRelayMailer(cfg.MailRelayURL, cfg.MailRelayToken, cfg.HTTPClientTimeout)
}

func newDirectory(cfg *config.Config) trigger.Directory {
	if cfg.DirectoryURL != "" {
		return trigger.NewHTTPDirectory(cfg.DirectoryURL, cfg.DirectoryToken, cfg.HTTPClientTimeout)
	}
	return &trigger.StaticDirectory{
		CoordinatorIDs: cfg.CoordinatorIDs,
		StudentIDs:     cfg.StudentIDs,
	}
}

// newLLMClient prefers the configured provider and falls back to whichever
// key is present. It returns nil when no assistant can run.
func newLLMClient(cfg *config.Config, log *logger.Logger) llm.Client {
	keys := map[llm.Provider]string{
		llm.ProviderAnthropic: cfg.AnthropicAPIKey,
		llm.ProviderOpenAI:    cfg.OpenAIAPIKey,
	}
	order := []llm.Provider{llm.Provider(cfg.DefaultLLM), llm.ProviderAnthropic, llm.ProviderOpenAI}

	for _, provider := range order {
		key := keys[provider]
		if key == "" {
			continue
		}
		client, err := llm.NewClient(provider, key)
		if err != nil {
			log.Warn("failed to create LLM client", zap.String("provider", string(provider)), zap.Error(err))
			continue
		}
		log.Info("assistant enabled", zap.String("provider", client.Name()))
		return client
	}

	log.Warn("no LLM API key configured, assistant replies disabled")
	return nil
}
