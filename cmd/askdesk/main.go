package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"askdesk/internal/adapter/agents"
	"askdesk/internal/adapter/knowledge"
	"askdesk/internal/adapter/ledger"
	"askdesk/internal/adapter/slackchat"
	"askdesk/internal/infra/config"
	"askdesk/internal/infra/logger"
	"askdesk/internal/infra/middleware"
	"askdesk/internal/infra/tracer"
	"askdesk/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "askdesk.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
	}()

	led, err := ledger.NewSQLiteLedger(cfg.Ledger.Path, cfg.Ledger.TTL)
	if err != nil {
		return err
	}
	defer led.Close()

	store, err := knowledge.NewStore(cfg.Knowledge.Dir, log)
	if err != nil {
		return err
	}
	cronRunner := cron.New()
	if err := store.ScheduleRefresh(cronRunner, cfg.Knowledge.RefreshSchedule); err != nil {
		return err
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	client := agents.NewClient(cfg.Agents, log)
	directory := agents.NewDirectory(client, []string{
		usecase.HandlerStartupAnalyst,
		usecase.HandlerEventsGuide,
		usecase.HandlerMentorLiaison,
		usecase.HandlerProgramAssistant,
	})

	// Intent table vs. handler directory mismatch is fatal here, never at
	// request time.
	registry := usecase.NewRegistry()
	if err := registry.Validate(directory); err != nil {
		return err
	}

	sink := slackchat.NewSink(cfg.Slack.BotToken, log)
	botUserID, err := sink.BotUserID()
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	log.Info("slack authenticated", "bot_user_id", botUserID)

	dispatcher := usecase.NewDispatcher(registry, directory, log)
	svc := usecase.NewService(dispatcher, sink, usecase.NewConversationLog(), usecase.RelayConfig{
		TickInterval:  cfg.Relay.TickInterval,
		EventPause:    cfg.Relay.EventPause,
		FinalAttempts: cfg.Relay.FinalAttempts,
		FinalBackoff:  cfg.Relay.FinalBackoff,
	}, log)

	hook := slackchat.NewWebhook(cfg.Slack.SigningSecret, svc, led, botUserID, log)
	tools := knowledge.NewToolServer(store, cfg.Agents.APIKey, log)

	mux := http.NewServeMux()
	mux.Handle("/slack/events", hook)
	mux.Handle("/tools/lookup", tools)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: middleware.SecurityHeaders(
			middleware.RateLimit(ctx, cfg.Server.RequestsPerMin, cfg.Server.Burst)(mux),
		),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	// Let in-flight relays finish their terminal writes.
	hook.Wait()
	return nil
}
