// Command continuityd is the composition root: it builds the state
// store, audit ledger, adapter registry, reliability layer, and
// orchestrator, then runs the tick loop and the operator-facing HTTP
// surface until signalled to stop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/adapters"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/audit"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/clock"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/config"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/executor"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/httpapi"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/logging"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/orchestrator"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/release"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/reliability"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/templates"
)

func main() {
	log := logging.NewFromEnv()
	cfg := config.FromEnv()

	if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o755); err != nil {
		log.WithError(err).Fatal("create state directory")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.AuditPath), 0o755); err != nil {
		log.WithError(err).Fatal("create audit directory")
	}

	ledger, err := audit.Open(cfg.AuditPath)
	if err != nil {
		log.WithError(err).Fatal("open audit ledger")
	}

	store := statestore.New(cfg.StatePath)

	tmplResolver, err := templates.New(cfg.TemplatesDir, 128)
	if err != nil {
		log.WithError(err).Fatal("construct template resolver")
	}

	registry := buildRegistry(cfg)
	realClock := clock.Real{}
	breakers := reliability.NewManager(reliability.DefaultBreakerConfig(), realClock)
	retryQueue := reliability.NewQueue(reliability.DefaultRetryConfig())

	exec := &executor.Executor{
		Registry:       registry,
		Breakers:       breakers,
		Retry:          retryQueue,
		Templates:      tmplResolver,
		Clock:          realClock,
		ProjectName:    cfg.ProjectID,
		AdapterTimeout: cfg.AdapterTimeout,
	}

	orch := &orchestrator.Orchestrator{
		Store:             store,
		Ledger:            ledger,
		PolicyPath:        cfg.PolicyPath,
		Registry:          registry,
		Breakers:          breakers,
		Retry:             retryQueue,
		Executor:          exec,
		Clock:             realClock,
		Log:               log,
		ProjectID:         cfg.ProjectID,
		Verifier:          release.NewVerifier(cfg.ReleaseSecret),
		MaxFailedAttempts: cfg.MaxFailedAttempts,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx, cfg.TickInterval); err != nil {
		log.WithError(err).Fatal("start orchestrator")
	}

	server := httpapi.New(orch, registry, log, 10)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server}

	go func() {
		log.WithFields(map[string]interface{}{"addr": cfg.HTTPAddr}).Info("operator HTTP surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	orch.Stop(shutdownCtx)
}

func buildRegistry(cfg config.Config) *adapters.Registry {
	email := adapters.NewEmail("email", adapters.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	})
	webhook := adapters.NewWebhook("webhook", cfg.WebhookURL, cfg.AdapterTimeout)
	site := adapters.NewWebhook("site_publish", cfg.SiteURL, cfg.AdapterTimeout)
	social := adapters.NewWebhook("social", cfg.SocialURL, cfg.AdapterTimeout)
	mock := adapters.NewMock("mock", true)
	mock.GlobalMockMode = cfg.MockMode

	return adapters.NewRegistry(email, webhook, site, social, mock)
}
