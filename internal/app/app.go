// Package app assembles the receipt service from configuration. Both the
// HTTP server and the operator CLI build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"recibos/internal/ackstate"
	"recibos/internal/broadcast"
	"recibos/internal/catalog"
	"recibos/internal/docstore"
	"recibos/internal/events"
	"recibos/internal/ledger"
	"recibos/internal/medialink"
	"recibos/internal/platform/config"
	"recibos/internal/platform/metrics"
	"recibos/internal/platform/postgres"
	"recibos/internal/platform/redis"
	"recibos/internal/registry"
	"recibos/internal/session"
	"recibos/internal/transport"
	"recibos/internal/webhook"
	"recibos/internal/workflow"
)

// App holds the wired components and the resources to release on Close.
type App struct {
	Config     *config.Config
	Metrics    *metrics.Metrics
	Registry   *registry.Resolver
	Catalog    *catalog.Catalog
	Acks       *ackstate.Service
	Ledger     *ledger.Service
	Sessions   session.Store
	Sender     transport.Sender
	Links      *medialink.Signer
	Engine     *workflow.Engine
	Dispatcher *broadcast.Dispatcher

	// janitor is set when sessions live in process memory.
	janitor *session.InMemory
	// tx is set when ack state and ledger share a Postgres database.
	tx      workflow.TxRunner
	checks  []webhook.Option
	closers []func()
	logger  *slog.Logger
}

// Build opens every configured backend. reg may be nil to skip metrics.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{Config: cfg, logger: logger}
	if reg != nil {
		a.Metrics = metrics.New(reg)
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	messages, err := workflow.LoadMessages(cfg.Documents.MessagesFile)
	if err != nil {
		return err
	}

	a.Registry = registry.NewResolver(registry.NewCSVSource(cfg.Documents.RegistryPath), registry.WithLogger(a.logger))
	a.Catalog = catalog.New(docstore.NewFilesystem(cfg.Documents.Root),
		catalog.WithTimeout(cfg.Documents.Timeout),
		catalog.WithMetrics(a.Metrics),
		catalog.WithLogger(a.logger),
	)

	ackStore, ledgerStore, err := a.durableStores(ctx)
	if err != nil {
		return err
	}
	a.Acks = ackstate.NewService(ackStore, ackstate.WithMetrics(a.Metrics), ackstate.WithLogger(a.logger))
	a.Ledger = ledger.NewService(ledgerStore, ledger.WithMetrics(a.Metrics), ledger.WithLogger(a.logger))

	if err := a.sessionStore(ctx); err != nil {
		return err
	}

	publisher, err := a.publisher(ctx)
	if err != nil {
		return err
	}

	a.Sender = a.sender()
	a.Links, err = medialink.NewSigner(cfg.Media.SigningKey, cfg.Media.LinkTTL, cfg.Server.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("media links: %w", err)
	}

	engineOpts := []workflow.Option{
		workflow.WithLogger(a.logger),
		workflow.WithMetrics(a.Metrics),
		workflow.WithMessages(messages),
		workflow.WithEvents(publisher),
		workflow.WithTurnTimeout(cfg.Session.TurnTimeout),
	}
	if cfg.Twilio.PromptTemplateSID != "" {
		engineOpts = append(engineOpts, workflow.WithPromptTemplate(cfg.Twilio.PromptTemplateSID))
	}
	a.Engine, err = workflow.New(workflow.Dependencies{
		Directory: a.Registry,
		Catalog:   a.Catalog,
		Acks:      a.Acks,
		Sessions:  a.Sessions,
		Ledger:    a.Ledger,
		Sender:    a.Sender,
		Links:     a.Links,
		Tx:        a.tx,
	}, engineOpts...)
	if err != nil {
		return fmt.Errorf("workflow engine: %w", err)
	}

	a.Dispatcher, err = broadcast.New(broadcast.Dependencies{
		Directory: a.Registry,
		Catalog:   a.Catalog,
		Ledger:    a.Ledger,
		Sender:    a.Sender,
		Acks:      a.Acks,
	},
		broadcast.WithTemplate(cfg.Twilio.TemplateSID),
		broadcast.WithBody(messages.Broadcast),
		broadcast.WithMetrics(a.Metrics),
		broadcast.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("broadcast dispatcher: %w", err)
	}
	return nil
}

// durableStores selects Postgres when a DSN is configured.
func (a *App) durableStores(ctx context.Context) (ackstate.Store, ledger.Store, error) {
	if a.Config.Postgres.DSN == "" {
		a.logger.WarnContext(ctx, "postgres not configured, ack state and ledger kept in memory")
		return ackstate.NewInMemory(), ledger.NewInMemory(), nil
	}
	db, err := postgres.Open(ctx, a.Config.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	a.onClose(func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, nil, err
	}
	a.tx = postgres.NewTxRunner(db)
	a.checks = append(a.checks, webhook.WithHealthCheck("postgres", db.PingContext))
	return ackstate.NewPostgres(db), ledger.NewPostgres(db), nil
}

func (a *App) sessionStore(ctx context.Context) error {
	client, err := redis.New(ctx, a.Config.Redis)
	if err != nil {
		return err
	}
	if client == nil {
		mem := session.NewInMemory(a.Config.Session.TTL)
		a.Sessions, a.janitor = mem, mem
		return nil
	}
	a.onClose(func() { _ = client.Close() })
	a.checks = append(a.checks, webhook.WithHealthCheck("redis", client.Health))
	a.Sessions = session.NewRedis(client.Client, a.Config.Session.TTL)
	return nil
}

func (a *App) publisher(ctx context.Context) (events.Publisher, error) {
	if len(a.Config.Kafka.Brokers) == 0 {
		return events.Nop{}, nil
	}
	p, err := events.NewKafka(a.Config.Kafka.Brokers, a.Config.Kafka.Topic, events.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.onClose(p.Close)
	if err := p.EnsureTopic(ctx); err != nil {
		a.logger.WarnContext(ctx, "kafka topic bootstrap failed", "topic", a.Config.Kafka.Topic, "error", err)
	}
	return p, nil
}

// sender falls back to a recording transport when Twilio is not configured,
// so local runs never reach the network.
func (a *App) sender() transport.Sender {
	cfg := a.Config
	if !cfg.TransportConfigured() {
		a.logger.Warn("twilio not configured, outbound messages are recorded only")
		return transport.NewRecording()
	}
	return transport.NewTwilio(transport.TwilioConfig{
		AccountSID:     cfg.Twilio.AccountSID,
		AuthToken:      cfg.Twilio.AuthToken,
		From:           cfg.Twilio.From,
		CountryPrefix:  cfg.Twilio.CountryPrefix,
		APIBaseURL:     cfg.Twilio.APIBaseURL,
		StatusCallback: strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/twilio/status",
		Timeout:        cfg.Twilio.Timeout,
	}, transport.WithLogger(a.logger))
}

// Handler builds the HTTP surface over the wired components.
func (a *App) Handler(opts ...webhook.Option) *webhook.Handler {
	base := []webhook.Option{
		webhook.WithLogger(a.logger),
		webhook.WithAdminToken(a.Config.Server.AdminToken),
	}
	if a.Config.Server.AdminTokenHash != "" {
		base = append(base, webhook.WithAdminTokenHash(a.Config.Server.AdminTokenHash))
	}
	if a.Config.Twilio.ValidateSignature {
		base = append(base, webhook.WithSignatureValidation(
			webhook.NewSignatureValidator(a.Config.Twilio.AuthToken, a.Config.Server.PublicBaseURL),
		))
	}
	base = append(base, a.checks...)
	return webhook.New(webhook.Dependencies{
		Engine:      a.Engine,
		Ledger:      a.Ledger,
		Broadcaster: a.Dispatcher,
		Documents:   a.Catalog,
		Links:       a.Links,
	}, append(base, opts...)...)
}

// RunJanitor sweeps expired in-memory sessions until ctx ends. It returns
// immediately when sessions live in Redis, which expires them itself.
func (a *App) RunJanitor(ctx context.Context) {
	if a.janitor == nil {
		return
	}
	interval := a.Config.Session.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	a.janitor.Run(ctx, interval)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
