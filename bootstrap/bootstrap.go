// Package bootstrap wires all dependencies and runs the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/adapters/clock"
	"github.com/docpilot/metergate/adapters/docs"
	"github.com/docpilot/metergate/adapters/hasher"
	"github.com/docpilot/metergate/adapters/idgen"
	"github.com/docpilot/metergate/adapters/memory"
	"github.com/docpilot/metergate/adapters/metrics"
	"github.com/docpilot/metergate/adapters/payment"
	"github.com/docpilot/metergate/adapters/sqlite"
	"github.com/docpilot/metergate/app"
	"github.com/docpilot/metergate/config"
	"github.com/docpilot/metergate/ports"
	"github.com/docpilot/metergate/web"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	DB         *sqlite.DB // nil for the memory driver
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	holder   *config.Holder
	recorder ports.UsageRecorder

	usageStore ports.UsageStore
	quotaStore ports.QuotaStore
	retention  int // days, 0 = keep forever

	stopCh chan struct{}
}

// New builds the application from a loaded configuration.
func New(cfg *config.Config) (*App, error) {
	return build(cfg, nil)
}

// NewWithHotReload builds the application with a watched config file.
// Plan table changes apply without restart; server-level settings still
// need one.
func NewWithHotReload(path string) (*App, error) {
	probe, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	holder, err := config.NewHolder(path, newLogger(probe.Logging))
	if err != nil {
		return nil, err
	}
	a, err := build(holder.Get(), holder)
	if err != nil {
		holder.Stop()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, holder *config.Holder) (*App, error) {
	logger := newLogger(cfg.Logging)

	if cfg.Docs.URL == "" {
		return nil, fmt.Errorf("docs.url is required (or METERGATE_DOCS_URL)")
	}

	a := &App{
		Logger:    logger,
		holder:    holder,
		retention: cfg.Usage.RetentionDays,
		stopCh:    make(chan struct{}),
	}

	// Stores
	var (
		keyStore      ports.KeyStore
		customerStore ports.CustomerStore
		quotaStore    ports.QuotaStore
		usageStore    ports.UsageStore
		changeStore   ports.PlanChangeStore
	)
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		a.DB = db
		keyStore = sqlite.NewKeyStore(db)
		customerStore = sqlite.NewCustomerStore(db)
		quotaStore = sqlite.NewQuotaStore(db)
		usageStore = sqlite.NewUsageStore(db)
		changeStore = sqlite.NewPlanChangeStore(db)
	case "memory":
		keyStore = memory.NewKeyStore()
		customerStore = memory.NewCustomerStore()
		quotaStore = memory.NewQuotaStore()
		usageStore = memory.NewUsageStore()
		changeStore = memory.NewPlanChangeStore()
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	a.usageStore = usageStore
	a.quotaStore = quotaStore

	// Infrastructure
	realClock := clock.Real{}
	keyHasher := hasher.NewBcrypt(cfg.Auth.BcryptCost)
	entityIDs := idgen.UUID{}
	eventIDs := idgen.NewULID()
	planTable := app.NewPlanTable(cfg.PlanTable())

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	recorderCfg := RecorderConfig{
		BatchSize:     cfg.Usage.BatchSize,
		MaxBuffered:   cfg.Usage.MaxBuffered,
		FlushInterval: cfg.Usage.FlushInterval,
	}
	if a.Metrics != nil {
		recorderCfg.OnDrop = a.Metrics.RecorderDropped.Inc
	}
	recorder := NewUsageRecorder(usageStore, recorderCfg, logger)
	a.recorder = recorder

	var billingProvider ports.BillingProvider
	switch cfg.Billing.Mode {
	case "stripe":
		billingProvider = payment.NewStripe(payment.StripeConfig{
			SecretKey:     cfg.Billing.StripeKey,
			WebhookSecret: cfg.Billing.StripeWebhookSecret,
		})
	default:
		billingProvider = payment.NewNoop()
	}

	docsClient, err := docs.NewClient(docs.ClientConfig{
		BaseURL: cfg.Docs.URL,
		Timeout: cfg.Docs.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("docs client: %w", err)
	}

	// Services
	admissionSvc := app.NewAdmissionService(app.AdmissionDeps{
		Keys:      keyStore,
		Customers: customerStore,
		Quotas:    quotaStore,
		Recorder:  recorder,
		Hasher:    keyHasher,
		Clock:     realClock,
		IDGen:     eventIDs,
		Plans:     planTable,
		KeyPrefix: cfg.Auth.KeyPrefix,
		Logger:    logger,
	})
	keySvc := app.NewKeyService(app.KeyDeps{
		Keys:      keyStore,
		Customers: customerStore,
		Usage:     usageStore,
		Hasher:    keyHasher,
		Clock:     realClock,
		IDGen:     entityIDs,
		Plans:     planTable,
		KeyPrefix: cfg.Auth.KeyPrefix,
		Logger:    logger,
	})
	accountSvc := app.NewAccountService(app.AccountDeps{
		Customers:     customerStore,
		Quotas:        quotaStore,
		Billing:       billingProvider,
		Plans:         planTable,
		Clock:         realClock,
		DefaultPlanID: cfg.Billing.DefaultPlan,
		Logger:        logger,
	})
	analyticsSvc := app.NewAnalyticsService(app.AnalyticsDeps{
		Usage:  usageStore,
		Clock:  realClock,
		TTL:    cfg.Analytics.CacheTTL,
		Logger: logger,
	})
	planSyncSvc := app.NewPlanSyncService(app.PlanSyncDeps{
		Customers: customerStore,
		Changes:   changeStore,
		Plans:     planTable,
		Clock:     realClock,
		IDGen:     entityIDs,
		Logger:    logger,
	})
	webhookSvc := app.NewWebhookService(app.WebhookDeps{
		Provider:      billingProvider,
		Customers:     customerStore,
		Sync:          planSyncSvc,
		Plans:         planTable,
		Clock:         realClock,
		DefaultPlanID: cfg.Billing.DefaultPlan,
		Logger:        logger,
	})

	handler := web.NewHandler(web.Deps{
		Admission:     admissionSvc,
		Keys:          keySvc,
		Account:       accountSvc,
		Analytics:     analyticsSvc,
		PlanSync:      planSyncSvc,
		Webhooks:      webhookSvc,
		Docs:          docsClient,
		Metrics:       a.Metrics,
		Logger:        logger,
		KeyHeader:     cfg.Auth.KeyHeader,
		SubjectHeader: cfg.Auth.SubjectHeader,
		GenericSecret: cfg.Billing.GenericWebhookSecret,
		MetricsPath:   cfg.Metrics.Path,
	})

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.Handler()
	}

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(metricsHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if holder != nil {
		holder.OnChange(func(c *config.Config) {
			planTable.Update(c.PlanTable())
			if a.Metrics != nil {
				a.Metrics.ConfigReloads.Inc()
				a.Metrics.ConfigLastReload.SetToCurrentTime()
			}
			logger.Info().Int("plans", len(c.PlanTable())).Msg("plan table updated")
		})
		if a.Metrics != nil {
			holder.OnError(func(error) { a.Metrics.ConfigReloadErrors.Inc() })
		}
	}

	return a, nil
}

// Run starts the server and blocks until shutdown.
func (a *App) Run() error {
	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.holder.WatchSignals()
	}
	if a.retention > 0 {
		go a.retentionLoop()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("server listening")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.Shutdown()
		return err
	case sig := <-sigCh:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
		return a.Shutdown()
	}
}

// Shutdown stops the server, drains the usage recorder and closes the
// database.
func (a *App) Shutdown() error {
	close(a.stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("server shutdown failed")
	}

	if err := a.recorder.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("usage recorder close failed")
	}
	if a.holder != nil {
		a.holder.Stop()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// retentionLoop prunes old ledger events and quota counters daily.
func (a *App) retentionLoop() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.retention)
			if us, ok := a.usageStore.(*sqlite.UsageStore); ok {
				if n, err := us.DeleteBefore(context.Background(), cutoff); err != nil {
					a.Logger.Error().Err(err).Msg("ledger retention failed")
				} else if n > 0 {
					a.Logger.Info().Int64("events", n).Msg("ledger events pruned")
				}
			}
			if qs, ok := a.quotaStore.(*sqlite.QuotaStore); ok {
				if n, err := qs.CleanupOldPeriods(context.Background(), cutoff); err != nil {
					a.Logger.Error().Err(err).Msg("counter cleanup failed")
				} else if n > 0 {
					a.Logger.Info().Int64("counters", n).Msg("quota counters pruned")
				}
			}
		case <-a.stopCh:
			return
		}
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
