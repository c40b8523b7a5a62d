package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vpsdash/internal/alerts"
	"vpsdash/internal/api"
	"vpsdash/internal/backup"
	"vpsdash/internal/cache"
	"vpsdash/internal/config"
	"vpsdash/internal/health"
	"vpsdash/internal/hooks"
	"vpsdash/internal/logger"
	"vpsdash/internal/notify"
	"vpsdash/internal/probe"
	"vpsdash/internal/process"
	"vpsdash/internal/scheduler"
	"vpsdash/internal/service"
	"vpsdash/internal/telemetry"
)

// ShutdownTimeout bounds each phase of graceful shutdown
const ShutdownTimeout = 10 * time.Second

// NewDaemonCmd creates the daemon command. It is what the service unit runs.
func NewDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "daemon",
		Short:  "Run the agent in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() (err error) {
	cfg, err := config.LoadConfig(ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	logger.SetDefault(log)
	defer log.Sync()

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Error("panic: %v\n%s", r, buf[:n])
			service.NotifyStopping()
			err = fmt.Errorf("daemon panicked: %v", r)
		}
	}()

	lock, err := process.Acquire(cfg.PIDFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	log.Info("daemon starting, pid %d, version %s", os.Getpid(), currentVersion())

	a, err := newAgent(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

// agent is the assembled daemon
type agent struct {
	cfg *config.Config
	log *logger.Logger

	cache     *cache.Cache
	metrics   *telemetry.Metrics
	monitor   *alerts.Monitor
	backups   *backup.Orchestrator
	health    *health.Aggregator
	scheduler *scheduler.Scheduler
	server    *api.Server
}

func newAgent(cfg *config.Config, log *logger.Logger) (*agent, error) {
	a := &agent{cfg: cfg, log: log}
	a.cache = cache.New(cfg.Health.HistorySize, cfg.Backup.HistorySize)

	journal := backup.NewJournal(cfg.Backup.Journal, cfg.Backup.Summary)
	runs, err := journal.Load(cfg.Backup.HistorySize)
	if err != nil {
		log.Warning("failed to replay backup journal %s: %v", journal.Path(), err)
	}
	a.cache.SeedRuns(runs)
	if len(runs) > 0 {
		log.Info("recovered %d backup runs from %s", len(runs), journal.Path())
	}

	tracker := health.NewTracker()
	a.metrics = telemetry.NewMetrics(tracker)

	a.backups, err = backup.New(backup.Options{
		MaxAttempts: cfg.Backup.MaxAttempts,
		BaseDelay:   cfg.Backup.BaseDelayDuration(),
		MaxDelay:    cfg.Backup.MaxDelayDuration(),
		Keep:        cfg.Backup.Keep,
		KeyPrefix:   cfg.Backup.KeyPrefix,
		HookPre:     cfg.Backup.HookPre,
		HookPost:    cfg.Backup.HookPost,
		LastID:      backup.LastID(runs),
		Enumerator:  backup.FSEnumerator{Sources: cfg.Backup.Sources, Excludes: cfg.Backup.Excludes},
		Archiver:    backup.TarGzArchiver{WorkDir: cfg.Backup.WorkDir},
		Store:       newStore(cfg.Backup.Store, log),
		Hooks:       hooks.NewRunner(cfg.Backup.HookTimeoutDuration()),
		Journal:     journal,
		Sink:        a.cache,
		Recorder:    a.metrics,
		Logger:      log.Named("backup"),
	})
	if err != nil {
		return nil, err
	}

	observers := []health.Observer{a.metrics}
	if senders := alertSenders(cfg.Alerts); len(senders) > 0 {
		manager := alerts.NewAlertManager(cfg.Alerts.RenotifyDuration(), cfg.Alerts.ResolveAfterDuration())
		a.monitor = alerts.NewMonitor(manager, senders, log.Named("alerts"))
		observers = append(observers, a.monitor)
	}

	probes, err := probe.Build(cfg.Probes)
	if err != nil {
		return nil, err
	}
	a.health, err = health.New(probes, a.cache, health.Options{
		Timeout:   cfg.Health.TimeoutDuration(),
		Grace:     cfg.Health.GraceDuration(),
		Observers: observers,
		Tracker:   tracker,
		Logger:    log.Named("health"),
	})
	if err != nil {
		return nil, err
	}

	a.scheduler, err = scheduler.New(a.health, a.backups, scheduler.Options{
		Interval:       cfg.Health.IntervalDuration(),
		BackupSchedule: cfg.Backup.Schedule,
		StopTimeout:    ShutdownTimeout,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	a.server = api.NewServer(cfg.API.Listen, api.NewRouter(api.RouterConfig{
		Cache:             a.cache,
		Backups:           a.backups,
		Metrics:           a.metrics.Handler(),
		Logger:            log.Named("api").Zap(),
		CORSOrigin:        cfg.API.CORSOrigin,
		TriggerRatePerMin: cfg.API.TriggerRatePerMin,
	}))

	return a, nil
}

func alertSenders(cfg config.AlertsConfig) notify.Multi {
	var senders notify.Multi
	if cfg.WebhookURL != "" {
		senders = append(senders, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret))
	}
	if cfg.TelegramToken != "" {
		senders = append(senders, notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID))
	}
	return senders
}

func newStore(cfg config.StoreConfig, log *logger.Logger) backup.ObjectStore {
	var store backup.ObjectStore
	switch cfg.Kind {
	case config.StoreRclone:
		store = backup.NewRcloneStore(cfg.RcloneBin, cfg.Remote)
	default:
		store = backup.DirStore{Root: cfg.Path}
	}
	return backup.NewBreakerStore(store, uint32(cfg.BreakerFailures), time.Duration(cfg.BreakerTimeout)*time.Second, log.Named("store"))
}

// run serves until ctx is cancelled or the API server fails
func (a *agent) run(ctx context.Context) error {
	ln, err := a.server.Listen()
	if err != nil {
		return err
	}
	a.log.Info("status API listening on %s", ln.Addr())

	if a.monitor != nil {
		a.monitor.Start(ctx)
	}

	var exporter *telemetry.OTelExporter
	if a.cfg.Telemetry.OTLPEndpoint != "" {
		hostname, _ := os.Hostname()
		exporter, err = telemetry.StartOTel(ctx, telemetry.OTelConfig{
			Endpoint: a.cfg.Telemetry.OTLPEndpoint,
			Token:    a.cfg.Telemetry.OTLPToken,
			Hostname: hostname,
			Version:  currentVersion(),
			Interval: time.Duration(a.cfg.Telemetry.Interval) * time.Second,
		}, a.cache)
		if err != nil {
			a.log.Warning("OTLP export disabled: %v", err)
		} else {
			a.log.Info("exporting metrics over OTLP to %s", a.cfg.Telemetry.OTLPEndpoint)
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Serve(ln) }()

	a.scheduler.Start()
	go a.scheduler.TickNow(ctx)

	service.NotifyReady()
	service.NotifyStatus("sampling every " + a.cfg.Health.IntervalDuration().String())
	go service.RunWatchdog(ctx, service.WatchdogInterval, func() string {
		return "overall " + string(a.cache.Current().OverallStatus)
	})

	select {
	case <-ctx.Done():
		a.log.Info("signal received, shutting down")
		err = nil
	case err = <-serveErr:
		if err != nil {
			a.log.Error("status API failed: %v", err)
		}
	}

	service.NotifyStopping()
	a.shutdown(exporter)
	return err
}

func (a *agent) shutdown(exporter *telemetry.OTelExporter) {
	httpCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	if err := a.server.Shutdown(httpCtx); err != nil {
		a.log.Warning("status API shutdown: %v", err)
	}
	cancel()

	if err := a.scheduler.Shutdown(); err != nil {
		a.log.Warning("%v", err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	if err := a.backups.Shutdown(runCtx); errors.Is(err, context.DeadlineExceeded) {
		a.log.Warning("active backup run did not reach a step boundary in %s, aborted", ShutdownTimeout)
	}
	cancel()

	if a.monitor != nil {
		a.monitor.Stop()
	}

	if exporter != nil {
		otelCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		if err := exporter.Shutdown(otelCtx); err != nil {
			a.log.Warning("OTLP exporter shutdown: %v", err)
		}
		cancel()
	}

	a.log.Info("daemon stopped")
}
