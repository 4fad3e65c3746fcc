package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"ScourtNewsBot/internal/composer"
	"ScourtNewsBot/internal/config"
	"ScourtNewsBot/internal/infrastructure/pdfext"
	"ScourtNewsBot/internal/infrastructure/scheduler"
	"ScourtNewsBot/internal/infrastructure/scourt"
	"ScourtNewsBot/internal/infrastructure/storage"
	"ScourtNewsBot/internal/infrastructure/teams"
	"ScourtNewsBot/internal/logging"
	"ScourtNewsBot/internal/ports"
	"ScourtNewsBot/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	repo     *storage.SQLiteRepository
}

// New builds a runnable application instance. The delivery sink stays
// nil when no webhook is configured; the pipeline enforces the
// dry-run-or-sink precondition per run.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	repo, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Source.Timeout()}

	source := scourt.NewClient(
		cfg.Source.ListURL,
		cfg.Source.Gubun,
		cfg.Source.UserAgent,
		httpClient,
		baseLogger.With("component", "source"),
	)

	extractor := pdfext.NewExtractor(
		cfg.Storage.PDFDir,
		cfg.Source.UserAgent,
		httpClient,
		baseLogger.With("component", "extractor"),
	)

	var notifier ports.Notifier
	if cfg.Notifications.TeamsWebhookURL != "" {
		notifier = teams.NewNotifier(cfg.Notifications.TeamsWebhookURL)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:            source,
		Extractor:         extractor,
		Repository:        repo,
		Composer:          composer.New(cfg.Scheduler.Timezone, cfg.Scheduler.Location()),
		Notifier:          notifier,
		Logger:            baseLogger.With("component", "pipeline"),
		Location:          cfg.Scheduler.Location(),
		DefaultMaxPages:   cfg.Pipeline.MaxPages,
		BootstrapSkipSend: cfg.Pipeline.BootstrapEnabled(),
	})

	return &Application{cfg: cfg, logger: baseLogger, pipeline: pipeline, repo: repo}, nil
}

// Close releases the state store.
func (a *Application) Close() error {
	if a.repo == nil {
		return nil
	}
	return a.repo.Close()
}

// RunOnce performs a single pipeline execution and logs its stats.
func (a *Application) RunOnce(ctx context.Context, opts usecase.RunOptions) error {
	stats, err := a.pipeline.RunOnce(ctx, opts)
	if err != nil {
		return err
	}
	a.logger.Info("run finished",
		"scanned", stats.Scanned,
		"processed", stats.Processed,
		"sent", stats.Sent,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return nil
}

// RunScheduled blocks on recurring runs until ctx is cancelled. With
// runNow set, one run executes before the first scheduled trigger.
func (a *Application) RunScheduled(ctx context.Context, opts usecase.RunOptions, runNow bool) error {
	driver := scheduler.NewHoursScheduler(a.cfg.Scheduler.Hours, a.cfg.Scheduler.Location())
	sched := usecase.NewScheduler(driver, a.pipeline, opts, a.logger.With("component", "scheduler"))

	a.logger.Info("scheduler starting",
		"timezone", a.cfg.Scheduler.Timezone,
		"hours", driver.Hours())

	if runNow {
		if err := a.RunOnce(ctx, opts); err != nil {
			a.logger.Error("immediate run aborted", "error", err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	return sched.Stop(context.Background())
}
