package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ScourtNewsBot/internal/app"
	"ScourtNewsBot/internal/config"
	"ScourtNewsBot/internal/logging"
	"ScourtNewsBot/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scourtnewsbot",
		Short:         "대법원 보도자료 수집/기사 생성/Teams 전송 봇",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newScheduleCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		force    bool
		dryRun   bool
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "즉시 1회 실행",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level)

			application, err := app.New(cfg, logger)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			defer application.Close()

			// Per-item failures surface in run stats, not the exit code.
			err = application.RunOnce(cmd.Context(), usecase.RunOptions{
				Force:    force,
				DryRun:   dryRun,
				MaxPages: maxPages,
			})
			if err != nil {
				logger.Error("run aborted", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "기존 전송 건도 재전송")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Teams 전송 없이 실행")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "수집 페이지 수 (0 = 설정값)")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var (
		dryRun   bool
		runNow   bool
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "설정된 시각에 반복 실행",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level)

			application, err := app.New(cfg, logger)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return application.RunScheduled(ctx, usecase.RunOptions{
				DryRun:   dryRun,
				MaxPages: maxPages,
			}, runNow)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "스케줄 실행 시 Teams 전송 없이 실행")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "스케줄 등록 전 1회 즉시 실행")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "수집 페이지 수 (0 = 설정값)")
	return cmd
}
