package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/likhithmdev/Final-Sic/internal/checkin"
	"github.com/likhithmdev/Final-Sic/internal/constants"
	"github.com/likhithmdev/Final-Sic/internal/journal"
	"github.com/likhithmdev/Final-Sic/internal/logging"
	"github.com/likhithmdev/Final-Sic/internal/loop"
	"github.com/likhithmdev/Final-Sic/internal/metrics"
	"github.com/likhithmdev/Final-Sic/internal/session"
	"github.com/likhithmdev/Final-Sic/internal/web"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the check-in control loop",
	Long: `Enroll the configured identities, open the camera and run the control loop
until interrupted. Recognized identities are checked in; the active session is
checked out after the timeout, on switch and on exit.`,
	Example: `  face-checkin run
  face-checkin run --status-addr :8090
  face-checkin run --no-status`,
	RunE: runCheckIn,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("status-addr", "", "Status server listen address (overrides STATUS_ADDR)")
	runCmd.Flags().Bool("no-status", false, "Disable the status server")
}

func runCheckIn(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addr := mustGetString(cmd, "status-addr"); addr != "" {
		cfg.Status.Addr = addr
	}
	if mustGetBool(cmd, "no-status") {
		cfg.Status.Addr = ""
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	logWarnings(cfg, log)

	client, err := checkin.New(cfg.API.BaseURL, cfg.API.Timeout, cfg.API.CaptureDir)
	if err != nil {
		return fmt.Errorf("failed to create check-in client: %w", err)
	}

	var store *journal.Store
	if cfg.Journal.Path != "" {
		store, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		if _, _, err := session.Recover(ctx, store, client, log); err != nil {
			log.Warn("session recovery failed", zap.Error(err))
		}
	}

	ext, err := newExtractor(cfg)
	if err != nil {
		return fmt.Errorf("failed to create face extractor: %w", err)
	}
	defer ext.Close()

	refs, report, err := enroll(ctx, cfg, ext, log)
	if err != nil {
		return err
	}
	log.Info("enrollment complete", zap.Int("identities", refs.Len()), zap.Int("embeddings", report.Total()))

	matcher, err := newMatcher(cfg, ext, refs, log)
	if err != nil {
		return err
	}

	source := newCamera(cfg, log)
	if err := source.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := source.Release(); err != nil {
			log.Warn("camera release failed", zap.Error(err))
		}
	}()

	m := metrics.New()
	board := loop.NewBoard()

	if cfg.Status.Addr != "" {
		srv := web.NewServer(cfg.Status.Addr, board, m.Handler(), log)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn("status server shutdown failed", zap.Error(err))
			}
		}()
	}

	opts := session.Options{
		Timeout:              cfg.Session.Timeout,
		RefreshOnRescan:      cfg.Session.RefreshOnRescan,
		CheckoutBeforeSwitch: cfg.Session.CheckoutBeforeSwitch,
		Logger:               log,
		Metrics:              m,
	}
	if store != nil {
		opts.Journal = store
	}
	controller := session.NewController(client, cfg.Identities, opts)

	l := &loop.Loop{
		Source:          source,
		Matcher:         matcher,
		Controller:      controller,
		Stride:          cfg.Loop.FrameStride,
		RetryDelay:      cfg.Loop.RetryDelay,
		ShutdownTimeout: constants.ShutdownTimeout,
		Board:           board,
		Renderer:        loop.NewLogRenderer(log),
		Logger:          log,
		Metrics:         m,
	}
	return l.Run(ctx)
}
