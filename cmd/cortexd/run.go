package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/config"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/logging"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/pipeline"
)

func newRunCommand(configFlag *string) *cobra.Command {
	var (
		syntheticFPS  int
		statsInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the perception pipeline",
		Long: "Run the perception pipeline until interrupted. Without an external\n" +
			"capture component attached, a synthetic frame source drives the\n" +
			"injection point so the full pipeline can be exercised end to end.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
			if err != nil {
				return err
			}

			p, err := pipeline.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				logger.Info("received shutdown signal", logging.String("signal", sig.String()))
				cancel()
			}()

			// Synthetic capture source: stands in for the external camera
			// component, feeding the injection point at a fixed rate.
			format, err := frame.ParsePixelFormat(cfg.Pipeline.PixelFormat)
			if err != nil {
				return err
			}
			source := frame.NewSyntheticSource(cfg.Pipeline.MaxWidth, cfg.Pipeline.MaxHeight, syntheticFPS, format)
			go source.Run(ctx, func(raw frame.RawFrame) {
				if err := p.Ingest(raw); err != nil {
					logger.Warn("frame rejected", logging.Error(err))
				}
			})

			if statsInterval > 0 {
				go reportStatus(ctx, p, statsInterval)
			}

			return p.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&syntheticFPS, "synthetic-fps", 15, "Frame rate of the built-in synthetic source")
	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 10*time.Second, "Interval between status tables (0 disables)")

	return cmd
}

func reportStatus(ctx context.Context, p *pipeline.Pipeline, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Println(renderStatus(p.Health()))
		}
	}
}
