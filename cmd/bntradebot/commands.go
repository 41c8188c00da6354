package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sileniced/bntradebot/internal/config"
)

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis cycle and print the pair scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			bot, err := buildBot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer bot.Close()

			scores, err := bot.Analyzer.Run(cmd.Context())
			if err != nil {
				return err
			}

			pairs := make([]string, 0, len(scores.Scores))
			for p := range scores.Scores {
				pairs = append(pairs, p)
			}
			sort.Strings(pairs)
			for _, p := range pairs {
				fmt.Printf("%-12s %.4f\n", p, scores.Scores[p])
			}
			for _, p := range scores.Failed {
				fmt.Printf("%-12s (excluded: fetch failed)\n", p)
			}
			return nil
		},
	}
}

func rebalanceCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Run one full analyze-and-rebalance cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Trading.DryRun = true
			}

			bot, err := buildBot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer bot.Close()

			return bot.App.RunOnce(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan and negotiate but submit nothing")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the cycle loop (and the status HTTP server when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bot, err := buildBot(ctx, cfg)
			if err != nil {
				return err
			}
			defer bot.Close()

			return runLoop(ctx, cfg, bot)
		},
	}
}

// runLoop drives the cycle loop and, when enabled, the HTTP server. The
// first of the two to fail (or ctx cancellation) stops both.
func runLoop(ctx context.Context, cfg config.Config, bot *Bot) error {
	errCh := make(chan error, 2)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() { errCh <- bot.App.Run(loopCtx) }()
	if cfg.HTTP.Enabled && bot.HTTP != nil {
		go func() { errCh <- bot.HTTP.Run(loopCtx) }()
	}
	if bot.Stream != nil {
		// The stream is best-effort: the rebalancer falls back to REST
		// prices, so its errors never stop the loop.
		go func() {
			if err := bot.Stream.Run(loopCtx); err != nil && loopCtx.Err() == nil {
				log.Warn().Err(err).Msg("price stream terminated")
			}
		}()
	}

	err := <-errCh
	cancel()
	if err == context.Canceled {
		log.Info().Msg("shutdown complete")
		return nil
	}
	return err
}
