package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mbourse/masi-api/internal/dates"
	"github.com/mbourse/masi-api/internal/job"
	"github.com/mbourse/masi-api/internal/refresh"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch today's market snapshot and store it",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runJob(func(ctx context.Context, svc *refresh.Service) (*job.Job, error) {
			return svc.EnqueueSnapshot(ctx)
		})
	},
}

var backfillFlags struct {
	from   string
	to     string
	source string
}

var backfillCmd = &cobra.Command{
	Use:   "backfill <symbol>",
	Short: "Fetch daily candles for one symbol into stock_history",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		req, err := backfillRequest(args[0])
		if err != nil {
			return err
		}
		return runJob(func(ctx context.Context, svc *refresh.Service) (*job.Job, error) {
			return svc.EnqueueHistory(ctx, req)
		})
	},
}

func init() {
	f := backfillCmd.Flags()
	f.StringVar(&backfillFlags.from, "from", "", "first day, YYYY-MM-DD or DD/MM/YYYY")
	f.StringVar(&backfillFlags.to, "to", "", "last day (default today)")
	f.StringVar(&backfillFlags.source, "source", refresh.DefaultHistorySource, "history provider")
	_ = backfillCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(refreshCmd, backfillCmd)
}

func backfillRequest(symbol string) (refresh.HistoryRequest, error) {
	req := refresh.HistoryRequest{Source: backfillFlags.source, Symbol: symbol}

	from, ok := dates.Parse(backfillFlags.from)
	if !ok {
		return req, fmt.Errorf("invalid --from %q", backfillFlags.from)
	}
	req.From = from

	if backfillFlags.to != "" {
		to, ok := dates.Parse(backfillFlags.to)
		if !ok {
			return req, fmt.Errorf("invalid --to %q", backfillFlags.to)
		}
		req.To = to
	}
	return req, nil
}

// runJob queues a job and processes it in the foreground.
func runJob(enqueue func(context.Context, *refresh.Service) (*job.Job, error)) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	j, err := enqueue(ctx, a.refresh)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := a.refresh.RunNow(ctx, j); err != nil {
		return err
	}

	log.Info().Int64("job", j.ID).Str("kind", string(j.Kind)).Str("symbol", j.Symbol).
		Int64("records", j.RecordsCount).Dur("took", time.Since(start)).Msg("refresh completed")
	return nil
}
