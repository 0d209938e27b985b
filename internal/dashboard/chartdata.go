package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"backtestdash/internal/chart"
	"backtestdash/internal/domain"
	"backtestdash/internal/indicator"
)

// ChartSource fetches what a job chart is built from.
type ChartSource interface {
	Job(ctx context.Context, jobID string) (domain.Job, error)
	ChartData(ctx context.Context, jobID string) (*domain.ChartData, error)
}

// LoadOptions tune LoadJobChart.
type LoadOptions struct {
	// Indicators are computed from the candles when the backend sends none.
	Indicators indicator.Settings
	// Drawdown adds the equity drawdown line to the oscillator pane.
	Drawdown bool
	Logger   *slog.Logger
}

// JobChart is a job with its normalized pane data and trade summary.
type JobChart struct {
	Job         domain.Job
	Symbol      string
	Panes       chart.PaneData
	Stats       TradeStats
	BySide      []TradeStats
	MaxDrawdown float64
	TotalReturn float64
}

// LoadJobChart fetches the job and its chart data concurrently and builds
// the pane data: backend indicators when present, else computed ones, and
// backend markers when present, else markers derived from the trade log.
func LoadJobChart(ctx context.Context, src ChartSource, jobID string, opts LoadOptions) (*JobChart, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		job  domain.Job
		data *domain.ChartData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		job, err = src.Job(gctx, jobID)
		if err != nil {
			return fmt.Errorf("fetching job %s: %w", jobID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		data, err = src.ChartData(gctx, jobID)
		if err != nil {
			return fmt.Errorf("fetching chart data for %s: %w", jobID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if data == nil {
		data = &domain.ChartData{}
	}

	panes := chart.PaneDataFrom(data)
	if len(panes.Indicators) == 0 && len(panes.Candles) > 0 {
		panes.Indicators = indicator.Compute(panes.Candles, opts.Indicators, logger)
	}
	if len(panes.Markers) == 0 && len(data.Trades) > 0 {
		panes.Markers = chart.NormalizeMarkers(TradesToMarkers(data.Trades))
	}
	if opts.Drawdown {
		if dd, ok := EquityToDrawdown(data.Equity); ok {
			panes.Indicators = append(panes.Indicators, dd)
		}
	}

	jc := &JobChart{
		Job:         job,
		Symbol:      data.Symbol,
		Panes:       panes,
		Stats:       Summarize(data.Trades),
		BySide:      AggregateTrades(data.Trades),
		MaxDrawdown: MaxDrawdown(data.Equity),
		TotalReturn: TotalReturn(data.Equity),
	}
	logger.Debug("job chart loaded",
		"job_id", jobID,
		"candles", len(panes.Candles),
		"indicators", len(panes.Indicators),
		"markers", len(panes.Markers),
		"trades", jc.Stats.Trades,
	)
	return jc, nil
}
