package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"backtestdash/internal/chart"
	"backtestdash/internal/chart/echarts"
	"backtestdash/internal/dashboard"
	"backtestdash/internal/indicator"
)

const (
	canvasWidth    = 1280
	viewportHeight = 900
)

func ChartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render job charts",
	}
	cmd.AddCommand(RenderCmd(a))
	return cmd
}

func RenderCmd(a *app) *cobra.Command {
	var (
		out        string
		bars       int
		fullscreen bool
		drawdown   bool
		hide       []string
		settings   indicator.Settings
	)
	cmd := &cobra.Command{
		Use:   "render <job-id>",
		Short: "Write a price and oscillator chart for a job as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			jc, err := dashboard.LoadJobChart(cmd.Context(), a.client, id, dashboard.LoadOptions{
				Indicators: settings,
				Drawdown:   drawdown,
				Logger:     a.logger,
			})
			if err != nil {
				return err
			}
			if len(jc.Panes.Candles) == 0 {
				return fmt.Errorf("job %s has no candles to chart", id)
			}

			engine := echarts.New()
			pane := chart.NewDualPane(engine, a.logger)
			defer pane.Close()

			mainCanvas := echarts.NewCanvas(canvasWidth, viewportHeight)
			oscCanvas := echarts.NewCanvas(canvasWidth, viewportHeight)
			pane.Render(mainCanvas, oscCanvas, jc.Panes, chart.DualPaneOptions{
				Height:           a.cfg.Chart.Height,
				OscillatorHeight: a.cfg.Chart.OscillatorHeight,
				Theme:            chart.Theme(a.cfg.Chart.Theme),
				TimeZone:         a.cfg.Chart.TimeZone,
				IsFullscreen:     fullscreen,
				Enabled:          true,
			})
			for _, name := range hide {
				if _, ok := pane.ToggleIndicator(name); !ok {
					a.logger.Warn("unknown indicator", "name", name, "available", pane.Indicators())
				}
			}

			mainInst, oscInst := pane.Panes()
			mainChart, ok := mainInst.Chart().(*echarts.Chart)
			if !ok {
				return fmt.Errorf("job %s: price chart was not created", id)
			}
			mainChart.SetTitle(fmt.Sprintf("%s  %s", jc.Symbol, id))
			if n := len(jc.Panes.Candles); bars > 0 && bars < n {
				// Mirrored onto the oscillator pane by the dual pane.
				mainChart.TimeScale().SetVisibleLogicalRange(chart.LogicalRange{From: float64(n - bars), To: float64(n - 1)})
			}

			charts := []*echarts.Chart{mainChart}
			if oscChart, ok := oscInst.Chart().(*echarts.Chart); ok {
				charts = append(charts, oscChart)
			}

			if out == "" {
				out = filepath.Join(a.cfg.Chart.OutputDir, fmt.Sprintf("job_%s_chart.html", filepath.Base(id)))
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("creating output dir: %w", err)
				}
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()
			if err := echarts.RenderPage(f, fmt.Sprintf("Backtest %s", id), charts...); err != nil {
				return fmt.Errorf("rendering chart: %w", err)
			}

			renderStats(a.out, jc)
			fmt.Fprintf(a.out, "indicators: %v\n", pane.VisibleIndicators())
			fmt.Fprintln(a.out, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output HTML file (default <chart.output_dir>/job_<id>_chart.html)")
	cmd.Flags().IntVar(&bars, "bars", 0, "initially visible bars from the end (0 shows all)")
	cmd.Flags().BoolVar(&fullscreen, "fullscreen", false, "size the price pane to the viewport")
	cmd.Flags().BoolVar(&drawdown, "drawdown", true, "add the equity drawdown to the oscillator pane")
	cmd.Flags().StringSliceVar(&hide, "hide", nil, "indicator names to start hidden")
	cmd.Flags().IntSliceVar(&settings.EMA, "ema", []int{20, 50}, "EMA periods computed when the backend sends no indicators")
	cmd.Flags().IntSliceVar(&settings.SMA, "sma", nil, "SMA periods")
	cmd.Flags().IntVar(&settings.RSI, "rsi", 14, "RSI period (0 disables)")
	cmd.Flags().BoolVar(&settings.MACD, "macd", true, "compute MACD")
	cmd.Flags().BoolVar(&settings.Stoch, "stoch", false, "compute stochastic %K/%D")
	cmd.Flags().IntVar(&settings.ATR, "atr", 0, "ATR period (0 disables)")
	cmd.Flags().IntVar(&settings.CCI, "cci", 0, "CCI period (0 disables)")
	cmd.Flags().IntVar(&settings.BBands, "bbands", 0, "Bollinger band period (0 disables)")
	return cmd
}
