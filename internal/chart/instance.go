package chart

import (
	"log/slog"
	"sync"
)

// fullscreenChrome is the vertical space kept for the page header when a
// chart fills the viewport.
const fullscreenChrome = 100

// InstanceOptions are the inputs of one chart instance. Any change rebuilds
// the instance from scratch.
type InstanceOptions struct {
	Height       int
	Theme        Theme
	TimeZone     string
	IsFullscreen bool
	// Enabled false keeps the instance uninitialized.
	Enabled bool
	// WithCandles adds a candlestick price series on creation.
	WithCandles bool
}

// Instance owns at most one engine chart bound to a container. There is no
// partial update: Sync with different inputs tears the chart down and
// creates a fresh one.
type Instance struct {
	engine Engine
	logger *slog.Logger

	mu         sync.Mutex
	container  Container
	opts       InstanceOptions
	synced     bool
	chart      Chart
	price      Series
	stopResize func()
	generation uint64
}

// NewInstance creates an uninitialized instance.
func NewInstance(engine Engine, logger *slog.Logger) *Instance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instance{engine: engine, logger: logger}
}

// Sync brings the instance in line with container and opts. It reports
// whether the instance was torn down or rebuilt.
func (in *Instance) Sync(container Container, opts InstanceOptions) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.synced && in.container == container && in.opts == opts {
		return false
	}

	in.teardownLocked()
	in.container = container
	in.opts = opts
	in.synced = true
	in.generation++

	if !opts.Enabled || container == nil {
		return true
	}

	var chart Chart
	err := guard(in.logger, "create chart", func() error {
		var err error
		chart, err = in.engine.CreateChart(container, Options{
			Width:    container.ContentWidth(),
			Height:   in.heightLocked(),
			Theme:    opts.Theme,
			TimeZone: opts.TimeZone,
		})
		return err
	})
	if err != nil || chart == nil {
		return true
	}
	in.chart = chart

	if opts.WithCandles {
		_ = guard(in.logger, "add price series", func() error {
			s, err := chart.AddSeries(KindCandlestick, SeriesOptions{Title: "price"})
			if err == nil {
				in.price = s
			}
			return err
		})
	}

	in.stopResize = container.ObserveResize(in.handleResize)
	in.logger.Debug("chart instance ready", "generation", in.generation, "fullscreen", opts.IsFullscreen)
	return true
}

func (in *Instance) heightLocked() int {
	if in.opts.IsFullscreen && in.container != nil {
		if h := in.container.ViewportHeight() - fullscreenChrome; h > 0 {
			return h
		}
		return 1
	}
	return in.opts.Height
}

func (in *Instance) handleResize() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.chart == nil || in.container == nil {
		return
	}
	w, h := in.container.ContentWidth(), in.heightLocked()
	_ = guard(in.logger, "resize", func() error {
		in.chart.Resize(w, h)
		return nil
	})
}

func (in *Instance) teardownLocked() {
	if in.stopResize != nil {
		in.stopResize()
		in.stopResize = nil
	}
	if in.chart != nil {
		chart := in.chart
		_ = guard(in.logger, "remove chart", func() error {
			chart.Remove()
			return nil
		})
	}
	in.chart = nil
	in.price = nil
}

// Close tears the instance down. A later Sync re-creates it.
func (in *Instance) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.chart != nil || in.synced {
		in.generation++
	}
	in.teardownLocked()
	in.synced = false
	in.container = nil
}

// Chart returns the live chart, or nil when not ready.
func (in *Instance) Chart() Chart {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.chart
}

// PriceSeries returns the candlestick series, or nil.
func (in *Instance) PriceSeries() Series {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.price
}

// Ready reports whether a chart exists.
func (in *Instance) Ready() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.chart != nil
}

// Generation increments on every teardown or rebuild.
func (in *Instance) Generation() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.generation
}

// Height returns the height the chart is currently sized to.
func (in *Instance) Height() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.heightLocked()
}
