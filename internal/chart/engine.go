// Package chart binds declarative chart data (candles, indicator lines, trade
// markers) to an imperative charting engine. It owns chart instance
// lifecycle, reconciles indicator series and markers against live instances,
// and composes a price pane with an oscillator pane.
package chart

import (
	"fmt"
	"log/slog"

	"backtestdash/internal/domain"
)

// SeriesKind selects the series type created by Chart.AddSeries.
type SeriesKind string

const (
	KindCandlestick SeriesKind = "candlestick"
	KindLine        SeriesKind = "line"
)

// Theme is the colour scheme of a chart.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Options are passed to Engine.CreateChart.
type Options struct {
	Width    int
	Height   int
	Theme    Theme
	TimeZone string
}

// SeriesOptions configure a series. Nil Visible leaves visibility unchanged.
type SeriesOptions struct {
	Color     string
	LineWidth int
	Visible   *bool
	Title     string
}

// SeriesData is the full data set of one series. Candlestick series read
// Candles, line series read Points.
type SeriesData struct {
	Candles []domain.Candle
	Points  []domain.LinePoint
}

// LogicalRange is a visible range in bar-index units.
type LogicalRange struct {
	From float64
	To   float64
}

// Engine creates charts and marker plugins.
type Engine interface {
	CreateChart(c Container, opts Options) (Chart, error)
	AttachMarkers(s Series) (MarkersPlugin, error)
}

// Container is the surface a chart is drawn into. Implementations must be
// comparable (typically pointers). ObserveResize registers fn to be called
// whenever the container size changes; fn must not be called from within
// ObserveResize itself.
type Container interface {
	ContentWidth() int
	ViewportHeight() int
	ObserveResize(fn func()) (stop func())
}

// Chart is one live engine instance.
type Chart interface {
	AddSeries(kind SeriesKind, opts SeriesOptions) (Series, error)
	RemoveSeries(s Series) error
	Resize(width, height int)
	TimeScale() TimeScale
	Remove()
}

// Series is one plotted sequence owned by a Chart.
type Series interface {
	SetData(data SeriesData) error
	ApplyOptions(opts SeriesOptions) error
}

// TimeScale controls the horizontal axis of a chart.
type TimeScale interface {
	VisibleLogicalRange() (LogicalRange, bool)
	SetVisibleLogicalRange(r LogicalRange)
	// SubscribeVisibleLogicalRangeChange calls fn with the new range, or
	// ok=false when the chart has no data.
	SubscribeVisibleLogicalRangeChange(fn func(r LogicalRange, ok bool)) (unsubscribe func())
}

// MarkersPlugin draws markers on one series.
type MarkersPlugin interface {
	SetMarkers(markers []domain.TradeMarker) error
	Detach() error
}

// guard runs one engine operation. Errors and panics are logged at debug
// level and returned; they never propagate as panics.
func guard(logger *slog.Logger, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: engine panic: %v", op, r)
		}
		if err != nil {
			logger.Debug("chart engine operation failed", "op", op, "error", err)
		}
	}()
	return fn()
}

func boolPtr(b bool) *bool { return &b }
