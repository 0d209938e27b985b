// Package echarts implements the chart engine on go-echarts. Charts are kept
// in memory and rendered to standalone HTML on demand.
package echarts

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"backtestdash/internal/chart"
	"backtestdash/internal/domain"
)

const (
	upColor          = "#26a69a"
	downColor        = "#ef5350"
	markerSymbolSize = 14
	axisTimeLayout   = "2006-01-02 15:04"
)

var (
	ErrChartRemoved  = errors.New("echarts: chart removed")
	ErrForeignSeries = errors.New("echarts: series does not belong to this chart")
	// ErrDetached is returned by a markers plugin used after Detach.
	ErrDetached = errors.New("echarts: markers plugin detached")
)

// Engine creates in-memory charts. The zero value is not usable; call New.
type Engine struct {
	mu     sync.Mutex
	charts []*Chart
}

// New returns an empty engine.
func New() *Engine { return &Engine{} }

// CreateChart implements chart.Engine.
func (e *Engine) CreateChart(c chart.Container, o chart.Options) (chart.Chart, error) {
	if c == nil {
		return nil, errors.New("echarts: nil container")
	}
	loc, err := time.LoadLocation(o.TimeZone)
	if err != nil || o.TimeZone == "" {
		loc = time.UTC
	}
	ch := &Chart{engine: e, opts: o, loc: loc}
	ch.ts = &timeScale{subs: make(map[int]func(chart.LogicalRange, bool))}

	e.mu.Lock()
	e.charts = append(e.charts, ch)
	e.mu.Unlock()
	return ch, nil
}

// AttachMarkers implements chart.Engine. Markers can only be drawn on a
// candlestick series.
func (e *Engine) AttachMarkers(s chart.Series) (chart.MarkersPlugin, error) {
	ser, ok := s.(*Series)
	if !ok {
		return nil, fmt.Errorf("echarts: unsupported series %T", s)
	}
	if ser.kind != chart.KindCandlestick {
		return nil, fmt.Errorf("echarts: markers need a candlestick series, got %s", ser.kind)
	}
	ser.chart.mu.Lock()
	defer ser.chart.mu.Unlock()
	if ser.chart.removed {
		return nil, ErrChartRemoved
	}
	ser.attached = true
	return &markersPlugin{series: ser}, nil
}

// Charts returns the live charts in creation order.
func (e *Engine) Charts() []*Chart {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Chart, 0, len(e.charts))
	for _, c := range e.charts {
		if !c.Removed() {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) forget(c *Chart) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, x := range e.charts {
		if x == c {
			e.charts = append(e.charts[:i], e.charts[i+1:]...)
			return
		}
	}
}

// Chart is one in-memory chart.
type Chart struct {
	engine *Engine
	opts   chart.Options
	loc    *time.Location
	ts     *timeScale

	mu      sync.Mutex
	title   string
	series  []*Series
	removed bool
}

// SetTitle sets the heading rendered above the chart.
func (c *Chart) SetTitle(title string) {
	c.mu.Lock()
	c.title = title
	c.mu.Unlock()
}

// AddSeries implements chart.Chart.
func (c *Chart) AddSeries(kind chart.SeriesKind, o chart.SeriesOptions) (chart.Series, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return nil, ErrChartRemoved
	}
	switch kind {
	case chart.KindCandlestick, chart.KindLine:
	default:
		return nil, fmt.Errorf("echarts: unknown series kind %q", kind)
	}
	s := &Series{chart: c, kind: kind, visible: true}
	s.applyLocked(o)
	c.series = append(c.series, s)
	return s, nil
}

// RemoveSeries implements chart.Chart.
func (c *Chart) RemoveSeries(s chart.Series) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return ErrChartRemoved
	}
	for i, x := range c.series {
		if chart.Series(x) == s {
			c.series = append(c.series[:i], c.series[i+1:]...)
			return nil
		}
	}
	return ErrForeignSeries
}

// Resize implements chart.Chart.
func (c *Chart) Resize(width, height int) {
	c.mu.Lock()
	c.opts.Width, c.opts.Height = width, height
	c.mu.Unlock()
}

// TimeScale implements chart.Chart.
func (c *Chart) TimeScale() chart.TimeScale { return c.ts }

// Remove implements chart.Chart.
func (c *Chart) Remove() {
	c.mu.Lock()
	if c.removed {
		c.mu.Unlock()
		return
	}
	c.removed = true
	c.series = nil
	c.mu.Unlock()
	c.engine.forget(c)
}

// Removed reports whether Remove has been called.
func (c *Chart) Removed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removed
}

// Size returns the current width and height in pixels.
func (c *Chart) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Width, c.opts.Height
}

// SeriesCount returns the number of series, hidden ones included.
func (c *Chart) SeriesCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.series)
}

// Render writes the chart as a standalone HTML page.
func (c *Chart) Render(w io.Writer) error {
	k, err := c.KLine()
	if err != nil {
		return err
	}
	return k.Render(w)
}

// RenderPage writes several charts onto one HTML page, top to bottom.
func RenderPage(w io.Writer, title string, cs ...*Chart) error {
	page := components.NewPage()
	page.PageTitle = title
	for _, c := range cs {
		if c == nil {
			continue
		}
		k, err := c.KLine()
		if err != nil {
			return err
		}
		page.AddCharts(k)
	}
	return page.Render(w)
}

// KLine builds the go-echarts representation of the chart. Line series are
// overlapped on the candlestick axis; hidden series are left out.
func (c *Chart) KLine() (*charts.Kline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return nil, ErrChartRemoved
	}

	times := c.axisTimesLocked()
	labels := make([]string, len(times))
	index := make(map[int64]int, len(times))
	for i, t := range times {
		labels[i] = time.Unix(t, 0).In(c.loc).Format(axisTimeLayout)
		index[t] = i
	}

	k := charts.NewKLine()
	global := []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Width:  pixels(c.opts.Width, "100%"),
			Height: pixels(c.opts.Height, "500px"),
			Theme:  themeName(c.opts.Theme),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	}
	if c.title != "" {
		global = append(global, charts.WithTitleOpts(opts.Title{Title: c.title}))
	}
	if r, ok := c.ts.VisibleLogicalRange(); ok && len(times) > 0 {
		start, end := zoomPercent(r, len(times))
		global = append(global, charts.WithDataZoomOpts(opts.DataZoom{
			Type:  "slider",
			Start: start,
			End:   end,
		}))
	}
	k.SetGlobalOptions(global...)
	k.SetXAxis(labels)

	for _, s := range c.series {
		if !s.visible || s.kind != chart.KindCandlestick {
			continue
		}
		k.AddSeries(s.name("price"), klineData(s.data.Candles),
			charts.WithItemStyleOpts(opts.ItemStyle{
				Color:        upColor,
				Color0:       downColor,
				BorderColor:  upColor,
				BorderColor0: downColor,
			}),
			charts.WithMarkPointNameCoordItemOpts(markPoints(s, labels, index)...),
		)
	}

	for i, s := range c.series {
		if !s.visible || s.kind != chart.KindLine {
			continue
		}
		line := charts.NewLine()
		line.SetXAxis(labels)
		style := opts.LineStyle{Width: float32(s.opts.LineWidth)}
		if s.opts.Color != "" {
			style.Color = s.opts.Color
		}
		line.AddSeries(s.name(fmt.Sprintf("series-%d", i)), lineData(s.data.Points, times),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), ConnectNulls: opts.Bool(false)}),
			charts.WithLineStyleOpts(style),
		)
		k.Overlap(line)
	}
	return k, nil
}

// axisTimesLocked returns the shared x axis: the candle times when a price
// series exists, else the sorted union of all line times.
func (c *Chart) axisTimesLocked() []int64 {
	for _, s := range c.series {
		if s.kind == chart.KindCandlestick && len(s.data.Candles) > 0 {
			out := make([]int64, len(s.data.Candles))
			for i, cd := range s.data.Candles {
				out[i] = cd.Time
			}
			return out
		}
	}
	seen := make(map[int64]struct{})
	for _, s := range c.series {
		for _, p := range s.data.Points {
			seen[p.Time] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func klineData(candles []domain.Candle) []opts.KlineData {
	out := make([]opts.KlineData, len(candles))
	for i, c := range candles {
		// echarts order: open, close, low, high.
		out[i] = opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}}
	}
	return out
}

// lineData aligns points onto the axis. Bars without a finite value become
// gaps.
func lineData(points []domain.LinePoint, times []int64) []opts.LineData {
	byTime := make(map[int64]float64, len(points))
	for _, p := range points {
		byTime[p.Time] = p.Value
	}
	out := make([]opts.LineData, len(times))
	for i, t := range times {
		v, ok := byTime[t]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = opts.LineData{Value: "-"}
			continue
		}
		out[i] = opts.LineData{Value: v}
	}
	return out
}

func markPoints(s *Series, labels []string, index map[int64]int) []opts.MarkPointNameCoordItem {
	out := make([]opts.MarkPointNameCoordItem, 0, len(s.markers))
	for _, m := range s.markers {
		i, ok := index[m.Time]
		if !ok || i >= len(s.data.Candles) {
			continue
		}
		bar := s.data.Candles[i]
		y := bar.High
		position := "top"
		if m.Position == domain.MarkerBelowBar {
			y = bar.Low
			position = "bottom"
		}
		if m.Price != nil {
			y = *m.Price
		}
		name := m.Text
		if name == "" {
			name = string(m.Shape)
		}
		out = append(out, opts.MarkPointNameCoordItem{
			Name:       name,
			Coordinate: []interface{}{labels[i], y},
			Symbol:     symbolFor(m.Shape),
			SymbolSize: markerSymbolSize,
			Label: &opts.Label{
				Show:     opts.Bool(m.Text != ""),
				Color:    m.Color,
				Position: position,
			},
		})
	}
	return out
}

func symbolFor(shape domain.MarkerShape) string {
	switch shape {
	case domain.ShapeArrowUp:
		return "arrow"
	case domain.ShapeArrowDown:
		return "pin"
	case domain.ShapeSquare:
		return "rect"
	default:
		return "circle"
	}
}

func themeName(t chart.Theme) string {
	if t == chart.ThemeLight {
		return types.ThemeWesteros
	}
	return types.ThemeChalk
}

func pixels(n int, fallback string) string {
	if n <= 0 {
		return fallback
	}
	return fmt.Sprintf("%dpx", n)
}

// zoomPercent converts a logical bar range into DataZoom percentages.
func zoomPercent(r chart.LogicalRange, bars int) (float32, float32) {
	n := float64(bars)
	start := clampPercent(r.From / n * 100)
	end := clampPercent((r.To + 1) / n * 100)
	if end < start {
		start, end = end, start
	}
	return float32(start), float32(end)
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
