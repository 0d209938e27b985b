package echarts

import (
	"sync"

	"backtestdash/internal/chart"
	"backtestdash/internal/domain"
)

// Series is one plotted sequence. Its state is guarded by the owning chart's
// mutex.
type Series struct {
	chart    *Chart
	kind     chart.SeriesKind
	opts     chart.SeriesOptions
	visible  bool
	data     chart.SeriesData
	markers  []domain.TradeMarker
	attached bool
}

// Kind returns the series kind.
func (s *Series) Kind() chart.SeriesKind { return s.kind }

// SetData implements chart.Series.
func (s *Series) SetData(data chart.SeriesData) error {
	s.chart.mu.Lock()
	defer s.chart.mu.Unlock()
	if s.chart.removed {
		return ErrChartRemoved
	}
	s.data = chart.SeriesData{
		Candles: append([]domain.Candle(nil), data.Candles...),
		Points:  append([]domain.LinePoint(nil), data.Points...),
	}
	return nil
}

// ApplyOptions implements chart.Series.
func (s *Series) ApplyOptions(o chart.SeriesOptions) error {
	s.chart.mu.Lock()
	defer s.chart.mu.Unlock()
	if s.chart.removed {
		return ErrChartRemoved
	}
	s.applyLocked(o)
	return nil
}

// Visible reports whether the series is drawn.
func (s *Series) Visible() bool {
	s.chart.mu.Lock()
	defer s.chart.mu.Unlock()
	return s.visible
}

func (s *Series) applyLocked(o chart.SeriesOptions) {
	if o.Color != "" {
		s.opts.Color = o.Color
	}
	if o.LineWidth > 0 {
		s.opts.LineWidth = o.LineWidth
	}
	if o.Title != "" {
		s.opts.Title = o.Title
	}
	if o.Visible != nil {
		s.visible = *o.Visible
	}
}

func (s *Series) name(fallback string) string {
	if s.opts.Title != "" {
		return s.opts.Title
	}
	return fallback
}

type markersPlugin struct {
	series *Series
}

func (p *markersPlugin) SetMarkers(markers []domain.TradeMarker) error {
	c := p.series.chart
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return ErrChartRemoved
	}
	if !p.series.attached {
		return ErrDetached
	}
	p.series.markers = append([]domain.TradeMarker(nil), markers...)
	return nil
}

func (p *markersPlugin) Detach() error {
	c := p.series.chart
	c.mu.Lock()
	defer c.mu.Unlock()
	p.series.attached = false
	p.series.markers = nil
	return nil
}

// timeScale keeps the visible logical range and notifies subscribers when it
// changes.
type timeScale struct {
	mu     sync.Mutex
	r      chart.LogicalRange
	has    bool
	nextID int
	subs   map[int]func(chart.LogicalRange, bool)
}

func (t *timeScale) VisibleLogicalRange() (chart.LogicalRange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.r, t.has
}

func (t *timeScale) SetVisibleLogicalRange(r chart.LogicalRange) {
	t.mu.Lock()
	if t.has && t.r == r {
		t.mu.Unlock()
		return
	}
	t.r, t.has = r, true
	subs := make([]func(chart.LogicalRange, bool), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(r, true)
	}
}

func (t *timeScale) SubscribeVisibleLogicalRangeChange(fn func(chart.LogicalRange, bool)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
