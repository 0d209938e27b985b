package chart

import (
	"errors"
	"sync"

	"backtestdash/internal/domain"
)

// fakeEngine records every engine call for assertions.
type fakeEngine struct {
	mu          sync.Mutex
	charts      []*fakeChart
	plugins     []*fakePlugin
	failCreate  bool
	failAttach  bool
	panicOnLine string
}

func (e *fakeEngine) CreateChart(c Container, opts Options) (Chart, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failCreate {
		return nil, errors.New("webgl unavailable")
	}
	ch := &fakeChart{engine: e, opts: opts, ts: &fakeTimeScale{subs: map[int]func(LogicalRange, bool){}}}
	e.charts = append(e.charts, ch)
	return ch, nil
}

func (e *fakeEngine) AttachMarkers(s Series) (MarkersPlugin, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAttach {
		return nil, errors.New("plugin missing")
	}
	p := &fakePlugin{series: s}
	e.plugins = append(e.plugins, p)
	return p, nil
}

func (e *fakeEngine) chartCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.charts)
}

func (e *fakeEngine) last() *fakeChart {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.charts) == 0 {
		return nil
	}
	return e.charts[len(e.charts)-1]
}

type fakeChart struct {
	engine  *fakeEngine
	mu      sync.Mutex
	opts    Options
	series  []*fakeSeries
	removed bool
	resizes [][2]int
	ts      *fakeTimeScale
}

func (c *fakeChart) AddSeries(kind SeriesKind, opts SeriesOptions) (Series, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return nil, errors.New("chart disposed")
	}
	if c.engine.panicOnLine != "" && opts.Title == c.engine.panicOnLine {
		panic("bad series options")
	}
	visible := true
	if opts.Visible != nil {
		visible = *opts.Visible
	}
	s := &fakeSeries{kind: kind, title: opts.Title, color: opts.Color, visible: visible}
	c.series = append(c.series, s)
	return s, nil
}

func (c *fakeChart) RemoveSeries(s Series) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return errors.New("chart disposed")
	}
	for i, x := range c.series {
		if x == s {
			c.series = append(c.series[:i], c.series[i+1:]...)
			return nil
		}
	}
	return errors.New("series not on this chart")
}

func (c *fakeChart) Resize(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resizes = append(c.resizes, [2]int{w, h})
}

func (c *fakeChart) TimeScale() TimeScale { return c.ts }

func (c *fakeChart) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = true
	c.series = nil
}

func (c *fakeChart) lines() []*fakeSeries {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeSeries
	for _, s := range c.series {
		if s.kind == KindLine {
			out = append(out, s)
		}
	}
	return out
}

func (c *fakeChart) find(title string) *fakeSeries {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.series {
		if s.title == title {
			return s
		}
	}
	return nil
}

type fakeSeries struct {
	mu      sync.Mutex
	kind    SeriesKind
	title   string
	color   string
	visible bool
	data    SeriesData
	sets    int
}

func (s *fakeSeries) SetData(d SeriesData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = d
	s.sets++
	return nil
}

func (s *fakeSeries) ApplyOptions(o SeriesOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Visible != nil {
		s.visible = *o.Visible
	}
	return nil
}

func (s *fakeSeries) isVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// fakeTimeScale fires subscribers synchronously, like a real engine does
// from inside SetVisibleLogicalRange.
type fakeTimeScale struct {
	mu     sync.Mutex
	r      LogicalRange
	has    bool
	subs   map[int]func(LogicalRange, bool)
	nextID int
	sets   int
}

func (t *fakeTimeScale) VisibleLogicalRange() (LogicalRange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.r, t.has
}

func (t *fakeTimeScale) SetVisibleLogicalRange(r LogicalRange) {
	t.mu.Lock()
	t.r, t.has = r, true
	t.sets++
	subs := make([]func(LogicalRange, bool), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()
	for _, fn := range subs {
		fn(r, true)
	}
}

func (t *fakeTimeScale) SubscribeVisibleLogicalRangeChange(fn func(LogicalRange, bool)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *fakeTimeScale) subCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (t *fakeTimeScale) setCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sets
}

type fakePlugin struct {
	mu       sync.Mutex
	series   Series
	markers  []domain.TradeMarker
	detached bool
}

func (p *fakePlugin) SetMarkers(m []domain.TradeMarker) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markers = m
	return nil
}

func (p *fakePlugin) Detach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = true
	return nil
}

// fakeContainer triggers resize callbacks only when the test asks.
type fakeContainer struct {
	mu       sync.Mutex
	width    int
	viewport int
	observer func()
	stopped  int
}

func (c *fakeContainer) ContentWidth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width
}

func (c *fakeContainer) ViewportHeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

func (c *fakeContainer) ObserveResize(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.observer = nil
		c.stopped++
	}
}

func (c *fakeContainer) resize(w, viewport int) {
	c.mu.Lock()
	c.width, c.viewport = w, viewport
	fn := c.observer
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
