package chart

import (
	"log/slog"
	"sync"

	"backtestdash/internal/domain"
)

const defaultLineWidth = 2

type ownedSeries struct {
	owner   Chart
	series  Series
	visible bool
}

// Indicators reconciles a declarative list of named line series against a
// chart. Each series is tracked together with the chart that created it, so
// removal and toggling always target the owner even after the caller's
// current chart has been replaced.
type Indicators struct {
	logger *slog.Logger

	mu    sync.Mutex
	owned map[string]*ownedSeries
	order []string
}

// NewIndicators creates an empty reconciler.
func NewIndicators(logger *slog.Logger) *Indicators {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indicators{logger: logger, owned: make(map[string]*ownedSeries)}
}

// Reconcile removes every owned series, then adds one series per line to c.
// Lines with visible=false are added hidden. Empty and duplicate names are
// skipped. With enabled false or a nil chart, it only removes.
func (x *Indicators) Reconcile(c Chart, lines []domain.IndicatorLine, enabled bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.clearLocked()
	if !enabled || c == nil {
		return
	}

	for _, l := range lines {
		if l.Name == "" {
			x.logger.Debug("skipping indicator without name")
			continue
		}
		if _, dup := x.owned[l.Name]; dup {
			x.logger.Debug("skipping duplicate indicator", "name", l.Name)
			continue
		}

		visible := l.InitiallyVisible()
		width := l.LineWidth
		if width <= 0 {
			width = defaultLineWidth
		}

		var s Series
		err := guard(x.logger, "add indicator series", func() error {
			var err error
			s, err = c.AddSeries(KindLine, SeriesOptions{
				Color:     l.Color,
				LineWidth: width,
				Visible:   boolPtr(visible),
				Title:     l.Name,
			})
			return err
		})
		if err != nil || s == nil {
			continue
		}
		_ = guard(x.logger, "set indicator data", func() error {
			return s.SetData(SeriesData{Points: l.Points})
		})

		x.owned[l.Name] = &ownedSeries{owner: c, series: s, visible: visible}
		x.order = append(x.order, l.Name)
	}
}

func (x *Indicators) clearLocked() {
	for _, name := range x.order {
		o := x.owned[name]
		_ = guard(x.logger, "remove indicator series", func() error {
			return o.owner.RemoveSeries(o.series)
		})
	}
	x.owned = make(map[string]*ownedSeries)
	x.order = nil
}

// Clear removes every owned series and forgets visibility state.
func (x *Indicators) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.clearLocked()
}

// Toggle flips the visibility of the named series and returns the new
// state. Unknown names return ok=false and change nothing.
func (x *Indicators) Toggle(name string) (visible, ok bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	o, found := x.owned[name]
	if !found {
		return false, false
	}
	next := !o.visible
	err := guard(x.logger, "toggle indicator", func() error {
		return o.series.ApplyOptions(SeriesOptions{Visible: boolPtr(next)})
	})
	if err != nil {
		return o.visible, true
	}
	o.visible = next
	return next, true
}

// Has reports whether a series named name is owned.
func (x *Indicators) Has(name string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.owned[name]
	return ok
}

// Names returns every owned series name in insertion order.
func (x *Indicators) Names() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.order...)
}

// Visible returns the names of visible series in insertion order.
func (x *Indicators) Visible() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []string
	for _, name := range x.order {
		if x.owned[name].visible {
			out = append(out, name)
		}
	}
	return out
}

// IsVisible reports whether name is owned and visible.
func (x *Indicators) IsVisible(name string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	o, ok := x.owned[name]
	return ok && o.visible
}

// SeriesCount returns the number of live series.
func (x *Indicators) SeriesCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.owned)
}
