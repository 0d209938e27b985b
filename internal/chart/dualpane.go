package chart

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"backtestdash/internal/domain"
)

var oscillatorPrefixes = []string{"rsi", "macd", "stoch", "cci", "atr"}

// IsOscillator reports whether an indicator name looks like an oscillator
// that belongs in its own pane.
func IsOscillator(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range oscillatorPrefixes {
		if strings.HasPrefix(n, p) {
			return true
		}
	}
	return false
}

// SplitIndicators routes lines to the price pane (overlay) or the oscillator
// pane (separate). An explicit Pane wins; otherwise the name decides.
func SplitIndicators(lines []domain.IndicatorLine) (overlay, separate []domain.IndicatorLine) {
	for _, l := range lines {
		switch l.Pane {
		case domain.PaneOverlay:
			overlay = append(overlay, l)
		case domain.PaneSeparate:
			separate = append(separate, l)
		default:
			if IsOscillator(l.Name) {
				separate = append(separate, l)
			} else {
				overlay = append(overlay, l)
			}
		}
	}
	return overlay, separate
}

// PaneData is the normalized content of a dual-pane chart.
type PaneData struct {
	Candles    []domain.Candle
	Indicators []domain.IndicatorLine
	Markers    []domain.TradeMarker
}

// PaneDataFrom normalizes backend chart data, dropping malformed entries.
func PaneDataFrom(cd *domain.ChartData) PaneData {
	if cd == nil {
		return PaneData{}
	}
	return PaneData{
		Candles:    NormalizeCandles(cd.Candles),
		Indicators: NormalizeIndicators(cd.Indicators),
		Markers:    NormalizeMarkers(cd.Markers),
	}
}

// DualPaneOptions configure both panes.
type DualPaneOptions struct {
	Height           int
	OscillatorHeight int
	Theme            Theme
	TimeZone         string
	IsFullscreen     bool
	Enabled          bool
}

// DualPane is a price pane with overlays and markers, plus an oscillator
// pane created only when there are oscillator lines. The visible time
// ranges of the two panes are kept in step.
type DualPane struct {
	logger *slog.Logger

	main    *Instance
	osc     *Instance
	mainInd *Indicators
	oscInd  *Indicators
	markers *Markers

	mu        sync.Mutex
	wiredGen  [2]uint64
	unsubMain func()
	unsubOsc  func()

	// syncing guards the range relay against feeding back into itself.
	syncing atomic.Bool
}

// NewDualPane creates an empty composition on engine.
func NewDualPane(engine Engine, logger *slog.Logger) *DualPane {
	if logger == nil {
		logger = slog.Default()
	}
	return &DualPane{
		logger:  logger,
		main:    NewInstance(engine, logger.With("pane", "main")),
		osc:     NewInstance(engine, logger.With("pane", "oscillator")),
		mainInd: NewIndicators(logger.With("pane", "main")),
		oscInd:  NewIndicators(logger.With("pane", "oscillator")),
		markers: NewMarkers(engine, logger),
	}
}

// Render syncs both panes with data. mainC and oscC are the containers of
// the price and oscillator panes.
func (d *DualPane) Render(mainC, oscC Container, data PaneData, opts DualPaneOptions) {
	d.mu.Lock()
	defer d.mu.Unlock()

	overlay, separate := SplitIndicators(data.Indicators)
	oscEnabled := opts.Enabled && len(separate) > 0

	d.main.Sync(mainC, InstanceOptions{
		Height:       opts.Height,
		Theme:        opts.Theme,
		TimeZone:     opts.TimeZone,
		IsFullscreen: opts.IsFullscreen,
		Enabled:      opts.Enabled,
		WithCandles:  true,
	})
	d.osc.Sync(oscC, InstanceOptions{
		Height:   opts.OscillatorHeight,
		Theme:    opts.Theme,
		TimeZone: opts.TimeZone,
		Enabled:  oscEnabled,
	})

	if price := d.main.PriceSeries(); price != nil {
		_ = guard(d.logger, "set candles", func() error {
			return price.SetData(SeriesData{Candles: data.Candles})
		})
	}

	mainChart := d.main.Chart()
	oscChart := d.osc.Chart()
	d.mainInd.Reconcile(mainChart, overlay, opts.Enabled && mainChart != nil)
	d.oscInd.Reconcile(oscChart, separate, oscEnabled && oscChart != nil)
	d.markers.Sync(d.main.PriceSeries(), data.Markers, opts.Enabled)

	d.wireRangeSyncLocked()
}

func (d *DualPane) wireRangeSyncLocked() {
	gen := [2]uint64{d.main.Generation(), d.osc.Generation()}
	if gen == d.wiredGen && (d.unsubMain != nil) == (d.main.Ready() && d.osc.Ready()) {
		return
	}
	d.unwireLocked()
	d.wiredGen = gen

	mainChart, oscChart := d.main.Chart(), d.osc.Chart()
	if mainChart == nil || oscChart == nil {
		return
	}
	mts, ots := mainChart.TimeScale(), oscChart.TimeScale()
	if mts == nil || ots == nil {
		return
	}

	d.unsubMain = mts.SubscribeVisibleLogicalRangeChange(func(r LogicalRange, ok bool) {
		d.mirror(ots, r, ok)
	})
	d.unsubOsc = ots.SubscribeVisibleLogicalRangeChange(func(r LogicalRange, ok bool) {
		d.mirror(mts, r, ok)
	})

	if r, ok := mts.VisibleLogicalRange(); ok {
		d.mirror(ots, r, true)
	}
}

// mirror copies a range change to the other pane unless a copy is already
// in progress.
func (d *DualPane) mirror(target TimeScale, r LogicalRange, ok bool) {
	if !ok {
		return
	}
	if !d.syncing.CompareAndSwap(false, true) {
		return
	}
	defer d.syncing.Store(false)
	_ = guard(d.logger, "sync visible range", func() error {
		target.SetVisibleLogicalRange(r)
		return nil
	})
}

func (d *DualPane) unwireLocked() {
	if d.unsubMain != nil {
		d.unsubMain()
		d.unsubMain = nil
	}
	if d.unsubOsc != nil {
		d.unsubOsc()
		d.unsubOsc = nil
	}
}

// ToggleIndicator flips the named indicator in whichever pane owns it.
func (d *DualPane) ToggleIndicator(name string) (visible, ok bool) {
	if d.mainInd.Has(name) {
		return d.mainInd.Toggle(name)
	}
	return d.oscInd.Toggle(name)
}

// VisibleIndicators returns the visible names of both panes, price pane
// first.
func (d *DualPane) VisibleIndicators() []string {
	return append(d.mainInd.Visible(), d.oscInd.Visible()...)
}

// Indicators returns every indicator name of both panes, price pane first.
func (d *DualPane) Indicators() []string {
	return append(d.mainInd.Names(), d.oscInd.Names()...)
}

// Panes exposes the price and oscillator instances.
func (d *DualPane) Panes() (main, oscillator *Instance) {
	return d.main, d.osc
}

// HasOscillatorPane reports whether the oscillator chart exists.
func (d *DualPane) HasOscillatorPane() bool {
	return d.osc.Ready()
}

// Close tears down both panes.
func (d *DualPane) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unwireLocked()
	d.markers.Close()
	d.mainInd.Clear()
	d.oscInd.Clear()
	d.main.Close()
	d.osc.Close()
	d.wiredGen = [2]uint64{}
}
