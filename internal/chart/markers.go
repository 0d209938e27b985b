package chart

import (
	"log/slog"
	"sync"

	"backtestdash/internal/domain"
)

// Markers keeps a markers plugin attached to a price series and pushes the
// full marker list into it on every Sync.
type Markers struct {
	engine Engine
	logger *slog.Logger

	mu     sync.Mutex
	series Series
	plugin MarkersPlugin
	count  int
}

// NewMarkers creates a detached reconciler.
func NewMarkers(engine Engine, logger *slog.Logger) *Markers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Markers{engine: engine, logger: logger}
}

// Sync attaches the plugin to s on first use and replaces its markers. A nil
// series or enabled false detaches.
func (m *Markers) Sync(s Series, markers []domain.TradeMarker, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !enabled || s == nil {
		m.detachLocked()
		return
	}
	if m.plugin != nil && m.series != s {
		m.detachLocked()
	}
	if m.plugin == nil {
		var p MarkersPlugin
		err := guard(m.logger, "attach markers", func() error {
			var err error
			p, err = m.engine.AttachMarkers(s)
			return err
		})
		if err != nil || p == nil {
			return
		}
		m.plugin = p
		m.series = s
	}

	plugin := m.plugin
	if err := guard(m.logger, "set markers", func() error { return plugin.SetMarkers(markers) }); err == nil {
		m.count = len(markers)
	}
}

func (m *Markers) detachLocked() {
	if m.plugin == nil {
		return
	}
	plugin := m.plugin
	_ = guard(m.logger, "clear markers", func() error { return plugin.SetMarkers(nil) })
	_ = guard(m.logger, "detach markers", func() error { return plugin.Detach() })
	m.plugin = nil
	m.series = nil
	m.count = 0
}

// Close detaches the plugin.
func (m *Markers) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
}

// Attached reports whether a plugin is attached.
func (m *Markers) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plugin != nil
}

// Count returns the number of markers last pushed.
func (m *Markers) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
