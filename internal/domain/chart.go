package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Candle is one OHLC bar. Time is Unix seconds, strictly increasing within a
// series once normalized.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume,omitempty"`
}

// LinePoint is one (time, value) sample of an indicator series.
type LinePoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// MarkerPosition places a marker relative to its bar.
type MarkerPosition string

const (
	MarkerAboveBar MarkerPosition = "aboveBar"
	MarkerBelowBar MarkerPosition = "belowBar"
)

// MarkerShape is the glyph drawn for a marker.
type MarkerShape string

const (
	ShapeArrowUp   MarkerShape = "arrowUp"
	ShapeArrowDown MarkerShape = "arrowDown"
	ShapeCircle    MarkerShape = "circle"
	ShapeSquare    MarkerShape = "square"
)

// TradeMarker annotates a single bar, typically a trade entry or exit.
type TradeMarker struct {
	Time     int64          `json:"time"`
	Position MarkerPosition `json:"position"`
	Color    string         `json:"color"`
	Shape    MarkerShape    `json:"shape"`
	Text     string         `json:"text,omitempty"`
	Price    *float64       `json:"price,omitempty"`
	Size     float64        `json:"size,omitempty"`
}

// Pane routes an indicator to the price chart or the oscillator chart.
type Pane string

const (
	PaneAuto     Pane = ""
	PaneOverlay  Pane = "overlay"
	PaneSeparate Pane = "separate"
)

// IndicatorLine is a named line series. Name is the reconciliation key and
// must be unique within one chart.
type IndicatorLine struct {
	Name      string      `json:"name"`
	Color     string      `json:"color"`
	Points    []LinePoint `json:"data"`
	LineWidth int         `json:"lineWidth,omitempty"`
	Visible   *bool       `json:"visible,omitempty"`
	Pane      Pane        `json:"pane,omitempty"`
}

// InitiallyVisible reports the starting visibility: only an explicit false
// hides the line.
func (l IndicatorLine) InitiallyVisible() bool {
	return l.Visible == nil || *l.Visible
}

// Number is a float decoded leniently: numbers and numeric strings parse,
// while null, "NaN" and anything unparseable become NaN so that validation
// downstream can drop the entry.
type Number float64

// Float returns n as a float64.
func (n Number) Float() float64 { return float64(n) }

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = Number(math.NaN())
			return nil
		}
		data = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*n = Number(math.NaN())
		return nil
	}
	*n = Number(f)
	return nil
}

// MarshalJSON emits null for non-finite values.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
}

// RawCandle is a bar as received, before validation. Time may be Unix
// seconds or milliseconds.
type RawCandle struct {
	Time   Number `json:"time"`
	Open   Number `json:"open"`
	High   Number `json:"high"`
	Low    Number `json:"low"`
	Close  Number `json:"close"`
	Volume Number `json:"volume"`
}

// RawMarker is a marker as received, before validation.
type RawMarker struct {
	Time     Number         `json:"time"`
	Position MarkerPosition `json:"position"`
	Color    string         `json:"color"`
	Shape    MarkerShape    `json:"shape"`
	Text     string         `json:"text,omitempty"`
	Price    *Number        `json:"price,omitempty"`
	Size     Number         `json:"size,omitempty"`
}

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideLong  TradeSide = "long"
	SideShort TradeSide = "short"
)

// Trade is one round trip from a backtest trade log.
type Trade struct {
	Side       TradeSide `json:"side"`
	EntryTime  Number    `json:"entry_time"`
	EntryPrice Number    `json:"entry_price"`
	ExitTime   Number    `json:"exit_time"`
	ExitPrice  Number    `json:"exit_price"`
	Quantity   Number    `json:"quantity"`
	PnL        Number    `json:"pnl"`
	ExitReason string    `json:"exit_reason,omitempty"`
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time   Number `json:"time"`
	Equity Number `json:"equity"`
}

// ChartData is the payload of the job chart endpoint.
type ChartData struct {
	Symbol     string          `json:"symbol"`
	Candles    []RawCandle     `json:"candles"`
	Indicators []IndicatorLine `json:"indicators"`
	Markers    []RawMarker     `json:"markers"`
	Trades     []Trade         `json:"trades"`
	Equity     []EquityPoint   `json:"equity"`
}

// UnmarshalJSON accepts null or string values; they decode to NaN, and a
// non-finite time decodes to 0, so normalization drops the point.
func (p *LinePoint) UnmarshalJSON(data []byte) error {
	var raw struct {
		Time  Number `json:"time"`
		Value Number `json:"value"`
	}
	raw.Time = Number(math.NaN())
	raw.Value = Number(math.NaN())
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t := float64(raw.Time)
	if math.IsNaN(t) || math.IsInf(t, 0) {
		t = 0
	}
	p.Time = int64(t)
	p.Value = float64(raw.Value)
	return nil
}
