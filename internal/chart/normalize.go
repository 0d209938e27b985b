package chart

import (
	"math"
	"sort"

	"backtestdash/internal/domain"
)

// Times above this are taken to be Unix milliseconds.
const millisThreshold = 1e12

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// unixSeconds validates a raw time and converts milliseconds to seconds.
func unixSeconds(t float64) (int64, bool) {
	if !finite(t) || t <= 0 {
		return 0, false
	}
	if t > millisThreshold {
		t /= 1000
	}
	return int64(t), true
}

// NormalizeCandles drops bars with an invalid time or non-finite OHLC values,
// sorts by time and keeps the last bar for duplicate times. A non-finite
// volume becomes 0.
func NormalizeCandles(raw []domain.RawCandle) []domain.Candle {
	out := make([]domain.Candle, 0, len(raw))
	for _, r := range raw {
		ts, ok := unixSeconds(r.Time.Float())
		if !ok {
			continue
		}
		o, h, l, c := r.Open.Float(), r.High.Float(), r.Low.Float(), r.Close.Float()
		if !finite(o) || !finite(h) || !finite(l) || !finite(c) {
			continue
		}
		v := r.Volume.Float()
		if !finite(v) {
			v = 0
		}
		out = append(out, domain.Candle{Time: ts, Open: o, High: h, Low: l, Close: c, Volume: v})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return dedupeCandles(out)
}

func dedupeCandles(in []domain.Candle) []domain.Candle {
	out := in[:0]
	for _, c := range in {
		if n := len(out); n > 0 && out[n-1].Time == c.Time {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// NormalizeLine drops points with a non-positive time or a non-finite value,
// converts millisecond times, sorts, and keeps the last point per time.
func NormalizeLine(points []domain.LinePoint) []domain.LinePoint {
	out := make([]domain.LinePoint, 0, len(points))
	for _, p := range points {
		ts, ok := unixSeconds(float64(p.Time))
		if !ok || !finite(p.Value) {
			continue
		}
		out = append(out, domain.LinePoint{Time: ts, Value: p.Value})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	dedup := out[:0]
	for _, p := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Time == p.Time {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

// NormalizeIndicators returns copies of lines with normalized points.
func NormalizeIndicators(lines []domain.IndicatorLine) []domain.IndicatorLine {
	out := make([]domain.IndicatorLine, len(lines))
	for i, l := range lines {
		l.Points = NormalizeLine(l.Points)
		out[i] = l
	}
	return out
}

// NormalizeMarkers drops markers with an invalid time and sorts the rest by
// time. Several markers may share a bar. Unknown positions and shapes fall
// back to aboveBar and circle.
func NormalizeMarkers(raw []domain.RawMarker) []domain.TradeMarker {
	out := make([]domain.TradeMarker, 0, len(raw))
	for _, r := range raw {
		ts, ok := unixSeconds(r.Time.Float())
		if !ok {
			continue
		}
		m := domain.TradeMarker{
			Time:     ts,
			Position: r.Position,
			Color:    r.Color,
			Shape:    r.Shape,
			Text:     r.Text,
		}
		if m.Position != domain.MarkerAboveBar && m.Position != domain.MarkerBelowBar {
			m.Position = domain.MarkerAboveBar
		}
		switch m.Shape {
		case domain.ShapeArrowUp, domain.ShapeArrowDown, domain.ShapeCircle, domain.ShapeSquare:
		default:
			m.Shape = domain.ShapeCircle
		}
		if r.Price != nil && finite(r.Price.Float()) {
			p := r.Price.Float()
			m.Price = &p
		}
		if s := r.Size.Float(); finite(s) && s > 0 {
			m.Size = s
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
