package dashboard

import (
	"fmt"
	"math"

	"backtestdash/internal/chart"
	"backtestdash/internal/domain"
)

const (
	EquityLineName   = "Equity"
	DrawdownLineName = "Drawdown %"

	longColor  = "#26a69a"
	shortColor = "#ef5350"
	exitColor  = "#9e9e9e"
)

// equitySamples returns the curve as line points, normalized like any other
// chart line.
func equitySamples(points []domain.EquityPoint) []domain.LinePoint {
	pts := make([]domain.LinePoint, 0, len(points))
	for _, p := range points {
		t := p.Time.Float()
		if math.IsNaN(t) || math.IsInf(t, 0) {
			continue
		}
		pts = append(pts, domain.LinePoint{Time: int64(t), Value: p.Equity.Float()})
	}
	return chart.NormalizeLine(pts)
}

// EquityLine returns the equity curve as a separate-pane line.
func EquityLine(points []domain.EquityPoint) (domain.IndicatorLine, bool) {
	pts := equitySamples(points)
	if len(pts) == 0 {
		return domain.IndicatorLine{}, false
	}
	return domain.IndicatorLine{Name: EquityLineName, Color: "#42a5f5", Points: pts, LineWidth: 2, Pane: domain.PaneSeparate}, true
}

// EquityToDrawdown converts an equity curve into its running drawdown in
// percent below the high-water mark (0 at a new high, negative below it).
func EquityToDrawdown(points []domain.EquityPoint) (domain.IndicatorLine, bool) {
	pts := equitySamples(points)
	if len(pts) == 0 {
		return domain.IndicatorLine{}, false
	}
	peak := math.Inf(-1)
	for i, p := range pts {
		if p.Value > peak {
			peak = p.Value
		}
		dd := 0.0
		if peak > 0 {
			dd = (p.Value - peak) / peak * 100
		}
		pts[i].Value = dd
	}
	return domain.IndicatorLine{Name: DrawdownLineName, Color: shortColor, Points: pts, LineWidth: 1, Pane: domain.PaneSeparate}, true
}

// MaxDrawdown is the deepest drawdown of the curve as a negative ratio.
func MaxDrawdown(points []domain.EquityPoint) float64 {
	line, ok := EquityToDrawdown(points)
	if !ok {
		return 0
	}
	worst := 0.0
	for _, p := range line.Points {
		if p.Value < worst {
			worst = p.Value
		}
	}
	return worst / 100
}

// TotalReturn is last over first equity minus one.
func TotalReturn(points []domain.EquityPoint) float64 {
	pts := equitySamples(points)
	if len(pts) < 2 || pts[0].Value <= 0 {
		return 0
	}
	return pts[len(pts)-1].Value/pts[0].Value - 1
}

// TradesToMarkers turns a trade log into entry and exit markers. Long
// entries are green up-arrows below the bar, short entries red down-arrows
// above it; exits are grey circles on the opposite side carrying the PnL.
func TradesToMarkers(trades []domain.Trade) []domain.RawMarker {
	out := make([]domain.RawMarker, 0, 2*len(trades))
	for _, t := range trades {
		entry := domain.RawMarker{Time: t.EntryTime, Size: 1}
		exit := domain.RawMarker{Time: t.ExitTime, Color: exitColor, Shape: domain.ShapeCircle, Size: 1}
		if t.Side == domain.SideShort {
			entry.Position, entry.Color, entry.Shape, entry.Text = domain.MarkerAboveBar, shortColor, domain.ShapeArrowDown, "SHORT"
			exit.Position = domain.MarkerBelowBar
		} else {
			entry.Position, entry.Color, entry.Shape, entry.Text = domain.MarkerBelowBar, longColor, domain.ShapeArrowUp, "LONG"
			exit.Position = domain.MarkerAboveBar
		}
		if p := t.EntryPrice; !math.IsNaN(p.Float()) {
			entry.Price = &p
		}
		if p := t.ExitPrice; !math.IsNaN(p.Float()) {
			exit.Price = &p
		}
		exit.Text = exitText(t)
		out = append(out, entry)
		if !math.IsNaN(t.ExitTime.Float()) && t.ExitTime.Float() > 0 {
			out = append(out, exit)
		}
	}
	return out
}

func exitText(t domain.Trade) string {
	pnl := t.PnL.Float()
	if math.IsNaN(pnl) {
		return "EXIT"
	}
	if pnl > 0 {
		return "EXIT +" + FormatMoney(pnl)
	}
	return fmt.Sprintf("EXIT %s", FormatMoney(pnl))
}
