// Package dashboard provides shared view helpers for the backtest dashboard,
// used by both the CLI and the TUI: formatting, trade-log statistics,
// equity drawdown, trade markers and job grouping.
package dashboard

import (
	"math"
	"sort"

	"backtestdash/internal/domain"
)

// TradeStats holds aggregated statistics for a set of round-trip trades.
type TradeStats struct {
	Side           domain.TradeSide // empty for the all-sides summary
	Trades         int
	Wins           int
	Losses         int
	GrossProfit    float64
	GrossLoss      float64 // positive
	NetPnL         float64
	LargestWin     float64
	LargestLoss    float64 // positive
	AvgHoldSeconds float64
	ExitReasons    map[string]int
}

// WinRate is wins over trades, 0 without trades.
func (s TradeStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// ProfitFactor is gross profit over gross loss. It is +Inf when there are
// wins and no losses, 0 without wins.
func (s TradeStats) ProfitFactor() float64 {
	if s.GrossLoss == 0 {
		if s.GrossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return s.GrossProfit / s.GrossLoss
}

// Expectancy is the mean PnL per trade.
func (s TradeStats) Expectancy() float64 {
	if s.Trades == 0 {
		return 0
	}
	return s.NetPnL / float64(s.Trades)
}

// Summarize computes statistics over all trades. Trades with a non-finite
// PnL are ignored.
func Summarize(trades []domain.Trade) TradeStats {
	s := TradeStats{ExitReasons: make(map[string]int)}
	var held float64
	var heldN int
	for _, t := range trades {
		pnl := t.PnL.Float()
		if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
			continue
		}
		s.Trades++
		s.NetPnL += pnl
		switch {
		case pnl > 0:
			s.Wins++
			s.GrossProfit += pnl
			if pnl > s.LargestWin {
				s.LargestWin = pnl
			}
		case pnl < 0:
			s.Losses++
			s.GrossLoss += -pnl
			if -pnl > s.LargestLoss {
				s.LargestLoss = -pnl
			}
		}
		if t.ExitReason != "" {
			s.ExitReasons[t.ExitReason]++
		}
		if d := t.ExitTime.Float() - t.EntryTime.Float(); d >= 0 && !math.IsNaN(d) {
			held += d
			heldN++
		}
	}
	if heldN > 0 {
		s.AvgHoldSeconds = held / float64(heldN)
	}
	return s
}

// AggregateTrades groups trades by side and summarizes each group. Sides are
// returned long first.
func AggregateTrades(trades []domain.Trade) []TradeStats {
	groups := make(map[domain.TradeSide][]domain.Trade)
	for _, t := range trades {
		side := t.Side
		if side != domain.SideShort {
			side = domain.SideLong
		}
		groups[side] = append(groups[side], t)
	}
	out := make([]TradeStats, 0, len(groups))
	for side, ts := range groups {
		s := Summarize(ts)
		s.Side = side
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Side < out[j].Side })
	return out
}

// TopExitReasons returns exit reasons by descending count, ties by name.
func (s TradeStats) TopExitReasons(n int) []string {
	reasons := make([]string, 0, len(s.ExitReasons))
	for r := range s.ExitReasons {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		ci, cj := s.ExitReasons[reasons[i]], s.ExitReasons[reasons[j]]
		if ci != cj {
			return ci > cj
		}
		return reasons[i] < reasons[j]
	})
	if n > 0 && len(reasons) > n {
		reasons = reasons[:n]
	}
	return reasons
}
