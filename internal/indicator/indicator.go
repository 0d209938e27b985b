// Package indicator derives indicator lines from candles with go-talib, for
// jobs whose chart data carries no precomputed indicators.
package indicator

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/markcheno/go-talib"

	"backtestdash/internal/domain"
)

// Settings selects which indicators Compute produces. Zero periods disable
// the indicator.
type Settings struct {
	EMA    []int `yaml:"ema"`
	SMA    []int `yaml:"sma"`
	RSI    int   `yaml:"rsi"`
	ATR    int   `yaml:"atr"`
	CCI    int   `yaml:"cci"`
	BBands int   `yaml:"bbands"`
	MACD   bool  `yaml:"macd"`
	Stoch  bool  `yaml:"stoch"`
}

// DefaultSettings is EMA20/50, RSI14 and MACD(12,26,9).
func DefaultSettings() Settings {
	return Settings{EMA: []int{20, 50}, RSI: 14, MACD: true}
}

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	stochFastK = 14
	stochSlowK = 3
	stochSlowD = 3
	bbandsDev  = 2
)

var overlayPalette = []string{"#2962FF", "#FF6D00", "#AB47BC", "#00897B", "#FDD835"}

// Compute returns one line per enabled indicator, in a stable order. An
// indicator without enough candles to get past its warm-up is left out.
func Compute(candles []domain.Candle, s Settings, logger *slog.Logger) []domain.IndicatorLine {
	if logger == nil {
		logger = slog.Default()
	}
	if len(candles) == 0 {
		return nil
	}
	times := make([]int64, len(candles))
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		times[i] = c.Time
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	var out []domain.IndicatorLine
	add := func(name, color string, pane domain.Pane, lookback int, calc func() []float64) {
		if len(candles) <= lookback {
			logger.Debug("indicator skipped: not enough candles", "name", name, "candles", len(candles), "lookback", lookback)
			return
		}
		values, err := safe(calc)
		if err != nil {
			logger.Debug("indicator failed", "name", name, "error", err)
			return
		}
		pts := toPoints(times, values, lookback)
		if len(pts) == 0 {
			return
		}
		out = append(out, domain.IndicatorLine{Name: name, Color: color, Points: pts, LineWidth: 2, Pane: pane})
	}

	color := 0
	nextColor := func() string {
		c := overlayPalette[color%len(overlayPalette)]
		color++
		return c
	}

	for _, p := range s.EMA {
		if p > 0 {
			p := p
			add(fmt.Sprintf("EMA%d", p), nextColor(), domain.PaneOverlay, p-1, func() []float64 { return talib.Ema(closes, p) })
		}
	}
	for _, p := range s.SMA {
		if p > 0 {
			p := p
			add(fmt.Sprintf("SMA%d", p), nextColor(), domain.PaneOverlay, p-1, func() []float64 { return talib.Sma(closes, p) })
		}
	}
	if p := s.BBands; p > 0 {
		var upper, middle, lower []float64
		calc := func() {
			upper, middle, lower = talib.BBands(closes, p, bbandsDev, bbandsDev, talib.SMA)
		}
		add("BB Upper", "#90A4AE", domain.PaneOverlay, p-1, func() []float64 { calc(); return upper })
		add("BB Middle", "#78909C", domain.PaneOverlay, p-1, func() []float64 { return middle })
		add("BB Lower", "#90A4AE", domain.PaneOverlay, p-1, func() []float64 { return lower })
	}

	if p := s.RSI; p > 0 {
		add(fmt.Sprintf("RSI%d", p), "#7E57C2", domain.PaneSeparate, p, func() []float64 { return talib.Rsi(closes, p) })
	}
	if s.MACD {
		var macd, signal []float64
		lookback := macdSlow - 1 + macdSignal - 1
		add("MACD", "#26A69A", domain.PaneSeparate, lookback, func() []float64 {
			macd, signal, _ = talib.Macd(closes, macdFast, macdSlow, macdSignal)
			return macd
		})
		add("MACD Signal", "#EF5350", domain.PaneSeparate, lookback, func() []float64 { return signal })
	}
	if s.Stoch {
		var k, d []float64
		lookback := stochFastK - 1 + stochSlowK - 1 + stochSlowD - 1
		add("Stoch %K", "#42A5F5", domain.PaneSeparate, lookback, func() []float64 {
			k, d = talib.Stoch(highs, lows, closes, stochFastK, stochSlowK, talib.SMA, stochSlowD, talib.SMA)
			return k
		})
		add("Stoch %D", "#FFA726", domain.PaneSeparate, lookback, func() []float64 { return d })
	}
	if p := s.CCI; p > 0 {
		add(fmt.Sprintf("CCI%d", p), "#8D6E63", domain.PaneSeparate, p-1, func() []float64 { return talib.Cci(highs, lows, closes, p) })
	}
	if p := s.ATR; p > 0 {
		add(fmt.Sprintf("ATR%d", p), "#EC407A", domain.PaneSeparate, p, func() []float64 { return talib.Atr(highs, lows, closes, p) })
	}
	return out
}

// toPoints drops the warm-up prefix and any non-finite value.
func toPoints(times []int64, values []float64, lookback int) []domain.LinePoint {
	if len(values) != len(times) {
		return nil
	}
	out := make([]domain.LinePoint, 0, len(values)-lookback)
	for i := lookback; i < len(values); i++ {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, domain.LinePoint{Time: times[i], Value: round4(v)})
	}
	return out
}

func safe(calc func() []float64) (values []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("talib panic: %v", r)
		}
	}()
	return calc(), nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
