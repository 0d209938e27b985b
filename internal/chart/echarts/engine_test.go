package echarts

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"backtestdash/internal/chart"
	"backtestdash/internal/domain"
)

func candles(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = domain.Candle{Time: 1_700_000_000 + int64(i)*60, Open: p, High: p + 2, Low: p - 2, Close: p + 1}
	}
	return out
}

func TestRenderOmitsHiddenSeries(t *testing.T) {
	e := New()
	c, err := e.CreateChart(NewCanvas(800, 900), chart.Options{Height: 400, Theme: chart.ThemeDark, TimeZone: "UTC"})
	if err != nil {
		t.Fatalf("CreateChart: %v", err)
	}
	price, _ := c.AddSeries(chart.KindCandlestick, chart.SeriesOptions{Title: "price"})
	price.SetData(chart.SeriesData{Candles: candles(5)})

	ema, _ := c.AddSeries(chart.KindLine, chart.SeriesOptions{Title: "EMA20", Color: "#2962FF", LineWidth: 2})
	ema.SetData(chart.SeriesData{Points: []domain.LinePoint{{Time: 1_700_000_000, Value: 101}, {Time: 1_700_000_060, Value: math.NaN()}}})

	sma, _ := c.AddSeries(chart.KindLine, chart.SeriesOptions{Title: "SMA50"})
	hidden := false
	sma.ApplyOptions(chart.SeriesOptions{Visible: &hidden})

	var buf bytes.Buffer
	if err := c.(*Chart).Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "EMA20") {
		t.Error("visible line series missing from output")
	}
	if strings.Contains(html, "SMA50") {
		t.Error("hidden line series rendered")
	}
	if !strings.Contains(html, "2023-11-14 22:13") {
		t.Error("axis labels not formatted in configured time zone")
	}
}

func TestMarkersNeedCandlestickSeries(t *testing.T) {
	e := New()
	c, _ := e.CreateChart(NewCanvas(800, 900), chart.Options{})
	line, _ := c.AddSeries(chart.KindLine, chart.SeriesOptions{})
	if _, err := e.AttachMarkers(line); err == nil {
		t.Fatal("AttachMarkers on line series should fail")
	}

	price, _ := c.AddSeries(chart.KindCandlestick, chart.SeriesOptions{})
	price.SetData(chart.SeriesData{Candles: candles(3)})
	p, err := e.AttachMarkers(price)
	if err != nil {
		t.Fatalf("AttachMarkers: %v", err)
	}
	if err := p.SetMarkers([]domain.TradeMarker{{Time: candles(3)[1].Time, Position: domain.MarkerBelowBar, Shape: domain.ShapeArrowUp, Text: "BUY"}}); err != nil {
		t.Fatalf("SetMarkers: %v", err)
	}

	var buf bytes.Buffer
	if err := c.(*Chart).Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "BUY") {
		t.Error("marker missing from output")
	}

	p.Detach()
	if err := p.SetMarkers(nil); err != ErrDetached {
		t.Errorf("SetMarkers after Detach = %v, want ErrDetached", err)
	}
}

func TestRemovedChartRejectsCalls(t *testing.T) {
	e := New()
	c, _ := e.CreateChart(NewCanvas(800, 900), chart.Options{})
	s, _ := c.AddSeries(chart.KindLine, chart.SeriesOptions{})
	c.Remove()

	if _, err := c.AddSeries(chart.KindLine, chart.SeriesOptions{}); err != ErrChartRemoved {
		t.Errorf("AddSeries after Remove = %v", err)
	}
	if err := s.SetData(chart.SeriesData{}); err != ErrChartRemoved {
		t.Errorf("SetData after Remove = %v", err)
	}
	if len(e.Charts()) != 0 {
		t.Errorf("engine still tracks %d charts", len(e.Charts()))
	}
}

func TestRemoveForeignSeries(t *testing.T) {
	e := New()
	a, _ := e.CreateChart(NewCanvas(800, 900), chart.Options{})
	b, _ := e.CreateChart(NewCanvas(800, 900), chart.Options{})
	s, _ := a.AddSeries(chart.KindLine, chart.SeriesOptions{})
	if err := b.RemoveSeries(s); err != ErrForeignSeries {
		t.Errorf("RemoveSeries = %v, want ErrForeignSeries", err)
	}
	if err := a.RemoveSeries(s); err != nil {
		t.Errorf("RemoveSeries: %v", err)
	}
}

func TestTimeScaleNotifiesOnChange(t *testing.T) {
	e := New()
	c, _ := e.CreateChart(NewCanvas(800, 900), chart.Options{})
	ts := c.TimeScale()

	var got []chart.LogicalRange
	unsub := ts.SubscribeVisibleLogicalRangeChange(func(r chart.LogicalRange, ok bool) {
		if ok {
			got = append(got, r)
		}
	})
	ts.SetVisibleLogicalRange(chart.LogicalRange{From: 2, To: 8})
	ts.SetVisibleLogicalRange(chart.LogicalRange{From: 2, To: 8})
	unsub()
	ts.SetVisibleLogicalRange(chart.LogicalRange{From: 0, To: 4})

	if len(got) != 1 || got[0] != (chart.LogicalRange{From: 2, To: 8}) {
		t.Errorf("notifications = %+v", got)
	}
}

func TestZoomPercent(t *testing.T) {
	start, end := zoomPercent(chart.LogicalRange{From: 10, To: 19}, 40)
	if start != 25 || end != 50 {
		t.Errorf("zoomPercent = %v, %v; want 25, 50", start, end)
	}
	start, end = zoomPercent(chart.LogicalRange{From: -5, To: 100}, 40)
	if start != 0 || end != 100 {
		t.Errorf("clamped zoomPercent = %v, %v", start, end)
	}
}

func TestInstanceResizesWithCanvas(t *testing.T) {
	e := New()
	canvas := NewCanvas(800, 900)
	in := chart.NewInstance(e, nil)
	in.Sync(canvas, chart.InstanceOptions{Height: 400, Theme: chart.ThemeLight, Enabled: true, WithCandles: true})

	if n := len(e.Charts()); n != 1 {
		t.Fatalf("live charts = %d, want 1", n)
	}
	canvas.SetSize(1200, 900)
	w, h := e.Charts()[0].Size()
	if w != 1200 || h != 400 {
		t.Errorf("size after resize = %dx%d, want 1200x400", w, h)
	}

	in.Close()
	if n := len(e.Charts()); n != 0 {
		t.Errorf("live charts after Close = %d", n)
	}
}

func TestRenderPageStacksCharts(t *testing.T) {
	e := New()
	a, _ := e.CreateChart(NewCanvas(800, 900), chart.Options{Height: 400})
	b, _ := e.CreateChart(NewCanvas(800, 900), chart.Options{Height: 160})
	a.(*Chart).SetTitle("AAPL")
	rsi, _ := b.AddSeries(chart.KindLine, chart.SeriesOptions{Title: "RSI14"})
	rsi.SetData(chart.SeriesData{Points: []domain.LinePoint{{Time: 1, Value: 55}}})

	var buf bytes.Buffer
	if err := RenderPage(&buf, "job-1", a.(*Chart), b.(*Chart)); err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	for _, want := range []string{"AAPL", "RSI14"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestRenderMarkersWithoutCandles(t *testing.T) {
	e := New()
	c, _ := e.CreateChart(NewCanvas(800, 900), chart.Options{Height: 400})
	price, _ := c.AddSeries(chart.KindCandlestick, chart.SeriesOptions{Title: "price"})
	ema, _ := c.AddSeries(chart.KindLine, chart.SeriesOptions{Title: "EMA20"})
	ema.SetData(chart.SeriesData{Points: []domain.LinePoint{{Time: 100, Value: 1}}})

	p, err := e.AttachMarkers(price)
	if err != nil {
		t.Fatalf("AttachMarkers: %v", err)
	}
	if err := p.SetMarkers([]domain.TradeMarker{{Time: 100, Position: domain.MarkerAboveBar, Shape: domain.ShapeArrowDown, Text: "SHORT"}}); err != nil {
		t.Fatalf("SetMarkers: %v", err)
	}

	var buf bytes.Buffer
	if err := c.(*Chart).Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "EMA20") {
		t.Error("line series missing when the price series is empty")
	}
}
