package market

import (
	"strings"
	"testing"
)

func TestQuoteTrend(t *testing.T) {
	tests := []struct {
		change float64
		want   Trend
	}{
		{5, TrendSurge},
		{12.3, TrendSurge},
		{4.99, TrendFlat},
		{0, TrendFlat},
		{-4.99, TrendFlat},
		{-5, TrendPlunge},
		{-20, TrendPlunge},
	}

	for _, tt := range tests {
		q := Quote{PriceChangePercentage24h: tt.change}
		if got := q.Trend(); got != tt.want {
			t.Errorf("Trend(%v) = %s, want %s", tt.change, got, tt.want)
		}
	}
}

func TestTradingPair(t *testing.T) {
	if got := (Quote{Symbol: "eth"}).TradingPair(); got != "ETHUSDT" {
		t.Errorf("got %q, want ETHUSDT", got)
	}
	if got := TradingPair(""); got != DefaultPair {
		t.Errorf("got %q, want %q", got, DefaultPair)
	}
}

func TestChartURL(t *testing.T) {
	got := ChartURL("SOLUSDT")
	for _, want := range []string{"symbol=BINANCE%3ASOLUSDT", "interval=30", "hidesidetoolbar=1", "theme=dark"} {
		if !strings.Contains(got, want) {
			t.Errorf("ChartURL missing %q: %s", want, got)
		}
	}
	if !strings.Contains(ChartURL(""), "BINANCE%3ABTCUSDT") {
		t.Error("empty pair should fall back to BTCUSDT")
	}
}

func TestSparklinePoints(t *testing.T) {
	pts := SparklinePoints([]float64{10, 20, 15, 30}, 100, 30)
	if len(pts) != 4 {
		t.Fatalf("expected 4 points, got %d", len(pts))
	}

	want := Points{{0, 30}, {25, 15}, {50, 22.5}, {75, 0}}
	for i := range want {
		if pts[i] != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, pts[i], want[i])
		}
	}
	if got := pts.String(); got != "0,30 25,15 50,22.5 75,0" {
		t.Errorf("String() = %q", got)
	}
}

func TestSparklinePoints_Flat(t *testing.T) {
	pts := SparklinePoints([]float64{7, 7, 7}, 100, 30)
	for i, p := range pts {
		if p.Y != 15 {
			t.Errorf("point %d: expected mid-height, got %v", i, p.Y)
		}
	}
}

func TestSparklinePoints_Empty(t *testing.T) {
	if pts := SparklinePoints(nil, 100, 30); pts != nil {
		t.Errorf("expected nil, got %+v", pts)
	}
}
