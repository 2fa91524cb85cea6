package chart

import (
	"encoding/base64"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetamind/internal/payoff"
)

func longCallPoints() []payoff.Point {
	legs := []payoff.Leg{{Type: payoff.OptionCall, Action: payoff.ActionBuy, Strike: 100, Quantity: 1, Premium: 5}}
	return payoff.Compute(legs, 100)
}

func TestBuildPayoffHTML(t *testing.T) {
	points := longCallPoints()
	html, desc, err := BuildPayoffHTML(PayoffInput{
		Symbol:     "aapl",
		Spot:       100,
		Points:     points,
		Metrics:    payoff.Metrics{NetPremium: -5, MaxProfit: math.Inf(1), MaxLoss: -5},
		BreakEvens: []float64{105},
	})
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")
	assert.Contains(t, string(html), "AAPL")
	assert.Contains(t, desc, "AAPL")
	assert.Contains(t, desc, "105.00")
}

func TestBuildPayoffHTMLRejectsEmpty(t *testing.T) {
	_, _, err := BuildPayoffHTML(PayoffInput{Symbol: "AAPL"})
	assert.Error(t, err)

	_, _, err = BuildPayoffHTML(PayoffInput{Points: longCallPoints()})
	assert.Error(t, err)
}

func TestNearestPointIndex(t *testing.T) {
	points := longCallPoints()
	idx, ok := nearestPointIndex(points, 105)
	require.True(t, ok)
	assert.InDelta(t, 105, points[idx].Price, 0.2)

	// 窗口之外的价格不画标线
	_, ok = nearestPointIndex(points, 500)
	assert.False(t, ok)

	_, ok = nearestPointIndex(nil, 100)
	assert.False(t, ok)
}

func TestImageResultDataURI(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	r := &ImageResult{Bytes: png}
	uri := r.DataURI()
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png), uri)

	// HTML 降级结果没有 PNG 字节，不产出 data URI
	fallback := &ImageResult{HTML: []byte("<html></html>")}
	assert.Empty(t, fallback.DataURI())
}

func TestDescribePayoffWithoutBreakEvens(t *testing.T) {
	desc := describePayoff(PayoffInput{Symbol: "spy", Points: longCallPoints()})
	assert.Contains(t, desc, "SPY")
	assert.Contains(t, desc, "无盈亏平衡点")
}
