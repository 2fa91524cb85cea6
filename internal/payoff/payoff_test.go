package payoff

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longCall(strike, premium float64) Leg {
	return Leg{Type: OptionCall, Action: ActionBuy, Strike: strike, Quantity: 1, Premium: premium}
}

func TestComputeEmptyLegs(t *testing.T) {
	points := Compute(nil, 100)
	require.Len(t, points, 201)
	for _, pt := range points {
		assert.Zero(t, pt.Profit)
	}
	assert.InDelta(t, 70, points[0].Price, 0.01)
	assert.InDelta(t, 130, points[len(points)-1].Price, 0.01)
}

func TestComputeInvalidSpot(t *testing.T) {
	legs := []Leg{longCall(100, 5)}
	assert.Empty(t, Compute(legs, 0))
	assert.Empty(t, Compute(legs, -10))
	assert.Empty(t, Compute(legs, math.NaN()))
	assert.Empty(t, Compute(legs, math.Inf(1)))
}

func TestComputeIdempotent(t *testing.T) {
	legs := []Leg{longCall(100, 5), {Type: OptionPut, Action: ActionSell, Strike: 95, Quantity: 2, Premium: 3.2}}
	first := Compute(legs, 101.37)
	second := Compute(legs, 101.37)
	assert.Equal(t, first, second)
}

func TestComputeLongCall(t *testing.T) {
	legs := []Leg{longCall(100, 5)}
	points := Compute(legs, 100)
	require.Len(t, points, 201)

	// 采样步长为 (1.3-0.7)*spot/200，目标价取最近的采样点
	profitAt := func(price float64) float64 {
		best := points[0]
		for _, pt := range points {
			if math.Abs(pt.Price-price) < math.Abs(best.Price-price) {
				best = pt
			}
		}
		step := points[1].Price - points[0].Price
		require.LessOrEqual(t, math.Abs(best.Price-price), step/2+1e-9, "price %v not covered by grid", price)
		return best.Profit
	}
	// 行权价以下亏损封顶在权利金
	assert.InDelta(t, -5, profitAt(90), 0.01)
	assert.InDelta(t, -5, profitAt(70), 0.01)
	// 价内线性增长，最近采样点与目标价最多差半步
	assert.InDelta(t, 15, profitAt(120), 0.2)
	assert.InDelta(t, 25, profitAt(130), 0.01)
	// 模拟区间之外的取值由内在价值公式保证
	assert.InDelta(t, 50, legs[0].Intrinsic(150), 0.001)
}

func TestComputeSkipsMalformedLeg(t *testing.T) {
	legs := []Leg{
		longCall(100, 5),
		{Type: OptionCall, Action: ActionBuy, Strike: math.NaN(), Quantity: 1, Premium: 2},
		{Type: OptionPut, Action: ActionSell, Strike: 95, Quantity: 1, Premium: math.Inf(1)},
		{Type: OptionPut, Action: ActionBuy, Strike: -5, Quantity: 1, Premium: 1},
	}
	points := Compute(legs, 100)
	require.NotEmpty(t, points)
	clean := Compute(legs[:1], 100)
	for i, pt := range points {
		assert.False(t, math.IsNaN(pt.Profit), "profit must stay finite at %v", pt.Price)
		assert.Equal(t, clean[i].Profit, pt.Profit)
	}
}

func TestBreakEvensLongCall(t *testing.T) {
	points := Compute([]Leg{longCall(100, 5)}, 100)
	crossings := BreakEvens(points)
	require.Len(t, crossings, 1)
	assert.InDelta(t, 105, crossings[0], 0.05)
}

func TestBreakEvensMonotonicCurve(t *testing.T) {
	// 深度价内买权：全区间盈利，无交点，属正常结果
	points := Compute([]Leg{longCall(50, 1)}, 100)
	assert.Empty(t, BreakEvens(points))
}

func TestBreakEvensIronCondor(t *testing.T) {
	legs := []Leg{
		{Type: OptionCall, Action: ActionSell, Strike: 200, Quantity: 1, Premium: 3},
		{Type: OptionCall, Action: ActionBuy, Strike: 205, Quantity: 1, Premium: 1.5},
		{Type: OptionPut, Action: ActionSell, Strike: 190, Quantity: 1, Premium: 3},
		{Type: OptionPut, Action: ActionBuy, Strike: 185, Quantity: 1, Premium: 1.5},
	}
	points := Compute(legs, 195)
	metrics := Summarize(legs, points)

	// 净权利金 = 卖出 6 − 买入 3 = 3
	assert.InDelta(t, 3, metrics.NetPremium, 0.001)
	require.Len(t, metrics.BreakEvens, 2)
	lower, upper := metrics.BreakEvens[0], metrics.BreakEvens[1]
	// 盈亏平衡点围绕空头行权价对称分布在净权利金距离处
	assert.InDelta(t, 190-3, lower, 0.3)
	assert.InDelta(t, 200+3, upper, 0.3)
	assert.InDelta(t, 3, metrics.MaxProfit, 0.01)
	assert.InDelta(t, -2, metrics.MaxLoss, 0.01)
}

func TestBreakEvensExactZeroSample(t *testing.T) {
	points := []Point{{Price: 90, Profit: -2}, {Price: 95, Profit: 0}, {Price: 100, Profit: 2}}
	crossings := BreakEvens(points)
	require.Len(t, crossings, 1)
	assert.Equal(t, 95.0, crossings[0])
}

func TestSummarizeNetPremiumQuantity(t *testing.T) {
	legs := []Leg{
		{Type: OptionCall, Action: ActionSell, Strike: 110, Quantity: 3, Premium: 2},
		{Type: OptionCall, Action: ActionBuy, Strike: 115, Quantity: 3, Premium: 0.5},
	}
	m := Summarize(legs, Compute(legs, 100))
	assert.InDelta(t, 4.5, m.NetPremium, 0.001)
}
