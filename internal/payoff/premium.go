package payoff

import (
	"math"
	"strings"

	"thetamind/internal/market"
)

// 权利金解析链：优先取同行权价同方向的买卖中间价；无精确匹配时，
// 在有界距离内回退到最邻近行权价；仍无则使用腿上存储的权利金。
// 图表、表格、导出共用同一条链，避免不同页面出现不一致的权利金。

// DefaultAdjacentWindow 是邻近行权价回退的默认距离上限（美元）。
const DefaultAdjacentWindow = 10.0

// ResolvePremium 返回单条腿的有效权利金。
func ResolvePremium(leg Leg, chain *market.Chain, adjacentWindow float64) float64 {
	if chain == nil {
		return leg.Premium
	}
	if adjacentWindow <= 0 {
		adjacentWindow = DefaultAdjacentWindow
	}
	quotes := chain.Quotes(normalizeType(leg.Type))
	if mid, ok := exactMid(quotes, leg.Strike); ok {
		return mid
	}
	if mid, ok := nearestMid(quotes, leg.Strike, adjacentWindow); ok {
		return mid
	}
	return leg.Premium
}

// ResolveLegs 返回应用了权利金解析链的腿副本，原切片不变。
func ResolveLegs(legs []Leg, chain *market.Chain, adjacentWindow float64) []Leg {
	if chain == nil || len(legs) == 0 {
		return legs
	}
	out := make([]Leg, len(legs))
	copy(out, legs)
	for i := range out {
		out[i].Premium = ResolvePremium(out[i], chain, adjacentWindow)
	}
	return out
}

func exactMid(quotes []market.OptionQuote, strike float64) (float64, bool) {
	for _, q := range quotes {
		if q.Strike != strike {
			continue
		}
		if mid := q.Mid(); mid > 0 && isFinite(mid) {
			return mid, true
		}
	}
	return 0, false
}

func nearestMid(quotes []market.OptionQuote, strike, window float64) (float64, bool) {
	best := math.Inf(1)
	var bestMid float64
	for _, q := range quotes {
		dist := math.Abs(q.Strike - strike)
		if dist == 0 || dist > window || dist >= best {
			continue
		}
		if mid := q.Mid(); mid > 0 && isFinite(mid) {
			best = dist
			bestMid = mid
		}
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	return bestMid, true
}

func normalizeType(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), OptionPut) {
		return OptionPut
	}
	return OptionCall
}
