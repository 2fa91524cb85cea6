package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"thetamind/internal/market"
)

// Snapshot 汇总标的日线的技术面快照，供报告提示词引用。
type Snapshot struct {
	Symbol        string  `json:"symbol"`
	Count         int     `json:"count"`
	LastClose     float64 `json:"last_close"`
	SMA20         float64 `json:"sma20"`
	SMA50         float64 `json:"sma50"`
	EMA21         float64 `json:"ema21"`
	RSI14         float64 `json:"rsi14"`
	ATR14         float64 `json:"atr14"`
	RealizedVol   float64 `json:"realized_vol"` // 年化，20 日对数收益
	TrendState    string  `json:"trend_state"`  // above | below | flat
	MomentumState string  `json:"momentum_state"`
}

// Compute 基于日线计算快照，至少需要 30 根。
func Compute(symbol string, candles []market.Candle) (Snapshot, error) {
	snap := Snapshot{Symbol: symbol, Count: len(candles)}
	if len(candles) < 30 {
		return snap, fmt.Errorf("candles insufficient: got %d, need 30", len(candles))
	}
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}
	snap.LastClose = closes[len(closes)-1]
	snap.SMA20 = lastValid(talib.Sma(closes, 20))
	snap.SMA50 = lastValid(talib.Sma(closes, minInt(50, len(closes)-1)))
	snap.EMA21 = lastValid(talib.Ema(closes, 21))
	snap.RSI14 = lastValid(talib.Rsi(closes, 14))
	snap.ATR14 = lastValid(talib.Atr(highs, lows, closes, 14))
	snap.RealizedVol = realizedVol(closes, 20)
	snap.TrendState = relativeState(snap.LastClose, snap.SMA20)
	snap.MomentumState = rsiState(snap.RSI14)
	return snap, nil
}

// realizedVol 计算 window 日对数收益的年化波动率。
func realizedVol(closes []float64, window int) float64 {
	if len(closes) < window+1 {
		window = len(closes) - 1
	}
	if window < 2 {
		return 0
	}
	returns := make([]float64, 0, window)
	for i := len(closes) - window; i < len(closes); i++ {
		prev := closes[i-1]
		cur := closes[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance) * math.Sqrt(252)
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && v != 0 {
			return v
		}
	}
	return 0
}

func relativeState(price, ref float64) string {
	if ref <= 0 {
		return "flat"
	}
	switch {
	case price > ref*1.001:
		return "above"
	case price < ref*0.999:
		return "below"
	default:
		return "flat"
	}
}

func rsiState(rsi float64) string {
	switch {
	case rsi >= 70:
		return "overbought"
	case rsi <= 30:
		return "oversold"
	default:
		return "neutral"
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
