// Package payoff computes option strategy P/L curves and break-even prices.
package payoff

import (
	"math"
	"strings"
)

const (
	OptionCall = "call"
	OptionPut  = "put"

	ActionBuy  = "buy"
	ActionSell = "sell"
)

// 模拟窗口为现价的 ±30%，200 个采样点在视觉平滑和计算量之间取平衡。
const (
	windowLow  = 0.7
	windowHigh = 1.3
	steps      = 200
)

// Leg 是策略中的一条期权腿。
type Leg struct {
	Type     string  `json:"type"`   // "call" | "put"
	Action   string  `json:"action"` // "buy" | "sell"
	Strike   float64 `json:"strike"`
	Quantity int     `json:"quantity"`
	Premium  float64 `json:"premium"`
	Expiry   string  `json:"expiry,omitempty"` // 仅展示用，不参与计算
}

// Valid 判断该腿是否可参与计算：行权价为正且有限，权利金有限。
func (l Leg) Valid() bool {
	if !isFinite(l.Strike) || l.Strike <= 0 {
		return false
	}
	if !isFinite(l.Premium) {
		return false
	}
	return l.Quantity > 0
}

// Intrinsic 返回该腿在标的价 p 下的内在价值。
func (l Leg) Intrinsic(p float64) float64 {
	if strings.EqualFold(l.Type, OptionPut) {
		return math.Max(0, l.Strike-p)
	}
	return math.Max(0, p-l.Strike)
}

// Point 是 P/L 曲线上的一个采样点。
type Point struct {
	Price  float64 `json:"price"`
	Profit float64 `json:"profit"`
}

// Compute 计算策略在 [0.7·spot, 1.3·spot] 区间上的 P/L 曲线。
// spot 非正或非有限时返回空切片（数据不足，不是错误）。
// 无效腿按零贡献跳过，保证聚合值始终有限。
// 相同输入总是产生逐字节相同的输出。
func Compute(legs []Leg, spot float64) []Point {
	if !isFinite(spot) || spot <= 0 {
		return nil
	}
	low := spot * windowLow
	step := spot * (windowHigh - windowLow) / steps
	points := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		p := low + float64(i)*step
		total := 0.0
		for _, leg := range legs {
			if !leg.Valid() {
				continue
			}
			contribution := leg.Intrinsic(p) - leg.Premium
			if strings.EqualFold(leg.Action, ActionSell) {
				contribution = -contribution
			}
			total += contribution * float64(leg.Quantity)
		}
		points = append(points, Point{
			Price:  round2(p),
			Profit: round2(total),
		})
	}
	return points
}

// BreakEvens 返回曲线与零轴的全部交点（线性插值），升序。
// 恰好为零的采样点也计为交点。全盈或全亏曲线返回空，属正常结果。
func BreakEvens(points []Point) []float64 {
	var crossings []float64
	for i := 1; i < len(points); i++ {
		p1, p2 := points[i-1], points[i]
		if p1.Profit == 0 {
			appendCrossing(&crossings, p1.Price)
			continue
		}
		if p2.Profit == 0 {
			// 下一轮迭代在左端点处记录
			continue
		}
		if (p1.Profit < 0) == (p2.Profit < 0) {
			continue
		}
		price := p1.Price + (0-p1.Profit)/(p2.Profit-p1.Profit)*(p2.Price-p1.Price)
		appendCrossing(&crossings, round2(price))
	}
	if len(points) > 0 {
		last := points[len(points)-1]
		if last.Profit == 0 {
			appendCrossing(&crossings, last.Price)
		}
	}
	return crossings
}

func appendCrossing(crossings *[]float64, price float64) {
	if n := len(*crossings); n > 0 && (*crossings)[n-1] == price {
		return
	}
	*crossings = append(*crossings, price)
}

// Metrics 汇总一条曲线的关键指标，供表格与报告提示词使用。
type Metrics struct {
	NetPremium float64   `json:"net_premium"` // 收取为正，付出为负
	MaxProfit  float64   `json:"max_profit"`  // 模拟窗口内最大盈利
	MaxLoss    float64   `json:"max_loss"`    // 模拟窗口内最大亏损（负值或零）
	BreakEvens []float64 `json:"break_evens"`
}

// Summarize 基于同一条曲线派生指标，保证图表与表格一致。
func Summarize(legs []Leg, points []Point) Metrics {
	m := Metrics{BreakEvens: BreakEvens(points)}
	for _, leg := range legs {
		if !leg.Valid() {
			continue
		}
		premium := leg.Premium * float64(leg.Quantity)
		if strings.EqualFold(leg.Action, ActionSell) {
			m.NetPremium += premium
		} else {
			m.NetPremium -= premium
		}
	}
	m.NetPremium = round2(m.NetPremium)
	for i, pt := range points {
		if i == 0 {
			m.MaxProfit = pt.Profit
			m.MaxLoss = pt.Profit
			continue
		}
		if pt.Profit > m.MaxProfit {
			m.MaxProfit = pt.Profit
		}
		if pt.Profit < m.MaxLoss {
			m.MaxLoss = pt.Profit
		}
	}
	return m
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
