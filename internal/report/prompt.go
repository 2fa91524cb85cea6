package report

import (
	"fmt"
	"strings"
)

const systemPromptZH = `你是一名期权策略分析师。基于给定的策略结构、盈亏指标与技术面快照，
输出一份严谨、客观的分析报告。只输出一个 JSON 对象，不要輸出任何其他文字，结构如下：
{
  "summary": "两三句话的总体评价",
  "outlook": "bullish|bearish|neutral|volatile",
  "risk_level": "low|medium|high",
  "key_points": ["要点……"],
  "risks": ["风险……"],
  "suggestions": ["可选的调整建议……"]
}
不要虚构数据，指标缺失时基于结构本身分析。`

const systemPromptEN = `You are an options strategy analyst. Based on the given strategy structure,
P/L metrics and technical snapshot, produce a rigorous, objective report.
Output exactly one JSON object and nothing else, shaped as:
{
  "summary": "...",
  "outlook": "bullish|bearish|neutral|volatile",
  "risk_level": "low|medium|high",
  "key_points": ["..."],
  "risks": ["..."],
  "suggestions": ["..."]
}
Do not invent data; when indicators are missing, reason from the structure alone.`

func systemPrompt(language string) string {
	if strings.EqualFold(language, "en") {
		return systemPromptEN
	}
	return systemPromptZH
}

func buildUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## 策略\n标的: %s\n名称: %s\n", in.Strategy.Symbol, in.Strategy.Name)
	if in.Strategy.Expiry != "" {
		fmt.Fprintf(&b, "到期日: %s\n", in.Strategy.Expiry)
	}
	fmt.Fprintf(&b, "现价: %.2f\n\n### 腿\n", in.Spot)
	for i, leg := range in.Strategy.Legs {
		fmt.Fprintf(&b, "%d. %s %s 行权价 %.2f × %d，权利金 %.2f\n",
			i+1, leg.Action, leg.Type, leg.Strike, leg.Quantity, leg.Premium)
	}
	fmt.Fprintf(&b, "\n## 盈亏指标（±30%% 模拟区间）\n净权利金: %.2f\n最大盈利: %.2f\n最大亏损: %.2f\n",
		in.Metrics.NetPremium, in.Metrics.MaxProfit, in.Metrics.MaxLoss)
	if len(in.Metrics.BreakEvens) == 0 {
		b.WriteString("盈亏平衡点: 区间内无交点\n")
	} else {
		b.WriteString("盈亏平衡点:")
		for _, be := range in.Metrics.BreakEvens {
			fmt.Fprintf(&b, " %.2f", be)
		}
		b.WriteString("\n")
	}
	if snap := in.Indicators; snap != nil {
		fmt.Fprintf(&b, "\n## 技术面快照（日线，%d 根）\n收盘: %.2f\nSMA20: %.2f（价格 %s）\nRSI14: %.1f（%s）\nATR14: %.2f\n年化波动率: %.1f%%\n",
			snap.Count, snap.LastClose, snap.SMA20, snap.TrendState, snap.RSI14, snap.MomentumState,
			snap.ATR14, snap.RealizedVol*100)
	} else {
		b.WriteString("\n## 技术面快照\n（历史数据不足，未提供）\n")
	}
	return b.String()
}
