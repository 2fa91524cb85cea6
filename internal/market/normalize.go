package market

import (
	"strings"

	"github.com/tidwall/gjson"

	"thetamind/internal/pkg/convert"
)

// 上游行情供应商的字段命名并不统一（strike/strike_price、bid/bid_price 等）。
// 统一在入口处归一化成规范结构，下游计算不再做字段名分支。

func pickFloat(node gjson.Result, keys ...string) float64 {
	for _, key := range keys {
		if v := node.Get(key); v.Exists() {
			return convert.ToFloat64(v.Value())
		}
	}
	return 0
}

func pickInt(node gjson.Result, keys ...string) int64 {
	for _, key := range keys {
		if v := node.Get(key); v.Exists() {
			return int64(convert.ToInt(v.Value()))
		}
	}
	return 0
}

func pickString(node gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := node.Get(key); v.Exists() {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

// NormalizeOptionQuote 将任意供应商的合约 JSON 归一化为 OptionQuote。
func NormalizeOptionQuote(node gjson.Result) OptionQuote {
	q := OptionQuote{
		Symbol:       pickString(node, "symbol", "instrument_key", "contract"),
		Strike:       pickFloat(node, "strike", "strike_price", "strikePrice"),
		Bid:          pickFloat(node, "bid", "bid_price", "market_data.bid_price"),
		Ask:          pickFloat(node, "ask", "ask_price", "market_data.ask_price"),
		Last:         pickFloat(node, "last", "ltp", "last_price", "market_data.ltp"),
		OpenInterest: pickInt(node, "open_interest", "oi", "market_data.oi"),
		Volume:       pickInt(node, "volume", "market_data.volume"),
		IV:           pickFloat(node, "iv", "implied_volatility", "greeks.mid_iv"),
	}
	q.Type = normalizeOptionType(pickString(node, "option_type", "type", "side"))
	return q
}

func normalizeOptionType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "call", "c", "ce":
		return "call"
	case "put", "p", "pe":
		return "put"
	default:
		return ""
	}
}

// NormalizeQuote 将供应商的标的报价 JSON 归一化为 Quote。
func NormalizeQuote(node gjson.Result) Quote {
	return Quote{
		Symbol:    strings.ToUpper(pickString(node, "symbol", "ticker")),
		Last:      pickFloat(node, "last", "last_price", "ltp", "close"),
		Bid:       pickFloat(node, "bid", "bid_price"),
		Ask:       pickFloat(node, "ask", "ask_price"),
		Change:    pickFloat(node, "change"),
		ChangePct: pickFloat(node, "change_percentage", "change_pct"),
		Volume:    pickInt(node, "volume", "last_volume"),
	}
}

// NormalizeCandle 将供应商的 K 线 JSON 归一化为 Candle。
func NormalizeCandle(node gjson.Result) Candle {
	return Candle{
		Date:   pickString(node, "date", "time", "t"),
		Open:   pickFloat(node, "open", "o"),
		High:   pickFloat(node, "high", "h"),
		Low:    pickFloat(node, "low", "l"),
		Close:  pickFloat(node, "close", "c"),
		Volume: pickInt(node, "volume", "v"),
	}
}
