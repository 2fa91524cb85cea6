// Package symbol handles OCC-style option symbols, e.g. AAPL240119C00190000.
package symbol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Components holds the parsed pieces of an OCC option symbol.
type Components struct {
	Underlying string
	Expiration time.Time
	OptionType string // "C" | "P"
	Strike     float64
}

// Build 组装 OCC 期权代码：标的 + YYMMDD + C/P + 行权价×1000（8 位补零）。
func Build(underlying string, expiration time.Time, optionType string, strike float64) (string, error) {
	underlying = strings.ToUpper(strings.TrimSpace(underlying))
	if underlying == "" {
		return "", fmt.Errorf("underlying is required")
	}
	optionType = strings.ToUpper(strings.TrimSpace(optionType))
	if optionType != "C" && optionType != "P" {
		return "", fmt.Errorf("option type must be C or P, got %q", optionType)
	}
	if strike <= 0 {
		return "", fmt.Errorf("strike must be positive, got %v", strike)
	}
	milli := int64(strike*1000 + 0.5)
	return fmt.Sprintf("%s%s%s%08d", underlying, expiration.Format("060102"), optionType, milli), nil
}

// Parse 解析 OCC 期权代码（容忍 Polygon 风格的 "O:" 前缀）。
func Parse(raw string) (Components, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "O:")
	// 末尾固定 15 位：YYMMDD + C/P + 8 位行权价
	if len(s) < 16 {
		return Components{}, fmt.Errorf("option symbol too short: %q", raw)
	}
	tail := s[len(s)-15:]
	underlying := s[:len(s)-15]
	if underlying == "" {
		return Components{}, fmt.Errorf("option symbol missing underlying: %q", raw)
	}
	exp, err := time.Parse("060102", tail[:6])
	if err != nil {
		return Components{}, fmt.Errorf("invalid expiration in %q: %w", raw, err)
	}
	optType := string(tail[6])
	if optType != "C" && optType != "P" {
		return Components{}, fmt.Errorf("invalid option type in %q", raw)
	}
	milli, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return Components{}, fmt.Errorf("invalid strike in %q: %w", raw, err)
	}
	return Components{
		Underlying: underlying,
		Expiration: exp,
		OptionType: optType,
		Strike:     float64(milli) / 1000,
	}, nil
}

// Description 返回人类可读描述，如 "AAPL Jan 19 2024 $190.00 Call"。
func (c Components) Description() string {
	kind := "Call"
	if c.OptionType == "P" {
		kind = "Put"
	}
	return fmt.Sprintf("%s %s $%.2f %s", c.Underlying, c.Expiration.Format("Jan 2 2006"), c.Strike, kind)
}
