package market

import "time"

// Quote 是标的的实时报价快照。
type Quote struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OptionQuote 是单个期权合约的行情。
type OptionQuote struct {
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"` // "call" | "put"
	Strike       float64 `json:"strike"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last"`
	OpenInterest int64   `json:"open_interest"`
	Volume       int64   `json:"volume"`
	IV           float64 `json:"iv,omitempty"`
}

// Mid 返回买卖中间价；任一侧非正时返回 0。
func (q OptionQuote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// Chain 是某标的某到期日的完整期权链。
type Chain struct {
	Symbol    string        `json:"symbol"`
	Spot      float64       `json:"spot"`
	Expiry    string        `json:"expiry"` // YYYY-MM-DD
	Calls     []OptionQuote `json:"calls"`
	Puts      []OptionQuote `json:"puts"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Quotes 按类型返回链中对应方向的合约列表。
func (c *Chain) Quotes(optionType string) []OptionQuote {
	if c == nil {
		return nil
	}
	if optionType == "put" {
		return c.Puts
	}
	return c.Calls
}

// Candle 是一根日线。
type Candle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}
