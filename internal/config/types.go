package config

import "time"

// Config 是 ThetaMind 服务的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Market   MarketConfig   `toml:"market"`
	AI       AIConfig       `toml:"ai"`
	Report   ReportConfig   `toml:"report"`
	Task     TaskConfig     `toml:"task"`
	Store    StoreConfig    `toml:"store"`
	Chart    ChartConfig    `toml:"chart"`
	Billing  BillingConfig  `toml:"billing"`
	Strategy StrategyConfig `toml:"strategy"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// MarketConfig 描述上游行情/期权链数据源。
type MarketConfig struct {
	Provider             string   `toml:"provider"`
	BaseURL              string   `toml:"base_url"`
	APIKey               string   `toml:"api_key"`
	TimeoutSeconds       int      `toml:"timeout_seconds"`
	LiveRefresh          string   `toml:"live_refresh"`           // 实时视图轮询间隔，如 "30s"
	StaticTTL            string   `toml:"static_ttl"`             // 静态视图缓存时长，如 "5m"
	AdjacentStrikeWindow float64  `toml:"adjacent_strike_window"` // 邻近行权价回退窗口（美元）
	LiveSymbols          []string `toml:"live_symbols"`
}

func (m MarketConfig) Timeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// AIConfig 描述 OpenAI 兼容的报告生成模型。
type AIConfig struct {
	Provider       string            `toml:"provider"`
	Model          string            `toml:"model"`
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	MaxRetries     int               `toml:"max_retries"`
	ExtraHeaders   map[string]string `toml:"extra_headers"`
}

type ReportConfig struct {
	Language   string `toml:"language"`    // 报告语言："zh" | "en"
	SchemaPath string `toml:"schema_path"` // 报告 JSON Schema 文件（空则用内置）
}

type TaskConfig struct {
	Workers int    `toml:"workers"`
	Path    string `toml:"db_path"`
}

type StoreConfig struct {
	Path string `toml:"db_path"`
}

type ChartConfig struct {
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	OutputDir string `toml:"output_dir"`
}

// BillingConfig 控制报告生成的额度扣费。
type BillingConfig struct {
	InitialCredits string `toml:"initial_credits"` // 新账本初始额度（十进制字符串）
	ReportCost     string `toml:"report_cost"`     // 单份报告消耗额度
}

type StrategyConfig struct {
	TemplatesPath string `toml:"templates_path"`
}
