package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9992"
	defaultMarketProvider  = "tradier"
	defaultMarketBaseURL   = "https://api.tradier.com/v1"
	defaultMarketLiveEvery = "30s"
	defaultMarketStaticTTL = "5m"
	defaultAdjacentWindow  = 10.0
	defaultAIProvider      = "openai"
	defaultAIAPIURL        = "https://api.openai.com/v1"
	defaultAITimeout       = 60
	defaultReportLanguage  = "zh"
	defaultTaskWorkers     = 2
	defaultTaskDBPath      = "data/tasks.db"
	defaultStoreDBPath     = "data/thetamind.db"
	defaultChartWidth      = 960
	defaultChartHeight     = 540
	defaultChartOutputDir  = "data/exports"
	defaultInitialCredits  = "100"
	defaultReportCost      = "1"
	defaultTemplatesPath   = "configs/strategy_templates.yaml"
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Market.applyDefaults()
	c.AI.applyDefaults()
	c.Report.applyDefaults()
	c.Task.applyDefaults()
	c.Store.applyDefaults()
	c.Chart.applyDefaults()
	c.Billing.applyDefaults()
	c.Strategy.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if strings.TrimSpace(a.Env) == "" {
		a.Env = defaultAppEnv
	}
	if strings.TrimSpace(a.LogLevel) == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (m *MarketConfig) applyDefaults() {
	if strings.TrimSpace(m.Provider) == "" {
		m.Provider = defaultMarketProvider
	}
	if strings.TrimSpace(m.BaseURL) == "" {
		m.BaseURL = defaultMarketBaseURL
	}
	if strings.TrimSpace(m.LiveRefresh) == "" {
		m.LiveRefresh = defaultMarketLiveEvery
	}
	if strings.TrimSpace(m.StaticTTL) == "" {
		m.StaticTTL = defaultMarketStaticTTL
	}
	if m.AdjacentStrikeWindow <= 0 {
		m.AdjacentStrikeWindow = defaultAdjacentWindow
	}
}

func (a *AIConfig) applyDefaults() {
	if strings.TrimSpace(a.Provider) == "" {
		a.Provider = defaultAIProvider
	}
	if strings.TrimSpace(a.APIURL) == "" {
		a.APIURL = defaultAIAPIURL
	}
	if a.TimeoutSeconds <= 0 {
		a.TimeoutSeconds = defaultAITimeout
	}
}

func (r *ReportConfig) applyDefaults() {
	if strings.TrimSpace(r.Language) == "" {
		r.Language = defaultReportLanguage
	}
}

func (t *TaskConfig) applyDefaults() {
	if t.Workers <= 0 {
		t.Workers = defaultTaskWorkers
	}
	if strings.TrimSpace(t.Path) == "" {
		t.Path = defaultTaskDBPath
	}
}

func (s *StoreConfig) applyDefaults() {
	if strings.TrimSpace(s.Path) == "" {
		s.Path = defaultStoreDBPath
	}
}

func (c *ChartConfig) applyDefaults() {
	if c.Width <= 0 {
		c.Width = defaultChartWidth
	}
	if c.Height <= 0 {
		c.Height = defaultChartHeight
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		c.OutputDir = defaultChartOutputDir
	}
}

func (b *BillingConfig) applyDefaults() {
	if strings.TrimSpace(b.InitialCredits) == "" {
		b.InitialCredits = defaultInitialCredits
	}
	if strings.TrimSpace(b.ReportCost) == "" {
		b.ReportCost = defaultReportCost
	}
}

func (s *StrategyConfig) applyDefaults() {
	if strings.TrimSpace(s.TemplatesPath) == "" {
		s.TemplatesPath = defaultTemplatesPath
	}
}
