package provider

import (
	"fmt"
	"strings"
	"time"

	"thetamind/internal/config"
)

// BuildProviderFromConfig 根据配置构建报告生成模型。
func BuildProviderFromConfig(cfg config.AIConfig) (ModelProvider, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("ai.model 不能为空")
	}
	base := strings.TrimSpace(cfg.Provider)
	if base == "" {
		base = "openai"
	}
	client := &OpenAIChatClient{
		BaseURL:      cfg.APIURL,
		APIKey:       cfg.APIKey,
		Model:        model,
		MaxRetries:   cfg.MaxRetries,
		ExtraHeaders: cfg.ExtraHeaders,
	}
	if cfg.TimeoutSeconds > 0 {
		client.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return NewOpenAIModelProvider(fmt.Sprintf("%s:%s", base, model), client), nil
}
