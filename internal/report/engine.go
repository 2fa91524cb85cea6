package report

import (
	"context"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"thetamind/internal/config"
	"thetamind/internal/gateway/provider"
	"thetamind/internal/logger"
)

// Engine 驱动一次报告生成：组织提示词 → 调用模型 → 校验输出。
type Engine struct {
	provider provider.ModelProvider
	schema   *jsonschema.Schema
	language string
}

func NewEngine(p provider.ModelProvider, cfg config.ReportConfig) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("report engine requires a model provider")
	}
	schema, err := compileSchema(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}
	return &Engine{provider: p, schema: schema, language: cfg.Language}, nil
}

// Generate 生成一份报告。输出未通过校验时带着错误反馈重试一次。
func (e *Engine) Generate(ctx context.Context, in Input) (*Report, error) {
	if err := in.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("策略无效，无法生成报告: %w", err)
	}
	system := systemPrompt(e.language)
	user := buildUserPrompt(in)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		prompt := user
		if lastErr != nil {
			prompt = fmt.Sprintf("%s\n\n上一次输出未通过校验（%v），请严格按要求只输出 JSON 对象。", user, lastErr)
		}
		raw, err := e.provider.Call(ctx, provider.ChatPayload{System: system, User: prompt, ExpectJSON: true})
		if err != nil {
			return nil, fmt.Errorf("调用模型失败: %w", err)
		}
		content, extracted, err := parseAndValidate(e.schema, raw)
		if err != nil {
			logger.Warnf("报告输出校验失败（第 %d 次）: %v", attempt+1, err)
			lastErr = err
			continue
		}
		return &Report{
			Symbol:    in.Strategy.Symbol,
			Model:     e.provider.ID(),
			Content:   content,
			RawJSON:   extracted,
			CreatedAt: time.Now(),
		}, nil
	}
	return nil, fmt.Errorf("报告生成失败: %w", lastErr)
}
