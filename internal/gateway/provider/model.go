package provider

import "context"

// ChatPayload 描述一次补全请求。
type ChatPayload struct {
	System     string
	User       string
	ExpectJSON bool
}

// ModelProvider 抽象报告生成所用的聊天模型。
type ModelProvider interface {
	ID() string
	Call(ctx context.Context, payload ChatPayload) (string, error)
}
