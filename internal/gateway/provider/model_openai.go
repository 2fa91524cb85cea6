package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"thetamind/internal/logger"
)

// OpenAIChatClient 兼容 OpenAI / DeepSeek / Qwen 的聊天补全接口
// （/v1/chat/completions）。
type OpenAIChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// 针对 429/5xx 的有限重试；0 表示默认重试 2 次
	MaxRetries   int
	ExtraHeaders map[string]string

	httpClient *http.Client
}

// SetHTTPClient sets the HTTP client for testing.
func (c *OpenAIChatClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *OpenAIChatClient) endpoint() string {
	url := strings.TrimSpace(c.BaseURL)
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	// 容忍用户把完整的 /chat/completions 写进配置
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

// CallWithMessages 发起一次补全并返回首个 choice 的内容。
func (c *OpenAIChatClient) CallWithMessages(ctx context.Context, systemPrompt, userPrompt string, expectJSON bool) (string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	url := c.endpoint()

	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})
	body := map[string]any{"model": c.Model, "messages": messages, "temperature": 0.4}
	if expectJSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	b, _ := json.Marshal(body)

	httpc := c.httpClient
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}
	logger.LogLLMRequest("chat", c.Model, "report", systemPrompt, userPrompt, string(b))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := httpc.Do(req)
		if err != nil {
			return "", err
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			derr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if derr != nil {
				return "", derr
			}
			if len(r.Choices) == 0 {
				return "", fmt.Errorf("empty choices")
			}
			out := r.Choices[0].Message.Content
			logger.LogLLMResponse("chat", c.Model, "report", out)
			return out, nil
		}
		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if !retryableStatus(resp.StatusCode) || attempt == maxRetries {
			break
		}
		wait := retryAfter(resp.Header.Get("Retry-After"))
		if wait == 0 {
			// 指数退避：0.8s, 1.6s, 3.2s ...
			wait = 800 * time.Millisecond << attempt
			if wait > 8*time.Second {
				wait = 8 * time.Second
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// OpenAIModelProvider 将 OpenAIChatClient 适配到 ModelProvider。
type OpenAIModelProvider struct {
	id     string
	client *OpenAIChatClient
}

func NewOpenAIModelProvider(id string, client *OpenAIChatClient) *OpenAIModelProvider {
	return &OpenAIModelProvider{id: id, client: client}
}

func (p *OpenAIModelProvider) ID() string { return p.id }

func (p *OpenAIModelProvider) Call(ctx context.Context, payload ChatPayload) (string, error) {
	return p.client.CallWithMessages(ctx, payload.System, payload.User, payload.ExpectJSON)
}
