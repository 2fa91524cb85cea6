package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"thetamind/internal/pkg/jsonutil"
)

// 内置的报告结构 Schema；可被 report.schema_path 覆盖。
const builtinSchema = `{
  "type": "object",
  "required": ["summary", "outlook", "risk_level", "key_points", "risks"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "outlook": {"enum": ["bullish", "bearish", "neutral", "volatile"]},
    "risk_level": {"enum": ["low", "medium", "high"]},
    "key_points": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "risks": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "suggestions": {"type": "array", "items": {"type": "string"}}
  }
}`

func compileSchema(path string) (*jsonschema.Schema, error) {
	raw := builtinSchema
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取报告 schema 失败: %w", err)
		}
		raw = string(data)
	}
	schema, err := jsonschema.CompileString("report.schema.json", raw)
	if err != nil {
		return nil, fmt.Errorf("编译报告 schema 失败: %w", err)
	}
	return schema, nil
}

// parseAndValidate 从模型原始输出中提取 JSON，先做结构探测再做 schema 校验。
func parseAndValidate(schema *jsonschema.Schema, raw string) (Content, string, error) {
	extracted, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return Content{}, "", fmt.Errorf("模型输出中未找到 JSON")
	}
	if !gjson.Valid(extracted) {
		return Content{}, "", fmt.Errorf("模型输出的 JSON 无效")
	}
	if !gjson.Parse(extracted).IsObject() {
		return Content{}, "", fmt.Errorf("报告根节点必须是 JSON 对象")
	}
	var doc any
	if err := json.Unmarshal([]byte(extracted), &doc); err != nil {
		return Content{}, "", err
	}
	if err := schema.Validate(doc); err != nil {
		return Content{}, "", fmt.Errorf("报告结构校验失败: %w", err)
	}
	var content Content
	if err := json.Unmarshal([]byte(extracted), &content); err != nil {
		return Content{}, "", err
	}
	return content, extracted, nil
}
