package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, true},
		{"prose around object", `结论如下：{"a": 1} 以上。`, `{"a": 1}`, true},
		{"fenced json", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"fenced no lang", "```\n[1, 2]\n```", `[1, 2]`, true},
		{"nested braces", `{"a": {"b": [1, {"c": 2}]}}`, `{"a": {"b": [1, {"c": 2}]}}`, true},
		{"brace inside string", `{"msg": "use { carefully"}`, `{"msg": "use { carefully"}`, true},
		{"escaped quote", `{"msg": "he said \"hi\" }"}`, `{"msg": "he said \"hi\" }"}`, true},
		{"array only", `前缀 [1, 2, 3]`, `[1, 2, 3]`, true},
		{"unbalanced", `{"a": 1`, "", false},
		{"empty", "   ", "", false},
		{"no json", "没有结构化内容", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractJSON(tc.in)
			require.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
