package node

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "纯 JSON 原样返回",
			input: `{"a":1}`,
			want:  `{"a":1}`,
		},
		{
			name:  "markdown 围栏包裹",
			input: "```json\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "前后夹杂说明文本",
			input: "好的，结果如下：{\"isAnswerExtracted\": true, \"extractedAnswer\": \"张三\"} 希望有帮助",
			want:  `{"isAnswerExtracted": true, "extractedAnswer": "张三"}`,
		},
		{
			name:  "数组形式",
			input: "result: [1, 2, 3]",
			want:  `[1, 2, 3]`,
		},
		{
			name:  "空输入",
			input: "   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSONObject(tt.input)
			if got != tt.want {
				t.Errorf("ExtractJSONObject(%q) = %q, 期望 %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractJSONObjectUnmarshalable(t *testing.T) {
	// 截取结果应能直接反序列化
	out := ExtractJSONObject("模型回复：\n```json\n{\"name\": \"反馈会话\", \"reasoning\": \"包含两个答案\"}\n```\n")
	var parsed struct {
		Name      string `json:"name"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("截取结果无法反序列化: %v (%q)", err, out)
	}
	if parsed.Name != "反馈会话" {
		t.Errorf("期望 name 为 反馈会话，实际为 %s", parsed.Name)
	}
}
