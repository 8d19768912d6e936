package service

import (
	"errors"
	"strings"
)

var errNoJSONObject = errors.New("no json object in model output")

// extractJSONObject 从模型输出中截取第一个 JSON 对象。
// 模型偶尔会把结果包在 ```json 代码块里或附带说明文字，这里只保留大括号区间。
func extractJSONObject(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", errNoJSONObject
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return "", errNoJSONObject
	}

	return trimmed[start : end+1], nil
}
