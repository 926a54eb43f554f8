package llm

import (
	"encoding/json"
	"strings"
)

// SystemMessage 将系统提示与上下文拼接为最终的 system 消息。
func SystemMessage(req Request) string {
	system := strings.TrimSpace(req.System)
	if system == "" {
		system = DefaultSystemPrompt
	}
	if req.Context == nil {
		return system
	}
	encoded, err := json.Marshal(req.Context)
	if err != nil || string(encoded) == "null" || string(encoded) == "{}" {
		return system
	}
	return system + "\n\nContext: " + string(encoded)
}
