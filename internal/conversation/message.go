package conversation

import "strings"

// Role 表示消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Reference 是附在助手回复上的参考链接。
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Message 是一条聊天消息，创建后不再修改。
type Message struct {
	ID           int64       `json:"id"`
	Role         Role        `json:"role"`
	Content      string      `json:"content"`
	CodeSnippets []string    `json:"codeSnippets"`
	References   []Reference `json:"references,omitempty"`
}

// NewUserMessage 构造用户消息。
func NewUserMessage(id int64, content string) Message {
	return Message{ID: id, Role: RoleUser, Content: content, CodeSnippets: []string{}}
}

// NewAssistantMessage 构造助手消息，并从正文中提取代码片段。
func NewAssistantMessage(id int64, content string, refs ...Reference) Message {
	return Message{
		ID:           id,
		Role:         RoleAssistant,
		Content:      content,
		CodeSnippets: ExtractCodeSnippets(content),
		References:   append([]Reference(nil), refs...),
	}
}

// Turn 是发给大模型的一轮上下文。
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastTurns 返回最近 n 条消息对应的上下文轮次，保持原有顺序。
func LastTurns(messages []Message, n int) []Turn {
	if n <= 0 || len(messages) == 0 {
		return nil
	}
	start := len(messages) - n
	if start < 0 {
		start = 0
	}
	turns := make([]Turn, 0, len(messages)-start)
	for _, m := range messages[start:] {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}
