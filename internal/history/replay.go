package history

import "SuiCoPilot/internal/conversation"

// Replay 将记录展开为聊天消息：每条记录先产生用户消息再产生助手消息。
// 用户消息 ID 为 2*记录ID，助手消息 ID 为用户消息 ID + 1，保证同一对消息不冲突。
func Replay(records []Record) []conversation.Message {
	messages := make([]conversation.Message, 0, len(records)*2)
	for _, record := range records {
		userID := record.ID * 2
		messages = append(messages,
			conversation.NewUserMessage(userID, record.Prompt),
			conversation.NewAssistantMessage(userID+1, record.Response),
		)
	}
	return messages
}
