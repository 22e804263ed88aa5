package chat

// SendMessageRequest is the chat turn payload. ConversationID may be blank
// to start a new thread; Model may be blank to use the default.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Model          string `json:"model"`
	Message        string `json:"message" binding:"required"`
}

// ConversationDetail is a thread plus its full message history.
type ConversationDetail struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []*Message    `json:"messages"`
}
