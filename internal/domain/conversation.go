package domain

import "time"

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a generator prompt.
type ChatMessage struct {
	Role    Role
	Content string
}

// Conversation groups messages under a client-visible session id.
type Conversation struct {
	ID        string
	SessionID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a persisted chat turn.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	Metadata       map[string]any
	Citations      []Citation
	CreatedAt      time.Time
}

// LastTurns returns up to n user/assistant turns from messages, oldest first.
// Messages with other roles are ignored.
func LastTurns(messages []*Message, n int) []ChatMessage {
	if n <= 0 {
		return nil
	}
	turns := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		turns = append(turns, ChatMessage{Role: m.Role, Content: m.Content})
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}
