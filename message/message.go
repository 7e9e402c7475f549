package message

import "time"

// Role represents the role of the message sender
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single message in a conversation
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage creates a new message with the given role and content
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Clone creates a deep copy of the message.
func Clone(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	cloned := *msg
	if msg.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}

// CloneMessages copies a slice of messages.
func CloneMessages(msgs []*Message) []*Message {
	if len(msgs) == 0 {
		return nil
	}
	clones := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		clones = append(clones, Clone(msg))
	}
	return clones
}

// SystemText concatenates the content of all system messages in order.
func SystemText(msgs []*Message) string {
	var out string
	for _, msg := range msgs {
		if msg == nil || msg.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += msg.Content
	}
	return out
}

// Conversation returns the non-system messages in order.
func Conversation(msgs []*Message) []*Message {
	var out []*Message
	for _, msg := range msgs {
		if msg == nil || msg.Role == RoleSystem {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// generateID generates a unique message ID
func generateID() string {
	return time.Now().Format("20060102150405.000000")
}
