package domain

import "time"

const (
	MessageUser   = "user"
	MessageSystem = "system"
)

// ChatMessage is one entry of a room's ordered chat log.
type ChatMessage struct {
	Type      string   `json:"type"`
	User      Identity `json:"user,omitempty"`
	Text      string   `json:"text"`
	Time      string   `json:"time"`
	Timestamp int64    `json:"timestamp"`
}

func NewUserMessage(from Identity, text string) ChatMessage {
	now := time.Now()
	return ChatMessage{
		Type:      MessageUser,
		User:      from,
		Text:      text,
		Time:      now.Format("15:04:05"),
		Timestamp: now.UnixMilli(),
	}
}

func NewSystemMessage(text string) ChatMessage {
	now := time.Now()
	return ChatMessage{
		Type:      MessageSystem,
		Text:      text,
		Time:      now.Format("15:04:05"),
		Timestamp: now.UnixMilli(),
	}
}
