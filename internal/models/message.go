package models

import "time"

// Message is one entry of the room's message sequence.
type Message struct {
	ID           string     `json:"id"`
	Author       string     `json:"username"`
	Body         Body       `json:"content"`
	SentAt       time.Time  `json:"timestamp"`
	Color        string     `json:"userColor,omitempty"`
	IsPinned     bool       `json:"isPinned"`
	IsDeleted    bool       `json:"isDeleted,omitempty"`
	EditedAt     *time.Time `json:"editedAt,omitempty"`
	OriginalBody *Body      `json:"originalContent,omitempty"`
	IsSystem     bool       `json:"isSystem,omitempty"`
}

// PrivateMessage is a direct message between two users, outside the room sequence.
type PrivateMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Counterpart returns the other side of the conversation as seen by self.
func (m PrivateMessage) Counterpart(self string) string {
	if m.From == self {
		return m.To
	}
	return m.From
}
