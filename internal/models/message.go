package models

import "time"

// Message represents an inbound webhook message persisted by the store.
type Message struct {
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	TS        string    `json:"ts"`             // Canonical UTC, see CanonicalTimestamp
	Text      *string   `json:"text,omitempty"` // nil when the sender omitted it
	CreatedAt time.Time `json:"created_at"`
}

// View returns the public projection of the message.
func (m *Message) View() MessageView {
	return MessageView{
		MessageID: m.MessageID,
		From:      m.From,
		To:        m.To,
		TS:        m.TS,
		Text:      m.Text,
	}
}

// MessageView is the read-side representation of a message (no created_at).
type MessageView struct {
	MessageID string  `json:"message_id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	TS        string  `json:"ts"`
	Text      *string `json:"text"`
}
