package models

// SenderCount is the number of messages sent from a single address.
type SenderCount struct {
	From  string `json:"from"`
	Count int64  `json:"count"`
}

// Stats is the aggregate summary over every stored message.
type Stats struct {
	TotalMessages  int64         `json:"total_messages"`
	UniqueSenders  int64         `json:"unique_senders"`
	TopSenders     []SenderCount `json:"top_senders"`
	FirstMessageTS *string       `json:"first_message_ts"`
	LastMessageTS  *string       `json:"last_message_ts"`
}
