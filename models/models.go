package models

import "time"

// Message is one stored direct message. Immutable once written; Seq is
// assigned by the store and increases monotonically within a conversation.
type Message struct {
	ID        int64
	Seq       int64
	Sender    string
	Recipient string
	Text      string
	Timestamp time.Time
}
