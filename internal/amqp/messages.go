package amqp

import (
	"encoding/json"
	"time"
)

// LedgerChangeMessage announces a committed ledger mutation. It carries only
// identifiers; consumers fetch whatever state they need from the database.
type LedgerChangeMessage struct {
	UserID    int64     `json:"user_id"`
	EventID   int64     `json:"event_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangeMessage(userID, eventID int64, action string) *LedgerChangeMessage {
	return &LedgerChangeMessage{
		UserID:    userID,
		EventID:   eventID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (m *LedgerChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangeMessageFromJSON(data []byte) (*LedgerChangeMessage, error) {
	var msg LedgerChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
