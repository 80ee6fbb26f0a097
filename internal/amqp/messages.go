package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"loanbook/internal/core"
)

// SyncOp tells the sync worker what happened to a loan.
type SyncOp string

const (
	OpUpsert SyncOp = "upsert"
	OpDelete SyncOp = "delete"
)

func (op SyncOp) Valid() bool {
	return op == OpUpsert || op == OpDelete
}

// LoanSyncMessage represents a lightweight message for mirroring a loan.
// Contains only the ID and operation, the worker loads the loan itself.
type LoanSyncMessage struct {
	ID        int64     `json:"id"`
	Op        SyncOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLoanSyncMessage creates a new sync message.
func NewLoanSyncMessage(id int64, op SyncOp) *LoanSyncMessage {
	return &LoanSyncMessage{
		ID:        id,
		Op:        op,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LoanSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LoanSyncMessageFromJSON creates a message from JSON bytes
func LoanSyncMessageFromJSON(data []byte) (*LoanSyncMessage, error) {
	var msg LoanSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Op.Valid() {
		return nil, fmt.Errorf("unknown sync op %q", msg.Op)
	}
	return &msg, nil
}

// ReminderMessage carries a payment reminder to downstream consumers.
type ReminderMessage struct {
	core.Reminder
	Timestamp time.Time `json:"timestamp"`
}

func NewReminderMessage(r core.Reminder) *ReminderMessage {
	return &ReminderMessage{Reminder: r, Timestamp: time.Now()}
}

func (m *ReminderMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReminderMessageFromJSON(data []byte) (*ReminderMessage, error) {
	var msg ReminderMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
