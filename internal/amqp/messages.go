package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types, carried in the AMQP Type property.
const (
	TypeLedgerEntry  = "ledger.entry"
	TypeDebtReminder = "debt.reminder"
)

// Ledger actions.
const (
	ActionCreate = "create"
	ActionDelete = "delete"
	ActionPay    = "pay"
)

// LedgerEventMessage announces a change to a sale, expense or debt.
// It carries identifiers only; consumers load the entity from the database.
type LedgerEventMessage struct {
	Kind      string    `json:"kind"`
	ShopID    string    `json:"shop_id"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Action    string    `json:"action"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(shopID, entity, entityID, action string) *LedgerEventMessage {
	return &LedgerEventMessage{
		Kind:      TypeLedgerEntry,
		ShopID:    shopID,
		Entity:    entity,
		EntityID:  entityID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.EntityID == "" || msg.Entity == "" {
		return nil, fmt.Errorf("ledger event without entity")
	}
	return &msg, nil
}

// DebtReminderMessage asks for a customer to be reminded of an open debt.
type DebtReminderMessage struct {
	Kind          string    `json:"kind"`
	ShopID        string    `json:"shop_id"`
	DebtID        string    `json:"debt_id"`
	Customer      string    `json:"customer"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	Remaining     int64     `json:"remaining"`
	RemindersSent int       `json:"reminders_sent"`
	Timestamp     time.Time `json:"timestamp"`
}

func (m *DebtReminderMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DebtReminderMessageFromJSON(data []byte) (*DebtReminderMessage, error) {
	var msg DebtReminderMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.DebtID == "" {
		return nil, fmt.Errorf("debt reminder without debt id")
	}
	return &msg, nil
}
