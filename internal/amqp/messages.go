package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a committed ledger mutation.
type EventType string

const (
	EventTransactionCreated  EventType = "transaction.created"
	EventTransactionDeleted  EventType = "transaction.deleted"
	EventGoalCreated         EventType = "goal.created"
	EventGoalUpdated         EventType = "goal.updated"
	EventGoalDeleted         EventType = "goal.deleted"
	EventContributionAdded   EventType = "goal.contribution.added"
	EventContributionRevised EventType = "goal.contribution.revised"
	EventContributionRemoved EventType = "goal.contribution.removed"
	EventDebtCreated         EventType = "debt.created"
	EventDebtUpdated         EventType = "debt.updated"
	EventDebtDeleted         EventType = "debt.deleted"
	EventPaymentAdded        EventType = "debt.payment.added"
	EventPaymentRevised      EventType = "debt.payment.revised"
	EventPaymentRemoved      EventType = "debt.payment.removed"
)

// LedgerEvent is published after a mutation commits. It carries enough to
// mirror the activity without reading the database.
type LedgerEvent struct {
	Type        EventType `json:"type"`
	OwnerID     string    `json:"owner_id"`
	Entity      string    `json:"entity"`
	EntityID    int64     `json:"entity_id"`
	Name        string    `json:"name,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps an event with the current time.
func NewLedgerEvent(typ EventType, ownerID, entity string, id int64) *LedgerEvent {
	return &LedgerEvent{
		Type:      typ,
		OwnerID:   ownerID,
		Entity:    entity,
		EntityID:  id,
		Timestamp: time.Now().UTC(),
	}
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and sanity-checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Type == "" || ev.OwnerID == "" {
		return nil, fmt.Errorf("ledger event missing type or owner")
	}
	return &ev, nil
}
