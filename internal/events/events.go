package events

import (
	"github.com/shopspring/decimal"
)

// Event types
const (
	TransactionCreated = "transaction.created"
	BalanceUpdated     = "balance.updated"
	UserCreated        = "user.created"
)

// Stream names
const (
	TransactionEventsStream = "transaction.events"
	UserEventsStream        = "user.events"
)

type TransactionCreatedEvent struct {
	TransactionID string          `json:"transactionId"`
	InitiatorID   string          `json:"initiatorId"`
	RecipientID   string          `json:"recipientId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
}

type BalanceUpdatedEvent struct {
	UserID     string          `json:"userId"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

type UserCreatedEvent struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}
