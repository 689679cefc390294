// Package domain defines the persisted entities and their repositories.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegisteredUser links a Slack account to its Synapse counterpart. At most one
// record exists per slack user id, and a synapse user id belongs to exactly
// one record.
type RegisteredUser struct {
	ChatUserID    string    `bson:"chat_user_id" json:"chat_user_id"`
	RemoteUserID  string    `bson:"remote_user_id" json:"remote_user_id"`
	DebitNodeID   string    `bson:"debit_node_id,omitempty" json:"debit_node_id,omitempty"`
	SavingsNodeID string    `bson:"savings_node_id,omitempty" json:"savings_node_id,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// RecurringTransaction records the intent to repeat a transfer every
// Periodicity days. The bot only persists the intent; an external scheduler
// reads this collection and executes the transfers.
type RecurringTransaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Periodicity int             `json:"periodicity"`
	ChatUserID  string          `json:"chat_user_id"`
	CreatedAt   time.Time       `json:"created_at"`
}
