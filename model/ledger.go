package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/billable/billable/datastore"
)

// BatchState - the lifecycle state of a quota batch. ACTIVE may move to any
// other state; the rest are terminal.
type BatchState string

const (
	BatchStateActive    BatchState = "ACTIVE"
	BatchStateExhausted BatchState = "EXHAUSTED"
	BatchStateExpired   BatchState = "EXPIRED"
	BatchStateRevoked   BatchState = "REVOKED"
)

// CanTransition reports whether the batch state machine permits moving to next.
func (s BatchState) CanTransition(next BatchState) bool {
	return s == BatchStateActive && next != BatchStateActive
}

// Direction of a ledger transaction.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// Well-known action types recorded on transactions. The column is free-form,
// these are the ones the engine itself writes.
const (
	ActionPurchase        = "purchase"
	ActionTrialActivation = "trial_activation"
	ActionUsage           = "usage"
	ActionRefund          = "refund"
	ActionExchange        = "exchange"
	ActionManualGrant     = "manual_grant"
)

// QuotaBatch is a granted pool of one product for one user: what is actually
// on the balance after a purchase or grant.
type QuotaBatch struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	ProductID         uuid.UUID  `json:"product_id" db:"product_id"`
	SourceOfferID     *uuid.UUID `json:"source_offer_id" db:"source_offer_id"`
	OrderItemID       *uuid.UUID `json:"order_item_id" db:"order_item_id"`
	InitialQuantity   int64      `json:"initial_quantity" db:"initial_quantity"`
	RemainingQuantity int64      `json:"remaining_quantity" db:"remaining_quantity"`
	ValidFrom         time.Time  `json:"valid_from" db:"valid_from"`
	ExpiresAt         *time.Time `json:"expires_at" db:"expires_at"`
	State             BatchState `json:"state" db:"state"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`

	// ProductKey and ProductType are joined in for convenience on read paths.
	ProductKey  string      `json:"product_key" db:"product_key"`
	ProductType ProductType `json:"product_type" db:"product_type"`
}

// ExpiredAt reports whether the batch is past its expiry at the given
// instant. Readers must treat an un-swept ACTIVE batch past expires_at as
// expired.
func (b *QuotaBatch) ExpiredAt(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// Transaction is an immutable ledger entry. Transactions are never mutated
// or deleted.
type Transaction struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	UserID        uuid.UUID          `json:"user_id" db:"user_id"`
	QuotaBatchID  uuid.UUID          `json:"quota_batch_id" db:"quota_batch_id"`
	Amount        int64              `json:"amount" db:"amount"`
	Direction     Direction          `json:"direction" db:"direction"`
	ActionType    string             `json:"action_type" db:"action_type"`
	ReferenceType *string            `json:"reference_type" db:"reference_type"`
	ReferenceID   *string            `json:"reference_id" db:"reference_id"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	Metadata      datastore.Metadata `json:"metadata" db:"metadata"`
}

// ProductBalance is one product's aggregate position in a wallet summary.
type ProductBalance struct {
	ProductKey  string     `json:"product_key"`
	Total       int64      `json:"total"`
	Used        int64      `json:"used"`
	Remaining   int64      `json:"remaining"`
	IsUnlimited bool       `json:"is_unlimited"`
	Expiry      *time.Time `json:"expiry"`
}
