package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/billable/billable/datastore"
)

// DefaultProvider is used when a caller does not name an identity provider.
const DefaultProvider = "default"

// User is the local account identities resolve to. Users are only ever
// materialized by identity resolution.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Identity maps a stable (provider, external_id) pair to a local user.
type Identity struct {
	ID         uuid.UUID          `json:"id" db:"id"`
	Provider   string             `json:"provider" db:"provider"`
	ExternalID string             `json:"external_id" db:"external_id"`
	UserID     *uuid.UUID         `json:"user_id" db:"user_id"`
	Metadata   datastore.Metadata `json:"metadata" db:"metadata"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" db:"updated_at"`
}

// Referral tracks a link between an inviter and an invitee.
type Referral struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	ReferrerID     uuid.UUID          `json:"referrer_id" db:"referrer_id"`
	RefereeID      uuid.UUID          `json:"referee_id" db:"referee_id"`
	BonusGranted   bool               `json:"bonus_granted" db:"bonus_granted"`
	BonusGrantedAt *time.Time         `json:"bonus_granted_at" db:"bonus_granted_at"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	Metadata       datastore.Metadata `json:"metadata" db:"metadata"`
}

// TrialRecord marks an identity that has already used a free trial. Only the
// SHA-256 hash of the identity value is stored.
type TrialRecord struct {
	ID            uuid.UUID `json:"id" db:"id"`
	IdentityType  string    `json:"identity_type" db:"identity_type"`
	IdentityHash  string    `json:"identity_hash" db:"identity_hash"`
	TrialPlanName string    `json:"trial_plan_name" db:"trial_plan_name"`
	UsedAt        time.Time `json:"used_at" db:"used_at"`
}
