package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/ledger"
	"github.com/billable/billable/model"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Datastore abstracts over the underlying referral and trial storage
type Datastore interface {
	datastore.Datastore
	// GetOrCreateReferral links referrer to referee, idempotent on the pair
	GetOrCreateReferral(ctx context.Context, referrerID, refereeID uuid.UUID) (*model.Referral, bool, error)
	// CountReferrals returns how many referees a referrer has attached
	CountReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error)
	// ClaimBonus marks the referral bonus granted exactly once
	ClaimBonus(ctx context.Context, referralID uuid.UUID) (bool, error)
	// HasUsedTrial reports whether the hashed identity already consumed a trial
	HasUsedTrial(ctx context.Context, identityType, value string) (bool, error)
	// ActivateTrial records trial usage for every identity and grants the offer
	ActivateTrial(ctx context.Context, userID uuid.UUID, offer *model.Offer, identities []TrialIdentity) (*TrialResult, error)
}

// TrialIdentity is one identity gating a trial grant. Value is hashed
// before storage; the raw value never persists.
type TrialIdentity struct {
	Type  string
	Value string
}

// TrialResult is the outcome of a trial activation
type TrialResult struct {
	Batches      []model.QuotaBatch
	Transactions []model.Transaction
}

// Postgres is a Datastore wrapper around a postgres database
type Postgres struct {
	datastore.Postgres
}

// NewPostgres creates a new Postgres Datastore
func NewPostgres(databaseURL string, performMigration bool, dbStatsPrefix ...string) (Datastore, error) {
	pg, err := datastore.NewPostgres(databaseURL, performMigration, dbStatsPrefix...)
	if pg != nil {
		return &DatastoreWithPrometheus{
			base: &Postgres{*pg}, instanceName: "referral_datastore",
		}, err
	}
	return nil, err
}

// GetOrCreateReferral links referrer to referee, idempotent on the pair
func (pg *Postgres) GetOrCreateReferral(ctx context.Context, referrerID, refereeID uuid.UUID) (*model.Referral, bool, error) {
	referral := model.Referral{}
	row := struct {
		model.Referral
		Inserted bool `db:"inserted"`
	}{}
	err := pg.RawDB().GetContext(ctx, &row, `
		insert into billable_referrals (referrer_id, referee_id, metadata)
		values ($1, $2, '{}'::jsonb)
		on conflict (referrer_id, referee_id) do update set referrer_id = billable_referrals.referrer_id
		returning id, referrer_id, referee_id, bonus_granted, bonus_granted_at, created_at, metadata,
			(xmax = 0) as inserted`, referrerID, refereeID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "check_violation" {
			return nil, false, model.ErrSelfReferral
		}
		return nil, false, fmt.Errorf("failed to upsert referral: %w", err)
	}
	referral = row.Referral
	return &referral, row.Inserted, nil
}

// CountReferrals returns how many referees a referrer has attached
func (pg *Postgres) CountReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	var count int64
	err := pg.RawDB().GetContext(ctx, &count, `
		select count(*) from billable_referrals where referrer_id = $1`, referrerID)
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return count, nil
}

// ClaimBonus marks the referral bonus granted exactly once. The conditional
// update makes concurrent claims settle on a single winner.
func (pg *Postgres) ClaimBonus(ctx context.Context, referralID uuid.UUID) (bool, error) {
	result, err := pg.RawDB().ExecContext(ctx, `
		update billable_referrals
		set bonus_granted = true, bonus_granted_at = current_timestamp
		where id = $1 and not bonus_granted`, referralID)
	if err != nil {
		return false, fmt.Errorf("failed to claim referral bonus: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// HasUsedTrial reports whether the hashed identity already consumed a trial
func (pg *Postgres) HasUsedTrial(ctx context.Context, identityType, value string) (bool, error) {
	var used bool
	err := pg.RawDB().GetContext(ctx, &used, `
		select exists (
			select 1 from billable_trial_history
			where identity_type = $1 and identity_hash = $2)`,
		identityType, model.IdentityHash(value))
	if err != nil {
		return false, fmt.Errorf("failed to check trial history: %w", err)
	}
	return used, nil
}

// ActivateTrial records trial usage for every identity and grants the offer
// in one transaction. A unique violation on the history rows means some
// identity already used a trial and the whole activation aborts.
func (pg *Postgres) ActivateTrial(ctx context.Context, userID uuid.UUID, offer *model.Offer, identities []TrialIdentity) (*TrialResult, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	for _, id := range identities {
		_, err = tx.ExecContext(ctx, `
			insert into billable_trial_history (identity_type, identity_hash, trial_plan_name)
			values ($1, $2, $3)`,
			id.Type, model.IdentityHash(id.Value), offer.SKU)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return nil, model.ErrTrialAlreadyUsed
			}
			return nil, fmt.Errorf("failed to record trial usage: %w", err)
		}
	}

	refType := "offer"
	refID := offer.ID.String()
	batches, transactions, err := ledger.GrantOfferInTx(ctx, tx, ledger.Grant{
		UserID:        userID,
		Offer:         offer,
		Source:        model.ActionTrialActivation,
		ReferenceType: &refType,
		ReferenceID:   &refID,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trial activation: %w", err)
	}
	return &TrialResult{Batches: batches, Transactions: transactions}, nil
}
