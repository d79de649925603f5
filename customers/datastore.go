package customers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/model"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Datastore abstracts over the customer merge storage operations
type Datastore interface {
	datastore.Datastore
	// MergeUsers moves all of the source user's data to the target in one
	// transaction and deletes the source user
	MergeUsers(ctx context.Context, targetID, sourceID uuid.UUID) (*MergeResult, error)
}

// MergeResult counts the rows moved per relation
type MergeResult struct {
	TargetID uuid.UUID        `json:"target_user_id"`
	SourceID uuid.UUID        `json:"source_user_id"`
	Moved    map[string]int64 `json:"moved"`
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
			base: &Postgres{*pg}, instanceName: "customers_datastore",
		}, err
	}
	return nil, err
}

// MergeUsers moves orders, batches, transactions, identities and referrals
// from source to target. Aborts when the source carries an identity on a
// provider the target already uses with a different external id. Any
// self-referral produced by the move is deleted.
func (pg *Postgres) MergeUsers(ctx context.Context, targetID, sourceID uuid.UUID) (*MergeResult, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	// lock both user rows in a stable order to avoid deadlocks between
	// concurrent merges
	if err := lockUsers(ctx, tx, targetID, sourceID); err != nil {
		return nil, err
	}

	var conflicts int64
	err = tx.GetContext(ctx, &conflicts, `
		select count(*)
		from billable_external_identities s
		join billable_external_identities t on t.provider = s.provider
		where s.user_id = $2 and t.user_id = $1 and t.external_id <> s.external_id`,
		targetID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check identity conflicts: %w", err)
	}
	if conflicts > 0 {
		return nil, model.ErrIdentityConflict
	}

	result := MergeResult{TargetID: targetID, SourceID: sourceID, Moved: map[string]int64{}}

	moves := []struct {
		name      string
		statement string
	}{
		{"orders", `update billable_orders set user_id = $1 where user_id = $2`},
		{"quota_batches", `update billable_quota_batches set user_id = $1 where user_id = $2`},
		{"transactions", `update billable_transactions set user_id = $1 where user_id = $2`},
		{"identities", `update billable_external_identities set user_id = $1, updated_at = current_timestamp where user_id = $2`},
	}
	for _, move := range moves {
		moved, err := execCount(ctx, tx, move.statement, targetID, sourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to move %s: %w", move.name, err)
		}
		result.Moved[move.name] = moved
	}

	referrals, err := moveReferrals(ctx, tx, targetID, sourceID)
	if err != nil {
		return nil, err
	}
	result.Moved["referrals"] = referrals

	if _, err := tx.ExecContext(ctx, `delete from billable_users where id = $1`, sourceID); err != nil {
		return nil, fmt.Errorf("failed to delete source user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}
	return &result, nil
}

func lockUsers(ctx context.Context, tx *sqlx.Tx, targetID, sourceID uuid.UUID) error {
	ids := []uuid.UUID{}
	err := tx.SelectContext(ctx, &ids, `
		select id from billable_users where id in ($1, $2) order by id for update`,
		targetID, sourceID)
	if err != nil {
		return fmt.Errorf("failed to lock users: %w", err)
	}
	if len(ids) != 2 {
		return model.ErrUserNotFound
	}
	return nil
}

// moveReferrals repoints both sides of every referral, dropping links that
// would duplicate an existing pair or point a user at themselves
func moveReferrals(ctx context.Context, tx *sqlx.Tx, targetID, sourceID uuid.UUID) (int64, error) {
	// links that already exist on the target side would violate the pair
	// uniqueness after the move
	_, err := tx.ExecContext(ctx, `
		delete from billable_referrals s
		where s.referrer_id = $2 and exists (
			select 1 from billable_referrals t
			where t.referrer_id = $1 and t.referee_id = s.referee_id)`,
		targetID, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to drop duplicate referrer links: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		delete from billable_referrals s
		where s.referee_id = $2 and exists (
			select 1 from billable_referrals t
			where t.referee_id = $1 and t.referrer_id = s.referrer_id)`,
		targetID, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to drop duplicate referee links: %w", err)
	}

	// links between the two merging users would become self-referrals
	_, err = tx.ExecContext(ctx, `
		delete from billable_referrals
		where (referrer_id = $1 and referee_id = $2) or (referrer_id = $2 and referee_id = $1)`,
		targetID, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to drop self referrals: %w", err)
	}

	asReferrer, err := execCount(ctx, tx,
		`update billable_referrals set referrer_id = $1 where referrer_id = $2`, targetID, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to move referrer links: %w", err)
	}
	asReferee, err := execCount(ctx, tx,
		`update billable_referrals set referee_id = $1 where referee_id = $2`, targetID, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to move referee links: %w", err)
	}
	return asReferrer + asReferee, nil
}

func execCount(ctx context.Context, tx *sqlx.Tx, statement string, args ...interface{}) (int64, error) {
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
