package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/model"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Datastore abstracts over the underlying identity storage
type Datastore interface {
	datastore.Datastore
	// GetIdentity returns the identity row for (provider, external_id)
	GetIdentity(ctx context.Context, provider, externalID string) (*model.Identity, error)
	// UpsertIdentity creates or refreshes the identity row and materializes
	// a user when the row has none linked
	UpsertIdentity(ctx context.Context, provider, externalID string, profile datastore.Metadata) (*ResolvedIdentity, error)
	// GetUser returns a user by id
	GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error)
}

// ResolvedIdentity is the result of a write-path resolution
type ResolvedIdentity struct {
	Identity        model.Identity
	User            model.User
	CreatedIdentity bool
	CreatedUser     bool
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
			base: &Postgres{*pg}, instanceName: "identity_datastore",
		}, err
	}
	return nil, err
}

// GetIdentity returns the identity row for (provider, external_id)
func (pg *Postgres) GetIdentity(ctx context.Context, provider, externalID string) (*model.Identity, error) {
	identity := model.Identity{}
	err := pg.RawDB().GetContext(ctx, &identity, `
		select id, provider, external_id, user_id, metadata, created_at, updated_at
		from billable_external_identities
		where provider = $1 and external_id = $2`, provider, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

// UpsertIdentity creates or refreshes the identity row and materializes a
// user when the row has none linked. Runs in one transaction so that two
// concurrent calls for the same pair settle on a single user.
func (pg *Postgres) UpsertIdentity(ctx context.Context, provider, externalID string, profile datastore.Metadata) (*ResolvedIdentity, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	if profile == nil {
		profile = datastore.Metadata{}
	}

	resolved := ResolvedIdentity{}
	err = tx.GetContext(ctx, &resolved.Identity, `
		select id, provider, external_id, user_id, metadata, created_at, updated_at
		from billable_external_identities
		where provider = $1 and external_id = $2
		for update`, provider, externalID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to lock identity: %w", err)
		}
		// xmax = 0 distinguishes a fresh insert from a lost upsert race
		row := struct {
			model.Identity
			Inserted bool `db:"inserted"`
		}{}
		err = tx.GetContext(ctx, &row, `
			insert into billable_external_identities (provider, external_id, metadata)
			values ($1, $2, $3)
			on conflict (provider, external_id) do update set updated_at = current_timestamp
			returning id, provider, external_id, user_id, metadata, created_at, updated_at,
				(xmax = 0) as inserted`,
			provider, externalID, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to insert identity: %w", err)
		}
		resolved.Identity = row.Identity
		resolved.CreatedIdentity = row.Inserted
	} else if len(profile) > 0 {
		err = tx.GetContext(ctx, &resolved.Identity, `
			update billable_external_identities
			set metadata = metadata || $2, updated_at = current_timestamp
			where id = $1
			returning id, provider, external_id, user_id, metadata, created_at, updated_at`,
			resolved.Identity.ID, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to update identity metadata: %w", err)
		}
	}

	if resolved.Identity.UserID == nil {
		err = tx.GetContext(ctx, &resolved.User, `
			insert into billable_users (username) values ($1)
			on conflict (username) do update set username = billable_users.username
			returning id, username, created_at`,
			model.SyntheticUsername(provider, externalID))
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		resolved.CreatedUser = true
		_, err = tx.ExecContext(ctx, `
			update billable_external_identities set user_id = $2, updated_at = current_timestamp
			where id = $1`, resolved.Identity.ID, resolved.User.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to link user: %w", err)
		}
		resolved.Identity.UserID = &resolved.User.ID
	} else {
		err = tx.GetContext(ctx, &resolved.User, `
			select id, username, created_at from billable_users where id = $1`,
			*resolved.Identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to get linked user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit identity upsert: %w", err)
	}
	return &resolved, nil
}

// GetUser returns a user by id
func (pg *Postgres) GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user := model.User{}
	err := pg.RawDB().GetContext(ctx, &user, `
		select id, username, created_at from billable_users where id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
