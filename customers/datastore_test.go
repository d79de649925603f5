//go:build integration
// +build integration

package customers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/billable/billable/model"
)

type PostgresTestSuite struct {
	suite.Suite
}

func (suite *PostgresTestSuite) SetupSuite() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err, "Failed to get postgres conn")

	m, err := pg.NewMigrate()
	suite.Require().NoError(err, "Failed to create migrate instance")

	ver, dirty, _ := m.Version()
	if dirty {
		suite.Require().NoError(m.Force(int(ver)))
	}
	if ver > 0 {
		suite.Require().NoError(m.Down(), "Failed to migrate down cleanly")
	}

	suite.Require().NoError(pg.Migrate(), "Failed to fully migrate")
}

func (suite *PostgresTestSuite) SetupTest() {
	suite.CleanDB()
}

func (suite *PostgresTestSuite) CleanDB() {
	tables := []string{
		"billable_transactions", "billable_quota_batches", "billable_order_items",
		"billable_orders", "billable_referrals", "billable_external_identities",
		"billable_offer_items", "billable_offers", "billable_products", "billable_users",
	}

	pg, err := NewPostgres("", false)
	suite.Require().NoError(err, "Failed to get postgres conn")

	for _, table := range tables {
		_, err = pg.RawDB().Exec("delete from " + table)
		suite.Require().NoError(err, "Failed to get clean table")
	}
}

func (suite *PostgresTestSuite) seedUser(pg Datastore, username string) uuid.UUID {
	var id uuid.UUID
	err := pg.RawDB().Get(&id,
		`insert into billable_users (username) values ($1) returning id`, username)
	suite.Require().NoError(err)
	return id
}

func (suite *PostgresTestSuite) seedIdentity(pg Datastore, userID uuid.UUID, provider, externalID string) {
	_, err := pg.RawDB().Exec(`
		insert into billable_external_identities (provider, external_id, user_id)
		values ($1, $2, $3)`, provider, externalID, userID)
	suite.Require().NoError(err)
}

func (suite *PostgresTestSuite) seedBatch(pg Datastore, userID uuid.UUID, remaining int64) {
	var productID uuid.UUID
	err := pg.RawDB().Get(&productID, `
		insert into billable_products (product_key, name, product_type)
		values ('TOKENS', 'Tokens', 'quantity')
		on conflict (product_key) do update set product_key = billable_products.product_key
		returning id`)
	suite.Require().NoError(err)

	batchID, err := model.NewTimeOrderedID()
	suite.Require().NoError(err)
	_, err = pg.RawDB().Exec(`
		insert into billable_quota_batches (id, user_id, product_id, initial_quantity, remaining_quantity)
		values ($1, $2, $3, $4, $4)`, batchID, userID, productID, remaining)
	suite.Require().NoError(err)
}

func (suite *PostgresTestSuite) TestMergeUsersMovesEverything() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	target := suite.seedUser(pg, "target")
	source := suite.seedUser(pg, "source")

	suite.seedIdentity(pg, source, "telegram", "111")
	suite.seedBatch(pg, source, 40)
	suite.seedBatch(pg, target, 10)

	result, err := pg.MergeUsers(context.Background(), target, source)
	suite.Require().NoError(err)

	suite.Assert().Equal(int64(1), result.Moved["identities"])
	suite.Assert().Equal(int64(1), result.Moved["quota_batches"])

	// merged balances coexist as separate batches
	var remaining int64
	err = pg.RawDB().Get(&remaining, `
		select coalesce(sum(remaining_quantity), 0)
		from billable_quota_batches where user_id = $1`, target)
	suite.Require().NoError(err)
	suite.Assert().Equal(int64(50), remaining)

	var sourceExists bool
	err = pg.RawDB().Get(&sourceExists,
		`select exists (select 1 from billable_users where id = $1)`, source)
	suite.Require().NoError(err)
	suite.Assert().False(sourceExists)

	var linked uuid.UUID
	err = pg.RawDB().Get(&linked, `
		select user_id from billable_external_identities
		where provider = 'telegram' and external_id = '111'`)
	suite.Require().NoError(err)
	suite.Assert().Equal(target, linked)
}

func (suite *PostgresTestSuite) TestMergeUsersIdentityConflictAborts() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	target := suite.seedUser(pg, "target")
	source := suite.seedUser(pg, "source")

	// both users live on the same provider with different accounts
	suite.seedIdentity(pg, target, "telegram", "111")
	suite.seedIdentity(pg, source, "telegram", "222")
	suite.seedBatch(pg, source, 40)

	_, err = pg.MergeUsers(context.Background(), target, source)
	suite.Assert().Equal(model.ErrIdentityConflict, err)

	// nothing moved
	var count int
	err = pg.RawDB().Get(&count,
		`select count(*) from billable_quota_batches where user_id = $1`, source)
	suite.Require().NoError(err)
	suite.Assert().Equal(1, count)
}

func (suite *PostgresTestSuite) TestMergeUsersCleansReferrals() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	target := suite.seedUser(pg, "target")
	source := suite.seedUser(pg, "source")
	outsider := suite.seedUser(pg, "outsider")

	// source referred target: the link would become a self-referral
	_, err = pg.RawDB().Exec(`
		insert into billable_referrals (referrer_id, referee_id) values ($1, $2)`, source, target)
	suite.Require().NoError(err)
	// source also referred an outsider: the link must survive repointed
	_, err = pg.RawDB().Exec(`
		insert into billable_referrals (referrer_id, referee_id) values ($1, $2)`, source, outsider)
	suite.Require().NoError(err)

	result, err := pg.MergeUsers(context.Background(), target, source)
	suite.Require().NoError(err)
	suite.Assert().Equal(int64(1), result.Moved["referrals"])

	var referrer uuid.UUID
	err = pg.RawDB().Get(&referrer,
		`select referrer_id from billable_referrals where referee_id = $1`, outsider)
	suite.Require().NoError(err)
	suite.Assert().Equal(target, referrer)

	var total int
	err = pg.RawDB().Get(&total, `select count(*) from billable_referrals`)
	suite.Require().NoError(err)
	suite.Assert().Equal(1, total)
}

func (suite *PostgresTestSuite) TestMergeUsersUnknownUser() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	target := suite.seedUser(pg, "target")

	_, err = pg.MergeUsers(context.Background(), target, uuid.New())
	suite.Assert().Equal(model.ErrUserNotFound, err)
}

func TestPostgresTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresTestSuite))
}
