//go:build integration
// +build integration

package referral

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
		"billable_transactions", "billable_quota_batches", "billable_trial_history",
		"billable_referrals", "billable_offer_items", "billable_offers",
		"billable_products", "billable_users",
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

func (suite *PostgresTestSuite) seedTrialOffer(pg Datastore) *model.Offer {
	product := model.Product{}
	err := pg.RawDB().Get(&product, `
		insert into billable_products (product_key, name, product_type)
		values ('TOKENS', 'Tokens', 'quantity')
		returning id, product_key, name, description, product_type, is_active, is_currency, created_at, metadata`)
	suite.Require().NoError(err)

	offer := model.Offer{}
	err = pg.RawDB().Get(&offer, `
		insert into billable_offers (sku, name, price, currency)
		values ('TRIAL', 'Trial', 0, 'USD')
		returning id, sku, name, price, currency, description, is_active, created_at, metadata`)
	suite.Require().NoError(err)

	item := model.OfferItem{
		OfferID:    offer.ID,
		ProductID:  product.ID,
		Quantity:   50,
		PeriodUnit: model.PeriodUnitForever,
		Product:    &product,
	}
	err = pg.RawDB().Get(&item.ID, `
		insert into billable_offer_items (offer_id, product_id, quantity, period_unit)
		values ($1, $2, 50, 'forever') returning id`, offer.ID, product.ID)
	suite.Require().NoError(err)
	offer.Items = []model.OfferItem{item}
	return &offer
}

func (suite *PostgresTestSuite) TestGetOrCreateReferral() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	referrer := suite.seedUser(pg, "referrer")
	referee := suite.seedUser(pg, "referee")

	referral, created, err := pg.GetOrCreateReferral(context.Background(), referrer, referee)
	suite.Require().NoError(err)
	suite.Assert().True(created)
	suite.Assert().False(referral.BonusGranted)

	// repeat attachment returns the existing link
	again, created, err := pg.GetOrCreateReferral(context.Background(), referrer, referee)
	suite.Require().NoError(err)
	suite.Assert().False(created)
	suite.Assert().Equal(referral.ID, again.ID)

	count, err := pg.CountReferrals(context.Background(), referrer)
	suite.Require().NoError(err)
	suite.Assert().Equal(int64(1), count)
}

func (suite *PostgresTestSuite) TestSelfReferralRejected() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	userID := suite.seedUser(pg, "narcissist")

	_, _, err = pg.GetOrCreateReferral(context.Background(), userID, userID)
	suite.Assert().Equal(model.ErrSelfReferral, err)
}

func (suite *PostgresTestSuite) TestClaimBonusSingleWinner() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	referrer := suite.seedUser(pg, "referrer")
	referee := suite.seedUser(pg, "referee")
	referral, _, err := pg.GetOrCreateReferral(context.Background(), referrer, referee)
	suite.Require().NoError(err)

	claimed, err := pg.ClaimBonus(context.Background(), referral.ID)
	suite.Require().NoError(err)
	suite.Assert().True(claimed)

	claimed, err = pg.ClaimBonus(context.Background(), referral.ID)
	suite.Require().NoError(err)
	suite.Assert().False(claimed)
}

func (suite *PostgresTestSuite) TestActivateTrial() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	userID := suite.seedUser(pg, "trial_user")
	offer := suite.seedTrialOffer(pg)

	used, err := pg.HasUsedTrial(context.Background(), "email", "user@example.com")
	suite.Require().NoError(err)
	suite.Assert().False(used)

	result, err := pg.ActivateTrial(context.Background(), userID, offer, []TrialIdentity{
		{Type: "email", Value: "user@example.com"},
		{Type: "device", Value: "device-1"},
	})
	suite.Require().NoError(err)
	suite.Require().Len(result.Batches, 1)
	suite.Assert().Equal(int64(50), result.Batches[0].InitialQuantity)
	suite.Require().Len(result.Transactions, 1)
	suite.Assert().Equal(model.ActionTrialActivation, result.Transactions[0].ActionType)

	// the raw identity value is never checked against, only its hash
	used, err = pg.HasUsedTrial(context.Background(), "email", " USER@example.com ")
	suite.Require().NoError(err)
	suite.Assert().True(used)
}

func (suite *PostgresTestSuite) TestActivateTrialOncePerIdentity() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	first := suite.seedUser(pg, "first_user")
	second := suite.seedUser(pg, "second_user")
	offer := suite.seedTrialOffer(pg)

	_, err = pg.ActivateTrial(context.Background(), first, offer, []TrialIdentity{
		{Type: "email", Value: "user@example.com"},
	})
	suite.Require().NoError(err)

	// a different account reusing any identity gets nothing
	_, err = pg.ActivateTrial(context.Background(), second, offer, []TrialIdentity{
		{Type: "device", Value: "device-2"},
		{Type: "email", Value: "user@example.com"},
	})
	suite.Assert().Equal(model.ErrTrialAlreadyUsed, err)

	var batchCount int
	err = pg.RawDB().Get(&batchCount,
		`select count(*) from billable_quota_batches where user_id = $1`, second)
	suite.Require().NoError(err)
	suite.Assert().Equal(0, batchCount)

	// the aborted activation must not burn the unused device identity
	used, err := pg.HasUsedTrial(context.Background(), "device", "device-2")
	suite.Require().NoError(err)
	suite.Assert().False(used)
}

func TestPostgresTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresTestSuite))
}
