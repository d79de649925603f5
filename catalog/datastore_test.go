//go:build integration
// +build integration

package catalog

import (
	"context"
	"testing"

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
	tables := []string{"billable_offer_items", "billable_offers", "billable_products"}

	pg, err := NewPostgres("", false)
	suite.Require().NoError(err, "Failed to get postgres conn")

	for _, table := range tables {
		_, err = pg.RawDB().Exec("delete from " + table)
		suite.Require().NoError(err, "Failed to get clean table")
	}
}

func (suite *PostgresTestSuite) seedProduct(pg Datastore, key string, active bool) {
	_, err := pg.RawDB().Exec(`
		insert into billable_products (product_key, name, product_type, is_active)
		values ($1, $1, 'quantity', $2)`, key, active)
	suite.Require().NoError(err)
}

func (suite *PostgresTestSuite) seedOffer(pg Datastore, sku string, active bool) {
	_, err := pg.RawDB().Exec(`
		insert into billable_offers (sku, name, price, currency, is_active)
		values ($1, $1, 9.99, 'USD', $2)`, sku, active)
	suite.Require().NoError(err)
}

func (suite *PostgresTestSuite) TestKeyNamespaceIsShared() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	suite.seedProduct(pg, "TOKENS", true)
	suite.seedOffer(pg, "STARTER", true)

	// the same string cannot exist as both a product key and an offer sku
	_, err = pg.RawDB().Exec(`
		insert into billable_offers (sku, name, price, currency)
		values ('TOKENS', 'TOKENS', 9.99, 'USD')`)
	suite.Require().Error(err)

	_, err = pg.RawDB().Exec(`
		insert into billable_products (product_key, name, product_type)
		values ('STARTER', 'STARTER', 'quantity')`)
	suite.Require().Error(err)
}

func (suite *PostgresTestSuite) TestGetProductByKey() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	suite.seedProduct(pg, "TOKENS", true)

	// lookups are case-insensitive via normalization
	product, err := pg.GetProductByKey(context.Background(), "tokens")
	suite.Require().NoError(err)
	suite.Assert().Equal("TOKENS", product.Key())

	_, err = pg.GetProductByKey(context.Background(), "MISSING")
	suite.Assert().Equal(model.ErrProductNotFound, err)
}

func (suite *PostgresTestSuite) TestGetProductByKeyIgnoresInactive() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	suite.seedProduct(pg, "RETIRED", false)

	_, err = pg.GetProductByKey(context.Background(), "RETIRED")
	suite.Assert().Equal(model.ErrProductNotFound, err)
}

func (suite *PostgresTestSuite) TestListProducts() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	suite.seedProduct(pg, "TOKENS", true)
	suite.seedProduct(pg, "RETIRED", false)

	products, err := pg.ListProducts(context.Background(), true)
	suite.Require().NoError(err)
	suite.Require().Len(products, 1)
	suite.Assert().Equal("TOKENS", products[0].Key())

	products, err = pg.ListProducts(context.Background(), false)
	suite.Require().NoError(err)
	suite.Assert().Len(products, 2)
}

func (suite *PostgresTestSuite) TestGetOfferBySKU() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	suite.seedOffer(pg, "STARTER", true)

	offer, err := pg.GetOfferBySKU(context.Background(), "starter", true)
	suite.Require().NoError(err)
	suite.Assert().Equal("STARTER", offer.SKU)

	_, err = pg.GetOfferBySKU(context.Background(), "MISSING", true)
	suite.Assert().Equal(model.ErrOfferNotFound, err)
}

func (suite *PostgresTestSuite) TestGetOfferBySKUInactiveFallback() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	suite.seedOffer(pg, "LEGACY", false)

	// strict lookups reject the retired offer, lenient ones still see it
	_, err = pg.GetOfferBySKU(context.Background(), "LEGACY", true)
	suite.Assert().Equal(model.ErrOfferNotFound, err)

	offer, err := pg.GetOfferBySKU(context.Background(), "LEGACY", false)
	suite.Require().NoError(err)
	suite.Assert().False(offer.IsActive)
}

func (suite *PostgresTestSuite) TestGetOfferAttachesItems() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	suite.seedProduct(pg, "TOKENS", true)
	suite.seedOffer(pg, "STARTER", true)

	_, err = pg.RawDB().Exec(`
		insert into billable_offer_items (offer_id, product_id, quantity, period_unit, period_value)
		select o.id, p.id, 100, 'days', 30
		from billable_offers o, billable_products p
		where o.sku = 'STARTER' and p.product_key = 'TOKENS'`)
	suite.Require().NoError(err)

	offer, err := pg.GetOfferBySKU(context.Background(), "STARTER", true)
	suite.Require().NoError(err)
	suite.Require().Len(offer.Items, 1)
	suite.Assert().Equal(int64(100), offer.Items[0].Quantity)
	suite.Require().NotNil(offer.Items[0].Product)
	suite.Assert().Equal("TOKENS", offer.Items[0].Product.Key())
}

func TestPostgresTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresTestSuite))
}
