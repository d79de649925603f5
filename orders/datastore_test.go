//go:build integration
// +build integration

package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
		"billable_orders", "billable_offer_items", "billable_offers",
		"billable_products", "billable_users",
	}

	pg, err := NewPostgres("", false)
	suite.Require().NoError(err, "Failed to get postgres conn")

	for _, table := range tables {
		_, err = pg.RawDB().Exec("delete from " + table)
		suite.Require().NoError(err, "Failed to get clean table")
	}
}

// seedCatalog inserts a user, one product and one offer granting 100 of it
func (suite *PostgresTestSuite) seedCatalog(pg Datastore) (uuid.UUID, *model.Offer) {
	var userID uuid.UUID
	err := pg.RawDB().Get(&userID,
		`insert into billable_users (username) values ('order_user') returning id`)
	suite.Require().NoError(err)

	product := model.Product{}
	err = pg.RawDB().Get(&product, `
		insert into billable_products (product_key, name, product_type)
		values ('TOKENS', 'Tokens', 'quantity')
		returning id, product_key, name, description, product_type, is_active, is_currency, created_at, metadata`)
	suite.Require().NoError(err)

	offer := model.Offer{}
	err = pg.RawDB().Get(&offer, `
		insert into billable_offers (sku, name, price, currency)
		values ('STARTER', 'Starter', 9.99, 'USD')
		returning id, sku, name, price, currency, description, is_active, created_at, metadata`)
	suite.Require().NoError(err)

	item := model.OfferItem{
		OfferID:    offer.ID,
		ProductID:  product.ID,
		Quantity:   100,
		PeriodUnit: model.PeriodUnitForever,
		Product:    &product,
	}
	err = pg.RawDB().Get(&item.ID, `
		insert into billable_offer_items (offer_id, product_id, quantity, period_unit)
		values ($1, $2, 100, 'forever') returning id`, offer.ID, product.ID)
	suite.Require().NoError(err)
	offer.Items = []model.OfferItem{item}

	return userID, &offer
}

func (suite *PostgresTestSuite) createPendingOrder(pg Datastore, userID uuid.UUID, offer *model.Offer, quantity int64) *model.Order {
	order := &model.Order{
		UserID:      userID,
		TotalAmount: offer.Price.Mul(decimal.NewFromInt(quantity)),
		Currency:    offer.Currency,
		Items: []model.OrderItem{
			{OfferID: offer.ID, SKU: offer.SKU, Quantity: quantity, Price: offer.Price},
		},
	}
	suite.Require().NoError(pg.CreateOrder(context.Background(), order))
	return order
}

func (suite *PostgresTestSuite) TestCreateAndGetOrder() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	userID, offer := suite.seedCatalog(pg)
	order := suite.createPendingOrder(pg, userID, offer, 2)

	suite.Assert().Equal(model.OrderStatusPending, order.Status)
	suite.Require().Len(order.Items, 1)
	suite.Assert().NotEqual(uuid.Nil, order.Items[0].ID)

	got, err := pg.GetOrder(context.Background(), order.ID)
	suite.Require().NoError(err)
	suite.Assert().Equal(order.ID, got.ID)
	suite.Assert().True(got.TotalAmount.Equal(decimal.RequireFromString("19.98")))
	suite.Require().Len(got.Items, 1)
	suite.Assert().Equal("STARTER", got.Items[0].SKU)
}

func (suite *PostgresTestSuite) TestGetOrderNotFound() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	_, err = pg.GetOrder(context.Background(), uuid.New())
	suite.Assert().Equal(model.ErrOrderNotFound, err)
}

func (suite *PostgresTestSuite) TestConfirmOrderGrantsItems() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	userID, offer := suite.seedCatalog(pg)
	order := suite.createPendingOrder(pg, userID, offer, 2)

	paymentID := "pi_123"
	result, err := pg.ConfirmOrder(context.Background(), order.ID, &paymentID, "stripe",
		map[uuid.UUID]*model.Offer{offer.ID: offer})
	suite.Require().NoError(err)

	suite.Assert().False(result.AlreadyPaid)
	suite.Assert().Equal(model.OrderStatusPaid, result.Order.Status)
	suite.Require().NotNil(result.Order.PaidAt)

	// item quantity 2 multiplies the granted pool
	suite.Require().Len(result.Batches, 1)
	suite.Assert().Equal(int64(200), result.Batches[0].InitialQuantity)
	suite.Require().Len(result.Transactions, 1)
	suite.Assert().Equal(model.ActionPurchase, result.Transactions[0].ActionType)
}

func (suite *PostgresTestSuite) TestConfirmOrderIsIdempotent() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	userID, offer := suite.seedCatalog(pg)
	order := suite.createPendingOrder(pg, userID, offer, 1)

	offers := map[uuid.UUID]*model.Offer{offer.ID: offer}
	paymentID := "pi_123"
	_, err = pg.ConfirmOrder(context.Background(), order.ID, &paymentID, "stripe", offers)
	suite.Require().NoError(err)

	// a duplicate webhook succeeds without granting again
	result, err := pg.ConfirmOrder(context.Background(), order.ID, &paymentID, "stripe", offers)
	suite.Require().NoError(err)
	suite.Assert().True(result.AlreadyPaid)
	suite.Assert().Empty(result.Batches)

	var batchCount int
	err = pg.RawDB().Get(&batchCount,
		`select count(*) from billable_quota_batches where user_id = $1`, userID)
	suite.Require().NoError(err)
	suite.Assert().Equal(1, batchCount)
}

func (suite *PostgresTestSuite) TestRefundOrderRevokesRemainder() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	userID, offer := suite.seedCatalog(pg)
	order := suite.createPendingOrder(pg, userID, offer, 1)

	paymentID := "pi_123"
	_, err = pg.ConfirmOrder(context.Background(), order.ID, &paymentID, "stripe",
		map[uuid.UUID]*model.Offer{offer.ID: offer})
	suite.Require().NoError(err)

	result, err := pg.RefundOrder(context.Background(), order.ID, "requested_by_customer")
	suite.Require().NoError(err)
	suite.Assert().Equal(model.OrderStatusRefunded, result.Order.Status)
	suite.Require().Len(result.Transactions, 1)
	suite.Assert().Equal(int64(100), result.Transactions[0].Amount)
	suite.Assert().Equal(model.ActionRefund, result.Transactions[0].ActionType)

	var remaining int64
	err = pg.RawDB().Get(&remaining, `
		select coalesce(sum(remaining_quantity), 0)
		from billable_quota_batches where user_id = $1 and state = 'ACTIVE'`, userID)
	suite.Require().NoError(err)
	suite.Assert().Equal(int64(0), remaining)
}

func (suite *PostgresTestSuite) TestRefundOrderRequiresPaid() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	userID, offer := suite.seedCatalog(pg)
	order := suite.createPendingOrder(pg, userID, offer, 1)

	_, err = pg.RefundOrder(context.Background(), order.ID, "requested_by_customer")
	suite.Assert().Equal(model.ErrOrderNotPaid, err)
}

func (suite *PostgresTestSuite) TestCancelOrder() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	userID, offer := suite.seedCatalog(pg)
	order := suite.createPendingOrder(pg, userID, offer, 1)

	cancelled, err := pg.CancelOrder(context.Background(), order.ID, "changed_mind")
	suite.Require().NoError(err)
	suite.Assert().Equal(model.OrderStatusCancelled, cancelled.Status)

	// cancellation is terminal
	paymentID := "pi_123"
	_, err = pg.ConfirmOrder(context.Background(), order.ID, &paymentID, "stripe",
		map[uuid.UUID]*model.Offer{offer.ID: offer})
	suite.Assert().Equal(model.ErrOrderNotPending, err)

	_, err = pg.CancelOrder(context.Background(), order.ID, "again")
	suite.Assert().Equal(model.ErrOrderNotPending, err)
}

func TestPostgresTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresTestSuite))
}
