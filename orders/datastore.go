package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/ledger"
	"github.com/billable/billable/model"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Datastore abstracts over the underlying order storage
type Datastore interface {
	datastore.Datastore
	// CreateOrder persists a pending order and its items atomically
	CreateOrder(ctx context.Context, order *model.Order) error
	// GetOrder returns an order with its items
	GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	// ConfirmOrder transitions a pending order to paid and grants its offers.
	// A repeated webhook for an already-paid order succeeds without regrant.
	ConfirmOrder(ctx context.Context, orderID uuid.UUID, paymentID *string, paymentMethod string, offers map[uuid.UUID]*model.Offer) (*ConfirmResult, error)
	// RefundOrder transitions a paid order to refunded and revokes its batches
	RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) (*RefundResult, error)
	// CancelOrder transitions a pending order to cancelled, never touching ledger state
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, error)
}

// ConfirmResult is the outcome of a payment confirmation
type ConfirmResult struct {
	Order        model.Order
	Batches      []model.QuotaBatch
	Transactions []model.Transaction
	AlreadyPaid  bool
}

// RefundResult is the outcome of a refund
type RefundResult struct {
	Order        model.Order
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
			base: &Postgres{*pg}, instanceName: "orders_datastore",
		}, err
	}
	return nil, err
}

const orderColumns = `
	id, user_id, total_amount, currency, status, payment_method, payment_id,
	metadata, created_at, paid_at`

// CreateOrder persists a pending order and its items atomically
func (pg *Postgres) CreateOrder(ctx context.Context, order *model.Order) error {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	if order.Metadata == nil {
		order.Metadata = datastore.Metadata{}
	}
	err = tx.GetContext(ctx, order, `
		insert into billable_orders (user_id, total_amount, currency, status, payment_method, metadata)
		values ($1, $2, $3, 'pending', $4, $5)
		returning `+orderColumns,
		order.UserID, order.TotalAmount, order.Currency, order.PaymentMethod, order.Metadata)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.GetContext(ctx, item, `
			insert into billable_order_items (order_id, offer_id, quantity, price)
			values ($1, $2, $3, $4)
			returning id, order_id, offer_id, quantity, price`,
			item.OrderID, item.OfferID, item.Quantity, item.Price)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// GetOrder returns an order with its items
func (pg *Postgres) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order := model.Order{}
	err := pg.RawDB().GetContext(ctx, &order, `
		select `+orderColumns+` from billable_orders where id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if err := pg.attachItems(ctx, pg.RawDB(), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ConfirmOrder transitions a pending order to paid and grants its offers
func (pg *Postgres) ConfirmOrder(ctx context.Context, orderID uuid.UUID, paymentID *string, paymentMethod string, offers map[uuid.UUID]*model.Offer) (*ConfirmResult, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	result := ConfirmResult{}
	if order.Status == model.OrderStatusPaid {
		// duplicate payment webhook, nothing to do
		if err := pg.attachItems(ctx, tx, order); err != nil {
			return nil, err
		}
		result.Order = *order
		result.AlreadyPaid = true
		return &result, tx.Commit()
	}
	if order.Status != model.OrderStatusPending {
		return nil, model.ErrOrderNotPending
	}

	now := time.Now()
	err = tx.GetContext(ctx, order, `
		update billable_orders
		set status = 'paid', paid_at = $2, payment_id = $3, payment_method = $4
		where id = $1
		returning `+orderColumns, orderID, now, paymentID, paymentMethod)
	if err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	if err := pg.attachItems(ctx, tx, order); err != nil {
		return nil, err
	}

	for i := range order.Items {
		item := &order.Items[i]
		offer, ok := offers[item.OfferID]
		if !ok {
			return nil, model.ErrOfferNotFound
		}
		refType := "order_item"
		refID := item.ID.String()
		itemID := item.ID
		batches, transactions, err := ledger.GrantOfferInTx(ctx, tx, ledger.Grant{
			UserID:        order.UserID,
			Offer:         offer,
			Multiplier:    item.Quantity,
			OrderItemID:   &itemID,
			Source:        model.ActionPurchase,
			ReferenceType: &refType,
			ReferenceID:   &refID,
		})
		if err != nil {
			return nil, err
		}
		result.Batches = append(result.Batches, batches...)
		result.Transactions = append(result.Transactions, transactions...)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}
	result.Order = *order
	return &result, nil
}

// RefundOrder transitions a paid order to refunded and revokes its batches
func (pg *Postgres) RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) (*RefundResult, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPaid {
		return nil, model.ErrOrderNotPaid
	}

	err = tx.GetContext(ctx, order, `
		update billable_orders
		set status = 'refunded', metadata = metadata || $2
		where id = $1
		returning `+orderColumns, orderID, datastore.Metadata{"refund_reason": reason})
	if err != nil {
		return nil, fmt.Errorf("failed to mark order refunded: %w", err)
	}

	transactions, err := ledger.RevokeOrderBatchesInTx(ctx, tx, orderID, model.ActionRefund,
		datastore.Metadata{"reason": "order_refunded"})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}
	if err := pg.attachItems(ctx, pg.RawDB(), order); err != nil {
		return nil, err
	}
	return &RefundResult{Order: *order, Transactions: transactions}, nil
}

// CancelOrder transitions a pending order to cancelled
func (pg *Postgres) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return nil, model.ErrOrderNotPending
	}

	err = tx.GetContext(ctx, order, `
		update billable_orders
		set status = 'cancelled', metadata = metadata || $2
		where id = $1
		returning `+orderColumns, orderID, datastore.Metadata{"cancel_reason": reason})
	if err != nil {
		return nil, fmt.Errorf("failed to mark order cancelled: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return order, nil
}

func lockOrder(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) (*model.Order, error) {
	order := model.Order{}
	err := tx.GetContext(ctx, &order, `
		select `+orderColumns+` from billable_orders where id = $1 for update`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return &order, nil
}

func (pg *Postgres) attachItems(ctx context.Context, q sqlx.QueryerContext, order *model.Order) error {
	items := []model.OrderItem{}
	err := sqlx.SelectContext(ctx, q, &items, `
		select oi.id, oi.order_id, oi.offer_id, oi.quantity, oi.price, o.sku
		from billable_order_items oi
		join billable_offers o on o.id = oi.offer_id
		where oi.order_id = $1
		order by oi.id`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}
	order.Items = items
	return nil
}
