package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/model"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Datastore abstracts over the underlying ledger storage
type Datastore interface {
	datastore.Datastore
	// GrantOffer creates one ACTIVE batch plus CREDIT transaction per offer item
	GrantOffer(ctx context.Context, grant Grant) ([]model.QuotaBatch, []model.Transaction, error)
	// ConsumeQuota debits amount across the user's FIFO batch set for a product
	ConsumeQuota(ctx context.Context, consume Consume) (*ConsumeResult, error)
	// ExchangeOffer debits the offer's currency product and grants the offer in one transaction
	ExchangeOffer(ctx context.Context, userID uuid.UUID, offer *model.Offer, currencyKey string, amount int64, meta datastore.Metadata) (*ExchangeResult, error)
	// RevokeOrderBatches zeroes every ACTIVE batch linked to the order's items
	RevokeOrderBatches(ctx context.Context, orderID uuid.UUID, reason string, meta datastore.Metadata) ([]model.Transaction, error)
	// ExpireBatches marks overdue ACTIVE batches EXPIRED, returning the count
	ExpireBatches(ctx context.Context) (int64, error)
	// GetBalance sums remaining quantity over live batches of one product
	GetBalance(ctx context.Context, userID uuid.UUID, productKey string) (int64, error)
	// GetActiveBatches returns live batches, optionally for one product
	GetActiveBatches(ctx context.Context, userID uuid.UUID, productKey *string) ([]model.QuotaBatch, error)
	// GetWalletSummary returns product_key -> total remaining over live batches
	GetWalletSummary(ctx context.Context, userID uuid.UUID) (map[string]int64, error)
	// ListTransactions returns the user's ledger history, newest first
	ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]model.Transaction, error)
}

// Grant is a request to credit every item of an offer to a user
type Grant struct {
	UserID        uuid.UUID
	Offer         *model.Offer
	Multiplier    int64
	OrderItemID   *uuid.UUID
	Source        string
	ReferenceType *string
	ReferenceID   *string
	Metadata      datastore.Metadata
}

// Consume is a request to debit a user's balance for one product
type Consume struct {
	UserID         uuid.UUID
	ProductKey     string
	Amount         int64
	ActionType     string
	ActionID       *string
	IdempotencyKey *string
	Metadata       datastore.Metadata
}

// ConsumeResult is the reply to a consume request. Idempotent replays echo
// the prior usage id and carry no new transactions.
type ConsumeResult struct {
	UsageID      uuid.UUID
	Amount       int64
	Remaining    int64
	Idempotent   bool
	Metadata     datastore.Metadata
	Transactions []model.Transaction
}

// ExchangeResult combines the debit and the granted batches of an exchange
type ExchangeResult struct {
	Consume      *ConsumeResult
	Batches      []model.QuotaBatch
	Transactions []model.Transaction
}

// TransactionFilter narrows a transaction history query
type TransactionFilter struct {
	ProductKey *string
	ActionType *string
	DateFrom   *time.Time
	Limit      int
}

// transactionHistoryCap bounds a single history page
const transactionHistoryCap = 100

// Postgres is a Datastore wrapper around a postgres database
type Postgres struct {
	datastore.Postgres
}

// NewPostgres creates a new Postgres Datastore
func NewPostgres(databaseURL string, performMigration bool, dbStatsPrefix ...string) (Datastore, error) {
	pg, err := datastore.NewPostgres(databaseURL, performMigration, dbStatsPrefix...)
	if pg != nil {
		return &DatastoreWithPrometheus{
			base: &Postgres{*pg}, instanceName: "ledger_datastore",
		}, err
	}
	return nil, err
}

const batchColumns = `
	qb.id, qb.user_id, qb.product_id, qb.source_offer_id, qb.order_item_id,
	qb.initial_quantity, qb.remaining_quantity, qb.valid_from, qb.expires_at,
	qb.state, qb.created_at, p.product_key, p.product_type`

// GrantOffer creates one ACTIVE batch plus CREDIT transaction per offer item
func (pg *Postgres) GrantOffer(ctx context.Context, grant Grant) ([]model.QuotaBatch, []model.Transaction, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	batches, transactions, err := GrantOfferInTx(ctx, tx, grant)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit grant: %w", err)
	}
	return batches, transactions, nil
}

// GrantOfferInTx writes the batches and credits for a grant inside the
// caller's transaction. Exported so the order service can compose payment
// confirmation and grants atomically.
func GrantOfferInTx(ctx context.Context, tx *sqlx.Tx, grant Grant) ([]model.QuotaBatch, []model.Transaction, error) {
	if grant.Multiplier <= 0 {
		grant.Multiplier = 1
	}
	now := time.Now()

	batches := make([]model.QuotaBatch, 0, len(grant.Offer.Items))
	transactions := make([]model.Transaction, 0, len(grant.Offer.Items))
	for _, item := range grant.Offer.Items {
		batchID, err := model.NewTimeOrderedID()
		if err != nil {
			return nil, nil, err
		}

		periodValue := 0
		if item.PeriodValue != nil {
			periodValue = *item.PeriodValue
		}
		if item.PeriodUnit != model.PeriodUnitForever && periodValue <= 0 {
			return nil, nil, model.ErrInvalidPeriod
		}
		expiresAt := item.PeriodUnit.Expiry(now, periodValue)
		total := item.Quantity * grant.Multiplier

		batch := model.QuotaBatch{
			ID:                batchID,
			UserID:            grant.UserID,
			ProductID:         item.ProductID,
			SourceOfferID:     &grant.Offer.ID,
			OrderItemID:       grant.OrderItemID,
			InitialQuantity:   total,
			RemainingQuantity: total,
			ValidFrom:         now,
			ExpiresAt:         expiresAt,
			State:             model.BatchStateActive,
			CreatedAt:         now,
		}
		if item.Product != nil {
			batch.ProductKey = item.Product.Key()
			batch.ProductType = item.Product.ProductType
		}
		_, err = tx.ExecContext(ctx, `
			insert into billable_quota_batches (
				id, user_id, product_id, source_offer_id, order_item_id,
				initial_quantity, remaining_quantity, valid_from, expires_at, state, created_at
			) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			batch.ID, batch.UserID, batch.ProductID, batch.SourceOfferID, batch.OrderItemID,
			batch.InitialQuantity, batch.RemainingQuantity, batch.ValidFrom, batch.ExpiresAt,
			batch.State, batch.CreatedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to insert quota batch: %w", err)
		}

		transaction, err := insertTransactionInTx(ctx, tx, model.Transaction{
			UserID:        grant.UserID,
			QuotaBatchID:  batch.ID,
			Amount:        total,
			Direction:     model.DirectionCredit,
			ActionType:    grant.Source,
			ReferenceType: grant.ReferenceType,
			ReferenceID:   grant.ReferenceID,
			Metadata:      grant.Metadata,
		})
		if err != nil {
			return nil, nil, err
		}

		batches = append(batches, batch)
		transactions = append(transactions, *transaction)
	}
	return batches, transactions, nil
}

// ConsumeQuota debits amount across the user's FIFO batch set for a product
func (pg *Postgres) ConsumeQuota(ctx context.Context, consume Consume) (*ConsumeResult, error) {
	consume.ProductKey = model.NormalizeKey(consume.ProductKey)

	// idempotent replay short-circuits before any locks are taken
	if consume.IdempotencyKey != nil && *consume.IdempotencyKey != "" {
		prior, err := pg.getTransactionByIdempotencyKey(ctx, consume.UserID, consume.ActionType, *consume.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return pg.replayConsume(ctx, consume, prior)
		}
	}

	result, err := pg.consumeOnce(ctx, consume)
	if err != nil {
		// a concurrent first-time consume with the same key won the
		// unique index race while we waited on the batch locks
		if isIdempotencyConflict(err) && consume.IdempotencyKey != nil && *consume.IdempotencyKey != "" {
			prior, lookupErr := pg.getTransactionByIdempotencyKey(ctx, consume.UserID, consume.ActionType, *consume.IdempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if prior != nil {
				return pg.replayConsume(ctx, consume, prior)
			}
		}
		return nil, err
	}
	return result, nil
}

func (pg *Postgres) consumeOnce(ctx context.Context, consume Consume) (*ConsumeResult, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	result, err := consumeInTx(ctx, tx, consume)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit consume: %w", err)
	}
	return result, nil
}

// replayConsume echoes the prior usage and the current balance
func (pg *Postgres) replayConsume(ctx context.Context, consume Consume, prior *model.Transaction) (*ConsumeResult, error) {
	remaining, err := pg.GetBalance(ctx, consume.UserID, consume.ProductKey)
	if err != nil {
		return nil, err
	}
	return &ConsumeResult{
		UsageID:    prior.ID,
		Amount:     consume.Amount,
		Remaining:  remaining,
		Metadata:   prior.Metadata,
		Idempotent: true,
	}, nil
}

func isIdempotencyConflict(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) &&
		pqErr.Code.Name() == "unique_violation" &&
		pqErr.Constraint == "billable_tx_idem_uniq"
}

// consumeInTx locks the FIFO batch set, plans the walk and applies it
func consumeInTx(ctx context.Context, tx *sqlx.Tx, consume Consume) (*ConsumeResult, error) {
	batches := []model.QuotaBatch{}
	err := tx.SelectContext(ctx, &batches, `
		select `+batchColumns+`
		from billable_quota_batches qb
		join billable_products p on p.id = qb.product_id
		where qb.user_id = $1 and p.product_key = $2 and qb.state = 'ACTIVE'
			and (qb.expires_at is null or qb.expires_at > current_timestamp)
		order by qb.created_at asc, qb.id asc
		for update of qb`, consume.UserID, consume.ProductKey)
	if err != nil {
		return nil, fmt.Errorf("failed to lock quota batches: %w", err)
	}

	steps, err := planConsumption(batches, consume.Amount)
	if err != nil {
		return nil, err
	}

	meta := datastore.Metadata{}
	for k, v := range consume.Metadata {
		meta[k] = v
	}
	// the replay key is engine-managed, never caller metadata
	delete(meta, "idempotency_key")
	if consume.ActionID != nil && *consume.ActionID != "" {
		meta["action_id"] = *consume.ActionID
	}

	result := ConsumeResult{Amount: consume.Amount}
	for i, step := range steps {
		batch := &batches[step.BatchIndex]
		batch.RemainingQuantity -= step.Take
		if batch.RemainingQuantity == 0 {
			batch.State = model.BatchStateExhausted
		}
		_, err = tx.ExecContext(ctx, `
			update billable_quota_batches set remaining_quantity = $2, state = $3
			where id = $1`, batch.ID, batch.RemainingQuantity, batch.State)
		if err != nil {
			return nil, fmt.Errorf("failed to update quota batch: %w", err)
		}

		stepMeta := meta
		if i == len(steps)-1 && consume.IdempotencyKey != nil && *consume.IdempotencyKey != "" {
			// the key rides only on the final debit so the unique
			// replay index holds when a consume spans batches
			stepMeta = datastore.Metadata{}
			for k, v := range meta {
				stepMeta[k] = v
			}
			stepMeta["idempotency_key"] = *consume.IdempotencyKey
		}

		transaction, err := insertTransactionInTx(ctx, tx, model.Transaction{
			UserID:        consume.UserID,
			QuotaBatchID:  batch.ID,
			Amount:        step.Take,
			Direction:     model.DirectionDebit,
			ActionType:    consume.ActionType,
			ReferenceType: refTypeForActionID(consume.ActionID),
			ReferenceID:   consume.ActionID,
			Metadata:      stepMeta,
		})
		if err != nil {
			return nil, err
		}
		result.Transactions = append(result.Transactions, *transaction)
	}

	for _, batch := range batches {
		result.Remaining += batch.RemainingQuantity
	}
	// the usage id is the last debit of the walk
	if last := len(result.Transactions) - 1; last >= 0 {
		result.UsageID = result.Transactions[last].ID
		result.Metadata = result.Transactions[last].Metadata
	}
	return &result, nil
}

func refTypeForActionID(actionID *string) *string {
	if actionID == nil || *actionID == "" {
		return nil
	}
	refType := "action"
	return &refType
}

// ExchangeOffer debits the offer's currency product and grants the offer in
// one transaction. A failed debit aborts the whole exchange.
func (pg *Postgres) ExchangeOffer(ctx context.Context, userID uuid.UUID, offer *model.Offer, currencyKey string, amount int64, meta datastore.Metadata) (*ExchangeResult, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	// both sides of the swap record the price paid
	exchangeMeta := datastore.Metadata{}
	for k, v := range meta {
		exchangeMeta[k] = v
	}
	exchangeMeta["price"] = amount

	sku := offer.SKU
	consumeResult, err := consumeInTx(ctx, tx, Consume{
		UserID:     userID,
		ProductKey: currencyKey,
		Amount:     amount,
		ActionType: model.ActionExchange,
		ActionID:   &sku,
		Metadata:   exchangeMeta,
	})
	if err != nil {
		return nil, err
	}

	refType := "offer"
	refID := offer.ID.String()
	batches, transactions, err := GrantOfferInTx(ctx, tx, Grant{
		UserID:        userID,
		Offer:         offer,
		Source:        model.ActionExchange,
		ReferenceType: &refType,
		ReferenceID:   &refID,
		Metadata:      exchangeMeta,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit exchange: %w", err)
	}
	return &ExchangeResult{
		Consume:      consumeResult,
		Batches:      batches,
		Transactions: transactions,
	}, nil
}

// RevokeOrderBatches zeroes every ACTIVE batch linked to the order's items
func (pg *Postgres) RevokeOrderBatches(ctx context.Context, orderID uuid.UUID, reason string, meta datastore.Metadata) ([]model.Transaction, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pg.RollbackTx(tx)

	transactions, err := RevokeOrderBatchesInTx(ctx, tx, orderID, reason, meta)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit revoke: %w", err)
	}
	return transactions, nil
}

// RevokeOrderBatchesInTx revokes inside the caller's transaction. Exhausted
// and expired batches are left alone, their consumption already happened.
func RevokeOrderBatchesInTx(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, reason string, meta datastore.Metadata) ([]model.Transaction, error) {
	batches := []model.QuotaBatch{}
	err := tx.SelectContext(ctx, &batches, `
		select `+batchColumns+`
		from billable_quota_batches qb
		join billable_products p on p.id = qb.product_id
		join billable_order_items oi on oi.id = qb.order_item_id
		where oi.order_id = $1 and qb.state = 'ACTIVE'
		order by qb.created_at asc, qb.id asc
		for update of qb`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock order batches: %w", err)
	}

	orderRef := "order"
	orderIDStr := orderID.String()

	transactions := []model.Transaction{}
	for _, batch := range batches {
		if batch.RemainingQuantity > 0 {
			transaction, err := insertTransactionInTx(ctx, tx, model.Transaction{
				UserID:        batch.UserID,
				QuotaBatchID:  batch.ID,
				Amount:        batch.RemainingQuantity,
				Direction:     model.DirectionDebit,
				ActionType:    reason,
				ReferenceType: &orderRef,
				ReferenceID:   &orderIDStr,
				Metadata:      meta,
			})
			if err != nil {
				return nil, err
			}
			transactions = append(transactions, *transaction)
		}
		_, err = tx.ExecContext(ctx, `
			update billable_quota_batches set remaining_quantity = 0, state = $2
			where id = $1`, batch.ID, model.BatchStateRevoked)
		if err != nil {
			return nil, fmt.Errorf("failed to revoke quota batch: %w", err)
		}
	}
	return transactions, nil
}

// ExpireBatches marks overdue ACTIVE batches EXPIRED, returning the count
func (pg *Postgres) ExpireBatches(ctx context.Context) (int64, error) {
	result, err := pg.RawDB().ExecContext(ctx, `
		update billable_quota_batches set state = 'EXPIRED'
		where state = 'ACTIVE' and expires_at is not null and expires_at <= current_timestamp`)
	if err != nil {
		return 0, fmt.Errorf("failed to expire quota batches: %w", err)
	}
	return result.RowsAffected()
}

// GetBalance sums remaining quantity over live batches of one product
func (pg *Postgres) GetBalance(ctx context.Context, userID uuid.UUID, productKey string) (int64, error) {
	var balance int64
	err := pg.RawDB().GetContext(ctx, &balance, `
		select coalesce(sum(qb.remaining_quantity), 0)
		from billable_quota_batches qb
		join billable_products p on p.id = qb.product_id
		where qb.user_id = $1 and p.product_key = $2 and qb.state = 'ACTIVE'
			and (qb.expires_at is null or qb.expires_at > current_timestamp)`,
		userID, model.NormalizeKey(productKey))
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// GetActiveBatches returns live batches, optionally for one product
func (pg *Postgres) GetActiveBatches(ctx context.Context, userID uuid.UUID, productKey *string) ([]model.QuotaBatch, error) {
	batches := []model.QuotaBatch{}
	statement := `
		select ` + batchColumns + `
		from billable_quota_batches qb
		join billable_products p on p.id = qb.product_id
		where qb.user_id = $1 and qb.state = 'ACTIVE'
			and (qb.expires_at is null or qb.expires_at > current_timestamp)`
	args := []interface{}{userID}
	if productKey != nil && *productKey != "" {
		statement += ` and p.product_key = $2`
		args = append(args, model.NormalizeKey(*productKey))
	}
	statement += ` order by qb.created_at asc, qb.id asc`
	if err := pg.RawDB().SelectContext(ctx, &batches, statement, args...); err != nil {
		return nil, fmt.Errorf("failed to get active batches: %w", err)
	}
	return batches, nil
}

// GetWalletSummary returns product_key -> total remaining over live batches
func (pg *Postgres) GetWalletSummary(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	rows := []struct {
		ProductKey string `db:"product_key"`
		Total      int64  `db:"total"`
	}{}
	err := pg.RawDB().SelectContext(ctx, &rows, `
		select p.product_key, sum(qb.remaining_quantity) as total
		from billable_quota_batches qb
		join billable_products p on p.id = qb.product_id
		where qb.user_id = $1 and qb.state = 'ACTIVE' and p.product_key is not null
			and (qb.expires_at is null or qb.expires_at > current_timestamp)
		group by p.product_key
		having sum(qb.remaining_quantity) > 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet summary: %w", err)
	}
	wallet := make(map[string]int64, len(rows))
	for _, row := range rows {
		wallet[row.ProductKey] = row.Total
	}
	return wallet, nil
}

// ListTransactions returns the user's ledger history, newest first
func (pg *Postgres) ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]model.Transaction, error) {
	statement := `
		select t.id, t.user_id, t.quota_batch_id, t.amount, t.direction, t.action_type,
			t.reference_type, t.reference_id, t.created_at, t.metadata
		from billable_transactions t
		where t.user_id = $1`
	args := []interface{}{userID}
	if filter.ProductKey != nil && *filter.ProductKey != "" {
		args = append(args, model.NormalizeKey(*filter.ProductKey))
		statement += fmt.Sprintf(`
			and t.quota_batch_id in (
				select qb.id from billable_quota_batches qb
				join billable_products p on p.id = qb.product_id
				where p.product_key = $%d)`, len(args))
	}
	if filter.ActionType != nil && *filter.ActionType != "" {
		args = append(args, *filter.ActionType)
		statement += fmt.Sprintf(` and t.action_type = $%d`, len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		statement += fmt.Sprintf(` and t.created_at >= $%d`, len(args))
	}
	limit := filter.Limit
	if limit <= 0 || limit > transactionHistoryCap {
		limit = transactionHistoryCap
	}
	args = append(args, limit)
	statement += fmt.Sprintf(` order by t.created_at desc, t.id desc limit $%d`, len(args))

	transactions := []model.Transaction{}
	if err := pg.RawDB().SelectContext(ctx, &transactions, statement, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactions, nil
}

func (pg *Postgres) getTransactionByIdempotencyKey(ctx context.Context, userID uuid.UUID, actionType, key string) (*model.Transaction, error) {
	transaction := model.Transaction{}
	err := pg.RawDB().GetContext(ctx, &transaction, `
		select id, user_id, quota_batch_id, amount, direction, action_type,
			reference_type, reference_id, created_at, metadata
		from billable_transactions
		where user_id = $1 and action_type = $2 and metadata->>'idempotency_key' = $3
		order by created_at asc, id asc
		limit 1`, userID, actionType, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return &transaction, nil
}

// insertTransactionInTx assigns a time-ordered id and writes one immutable
// ledger row
func insertTransactionInTx(ctx context.Context, tx *sqlx.Tx, transaction model.Transaction) (*model.Transaction, error) {
	id, err := model.NewTimeOrderedID()
	if err != nil {
		return nil, err
	}
	transaction.ID = id
	if transaction.CreatedAt.IsZero() {
		transaction.CreatedAt = time.Now()
	}
	if transaction.Metadata == nil {
		transaction.Metadata = datastore.Metadata{}
	}
	_, err = tx.ExecContext(ctx, `
		insert into billable_transactions (
			id, user_id, quota_batch_id, amount, direction, action_type,
			reference_type, reference_id, created_at, metadata
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		transaction.ID, transaction.UserID, transaction.QuotaBatchID, transaction.Amount,
		transaction.Direction, transaction.ActionType, transaction.ReferenceType,
		transaction.ReferenceID, transaction.CreatedAt, transaction.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return &transaction, nil
}
