package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/billable/billable/catalog"
	"github.com/billable/billable/datastore"
	"github.com/billable/billable/events"
	"github.com/billable/billable/identity"
	"github.com/billable/billable/logging"
	"github.com/billable/billable/model"
)

// Service composes the ledger datastore with catalog and identity lookups
type Service struct {
	Datastore Datastore
	catalog   *catalog.Service
	identity  *identity.Service
	bus       *events.Bus
}

// InitService initializes the ledger service
func InitService(ctx context.Context, datastore Datastore, catalogService *catalog.Service, identityService *identity.Service, bus *events.Bus) (*Service, error) {
	return &Service{
		Datastore: datastore,
		catalog:   catalogService,
		identity:  identityService,
		bus:       bus,
	}, nil
}

// Identity exposes the identity service for request-level user resolution
func (service *Service) Identity() *identity.Service {
	return service.identity
}

// Consume debits the user's balance for one product, idempotent under the
// caller's key. Events publish only when new transactions were committed.
func (service *Service) Consume(ctx context.Context, consume Consume) (*ConsumeResult, error) {
	if consume.Amount <= 0 {
		consume.Amount = 1
	}
	if consume.ActionType == "" {
		consume.ActionType = model.ActionUsage
	}

	result, err := service.Datastore.ConsumeQuota(ctx, consume)
	if err != nil {
		return nil, err
	}
	if !result.Idempotent {
		for i := range result.Transactions {
			service.bus.Publish(ctx, events.TopicTransactionCreated, &result.Transactions[i])
			service.bus.Publish(ctx, events.TopicQuotaConsumed, &result.Transactions[i])
		}
	}
	return result, nil
}

// Grant credits every item of an offer to the user
func (service *Service) Grant(ctx context.Context, grant Grant) ([]model.QuotaBatch, error) {
	batches, transactions, err := service.Datastore.GrantOffer(ctx, grant)
	if err != nil {
		return nil, err
	}
	for i := range transactions {
		service.bus.Publish(ctx, events.TopicTransactionCreated, &transactions[i])
	}
	return batches, nil
}

// Exchange resolves the offer's currency as a product key, debits its price
// and grants the offer. The whole operation aborts when the debit fails.
func (service *Service) Exchange(ctx context.Context, userID uuid.UUID, sku string, meta datastore.Metadata) (*ExchangeResult, error) {
	offer, err := service.catalog.GetOfferBySKU(ctx, sku, true)
	if err != nil {
		return nil, err
	}

	currencyKey := model.NormalizeKey(offer.Currency)
	product, err := service.catalog.GetProductByKey(ctx, currencyKey)
	if err != nil {
		if err == model.ErrProductNotFound {
			return nil, model.ErrNotCurrency
		}
		return nil, err
	}
	if !product.IsCurrency {
		return nil, model.ErrNotCurrency
	}

	// fractional prices truncate to whole units of the currency product
	amount := offer.Price.IntPart()
	if amount <= 0 {
		return nil, model.ErrInvalidPrice
	}

	result, err := service.Datastore.ExchangeOffer(ctx, userID, offer, currencyKey, amount, meta)
	if err != nil {
		return nil, err
	}
	for i := range result.Consume.Transactions {
		service.bus.Publish(ctx, events.TopicTransactionCreated, &result.Consume.Transactions[i])
		service.bus.Publish(ctx, events.TopicQuotaConsumed, &result.Consume.Transactions[i])
	}
	for i := range result.Transactions {
		service.bus.Publish(ctx, events.TopicTransactionCreated, &result.Transactions[i])
	}
	return result, nil
}

// GetBalance returns the live balance of one product for the user
func (service *Service) GetBalance(ctx context.Context, userID uuid.UUID, productKey string) (*model.ProductBalance, error) {
	batches, err := service.Datastore.GetActiveBatches(ctx, userID, &productKey)
	if err != nil {
		return nil, err
	}
	balance := model.ProductBalance{ProductKey: model.NormalizeKey(productKey)}
	for _, batch := range batches {
		balance.Total += batch.InitialQuantity
		balance.Remaining += batch.RemainingQuantity
		if batch.ProductType == model.ProductTypePeriod || batch.ProductType == model.ProductTypeUnlimited {
			balance.IsUnlimited = true
		}
		// the soonest expiry wins
		if batch.ExpiresAt != nil && (balance.Expiry == nil || batch.ExpiresAt.Before(*balance.Expiry)) {
			balance.Expiry = batch.ExpiresAt
		}
	}
	balance.Used = balance.Total - balance.Remaining
	return &balance, nil
}

// GetActiveBatches returns the user's live batches, optionally for one product
func (service *Service) GetActiveBatches(ctx context.Context, userID uuid.UUID, productKey *string) ([]model.QuotaBatch, error) {
	return service.Datastore.GetActiveBatches(ctx, userID, productKey)
}

// GetWallet returns product_key -> remaining over the user's live batches
func (service *Service) GetWallet(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	return service.Datastore.GetWalletSummary(ctx, userID)
}

// ListTransactions returns the user's history, newest first, capped
func (service *Service) ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]model.Transaction, error) {
	return service.Datastore.ListTransactions(ctx, userID, filter)
}

// RunExpirationJob sweeps overdue batches until the context is done
func (service *Service) RunExpirationJob(ctx context.Context, interval time.Duration) {
	logger := logging.Logger(ctx, "ledger.RunExpirationJob")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := service.Datastore.ExpireBatches(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("expiration sweep failed")
				continue
			}
			if expired > 0 {
				logger.Info().Int64("expired", expired).Msg("expired quota batches")
			}
		}
	}
}
