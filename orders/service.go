package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/billable/billable/catalog"
	"github.com/billable/billable/datastore"
	"github.com/billable/billable/events"
	"github.com/billable/billable/identity"
	"github.com/billable/billable/model"
)

// Service composes the order datastore with catalog resolution and events
type Service struct {
	Datastore Datastore
	catalog   *catalog.Service
	identity  *identity.Service
	bus       *events.Bus
}

// InitService initializes the order service
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

// ItemRequest is one position of an order creation request
type ItemRequest struct {
	SKU      string           `json:"sku" valid:"required"`
	Quantity int64            `json:"quantity" valid:"-"`
	Price    *decimal.Decimal `json:"price" valid:"-"`
}

// CreateOrder resolves each sku to an offer, falling back to an inactive
// offer with the same sku, freezes prices and persists a pending order
func (service *Service) CreateOrder(ctx context.Context, userID uuid.UUID, items []ItemRequest, meta datastore.Metadata) (*model.Order, error) {
	if len(items) == 0 {
		return nil, model.ErrMissingSKU
	}

	order := model.Order{
		UserID:   userID,
		Currency: "USD",
		Metadata: meta,
	}
	total := decimal.Zero
	for i, item := range items {
		if item.SKU == "" {
			return nil, model.ErrMissingSKU
		}
		offer, err := service.catalog.GetOfferBySKU(ctx, item.SKU, false)
		if err != nil {
			return nil, err
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		price := offer.Price
		if item.Price != nil {
			if item.Price.IsNegative() {
				return nil, model.ErrInvalidPrice
			}
			price = *item.Price
		}
		if i == 0 {
			order.Currency = offer.Currency
		}
		orderItem := model.OrderItem{
			OfferID:  offer.ID,
			SKU:      offer.SKU,
			Quantity: quantity,
			Price:    price,
		}
		total = total.Add(orderItem.Subtotal())
		order.Items = append(order.Items, orderItem)
	}
	order.TotalAmount = total

	if err := service.Datastore.CreateOrder(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder returns an order with its items
func (service *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return service.Datastore.GetOrder(ctx, orderID)
}

// ConfirmOrder marks the order paid and grants every item's offer in one
// database transaction. Confirming an already-paid order is a no-op success.
func (service *Service) ConfirmOrder(ctx context.Context, orderID uuid.UUID, paymentID *string, paymentMethod string) (*ConfirmResult, error) {
	order, err := service.Datastore.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	offers := make(map[uuid.UUID]*model.Offer, len(order.Items))
	for _, item := range order.Items {
		if _, ok := offers[item.OfferID]; ok {
			continue
		}
		offer, err := service.catalog.Datastore.GetOffer(ctx, item.OfferID)
		if err != nil {
			return nil, err
		}
		offers[item.OfferID] = offer
	}

	result, err := service.Datastore.ConfirmOrder(ctx, orderID, paymentID, paymentMethod, offers)
	if err != nil {
		return nil, err
	}
	if !result.AlreadyPaid {
		service.bus.Publish(ctx, events.TopicOrderConfirmed, &result.Order)
		for i := range result.Transactions {
			service.bus.Publish(ctx, events.TopicTransactionCreated, &result.Transactions[i])
		}
	}
	return result, nil
}

// RefundOrder marks a paid order refunded and revokes its remaining batches
func (service *Service) RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) (*RefundResult, error) {
	if reason == "" {
		reason = "requested_by_customer"
	}
	result, err := service.Datastore.RefundOrder(ctx, orderID, reason)
	if err != nil {
		return nil, err
	}
	for i := range result.Transactions {
		service.bus.Publish(ctx, events.TopicTransactionCreated, &result.Transactions[i])
	}
	return result, nil
}

// CancelOrder cancels a pending order; ledger state is never touched
func (service *Service) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, error) {
	return service.Datastore.CancelOrder(ctx, orderID, reason)
}

// IsStateError reports whether the error is an order state machine violation
func IsStateError(err error) bool {
	return errors.Is(err, model.ErrOrderNotPending) || errors.Is(err, model.ErrOrderNotPaid)
}
