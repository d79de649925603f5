package referral

import (
	"context"

	"github.com/google/uuid"

	"github.com/billable/billable/catalog"
	"github.com/billable/billable/events"
	"github.com/billable/billable/identity"
	"github.com/billable/billable/model"
)

// Service composes referral and trial bookkeeping with identity resolution
type Service struct {
	Datastore Datastore
	catalog   *catalog.Service
	identity  *identity.Service
	bus       *events.Bus
}

// InitService initializes the referral service
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

// AttachResult is the reply to a referral creation
type AttachResult struct {
	Referral model.Referral `json:"referral"`
	Created  bool           `json:"created"`
}

// Attach links referrer to referee. Duplicate links are idempotent and
// reported with created=false; the event publishes on first creation only.
func (service *Service) Attach(ctx context.Context, referrerID, refereeID uuid.UUID) (*AttachResult, error) {
	if referrerID == refereeID {
		return nil, model.ErrSelfReferral
	}
	referral, created, err := service.Datastore.GetOrCreateReferral(ctx, referrerID, refereeID)
	if err != nil {
		return nil, err
	}
	if created {
		service.bus.Publish(ctx, events.TopicReferralAttached, referral)
	}
	return &AttachResult{Referral: *referral, Created: created}, nil
}

// AttachByExternalIDs links two identities in lookup-only mode. Missing
// identities fail; no user is ever created on this path.
func (service *Service) AttachByExternalIDs(ctx context.Context, provider, referrerExternalID, refereeExternalID string) (*AttachResult, error) {
	referrerID, err := service.identity.LookupUserID(ctx, provider, referrerExternalID)
	if err != nil {
		return nil, err
	}
	refereeID, err := service.identity.LookupUserID(ctx, provider, refereeExternalID)
	if err != nil {
		return nil, err
	}
	return service.Attach(ctx, referrerID, refereeID)
}

// Stats counts the referees attached to a referrer
func (service *Service) Stats(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	return service.Datastore.CountReferrals(ctx, referrerID)
}

// ClaimBonus marks the referral bonus granted; the first caller wins
func (service *Service) ClaimBonus(ctx context.Context, referralID uuid.UUID) (bool, error) {
	return service.Datastore.ClaimBonus(ctx, referralID)
}

// HasUsedTrial reports whether the identity value already consumed a trial
func (service *Service) HasUsedTrial(ctx context.Context, identityType, value string) (bool, error) {
	return service.Datastore.HasUsedTrial(ctx, identityType, value)
}

// TrialGrant grants the named offer once per hashed identity. Any identity
// with prior trial usage fails the whole grant.
func (service *Service) TrialGrant(ctx context.Context, userID uuid.UUID, sku string, identities []TrialIdentity) (*TrialResult, error) {
	offer, err := service.catalog.GetOfferBySKU(ctx, sku, true)
	if err != nil {
		return nil, err
	}

	for _, id := range identities {
		used, err := service.Datastore.HasUsedTrial(ctx, id.Type, id.Value)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, model.ErrTrialAlreadyUsed
		}
	}

	result, err := service.Datastore.ActivateTrial(ctx, userID, offer, identities)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(identities))
	for _, id := range identities {
		values = append(values, id.Type)
	}
	service.bus.Publish(ctx, events.TopicTrialActivated, events.TrialActivation{
		UserID:     userID,
		SKU:        offer.SKU,
		Identities: values,
	})
	for i := range result.Transactions {
		service.bus.Publish(ctx, events.TopicTransactionCreated, &result.Transactions[i])
	}
	return result, nil
}
