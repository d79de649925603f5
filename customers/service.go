package customers

import (
	"context"

	"github.com/google/uuid"

	"github.com/billable/billable/events"
	"github.com/billable/billable/model"
)

// Service wraps the merge utility with validation and events
type Service struct {
	Datastore Datastore
	bus       *events.Bus
}

// InitService initializes the customers service
func InitService(ctx context.Context, datastore Datastore, bus *events.Bus) (*Service, error) {
	return &Service{
		Datastore: datastore,
		bus:       bus,
	}, nil
}

// Merge moves all of the source user's data to the target user
func (service *Service) Merge(ctx context.Context, targetID, sourceID uuid.UUID) (*MergeResult, error) {
	if targetID == sourceID {
		return nil, model.ErrSameUser
	}
	result, err := service.Datastore.MergeUsers(ctx, targetID, sourceID)
	if err != nil {
		return nil, err
	}
	service.bus.Publish(ctx, events.TopicCustomersMerged, events.Merge{
		TargetUserID: result.TargetID,
		SourceUserID: result.SourceID,
		Moved:        result.Moved,
	})
	return result, nil
}
