package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/model"
)

// TrialChecker reports whether a given identity value has already consumed
// the reference trial. Implemented by the referral datastore.
type TrialChecker interface {
	HasUsedTrial(ctx context.Context, identityType, value string) (bool, error)
}

// Service contains identity datastore and collaborators
type Service struct {
	Datastore    Datastore
	trialChecker TrialChecker
}

// InitService initializes the identity service
func InitService(ctx context.Context, datastore Datastore, trialChecker TrialChecker) (*Service, error) {
	return &Service{
		Datastore:    datastore,
		trialChecker: trialChecker,
	}, nil
}

// IdentifyResult is the write-path resolution reply
type IdentifyResult struct {
	UserID          uuid.UUID          `json:"user_id"`
	IdentityID      uuid.UUID          `json:"identity_id"`
	Username        string             `json:"username"`
	CreatedIdentity bool               `json:"created_identity"`
	CreatedUser     bool               `json:"created_user"`
	TrialEligible   bool               `json:"trial_eligible"`
	Metadata        datastore.Metadata `json:"metadata"`
}

// Identify resolves (provider, external_id) in write mode, creating the
// identity and a synthetic user as needed
func (service *Service) Identify(ctx context.Context, provider, externalID string, profile datastore.Metadata) (*IdentifyResult, error) {
	provider, externalID, err := normalizePair(provider, externalID)
	if err != nil {
		return nil, err
	}

	resolved, err := service.Datastore.UpsertIdentity(ctx, provider, externalID, profile)
	if err != nil {
		return nil, err
	}

	trialEligible := true
	if service.trialChecker != nil {
		used, err := service.trialChecker.HasUsedTrial(ctx, provider, externalID)
		if err != nil {
			return nil, err
		}
		trialEligible = !used
	}

	return &IdentifyResult{
		UserID:          resolved.User.ID,
		IdentityID:      resolved.Identity.ID,
		Username:        resolved.User.Username,
		CreatedIdentity: resolved.CreatedIdentity,
		CreatedUser:     resolved.CreatedUser,
		TrialEligible:   trialEligible,
		Metadata:        resolved.Identity.Metadata,
	}, nil
}

// LookupUserID resolves in read mode; it never creates rows and returns
// ErrIdentityNotFound or ErrUserResolveFailure when nothing is linked
func (service *Service) LookupUserID(ctx context.Context, provider, externalID string) (uuid.UUID, error) {
	provider, externalID, err := normalizePair(provider, externalID)
	if err != nil {
		return uuid.Nil, err
	}
	identity, err := service.Datastore.GetIdentity(ctx, provider, externalID)
	if err != nil {
		return uuid.Nil, err
	}
	if identity.UserID == nil {
		return uuid.Nil, model.ErrUserResolveFailure
	}
	return *identity.UserID, nil
}

// ResolveUser resolves either an explicit user id or a (provider,
// external_id) pair to a local user id. With createMissing the pair is
// resolved in write mode; otherwise lookup only.
func (service *Service) ResolveUser(ctx context.Context, userID *uuid.UUID, provider, externalID string, createMissing bool) (uuid.UUID, error) {
	if userID != nil && *userID != uuid.Nil {
		user, err := service.Datastore.GetUser(ctx, *userID)
		if err != nil {
			return uuid.Nil, err
		}
		return user.ID, nil
	}

	if !createMissing {
		return service.LookupUserID(ctx, provider, externalID)
	}

	provider, externalID, err := normalizePair(provider, externalID)
	if err != nil {
		return uuid.Nil, err
	}
	resolved, err := service.Datastore.UpsertIdentity(ctx, provider, externalID, nil)
	if err != nil {
		return uuid.Nil, err
	}
	return resolved.User.ID, nil
}

func normalizePair(provider, externalID string) (string, string, error) {
	if strings.TrimSpace(provider) == "" {
		provider = model.DefaultProvider
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return "", "", model.ErrEmptyExternalID
	}
	return provider, externalID, nil
}
