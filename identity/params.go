package identity

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/billable/billable/handlers"
	"github.com/billable/billable/model"
)

// UserParams identifies the subject of a request either by local user id or
// by (provider, external_id). Exactly the shape accepted in request bodies
// and query strings across the wallet, order and referral endpoints.
type UserParams struct {
	UserID     *uuid.UUID `json:"user_id" valid:"-"`
	Provider   string     `json:"provider" valid:"-"`
	ExternalID string     `json:"external_id" valid:"-"`
}

// UserParamsFromQuery parses resolve parameters from a GET query string
func UserParamsFromQuery(query url.Values) (UserParams, error) {
	params := UserParams{
		Provider:   query.Get("provider"),
		ExternalID: query.Get("external_id"),
	}
	if raw := query.Get("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return params, err
		}
		params.UserID = &userID
	}
	return params, nil
}

// Resolve maps the params to a local user id. GET endpoints resolve in read
// mode; mutating endpoints resolve in write mode and may create the user.
func (p UserParams) Resolve(ctx context.Context, service *Service, createMissing bool) (uuid.UUID, error) {
	if p.UserID == nil && p.ExternalID == "" {
		return uuid.Nil, model.ErrUserResolveFailure
	}
	return service.ResolveUser(ctx, p.UserID, p.Provider, p.ExternalID, createMissing)
}

// ResolveError maps a resolution failure to the uniform error response
func ResolveError(err error) *handlers.AppError {
	switch {
	case errors.Is(err, model.ErrIdentityNotFound), errors.Is(err, model.ErrUserNotFound):
		return handlers.WrapError(err, "user not found", http.StatusNotFound)
	case errors.Is(err, model.ErrEmptyExternalID), errors.Is(err, model.ErrUserResolveFailure):
		return handlers.WrapError(err, "could not resolve user from request", http.StatusBadRequest)
	default:
		return handlers.WrapError(err, "error resolving user", http.StatusInternalServerError)
	}
}
