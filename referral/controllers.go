package referral

import (
	"errors"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/billable/billable/handlers"
	"github.com/billable/billable/identity"
	"github.com/billable/billable/middleware"
	"github.com/billable/billable/model"
	"github.com/billable/billable/requestutils"
)

// Router for referral endpoints
func Router(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("POST", "/", middleware.InstrumentHandler("CreateReferral", CreateReferral(service)))
	r.Method("GET", "/stats", middleware.InstrumentHandler("GetReferralStats", GetReferralStats(service)))
	return r
}

// CreateReferralRequest carries either local user ids or external ids for
// both sides of the link. The two modes are mutually exclusive.
type CreateReferralRequest struct {
	ReferrerUserID     *uuid.UUID `json:"referrer_user_id" valid:"-"`
	RefereeUserID      *uuid.UUID `json:"referee_user_id" valid:"-"`
	Provider           string     `json:"provider" valid:"-"`
	ReferrerExternalID string     `json:"referrer_external_id" valid:"-"`
	RefereeExternalID  string     `json:"referee_external_id" valid:"-"`
}

// CreateReferral is the handler for attaching a referrer to a referee
func CreateReferral(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		var req CreateReferralRequest
		if err := requestutils.ReadJSON(r.Context(), r.Body, &req); err != nil {
			return handlers.WrapError(err, "error reading request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(req); err != nil {
			return handlers.WrapValidationError(err)
		}

		var (
			result *AttachResult
			err    error
		)
		switch {
		case req.ReferrerUserID != nil && req.RefereeUserID != nil:
			result, err = service.Attach(r.Context(), *req.ReferrerUserID, *req.RefereeUserID)
		case req.ReferrerExternalID != "" && req.RefereeExternalID != "":
			result, err = service.AttachByExternalIDs(r.Context(), req.Provider, req.ReferrerExternalID, req.RefereeExternalID)
		default:
			return handlers.ValidationError("error validating request body",
				map[string]interface{}{
					"referrer": "either both user ids or both external ids are required",
				})
		}
		if err != nil {
			switch {
			case errors.Is(err, model.ErrSelfReferral):
				return handlers.WrapError(err, "referrer and referee cannot be the same user", http.StatusBadRequest)
			case errors.Is(err, model.ErrIdentityNotFound), errors.Is(err, model.ErrUserResolveFailure):
				return handlers.WrapError(err, "identity not found", http.StatusBadRequest)
			case errors.Is(err, model.ErrUserNotFound):
				return handlers.WrapError(err, "user not found", http.StatusNotFound)
			default:
				return handlers.WrapError(err, "error creating referral", http.StatusInternalServerError)
			}
		}
		return handlers.RenderContent(r.Context(), result, w, http.StatusOK)
	}
}

// GetReferralStats is the handler for counting a referrer's referees
func GetReferralStats(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		params, err := identity.UserParamsFromQuery(r.URL.Query())
		if err != nil {
			return handlers.ValidationError("error validating request query parameter",
				map[string]interface{}{"user_id": "must be a valid uuid"})
		}
		userID, err := params.Resolve(r.Context(), service.Identity(), false)
		if err != nil {
			return identity.ResolveError(err)
		}

		count, err := service.Stats(r.Context(), userID)
		if err != nil {
			return handlers.WrapError(err, "error counting referrals", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), map[string]interface{}{
			"user_id":   userID,
			"referrals": count,
		}, w, http.StatusOK)
	}
}

// TrialGrantRequest is the body of POST /demo/trial-grant
type TrialGrantRequest struct {
	identity.UserParams
	SKU string `json:"sku" valid:"required"`
}

// TrialGrant is the handler for the reference trial grant
func TrialGrant(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		var req TrialGrantRequest
		if err := requestutils.ReadJSON(r.Context(), r.Body, &req); err != nil {
			return handlers.WrapError(err, "error reading request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(req); err != nil {
			return handlers.WrapValidationError(err)
		}
		if req.ExternalID == "" {
			return handlers.ValidationError("error validating request body",
				map[string]interface{}{"external_id": "external_id is required for trial grants"})
		}

		userID, err := req.UserParams.Resolve(r.Context(), service.Identity(), true)
		if err != nil {
			return identity.ResolveError(err)
		}

		provider := req.Provider
		if provider == "" {
			provider = model.DefaultProvider
		}
		result, err := service.TrialGrant(r.Context(), userID, req.SKU, []TrialIdentity{
			{Type: provider, Value: req.ExternalID},
		})
		if err != nil {
			switch {
			case errors.Is(err, model.ErrTrialAlreadyUsed):
				return handlers.CodedError(err, string(model.ErrTrialAlreadyUsed), http.StatusBadRequest)
			case errors.Is(err, model.ErrOfferNotFound):
				return handlers.WrapError(err, "offer not found", http.StatusNotFound)
			default:
				return handlers.WrapError(err, "error granting trial", http.StatusInternalServerError)
			}
		}
		return handlers.RenderContent(r.Context(), map[string]interface{}{
			"success": true,
			"batches": result.Batches,
		}, w, http.StatusOK)
	}
}
