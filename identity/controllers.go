package identity

import (
	"errors"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/handlers"
	"github.com/billable/billable/middleware"
	"github.com/billable/billable/model"
	"github.com/billable/billable/requestutils"
)

// Router for identity endpoints
func Router(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("POST", "/", middleware.InstrumentHandler("Identify", Identify(service)))
	return r
}

// IdentifyRequest is the write-path resolution request
type IdentifyRequest struct {
	Provider   string             `json:"provider" valid:"-"`
	ExternalID string             `json:"external_id" valid:"required"`
	Profile    datastore.Metadata `json:"profile" valid:"-"`
}

// Identify is the handler for write-path identity resolution
func Identify(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		var req IdentifyRequest
		if err := requestutils.ReadJSON(r.Context(), r.Body, &req); err != nil {
			return handlers.WrapError(err, "error reading request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(req); err != nil {
			return handlers.WrapValidationError(err)
		}

		result, err := service.Identify(r.Context(), req.Provider, req.ExternalID, req.Profile)
		if err != nil {
			if errors.Is(err, model.ErrEmptyExternalID) {
				return handlers.WrapError(err, "external_id must not be empty", http.StatusBadRequest)
			}
			return handlers.WrapError(err, "error resolving identity", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), result, w, http.StatusOK)
	}
}
