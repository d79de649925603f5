package customers

import (
	"errors"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/billable/billable/handlers"
	"github.com/billable/billable/middleware"
	"github.com/billable/billable/model"
	"github.com/billable/billable/requestutils"
)

// Router for customer utilities
func Router(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("POST", "/merge", middleware.InstrumentHandler("MergeCustomers", MergeCustomers(service)))
	return r
}

// MergeRequest is the body of POST /customers/merge
type MergeRequest struct {
	TargetUserID uuid.UUID `json:"target_user_id" valid:"required"`
	SourceUserID uuid.UUID `json:"source_user_id" valid:"required"`
}

// MergeCustomers is the handler for moving one user's data onto another
func MergeCustomers(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		var req MergeRequest
		if err := requestutils.ReadJSON(r.Context(), r.Body, &req); err != nil {
			return handlers.WrapError(err, "error reading request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(req); err != nil {
			return handlers.WrapValidationError(err)
		}

		result, err := service.Merge(r.Context(), req.TargetUserID, req.SourceUserID)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrSameUser), errors.Is(err, model.ErrIdentityConflict):
				return handlers.WrapError(err, "users cannot be merged", http.StatusBadRequest)
			case errors.Is(err, model.ErrUserNotFound):
				return handlers.WrapError(err, "user not found", http.StatusNotFound)
			default:
				return handlers.WrapError(err, "error merging customers", http.StatusInternalServerError)
			}
		}
		return handlers.RenderContent(r.Context(), result, w, http.StatusOK)
	}
}
