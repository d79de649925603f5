package orders

import (
	"errors"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/handlers"
	"github.com/billable/billable/identity"
	"github.com/billable/billable/middleware"
	"github.com/billable/billable/model"
	"github.com/billable/billable/requestutils"
)

// Router for order endpoints
func Router(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("POST", "/", middleware.InstrumentHandler("CreateOrder", CreateOrder(service)))
	r.Method("GET", "/{orderID}", middleware.InstrumentHandler("GetOrder", GetOrder(service)))
	r.Method("POST", "/{orderID}/confirm", middleware.InstrumentHandler("ConfirmOrder", ConfirmOrder(service)))
	r.Method("POST", "/{orderID}/refund", middleware.InstrumentHandler("RefundOrder", RefundOrder(service)))
	r.Method("POST", "/{orderID}/cancel", middleware.InstrumentHandler("CancelOrder", CancelOrder(service)))
	return r
}

// CreateOrderRequest is the body of POST /orders
type CreateOrderRequest struct {
	identity.UserParams
	Items    []ItemRequest      `json:"items" valid:"required"`
	Metadata datastore.Metadata `json:"metadata" valid:"-"`
}

// CreateOrder is the handler for creating a pending order
func CreateOrder(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		var req CreateOrderRequest
		if err := requestutils.ReadJSON(r.Context(), r.Body, &req); err != nil {
			return handlers.WrapError(err, "error reading request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(req); err != nil {
			return handlers.WrapValidationError(err)
		}

		userID, err := req.UserParams.Resolve(r.Context(), service.Identity(), true)
		if err != nil {
			return identity.ResolveError(err)
		}

		order, err := service.CreateOrder(r.Context(), userID, req.Items, req.Metadata)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrOfferNotFound):
				return handlers.WrapError(err, "offer not found", http.StatusNotFound)
			case errors.Is(err, model.ErrMissingSKU), errors.Is(err, model.ErrInvalidPrice):
				return handlers.WrapError(err, "invalid order items", http.StatusBadRequest)
			default:
				return handlers.WrapError(err, "error creating order", http.StatusInternalServerError)
			}
		}
		return handlers.RenderContent(r.Context(), order, w, http.StatusCreated)
	}
}

// GetOrder is the handler for fetching one order
func GetOrder(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		orderID, appErr := orderIDParam(r)
		if appErr != nil {
			return appErr
		}
		order, err := service.GetOrder(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, model.ErrOrderNotFound) {
				return handlers.WrapError(err, "order not found", http.StatusNotFound)
			}
			return handlers.WrapError(err, "error getting order", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), order, w, http.StatusOK)
	}
}

// ConfirmOrderRequest is the body of the payment webhook
type ConfirmOrderRequest struct {
	PaymentID     *string `json:"payment_id" valid:"-"`
	PaymentMethod string  `json:"payment_method" valid:"required"`
}

// ConfirmOrder is the handler for the payment confirmation webhook
func ConfirmOrder(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		orderID, appErr := orderIDParam(r)
		if appErr != nil {
			return appErr
		}

		var req ConfirmOrderRequest
		if err := requestutils.ReadJSON(r.Context(), r.Body, &req); err != nil {
			return handlers.WrapError(err, "error reading request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(req); err != nil {
			return handlers.WrapValidationError(err)
		}

		result, err := service.ConfirmOrder(r.Context(), orderID, req.PaymentID, req.PaymentMethod)
		if err != nil {
			return orderError(err, "error confirming order")
		}
		return handlers.RenderContent(r.Context(), map[string]interface{}{
			"success":      true,
			"order":        result.Order,
			"already_paid": result.AlreadyPaid,
		}, w, http.StatusOK)
	}
}

// RefundOrderRequest is the body of POST /orders/{id}/refund
type RefundOrderRequest struct {
	Reason string `json:"reason" valid:"-"`
}

// RefundOrder is the handler for refunding a paid order
func RefundOrder(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		orderID, appErr := orderIDParam(r)
		if appErr != nil {
			return appErr
		}

		var req RefundOrderRequest
		if err := requestutils.ReadJSON(r.Context(), r.Body, &req); err != nil {
			return handlers.WrapError(err, "error reading request body", http.StatusBadRequest)
		}

		result, err := service.RefundOrder(r.Context(), orderID, req.Reason)
		if err != nil {
			return orderError(err, "error refunding order")
		}
		return handlers.RenderContent(r.Context(), map[string]interface{}{
			"success": true,
			"order":   result.Order,
		}, w, http.StatusOK)
	}
}

// CancelOrder is the handler for cancelling a pending order
func CancelOrder(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		orderID, appErr := orderIDParam(r)
		if appErr != nil {
			return appErr
		}

		var req RefundOrderRequest
		if err := requestutils.ReadJSON(r.Context(), r.Body, &req); err != nil {
			return handlers.WrapError(err, "error reading request body", http.StatusBadRequest)
		}

		order, err := service.CancelOrder(r.Context(), orderID, req.Reason)
		if err != nil {
			return orderError(err, "error cancelling order")
		}
		return handlers.RenderContent(r.Context(), order, w, http.StatusOK)
	}
}

func orderError(err error, message string) *handlers.AppError {
	switch {
	case errors.Is(err, model.ErrOrderNotFound):
		return handlers.WrapError(err, "order not found", http.StatusNotFound)
	case IsStateError(err):
		return handlers.WrapError(err, "order is not in a permitted status for this transition", http.StatusBadRequest)
	default:
		return handlers.WrapError(err, message, http.StatusInternalServerError)
	}
}

func orderIDParam(r *http.Request) (uuid.UUID, *handlers.AppError) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		return uuid.Nil, handlers.ValidationError("error validating request url parameter",
			map[string]interface{}{"orderID": "must be a valid uuid"})
	}
	return orderID, nil
}
