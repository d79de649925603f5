package ledger

import (
	"errors"
	"net/http"
	"time"

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

// WalletRouter for balance and consumption endpoints
func WalletRouter(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("GET", "/", middleware.InstrumentHandler("GetWallet", GetWallet(service)))
	r.Method("GET", "/batches", middleware.InstrumentHandler("GetWalletBatches", GetWalletBatches(service)))
	r.Method("GET", "/transactions", middleware.InstrumentHandler("GetWalletTransactions", GetWalletTransactions(service)))
	r.Method("POST", "/consume", middleware.InstrumentHandler("Consume", PostConsume(service)))
	return r
}

// GetBalance is the handler for a single-product quota check
func GetBalance(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		query := r.URL.Query()
		productKey := query.Get("product_key")
		if productKey == "" {
			return handlers.ValidationError("error validating request query parameter",
				map[string]interface{}{"product_key": "product_key is required"})
		}

		userID, appErr := resolveFromQuery(r, service)
		if appErr != nil {
			return appErr
		}

		balance, err := service.GetBalance(r.Context(), userID, productKey)
		if err != nil {
			return handlers.WrapError(err, "error getting balance", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), balance, w, http.StatusOK)
	}
}

// GetUserProducts is the handler for listing a user's live batches
func GetUserProducts(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		userID, appErr := resolveFromQuery(r, service)
		if appErr != nil {
			return appErr
		}

		var productKey *string
		if pk := r.URL.Query().Get("product_key"); pk != "" {
			productKey = &pk
		}

		batches, err := service.GetActiveBatches(r.Context(), userID, productKey)
		if err != nil {
			return handlers.WrapError(err, "error getting active batches", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), batches, w, http.StatusOK)
	}
}

// GetWallet is the handler for the aggregate balance map
func GetWallet(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		userID, appErr := resolveFromQuery(r, service)
		if appErr != nil {
			return appErr
		}

		wallet, err := service.GetWallet(r.Context(), userID)
		if err != nil {
			return handlers.WrapError(err, "error getting wallet", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), wallet, w, http.StatusOK)
	}
}

// GetWalletBatches is the handler for the detailed batch view
func GetWalletBatches(service *Service) handlers.AppHandler {
	return GetUserProducts(service)
}

// GetWalletTransactions is the handler for ledger history, newest first
func GetWalletTransactions(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		userID, appErr := resolveFromQuery(r, service)
		if appErr != nil {
			return appErr
		}

		query := r.URL.Query()
		filter := TransactionFilter{}
		if pk := query.Get("product_key"); pk != "" {
			filter.ProductKey = &pk
		}
		if at := query.Get("action_type"); at != "" {
			filter.ActionType = &at
		}
		if raw := query.Get("date_from"); raw != "" {
			from, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return handlers.ValidationError("error validating request query parameter",
					map[string]interface{}{"date_from": "must be RFC3339"})
			}
			filter.DateFrom = &from
		}

		transactions, err := service.ListTransactions(r.Context(), userID, filter)
		if err != nil {
			return handlers.WrapError(err, "error listing transactions", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), transactions, w, http.StatusOK)
	}
}

// ConsumeRequest is the body of POST /wallet/consume
type ConsumeRequest struct {
	identity.UserParams
	ProductKey     string             `json:"product_key" valid:"required"`
	Amount         int64              `json:"amount" valid:"-"`
	ActionType     string             `json:"action_type" valid:"required"`
	ActionID       *string            `json:"action_id" valid:"-"`
	IdempotencyKey *string            `json:"idempotency_key" valid:"-"`
	Metadata       datastore.Metadata `json:"metadata" valid:"-"`
}

// ConsumeResponse is the reply to POST /wallet/consume
type ConsumeResponse struct {
	Success    bool               `json:"success"`
	UsageID    uuid.UUID          `json:"usage_id"`
	Amount     int64              `json:"amount"`
	Remaining  int64              `json:"remaining"`
	Idempotent bool               `json:"idempotent"`
	Metadata   datastore.Metadata `json:"metadata"`
}

// PostConsume is the handler for quota consumption
func PostConsume(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		var req ConsumeRequest
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

		result, err := service.Consume(r.Context(), Consume{
			UserID:         userID,
			ProductKey:     req.ProductKey,
			Amount:         req.Amount,
			ActionType:     req.ActionType,
			ActionID:       req.ActionID,
			IdempotencyKey: req.IdempotencyKey,
			Metadata:       req.Metadata,
		})
		if err != nil {
			return quotaError(err)
		}

		return handlers.RenderContent(r.Context(), ConsumeResponse{
			Success:    true,
			UsageID:    result.UsageID,
			Amount:     result.Amount,
			Remaining:  result.Remaining,
			Idempotent: result.Idempotent,
			Metadata:   result.Metadata,
		}, w, http.StatusOK)
	}
}

// ExchangeRequest is the body of POST /exchange
type ExchangeRequest struct {
	identity.UserParams
	SKU      string             `json:"sku" valid:"required"`
	Metadata datastore.Metadata `json:"metadata" valid:"-"`
}

// PostExchange is the handler for paying an offer with internal currency
func PostExchange(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		var req ExchangeRequest
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

		result, err := service.Exchange(r.Context(), userID, req.SKU, req.Metadata)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrOfferNotFound):
				return handlers.WrapError(err, "offer not found", http.StatusNotFound)
			case errors.Is(err, model.ErrNotCurrency), errors.Is(err, model.ErrInvalidPrice):
				return handlers.WrapError(err, "offer is not exchange-payable", http.StatusBadRequest)
			default:
				return quotaError(err)
			}
		}

		return handlers.RenderContent(r.Context(), map[string]interface{}{
			"success":   true,
			"usage_id":  result.Consume.UsageID,
			"remaining": result.Consume.Remaining,
			"batches":   result.Batches,
		}, w, http.StatusOK)
	}
}

// quotaError maps ledger failures to the uniform error response, carrying
// the machine-readable code for quota shortfalls
func quotaError(err error) *handlers.AppError {
	switch {
	case errors.Is(err, model.ErrQuotaExhausted):
		return handlers.CodedError(err, string(model.ErrQuotaExhausted), http.StatusBadRequest)
	case errors.Is(err, model.ErrInsufficientFunds):
		return handlers.CodedError(err, string(model.ErrInsufficientFunds), http.StatusBadRequest)
	default:
		return handlers.WrapError(err, "error applying ledger operation", http.StatusInternalServerError)
	}
}

func resolveFromQuery(r *http.Request, service *Service) (uuid.UUID, *handlers.AppError) {
	params, err := identity.UserParamsFromQuery(r.URL.Query())
	if err != nil {
		return uuid.Nil, handlers.ValidationError("error validating request query parameter",
			map[string]interface{}{"user_id": "must be a valid uuid"})
	}
	userID, err := params.Resolve(r.Context(), service.Identity(), false)
	if err != nil {
		return uuid.Nil, identity.ResolveError(err)
	}
	return userID, nil
}
