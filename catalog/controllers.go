package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/billable/billable/handlers"
	"github.com/billable/billable/middleware"
	"github.com/billable/billable/model"
)

// ProductsRouter for product read endpoints
func ProductsRouter(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("GET", "/", middleware.InstrumentHandler("ListProducts", ListProducts(service)))
	r.Method("GET", "/{productKey}", middleware.InstrumentHandler("GetProduct", GetProduct(service)))
	return r
}

// OffersRouter for offer read endpoints
func OffersRouter(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("GET", "/", middleware.InstrumentHandler("ListOffers", ListOffers(service)))
	r.Method("GET", "/{sku}", middleware.InstrumentHandler("GetOffer", GetOffer(service)))
	return r
}

// ListProducts is the handler for listing active products
func ListProducts(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		products, err := service.ListProducts(r.Context())
		if err != nil {
			return handlers.WrapError(err, "error listing products", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), products, w, http.StatusOK)
	}
}

// GetProduct is the handler for fetching one active product by key
func GetProduct(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		product, err := service.GetProductByKey(r.Context(), chi.URLParam(r, "productKey"))
		if err != nil {
			if errors.Is(err, model.ErrProductNotFound) {
				return handlers.WrapError(err, "product not found", http.StatusNotFound)
			}
			return handlers.WrapError(err, "error getting product", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), product, w, http.StatusOK)
	}
}

// ListOffers is the handler for listing active offers. A repeatable sku
// query parameter restricts the result to those skus in the given order.
func ListOffers(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		skus := r.URL.Query()["sku"]
		if len(skus) > 0 {
			offers, err := service.ResolveOffersBySKUs(r.Context(), skus)
			if err != nil {
				return handlers.WrapError(err, "error resolving offers", http.StatusInternalServerError)
			}
			return handlers.RenderContent(r.Context(), offers, w, http.StatusOK)
		}
		offers, err := service.ListOffers(r.Context())
		if err != nil {
			return handlers.WrapError(err, "error listing offers", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), offers, w, http.StatusOK)
	}
}

// GetOffer is the handler for fetching one active offer by sku
func GetOffer(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		offer, err := service.GetOfferBySKU(r.Context(), chi.URLParam(r, "sku"), true)
		if err != nil {
			if errors.Is(err, model.ErrOfferNotFound) {
				return handlers.WrapError(err, "offer not found", http.StatusNotFound)
			}
			return handlers.WrapError(err, "error getting offer", http.StatusInternalServerError)
		}
		return handlers.RenderContent(r.Context(), offer, w, http.StatusOK)
	}
}
