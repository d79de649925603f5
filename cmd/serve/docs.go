package serve

import (
	"encoding/json"
	"net/http"
)

// docsHandler serves a minimal openapi document describing the service
// surface. The full request/response shapes live with their handlers; this
// document is a map, not a contract.
func docsHandler(title string) http.HandlerFunc {
	paths := map[string]interface{}{
		"/identify":            pathItem("post", "resolve an external identity, creating the user as needed"),
		"/products":            pathItem("get", "list active products"),
		"/products/{key}":      pathItem("get", "get one active product by key"),
		"/catalog":             pathItem("get", "list active offers, optionally filtered by sku"),
		"/catalog/{sku}":       pathItem("get", "get one active offer by sku"),
		"/balance":             pathItem("get", "check remaining quota for one product"),
		"/user-products":       pathItem("get", "list the user's active quota batches"),
		"/wallet":              pathItem("get", "aggregate balances per product key"),
		"/wallet/batches":      pathItem("get", "detailed active batches"),
		"/wallet/transactions": pathItem("get", "transaction history, newest first"),
		"/wallet/consume":      pathItem("post", "consume quota with optional idempotency key"),
		"/exchange":            pathItem("post", "pay for an offer with internal currency"),
		"/orders":              pathItem("post", "create a pending order"),
		"/orders/{id}":         pathItem("get", "get an order with its items"),
		"/orders/{id}/confirm": pathItem("post", "payment confirmation webhook"),
		"/orders/{id}/refund":  pathItem("post", "refund a paid order and revoke its batches"),
		"/orders/{id}/cancel":  pathItem("post", "cancel a pending order"),
		"/referrals":           pathItem("post", "attach a referrer to a referee"),
		"/referrals/stats":     pathItem("get", "count a referrer's referees"),
		"/demo/trial-grant":    pathItem("post", "grant the reference trial once per hashed identity"),
		"/customers/merge":     pathItem("post", "move all data from one user to another"),
	}

	document := map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   title,
			"version": "1.0",
		},
		"security": []map[string]interface{}{{"bearerAuth": []string{}}},
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
		"paths": paths,
	}

	body, _ := json.Marshal(document)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func pathItem(method, summary string) map[string]interface{} {
	return map[string]interface{}{
		method: map[string]interface{}{
			"summary":   summary,
			"responses": map[string]interface{}{"200": map[string]interface{}{"description": "OK"}},
		},
	}
}
