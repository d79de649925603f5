package catalog

// DO NOT EDIT!
// This code is generated with http://github.com/hexdigest/gowrap tool
// using ../.prom-gowrap.tmpl template

//go:generate gowrap gen -p github.com/billable/billable/catalog -i Datastore -t ../.prom-gowrap.tmpl -o instrumented_datastore.go

import (
	"context"
	"time"

	"github.com/billable/billable/model"
	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DatastoreWithPrometheus implements Datastore interface with all methods wrapped
// with Prometheus metrics
type DatastoreWithPrometheus struct {
	base         Datastore
	instanceName string
}

var catalogDatastoreDurationSummaryVec = promauto.NewSummaryVec(
	prometheus.SummaryOpts{
		Name:       "catalog_datastore_duration_seconds",
		Help:       "datastore runtime duration and result",
		MaxAge:     time.Minute,
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	},
	[]string{"instance_name", "method", "result"})

// NewDatastoreWithPrometheus returns an instance of the Datastore decorated with prometheus summary metric
func NewDatastoreWithPrometheus(base Datastore, instanceName string) DatastoreWithPrometheus {
	return DatastoreWithPrometheus{
		base:         base,
		instanceName: instanceName,
	}
}

// BeginTx implements Datastore
func (_d *DatastoreWithPrometheus) BeginTx() (tp1 *sqlx.Tx, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "BeginTx", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.BeginTx()
}

// GetOffer implements Datastore
func (_d *DatastoreWithPrometheus) GetOffer(ctx context.Context, offerID uuid.UUID) (op1 *model.Offer, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetOffer", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetOffer(ctx, offerID)
}

// GetOfferBySKU implements Datastore
func (_d *DatastoreWithPrometheus) GetOfferBySKU(ctx context.Context, sku string, activeOnly bool) (op1 *model.Offer, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetOfferBySKU", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetOfferBySKU(ctx, sku, activeOnly)
}

// GetProduct implements Datastore
func (_d *DatastoreWithPrometheus) GetProduct(ctx context.Context, productID uuid.UUID) (pp1 *model.Product, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetProduct", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetProduct(ctx, productID)
}

// GetProductByKey implements Datastore
func (_d *DatastoreWithPrometheus) GetProductByKey(ctx context.Context, key string) (pp1 *model.Product, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetProductByKey", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetProductByKey(ctx, key)
}

// ListOffers implements Datastore
func (_d *DatastoreWithPrometheus) ListOffers(ctx context.Context, activeOnly bool) (oa1 []model.Offer, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ListOffers", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ListOffers(ctx, activeOnly)
}

// ListProducts implements Datastore
func (_d *DatastoreWithPrometheus) ListProducts(ctx context.Context, activeOnly bool) (pa1 []model.Product, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ListProducts", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ListProducts(ctx, activeOnly)
}

// Migrate implements Datastore
func (_d *DatastoreWithPrometheus) Migrate(p1 ...uint) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "Migrate", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.Migrate(p1...)
}

// NewMigrate implements Datastore
func (_d *DatastoreWithPrometheus) NewMigrate() (mp1 *migrate.Migrate, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "NewMigrate", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.NewMigrate()
}

// RawDB implements Datastore
func (_d *DatastoreWithPrometheus) RawDB() (dp1 *sqlx.DB) {
	_since := time.Now()
	defer func() {
		result := "ok"
		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RawDB", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.RawDB()
}

// RollbackTx implements Datastore
func (_d *DatastoreWithPrometheus) RollbackTx(tx *sqlx.Tx) {
	_since := time.Now()
	defer func() {
		result := "ok"
		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RollbackTx", result).Observe(time.Since(_since).Seconds())
	}()
	_d.base.RollbackTx(tx)
	return
}

// RollbackTxAndHandle implements Datastore
func (_d *DatastoreWithPrometheus) RollbackTxAndHandle(tx *sqlx.Tx) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		catalogDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RollbackTxAndHandle", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.RollbackTxAndHandle(tx)
}
