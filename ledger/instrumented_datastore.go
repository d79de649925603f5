package ledger

// DO NOT EDIT!
// This code is generated with http://github.com/hexdigest/gowrap tool
// using ../.prom-gowrap.tmpl template

//go:generate gowrap gen -p github.com/billable/billable/ledger -i Datastore -t ../.prom-gowrap.tmpl -o instrumented_datastore.go

import (
	"context"
	"time"

	"github.com/billable/billable/datastore"
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

var ledgerDatastoreDurationSummaryVec = promauto.NewSummaryVec(
	prometheus.SummaryOpts{
		Name:       "ledger_datastore_duration_seconds",
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

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "BeginTx", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.BeginTx()
}

// ConsumeQuota implements Datastore
func (_d *DatastoreWithPrometheus) ConsumeQuota(ctx context.Context, consume Consume) (cp1 *ConsumeResult, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ConsumeQuota", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ConsumeQuota(ctx, consume)
}

// ExchangeOffer implements Datastore
func (_d *DatastoreWithPrometheus) ExchangeOffer(ctx context.Context, userID uuid.UUID, offer *model.Offer, currencyKey string, amount int64, meta datastore.Metadata) (ep1 *ExchangeResult, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ExchangeOffer", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ExchangeOffer(ctx, userID, offer, currencyKey, amount, meta)
}

// ExpireBatches implements Datastore
func (_d *DatastoreWithPrometheus) ExpireBatches(ctx context.Context) (i1 int64, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ExpireBatches", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ExpireBatches(ctx)
}

// GetActiveBatches implements Datastore
func (_d *DatastoreWithPrometheus) GetActiveBatches(ctx context.Context, userID uuid.UUID, productKey *string) (qa1 []model.QuotaBatch, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetActiveBatches", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetActiveBatches(ctx, userID, productKey)
}

// GetBalance implements Datastore
func (_d *DatastoreWithPrometheus) GetBalance(ctx context.Context, userID uuid.UUID, productKey string) (i1 int64, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetBalance", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetBalance(ctx, userID, productKey)
}

// GetWalletSummary implements Datastore
func (_d *DatastoreWithPrometheus) GetWalletSummary(ctx context.Context, userID uuid.UUID) (m1 map[string]int64, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetWalletSummary", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetWalletSummary(ctx, userID)
}

// GrantOffer implements Datastore
func (_d *DatastoreWithPrometheus) GrantOffer(ctx context.Context, grant Grant) (qa1 []model.QuotaBatch, ta1 []model.Transaction, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GrantOffer", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GrantOffer(ctx, grant)
}

// ListTransactions implements Datastore
func (_d *DatastoreWithPrometheus) ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter) (ta1 []model.Transaction, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ListTransactions", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ListTransactions(ctx, userID, filter)
}

// Migrate implements Datastore
func (_d *DatastoreWithPrometheus) Migrate(p1 ...uint) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "Migrate", result).Observe(time.Since(_since).Seconds())
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

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "NewMigrate", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.NewMigrate()
}

// RawDB implements Datastore
func (_d *DatastoreWithPrometheus) RawDB() (dp1 *sqlx.DB) {
	_since := time.Now()
	defer func() {
		result := "ok"
		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RawDB", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.RawDB()
}

// RevokeOrderBatches implements Datastore
func (_d *DatastoreWithPrometheus) RevokeOrderBatches(ctx context.Context, orderID uuid.UUID, reason string, meta datastore.Metadata) (ta1 []model.Transaction, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RevokeOrderBatches", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.RevokeOrderBatches(ctx, orderID, reason, meta)
}

// RollbackTx implements Datastore
func (_d *DatastoreWithPrometheus) RollbackTx(tx *sqlx.Tx) {
	_since := time.Now()
	defer func() {
		result := "ok"
		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RollbackTx", result).Observe(time.Since(_since).Seconds())
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

		ledgerDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RollbackTxAndHandle", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.RollbackTxAndHandle(tx)
}
