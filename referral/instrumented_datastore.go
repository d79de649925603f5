package referral

// DO NOT EDIT!
// This code is generated with http://github.com/hexdigest/gowrap tool
// using ../.prom-gowrap.tmpl template

//go:generate gowrap gen -p github.com/billable/billable/referral -i Datastore -t ../.prom-gowrap.tmpl -o instrumented_datastore.go

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

var referralDatastoreDurationSummaryVec = promauto.NewSummaryVec(
	prometheus.SummaryOpts{
		Name:       "referral_datastore_duration_seconds",
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

// ActivateTrial implements Datastore
func (_d *DatastoreWithPrometheus) ActivateTrial(ctx context.Context, userID uuid.UUID, offer *model.Offer, identities []TrialIdentity) (tp1 *TrialResult, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ActivateTrial", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ActivateTrial(ctx, userID, offer, identities)
}

// BeginTx implements Datastore
func (_d *DatastoreWithPrometheus) BeginTx() (tp1 *sqlx.Tx, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "BeginTx", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.BeginTx()
}

// ClaimBonus implements Datastore
func (_d *DatastoreWithPrometheus) ClaimBonus(ctx context.Context, referralID uuid.UUID) (b1 bool, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ClaimBonus", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ClaimBonus(ctx, referralID)
}

// CountReferrals implements Datastore
func (_d *DatastoreWithPrometheus) CountReferrals(ctx context.Context, referrerID uuid.UUID) (i1 int64, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "CountReferrals", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.CountReferrals(ctx, referrerID)
}

// GetOrCreateReferral implements Datastore
func (_d *DatastoreWithPrometheus) GetOrCreateReferral(ctx context.Context, referrerID uuid.UUID, refereeID uuid.UUID) (rp1 *model.Referral, b1 bool, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetOrCreateReferral", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetOrCreateReferral(ctx, referrerID, refereeID)
}

// HasUsedTrial implements Datastore
func (_d *DatastoreWithPrometheus) HasUsedTrial(ctx context.Context, identityType string, value string) (b1 bool, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "HasUsedTrial", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.HasUsedTrial(ctx, identityType, value)
}

// Migrate implements Datastore
func (_d *DatastoreWithPrometheus) Migrate(p1 ...uint) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "Migrate", result).Observe(time.Since(_since).Seconds())
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

		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "NewMigrate", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.NewMigrate()
}

// RawDB implements Datastore
func (_d *DatastoreWithPrometheus) RawDB() (dp1 *sqlx.DB) {
	_since := time.Now()
	defer func() {
		result := "ok"
		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RawDB", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.RawDB()
}

// RollbackTx implements Datastore
func (_d *DatastoreWithPrometheus) RollbackTx(tx *sqlx.Tx) {
	_since := time.Now()
	defer func() {
		result := "ok"
		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RollbackTx", result).Observe(time.Since(_since).Seconds())
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

		referralDatastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RollbackTxAndHandle", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.RollbackTxAndHandle(tx)
}
