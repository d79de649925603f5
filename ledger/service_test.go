package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billable/billable/model"
)

type fakeBatchDatastore struct {
	Datastore
	batches []model.QuotaBatch
}

func (f *fakeBatchDatastore) GetActiveBatches(ctx context.Context, userID uuid.UUID, productKey *string) ([]model.QuotaBatch, error) {
	return f.batches, nil
}

func TestGetBalanceKeepsSoonestExpiry(t *testing.T) {
	soon := time.Now().Add(24 * time.Hour)
	late := time.Now().Add(30 * 24 * time.Hour)
	service, err := InitService(context.Background(), &fakeBatchDatastore{batches: []model.QuotaBatch{
		{InitialQuantity: 10, RemainingQuantity: 4, ProductType: model.ProductTypeQuantity, ExpiresAt: &late},
		{InitialQuantity: 10, RemainingQuantity: 10, ProductType: model.ProductTypeQuantity, ExpiresAt: &soon},
	}}, nil, nil, nil)
	require.NoError(t, err)

	balance, err := service.GetBalance(context.Background(), uuid.New(), "tokens")
	require.NoError(t, err)

	assert.Equal(t, "TOKENS", balance.ProductKey)
	assert.Equal(t, int64(20), balance.Total)
	assert.Equal(t, int64(14), balance.Remaining)
	assert.Equal(t, int64(6), balance.Used)
	assert.False(t, balance.IsUnlimited)
	require.NotNil(t, balance.Expiry)
	assert.Equal(t, soon, *balance.Expiry)
}

func TestGetBalanceUnlimitedProductTypes(t *testing.T) {
	for _, productType := range []model.ProductType{model.ProductTypePeriod, model.ProductTypeUnlimited} {
		service, err := InitService(context.Background(), &fakeBatchDatastore{batches: []model.QuotaBatch{
			{InitialQuantity: 1, RemainingQuantity: 1, ProductType: productType},
		}}, nil, nil, nil)
		require.NoError(t, err)

		balance, err := service.GetBalance(context.Background(), uuid.New(), "premium")
		require.NoError(t, err)
		assert.True(t, balance.IsUnlimited, "product type %s reports unlimited", productType)
		assert.Nil(t, balance.Expiry)
	}
}
