package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/billable/billable/model"
)

func batchesWithRemaining(remaining ...int64) []model.QuotaBatch {
	batches := make([]model.QuotaBatch, 0, len(remaining))
	for _, r := range remaining {
		batches = append(batches, model.QuotaBatch{RemainingQuantity: r})
	}
	return batches
}

func TestPlanConsumptionSingleBatch(t *testing.T) {
	steps, err := planConsumption(batchesWithRemaining(10), 3)
	assert.NoError(t, err)
	assert.Equal(t, []consumptionStep{{BatchIndex: 0, Take: 3}}, steps)
}

func TestPlanConsumptionCrossesBatches(t *testing.T) {
	// 7 from (5, 5): the older batch is drained first
	steps, err := planConsumption(batchesWithRemaining(5, 5), 7)
	assert.NoError(t, err)
	assert.Equal(t, []consumptionStep{
		{BatchIndex: 0, Take: 5},
		{BatchIndex: 1, Take: 2},
	}, steps)
}

func TestPlanConsumptionSkipsDrainedBatches(t *testing.T) {
	steps, err := planConsumption(batchesWithRemaining(0, 4, 0, 4), 6)
	assert.NoError(t, err)
	assert.Equal(t, []consumptionStep{
		{BatchIndex: 1, Take: 4},
		{BatchIndex: 3, Take: 2},
	}, steps)
}

func TestPlanConsumptionExactRemaining(t *testing.T) {
	steps, err := planConsumption(batchesWithRemaining(2, 3), 5)
	assert.NoError(t, err)
	assert.Equal(t, []consumptionStep{
		{BatchIndex: 0, Take: 2},
		{BatchIndex: 1, Take: 3},
	}, steps)
}

func TestPlanConsumptionDistinguishesExhaustedFromInsufficient(t *testing.T) {
	_, err := planConsumption(nil, 1)
	assert.Equal(t, model.ErrQuotaExhausted, err)

	_, err = planConsumption(batchesWithRemaining(0, 0), 1)
	assert.Equal(t, model.ErrQuotaExhausted, err)

	// nothing is planned when the total cannot cover the amount
	_, err = planConsumption(batchesWithRemaining(2, 2), 5)
	assert.Equal(t, model.ErrInsufficientFunds, err)
}
