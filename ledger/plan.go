package ledger

import (
	"github.com/billable/billable/model"
)

// consumptionStep records how much to take from one locked batch
type consumptionStep struct {
	BatchIndex int
	Take       int64
}

// planConsumption walks already-locked batches in FIFO order and decides how
// much to debit from each. No partial consumption: when the total remaining
// cannot cover amount nothing is planned.
func planConsumption(batches []model.QuotaBatch, amount int64) ([]consumptionStep, error) {
	var total int64
	for _, batch := range batches {
		total += batch.RemainingQuantity
	}
	if total == 0 {
		return nil, model.ErrQuotaExhausted
	}
	if total < amount {
		return nil, model.ErrInsufficientFunds
	}

	steps := []consumptionStep{}
	needed := amount
	for i := range batches {
		if needed == 0 {
			break
		}
		take := batches[i].RemainingQuantity
		if take > needed {
			take = needed
		}
		if take == 0 {
			continue
		}
		steps = append(steps, consumptionStep{BatchIndex: i, Take: take})
		needed -= take
	}
	return steps, nil
}
