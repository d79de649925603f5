package model

// Error is a sentinel error type for the billable domain.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	ErrSomethingWentWrong Error = "something went wrong"

	ErrProductNotFound  Error = "model: product not found"
	ErrOfferNotFound    Error = "model: offer not found"
	ErrOrderNotFound    Error = "model: order not found"
	ErrIdentityNotFound Error = "model: identity not found"
	ErrUserNotFound     Error = "model: user not found"

	// ErrQuotaExhausted - no active batches exist for the product at all.
	ErrQuotaExhausted Error = "quota_exhausted"
	// ErrInsufficientFunds - active batches exist but cannot cover the amount.
	ErrInsufficientFunds Error = "insufficient_funds"

	ErrTrialAlreadyUsed Error = "trial_already_used"

	ErrEmptyExternalID    Error = "model: external id must not be empty"
	ErrSelfReferral       Error = "model: referrer and referee cannot be the same user"
	ErrNotCurrency        Error = "model: product is not marked as a currency"
	ErrOrderNotPending    Error = "model: order is not pending"
	ErrOrderNotPaid       Error = "model: order is not paid"
	ErrIdentityConflict   Error = "model: identity conflict for provider"
	ErrSameUser           Error = "model: target and source users must be different"
	ErrMissingSKU         Error = "model: item must have a sku"
	ErrInvalidPrice       Error = "model: offer price must be at least one whole currency unit"
	ErrInvalidPeriod      Error = "model: period value required for non-forever period"
	ErrUserResolveFailure Error = "model: user could not be resolved"
)
