package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/billable/billable/datastore"
)

// ProductType describes how a product's quota is accounted.
type ProductType string

const (
	ProductTypePeriod    ProductType = "period"
	ProductTypeQuantity  ProductType = "quantity"
	ProductTypeUnlimited ProductType = "unlimited"
)

// PeriodUnit is the unit of an offer item's validity period.
type PeriodUnit string

const (
	PeriodUnitHours   PeriodUnit = "hours"
	PeriodUnitDays    PeriodUnit = "days"
	PeriodUnitMonths  PeriodUnit = "months"
	PeriodUnitYears   PeriodUnit = "years"
	PeriodUnitForever PeriodUnit = "forever"
)

// Expiry computes the expiration instant for a grant made at from.
// Hour and day periods are exact durations. Month and year periods use
// calendar arithmetic: the day-of-month is preserved, clamping to the end of
// the target month (1 month after Jan 31 is Feb 28/29). Forever returns nil.
func (u PeriodUnit) Expiry(from time.Time, value int) *time.Time {
	if u == PeriodUnitForever || value <= 0 {
		return nil
	}

	var at time.Time
	switch u {
	case PeriodUnitHours:
		at = from.Add(time.Duration(value) * time.Hour)
	case PeriodUnitDays:
		at = from.Add(time.Duration(value) * 24 * time.Hour)
	case PeriodUnitMonths:
		at = addMonths(from, value)
	case PeriodUnitYears:
		at = addMonths(from, 12*value)
	default:
		return nil
	}
	return &at
}

// addMonths adds calendar months keeping the day-of-month, clamped to the
// last day of the target month. time.Time.AddDate normalizes overflow
// (Jan 31 + 1 month = Mar 2/3) which is not what a billing period means.
func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())

	day := t.Day()
	if last := daysInMonth(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month, loc *time.Location) int {
	// day zero of the next month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Product is the unit of accounting, a technical resource or access right.
type Product struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	ProductKey  *string            `json:"product_key" db:"product_key"`
	Name        string             `json:"name" db:"name"`
	Description string             `json:"description" db:"description"`
	ProductType ProductType        `json:"product_type" db:"product_type"`
	IsActive    bool               `json:"is_active" db:"is_active"`
	IsCurrency  bool               `json:"is_currency" db:"is_currency"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	Metadata    datastore.Metadata `json:"metadata" db:"metadata"`
}

// Key returns the canonical product key, or the empty string when unset.
func (p *Product) Key() string {
	if p.ProductKey == nil {
		return ""
	}
	return *p.ProductKey
}

// Offer is the marketing packaging for one or more products.
type Offer struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	SKU         string             `json:"sku" db:"sku"`
	Name        string             `json:"name" db:"name"`
	Price       decimal.Decimal    `json:"price" db:"price"`
	Currency    string             `json:"currency" db:"currency"`
	Description string             `json:"description" db:"description"`
	IsActive    bool               `json:"is_active" db:"is_active"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	Metadata    datastore.Metadata `json:"metadata" db:"metadata"`

	Items []OfferItem `json:"items" db:"-"`
}

// OfferItem connects an offer with the products it grants.
type OfferItem struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	OfferID     uuid.UUID  `json:"offer_id" db:"offer_id"`
	ProductID   uuid.UUID  `json:"product_id" db:"product_id"`
	Quantity    int64      `json:"quantity" db:"quantity"`
	PeriodUnit  PeriodUnit `json:"period_unit" db:"period_unit"`
	PeriodValue *int       `json:"period_value" db:"period_value"`

	Product *Product `json:"product,omitempty" db:"-"`
}
