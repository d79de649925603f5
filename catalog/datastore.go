package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/model"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Datastore abstracts over the underlying catalog storage
type Datastore interface {
	datastore.Datastore
	// GetProduct returns the product with the given id
	GetProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error)
	// GetProductByKey returns the active product with the given key
	GetProductByKey(ctx context.Context, key string) (*model.Product, error)
	// ListProducts returns products, optionally restricted to active ones
	ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error)
	// GetOffer returns the offer with the given id, items included
	GetOffer(ctx context.Context, offerID uuid.UUID) (*model.Offer, error)
	// GetOfferBySKU returns the offer with the given sku, items included
	GetOfferBySKU(ctx context.Context, sku string, activeOnly bool) (*model.Offer, error)
	// ListOffers returns offers without their items, optionally active only
	ListOffers(ctx context.Context, activeOnly bool) ([]model.Offer, error)
}

// Postgres is a Datastore wrapper around a postgres database
type Postgres struct {
	datastore.Postgres
}

// NewPostgres creates a new Postgres Datastore
func NewPostgres(databaseURL string, performMigration bool, dbStatsPrefix ...string) (Datastore, error) {
	pg, err := datastore.NewPostgres(databaseURL, performMigration, dbStatsPrefix...)
	if pg != nil {
		return &DatastoreWithPrometheus{
			base: &Postgres{*pg}, instanceName: "catalog_datastore",
		}, err
	}
	return nil, err
}

// GetProduct returns the product with the given id
func (pg *Postgres) GetProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error) {
	product := model.Product{}
	err := pg.RawDB().GetContext(ctx, &product, `
		select id, product_key, name, description, product_type, is_active, is_currency, created_at, metadata
		from billable_products where id = $1`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// GetProductByKey returns the active product with the given key
func (pg *Postgres) GetProductByKey(ctx context.Context, key string) (*model.Product, error) {
	product := model.Product{}
	err := pg.RawDB().GetContext(ctx, &product, `
		select id, product_key, name, description, product_type, is_active, is_currency, created_at, metadata
		from billable_products where product_key = $1 and is_active`, model.NormalizeKey(key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product by key: %w", err)
	}
	return &product, nil
}

// ListProducts returns products, optionally restricted to active ones
func (pg *Postgres) ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	products := []model.Product{}
	statement := `
		select id, product_key, name, description, product_type, is_active, is_currency, created_at, metadata
		from billable_products`
	if activeOnly {
		statement += ` where is_active`
	}
	statement += ` order by created_at`
	if err := pg.RawDB().SelectContext(ctx, &products, statement); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetOffer returns the offer with the given id, items included
func (pg *Postgres) GetOffer(ctx context.Context, offerID uuid.UUID) (*model.Offer, error) {
	offer := model.Offer{}
	err := pg.RawDB().GetContext(ctx, &offer, `
		select id, sku, name, price, currency, description, is_active, created_at, metadata
		from billable_offers where id = $1`, offerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrOfferNotFound
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	if err := pg.attachItems(ctx, &offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

// GetOfferBySKU returns the offer with the given sku, items included. With
// activeOnly false an inactive offer is returned when no active one matches,
// so historical orders can still be displayed against a retired sku.
func (pg *Postgres) GetOfferBySKU(ctx context.Context, sku string, activeOnly bool) (*model.Offer, error) {
	offer := model.Offer{}
	normalized := model.NormalizeKey(sku)
	err := pg.RawDB().GetContext(ctx, &offer, `
		select id, sku, name, price, currency, description, is_active, created_at, metadata
		from billable_offers where sku = $1
		order by is_active desc, created_at desc limit 1`, normalized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrOfferNotFound
		}
		return nil, fmt.Errorf("failed to get offer by sku: %w", err)
	}
	if activeOnly && !offer.IsActive {
		return nil, model.ErrOfferNotFound
	}
	if err := pg.attachItems(ctx, &offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

// ListOffers returns offers without their items, optionally active only
func (pg *Postgres) ListOffers(ctx context.Context, activeOnly bool) ([]model.Offer, error) {
	offers := []model.Offer{}
	statement := `
		select id, sku, name, price, currency, description, is_active, created_at, metadata
		from billable_offers`
	if activeOnly {
		statement += ` where is_active`
	}
	statement += ` order by created_at`
	if err := pg.RawDB().SelectContext(ctx, &offers, statement); err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}

type offerItemRow struct {
	model.OfferItem
	ProductKey         *string            `db:"p_product_key"`
	ProductName        string             `db:"p_name"`
	ProductDescription string             `db:"p_description"`
	ProductTypeCol     model.ProductType  `db:"p_product_type"`
	ProductIsActive    bool               `db:"p_is_active"`
	ProductIsCurrency  bool               `db:"p_is_currency"`
	ProductMetadata    datastore.Metadata `db:"p_metadata"`
}

func (pg *Postgres) attachItems(ctx context.Context, offer *model.Offer) error {
	rows := []offerItemRow{}
	err := pg.RawDB().SelectContext(ctx, &rows, `
		select
			oi.id, oi.offer_id, oi.product_id, oi.quantity, oi.period_unit, oi.period_value,
			p.product_key as p_product_key, p.name as p_name, p.description as p_description,
			p.product_type as p_product_type, p.is_active as p_is_active,
			p.is_currency as p_is_currency, p.metadata as p_metadata
		from billable_offer_items oi
		join billable_products p on p.id = oi.product_id
		where oi.offer_id = $1
		order by oi.id`, offer.ID)
	if err != nil {
		return fmt.Errorf("failed to get offer items: %w", err)
	}
	offer.Items = make([]model.OfferItem, 0, len(rows))
	for _, row := range rows {
		item := row.OfferItem
		item.Product = &model.Product{
			ID:          row.ProductID,
			ProductKey:  row.ProductKey,
			Name:        row.ProductName,
			Description: row.ProductDescription,
			ProductType: row.ProductTypeCol,
			IsActive:    row.ProductIsActive,
			IsCurrency:  row.ProductIsCurrency,
			Metadata:    row.ProductMetadata,
		}
		offer.Items = append(offer.Items, item)
	}
	return nil
}
