package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnknownItem       = errors.New("unknown product or variant")
)

// UnknownItemError names the first key the catalog could not resolve.
type UnknownItemError struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

func (e *UnknownItemError) Error() string {
	if e.VariantID != "" {
		return fmt.Sprintf("unknown variant %s of product %s", e.VariantID, e.ProductID)
	}
	return fmt.Sprintf("unknown product %s", e.ProductID)
}

func (e *UnknownItemError) Is(target error) bool {
	return target == ErrUnknownItem
}

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, base_price, sale_price, currency
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	productMap := make(map[string]*domain.Product)
	var productIDs []string

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		productMap[p.ID] = p
		productIDs = append(productIDs, p.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(productIDs) == 0 {
		return []domain.Product{}, nil
	}

	variants, err := r.variantsFor(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		p := productMap[v.ProductID]
		p.Variants = append(p.Variants, v)
	}

	products := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		products = append(products, *productMap[id])
	}

	return products, nil
}

// GetProduct returns nil, nil for an unknown id.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT id, name, base_price, sale_price, currency
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	variants, err := r.variantsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p.Variants = variants

	return p, nil
}

// GetVariant returns nil, nil when the variant does not belong to the product.
func (r *CatalogRepository) GetVariant(ctx context.Context, productID, variantID string) (*domain.Variant, error) {
	v := &domain.Variant{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, product_id, name, price_adjustment
		FROM variants
		WHERE product_id = $1 AND id = $2
	`, productID, variantID).Scan(&v.ID, &v.ProductID, &v.Name, &v.PriceAdjustment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return v, nil
}

// LookupPrices resolves every key or fails with *UnknownItemError for the
// first key that does not exist. Records come back in key order.
func (r *CatalogRepository) LookupPrices(ctx context.Context, keys []domain.PriceKey) ([]domain.PriceRecord, error) {
	if len(keys) == 0 {
		return []domain.PriceRecord{}, nil
	}

	var productIDs, variantIDs []string
	for _, k := range keys {
		productIDs = append(productIDs, k.ProductID)
		if k.VariantID != "" {
			variantIDs = append(variantIDs, k.VariantID)
		}
	}

	var (
		products map[string]*domain.Product
		variants map[string]domain.Variant
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = r.productsByID(gctx, productIDs)
		return err
	})
	if len(variantIDs) > 0 {
		g.Go(func() error {
			var err error
			variants, err = r.variantsByID(gctx, variantIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]domain.PriceRecord, 0, len(keys))
	for _, k := range keys {
		p, ok := products[k.ProductID]
		if !ok {
			return nil, &UnknownItemError{ProductID: k.ProductID, VariantID: k.VariantID}
		}

		record := domain.PriceRecord{
			ProductID:       p.ID,
			BasePrice:       p.BasePrice,
			SalePrice:       p.SalePrice,
			PriceAdjustment: decimal.Zero,
			Currency:        p.Currency,
		}
		if k.VariantID != "" {
			v, ok := variants[k.VariantID]
			if !ok || v.ProductID != k.ProductID {
				return nil, &UnknownItemError{ProductID: k.ProductID, VariantID: k.VariantID}
			}
			record.VariantID = v.ID
			record.PriceAdjustment = v.PriceAdjustment
		}
		records = append(records, record)
	}

	return records, nil
}

func (r *CatalogRepository) productsByID(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, base_price, sale_price, currency
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]*domain.Product)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	return products, rows.Err()
}

func (r *CatalogRepository) variantsByID(ctx context.Context, ids []string) (map[string]domain.Variant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, name, price_adjustment
		FROM variants
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	variants := make(map[string]domain.Variant)
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.PriceAdjustment); err != nil {
			return nil, err
		}
		variants[v.ID] = v
	}

	return variants, rows.Err()
}

func (r *CatalogRepository) variantsFor(ctx context.Context, productIDs []string) ([]domain.Variant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, name, price_adjustment
		FROM variants
		WHERE product_id = ANY($1)
		ORDER BY product_id, id
	`, pq.Array(productIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	variants := []domain.Variant{}
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.PriceAdjustment); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}

	return variants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p    domain.Product
		sale decimal.NullDecimal
	)
	if err := row.Scan(&p.ID, &p.Name, &p.BasePrice, &sale, &p.Currency); err != nil {
		return nil, err
	}
	if sale.Valid {
		p.SalePrice = &sale.Decimal
	}
	p.Variants = []domain.Variant{}
	return &p, nil
}

// GetStock returns nil, nil for an unknown product.
func (r *CatalogRepository) GetStock(ctx context.Context, productID string) (*domain.StockLevel, error) {
	stock := &domain.StockLevel{}

	err := r.db.QueryRowContext(ctx, `
		SELECT product_id, available, reserved
		FROM stock
		WHERE product_id = $1
	`, productID).Scan(&stock.ProductID, &stock.Available, &stock.Reserved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return stock, nil
}

func (r *CatalogRepository) Reserve(ctx context.Context, productID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE stock
		SET available = available - $2, reserved = reserved + $2
		WHERE product_id = $1 AND available >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrInsufficientStock
	}

	return nil
}

func (r *CatalogRepository) Release(ctx context.Context, productID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE stock
		SET available = available + $2, reserved = reserved - $2
		WHERE product_id = $1 AND reserved >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("release %d units of %s: not enough reserved stock", quantity, productID)
	}

	return nil
}
