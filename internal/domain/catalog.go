package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	BasePrice decimal.Decimal  `json:"base_price"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	Currency  string           `json:"currency"`
	Variants  []Variant        `json:"variants"`
}

type Variant struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	Name            string          `json:"name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

type StockLevel struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}

// PriceKey identifies a sellable unit. VariantID is empty for the base product.
type PriceKey struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
}

// PriceRecord is the catalog's answer for one PriceKey.
type PriceRecord struct {
	ProductID       string           `json:"product_id"`
	VariantID       string           `json:"variant_id,omitempty"`
	BasePrice       decimal.Decimal  `json:"base_price"`
	SalePrice       *decimal.Decimal `json:"sale_price,omitempty"`
	PriceAdjustment decimal.Decimal  `json:"price_adjustment"`
	Currency        string           `json:"currency"`
}
