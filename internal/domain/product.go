package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Product is one OEM catalog entry, keyed externally by SKU.
type Product struct {
	ID           uuid.UUID      `json:"id"`
	SKU          string         `json:"sku"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Category     string         `json:"category,omitempty"`
	UnitPrice    float64        `json:"unit_price"`
	Currency     string         `json:"currency"`
	LeadTimeDays int            `json:"lead_time_days,omitempty"`
	Specs        map[string]any `json:"specs,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	Update(ctx context.Context, p *Product) error
	DeleteBySKU(ctx context.Context, sku string) error
	List(ctx context.Context) ([]*Product, error)
	Count(ctx context.Context) (int64, error)
}
