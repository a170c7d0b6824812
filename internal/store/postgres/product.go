package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpflow/rfpflow/internal/domain"
)

// ProductRepo persists the OEM product catalog.
type ProductRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	specs, err := json.Marshal(p.Specs)
	if err != nil {
		return fmt.Errorf("productRepo.Create: marshal specs: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO products (id, sku, name, description, category, unit_price, currency, lead_time_days, specs, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.SKU, p.Name, nilIfEmpty(p.Description), nilIfEmpty(p.Category),
		p.UnitPrice, p.Currency, p.LeadTimeDays, specs, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("productRepo.Create: %w", err)
	}

	return nil
}

func (r *ProductRepo) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var p domain.Product
	var description, category *string
	var specs []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, sku, name, description, category, unit_price, currency, lead_time_days, specs, created_at, updated_at
		 FROM products WHERE sku = $1`,
		sku,
	).Scan(&p.ID, &p.SKU, &p.Name, &description, &category,
		&p.UnitPrice, &p.Currency, &p.LeadTimeDays, &specs, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("productRepo.GetBySKU: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("productRepo.GetBySKU: %w", err)
	}

	p.Description = derefStr(description)
	p.Category = derefStr(category)
	if len(specs) > 0 {
		if err := json.Unmarshal(specs, &p.Specs); err != nil {
			return nil, fmt.Errorf("productRepo.GetBySKU: unmarshal specs: %w", err)
		}
	}

	return &p, nil
}

func (r *ProductRepo) Update(ctx context.Context, p *domain.Product) error {
	specs, err := json.Marshal(p.Specs)
	if err != nil {
		return fmt.Errorf("productRepo.Update: marshal specs: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $1, description = $2, category = $3,
			unit_price = $4, currency = $5, lead_time_days = $6, specs = $7, updated_at = now()
		 WHERE sku = $8`,
		p.Name, nilIfEmpty(p.Description), nilIfEmpty(p.Category),
		p.UnitPrice, p.Currency, p.LeadTimeDays, specs, p.SKU,
	)
	if err != nil {
		return fmt.Errorf("productRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("productRepo.Update: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *ProductRepo) DeleteBySKU(ctx context.Context, sku string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM products WHERE sku = $1`,
		sku,
	)
	if err != nil {
		return fmt.Errorf("productRepo.DeleteBySKU: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("productRepo.DeleteBySKU: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *ProductRepo) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, sku, name, description, category, unit_price, currency, lead_time_days, specs, created_at, updated_at
		 FROM products ORDER BY sku
		 LIMIT 500`,
	)
	if err != nil {
		return nil, fmt.Errorf("productRepo.List: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		var description, category *string
		var specs []byte

		err = rows.Scan(&p.ID, &p.SKU, &p.Name, &description, &category,
			&p.UnitPrice, &p.Currency, &p.LeadTimeDays, &specs, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("productRepo.List: scan: %w", err)
		}

		p.Description = derefStr(description)
		p.Category = derefStr(category)
		if len(specs) > 0 {
			if err := json.Unmarshal(specs, &p.Specs); err != nil {
				return nil, fmt.Errorf("productRepo.List: unmarshal specs: %w", err)
			}
		}
		products = append(products, &p)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("productRepo.List: rows: %w", err)
	}

	return products, nil
}

func (r *ProductRepo) Count(ctx context.Context) (int64, error) {
	var count int64

	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("productRepo.Count: %w", err)
	}

	return count, nil
}
