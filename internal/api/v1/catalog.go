package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rfpflow/rfpflow/internal/domain"
	"github.com/rfpflow/rfpflow/internal/server/middleware"
)

type CreateProductInput struct {
	Body struct {
		SKU          string         `json:"sku" minLength:"1" maxLength:"64" doc:"Product SKU"`
		Name         string         `json:"name" minLength:"1" maxLength:"255" doc:"Product name"`
		Description  string         `json:"description,omitempty" maxLength:"4096" doc:"Product description"`
		Category     string         `json:"category,omitempty" maxLength:"128" doc:"Product category"`
		UnitPrice    float64        `json:"unit_price" minimum:"0" doc:"Unit price"`
		Currency     string         `json:"currency" minLength:"3" maxLength:"3" doc:"ISO 4217 currency code"`
		LeadTimeDays int            `json:"lead_time_days,omitempty" minimum:"0" doc:"Lead time in days"`
		Specs        map[string]any `json:"specs,omitempty" doc:"Technical specifications"`
	}
}

type CreateProductOutput struct {
	Body *domain.Product
}

type GetProductInput struct {
	SKU string `path:"sku" minLength:"1" maxLength:"64" doc:"Product SKU"`
}

type GetProductOutput struct {
	Body *domain.Product
}

type UpdateProductInput struct {
	SKU  string `path:"sku" minLength:"1" maxLength:"64" doc:"Product SKU"`
	Body struct {
		Name         string         `json:"name" minLength:"1" maxLength:"255" doc:"Product name"`
		Description  string         `json:"description,omitempty" maxLength:"4096" doc:"Product description"`
		Category     string         `json:"category,omitempty" maxLength:"128" doc:"Product category"`
		UnitPrice    float64        `json:"unit_price" minimum:"0" doc:"Unit price"`
		Currency     string         `json:"currency" minLength:"3" maxLength:"3" doc:"ISO 4217 currency code"`
		LeadTimeDays int            `json:"lead_time_days,omitempty" minimum:"0" doc:"Lead time in days"`
		Specs        map[string]any `json:"specs,omitempty" doc:"Technical specifications"`
	}
}

type UpdateProductOutput struct {
	Body *domain.Product
}

type DeleteProductInput struct {
	SKU string `path:"sku" minLength:"1" maxLength:"64" doc:"Product SKU"`
}

type ListProductsOutput struct {
	Body []*domain.Product
}

type DashboardStatsOutput struct {
	Body struct {
		ProductCount int64  `json:"product_count"`
		UserCount    int    `json:"user_count"`
		Status       string `json:"status"`
	}
}

// RegisterCatalogRoutes wires the OEM product catalog endpoints. Reads go
// through the Redis cache; mutations require manager or admin role and
// invalidate the cached entry.
func RegisterCatalogRoutes(api huma.API, store DataStore, cache CatalogCache, cacheTTL time.Duration) {
	requireManager := func(ctx context.Context) error {
		role, ok := middleware.RoleFromContext(ctx)
		if !ok {
			return huma.Error401Unauthorized("authentication required")
		}
		if role != middleware.RoleManager && role != middleware.RoleAdmin {
			return huma.Error403Forbidden("catalog mutations require manager or admin role")
		}
		return nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-products",
		Method:      http.MethodGet,
		Path:        "/catalog",
		Summary:     "List all catalog products",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, _ *struct{}) (*ListProductsOutput, error) {
		products, err := store.Products().List(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list products", err)
		}

		return &ListProductsOutput{Body: products}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-product",
		Method:      http.MethodGet,
		Path:        "/catalog/{sku}",
		Summary:     "Get a catalog product by SKU",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *GetProductInput) (*GetProductOutput, error) {
		if cached, err := cache.GetProduct(ctx, input.SKU); err == nil {
			return &GetProductOutput{Body: cached}, nil
		}

		product, err := store.Products().GetBySKU(ctx, input.SKU)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("product not found")
			}
			return nil, huma.Error500InternalServerError("failed to get product", err)
		}

		if err := cache.SetProduct(ctx, product, cacheTTL); err != nil {
			// Cache failures must not break reads.
			log.Warn().Err(err).Str("sku", input.SKU).Msg("failed to cache product")
		}

		return &GetProductOutput{Body: product}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-product",
		Method:      http.MethodPost,
		Path:        "/catalog",
		Summary:     "Create a catalog product",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *CreateProductInput) (*CreateProductOutput, error) {
		if err := requireManager(ctx); err != nil {
			return nil, err
		}

		if _, err := store.Products().GetBySKU(ctx, input.Body.SKU); err == nil {
			return nil, huma.Error409Conflict("product with this SKU already exists")
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error500InternalServerError("failed to check product", err)
		}

		product := &domain.Product{
			ID:           uuid.New(),
			SKU:          input.Body.SKU,
			Name:         input.Body.Name,
			Description:  input.Body.Description,
			Category:     input.Body.Category,
			UnitPrice:    input.Body.UnitPrice,
			Currency:     input.Body.Currency,
			LeadTimeDays: input.Body.LeadTimeDays,
			Specs:        input.Body.Specs,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		}

		if err := store.Products().Create(ctx, product); err != nil {
			return nil, huma.Error500InternalServerError("failed to create product", err)
		}

		return &CreateProductOutput{Body: product}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-product",
		Method:      http.MethodPut,
		Path:        "/catalog/{sku}",
		Summary:     "Update a catalog product",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *UpdateProductInput) (*UpdateProductOutput, error) {
		if err := requireManager(ctx); err != nil {
			return nil, err
		}

		product, err := store.Products().GetBySKU(ctx, input.SKU)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("product not found")
			}
			return nil, huma.Error500InternalServerError("failed to get product", err)
		}

		product.Name = input.Body.Name
		product.Description = input.Body.Description
		product.Category = input.Body.Category
		product.UnitPrice = input.Body.UnitPrice
		product.Currency = input.Body.Currency
		product.LeadTimeDays = input.Body.LeadTimeDays
		product.Specs = input.Body.Specs
		product.UpdatedAt = time.Now().UTC()

		if err := store.Products().Update(ctx, product); err != nil {
			return nil, huma.Error500InternalServerError("failed to update product", err)
		}

		if err := cache.DeleteProduct(ctx, input.SKU); err != nil {
			log.Warn().Err(err).Str("sku", input.SKU).Msg("failed to invalidate product cache")
		}

		return &UpdateProductOutput{Body: product}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-product",
		Method:      http.MethodDelete,
		Path:        "/catalog/{sku}",
		Summary:     "Delete a catalog product",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *DeleteProductInput) (*struct{}, error) {
		if err := requireManager(ctx); err != nil {
			return nil, err
		}

		if err := store.Products().DeleteBySKU(ctx, input.SKU); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("product not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete product", err)
		}

		if err := cache.DeleteProduct(ctx, input.SKU); err != nil {
			log.Warn().Err(err).Str("sku", input.SKU).Msg("failed to invalidate product cache")
		}

		return nil, nil
	})
}

// RegisterDashboardRoutes wires the operational stats endpoint.
func RegisterDashboardRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-stats",
		Method:      http.MethodGet,
		Path:        "/dashboard/stats",
		Summary:     "Get dashboard statistics",
		Tags:        []string{"Dashboard"},
	}, func(ctx context.Context, _ *struct{}) (*DashboardStatsOutput, error) {
		productCount, err := store.Products().Count(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count products", err)
		}

		users, err := store.Users().List(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list users", err)
		}

		out := &DashboardStatsOutput{}
		out.Body.ProductCount = productCount
		out.Body.UserCount = len(users)
		out.Body.Status = "ok"
		return out, nil
	})
}
