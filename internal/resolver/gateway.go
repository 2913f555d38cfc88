package resolver

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/pkg/models"
)

// Gateway is the persistence boundary the engine talks to. Each create
// is called exactly once per resolved cache miss; uniqueness
// enforcement (e.g. the unique constraint on (source_id,
// source_article)) is the gateway's job, not the engine's, so a create
// stays safe even if a row with the same key appeared out-of-process.
type Gateway interface {
	CreateOrGetSource(ctx context.Context, name string) (int64, error)

	ListCategories(ctx context.Context, sourceID int64) ([]models.Category, error)
	CreateCategory(ctx context.Context, name string, parentID *int64, sourceID int64) (int64, error)

	ListManufacturers(ctx context.Context, sourceID int64) ([]models.Manufacturer, error)
	CreateManufacturer(ctx context.Context, m models.Manufacturer) (int64, error)

	ListProductArticles(ctx context.Context, sourceID int64) ([]models.ProductArticle, error)
	CreateProduct(ctx context.Context, p models.Product) (int64, error)
	// UpdateProduct refreshes the descriptive fields of an existing
	// row. Only used when the driver's update-known policy is enabled.
	UpdateProduct(ctx context.Context, p models.Product) error

	ListProperties(ctx context.Context) ([]models.Property, error)
	CreateProperty(ctx context.Context, name, group string) (int64, error)

	LinkProductCategories(ctx context.Context, productID int64, categoryIDs []int64) error
	LinkProductPropertyValues(ctx context.Context, productID, propertyID int64, values []string) error
	LinkProductImages(ctx context.Context, productID int64, urls []string) error
	AppendPrice(ctx context.Context, productID int64, price decimal.Decimal, at time.Time) error
}
