// Package resolver implements the cache-or-create protocol: given a
// natural key and the attributes needed to create a row, return an id
// such that at most one row is ever created per distinct key across
// arbitrarily many ingestion runs. The engine runs strictly
// sequentially per source, so no locking is needed within a run;
// cross-run safety is delegated to the gateway's uniqueness
// guarantees.
package resolver

import (
	"context"
	"fmt"

	"pricewatch/internal/cache"
	"pricewatch/pkg/models"
)

type Resolver struct {
	SourceID int64

	gw    Gateway
	store *cache.Store
	props *cache.Properties
}

// New resolves (or creates) the source row and warms the identity
// cache from the gateway: categories, manufacturers and product
// articles for this source, plus the global property vocabulary.
func New(ctx context.Context, gw Gateway, sourceName string, props *cache.Properties) (*Resolver, error) {
	sourceID, err := gw.CreateOrGetSource(ctx, sourceName)
	if err != nil {
		return nil, fmt.Errorf("resolve source %q: %w", sourceName, err)
	}

	store := cache.NewStore(sourceID)

	cats, err := gw.ListCategories(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("warm categories: %w", err)
	}
	for _, c := range cats {
		var parentID int64
		if c.ParentID != nil {
			parentID = *c.ParentID
		}
		store.PutCategory(c.Name, parentID, c.ID)
	}

	mans, err := gw.ListManufacturers(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("warm manufacturers: %w", err)
	}
	for _, m := range mans {
		store.PutManufacturer(ManufacturerKey(m.Trademark, m.FullName), m.ID)
	}

	arts, err := gw.ListProductArticles(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("warm articles: %w", err)
	}
	for _, a := range arts {
		store.PutArticle(a.Article, a.ProductID)
	}

	properties, err := gw.ListProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("warm properties: %w", err)
	}
	for _, p := range properties {
		props.Put(p.Name, p.ID)
	}

	return &Resolver{SourceID: sourceID, gw: gw, store: store, props: props}, nil
}

// KnownArticle reports whether the product behind this source article
// is already persisted, without touching the gateway.
func (r *Resolver) KnownArticle(article string) (int64, bool) {
	return r.store.Article(article)
}

// Category resolves a single category under an already-resolved
// parent; parentID 0 means root. Chain walking lives in Reconciler.
func (r *Resolver) Category(ctx context.Context, name string, parentID int64) (int64, error) {
	if id, ok := r.store.Category(name, parentID); ok {
		return id, nil
	}

	var pid *int64
	if parentID != 0 {
		pid = &parentID
	}
	id, err := r.gw.CreateCategory(ctx, name, pid, r.SourceID)
	if err != nil {
		return 0, fmt.Errorf("create category %q: %w", name, err)
	}
	r.store.PutCategory(name, parentID, id)
	return id, nil
}

func (r *Resolver) Manufacturer(ctx context.Context, ident models.ManufacturerIdent) (int64, error) {
	key := ManufacturerKey(ident.Trademark, ident.FullName)
	if id, ok := r.store.Manufacturer(key); ok {
		return id, nil
	}

	id, err := r.gw.CreateManufacturer(ctx, models.Manufacturer{
		Trademark: ident.Trademark,
		FullName:  ident.FullName,
		Country:   ident.Country,
		SourceID:  r.SourceID,
	})
	if err != nil {
		return 0, fmt.Errorf("create manufacturer %q: %w", ident.Trademark, err)
	}
	r.store.PutManufacturer(key, id)
	return id, nil
}

func (r *Resolver) Product(ctx context.Context, rec models.ProductRecord, manufacturerID int64) (int64, error) {
	if id, ok := r.store.Article(rec.Article); ok {
		return id, nil
	}

	id, err := r.gw.CreateProduct(ctx, models.Product{
		ManufacturerID: manufacturerID,
		SourceID:       r.SourceID,
		Name:           rec.Name,
		SourceArticle:  rec.Article,
		Barcode:        rec.Barcode,
		Description:    rec.Description,
		Composition:    rec.Composition,
		StorageInfo:    rec.StorageInfo,
		Unit:           rec.Unit,
	})
	if err != nil {
		return 0, fmt.Errorf("create product %q: %w", rec.Article, err)
	}
	r.store.PutArticle(rec.Article, id)
	return id, nil
}

func (r *Resolver) Property(ctx context.Context, name, group string) (int64, error) {
	if id, ok := r.props.Get(name); ok {
		return id, nil
	}

	id, err := r.gw.CreateProperty(ctx, name, group)
	if err != nil {
		return 0, fmt.Errorf("create property %q: %w", name, err)
	}
	r.props.Put(name, id)
	return id, nil
}
