package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source is one distinct origin catalog (a specific site). Categories,
// manufacturers and product articles are namespaced per source; sharing
// a name across sources never means sharing a row.
type Source struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Category is one node of a per-source category forest. A category name
// is only unique within its (source, parent) context: two sources, or
// two parents, may each legitimately have a "Dairy".
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
	SourceID int64  `json:"source_id"`
}

// Manufacturer identity is decided by a normalized hash of
// trademark+full name (see resolver.ManufacturerKey), not by the raw
// strings, to absorb punctuation and casing noise from source HTML.
type Manufacturer struct {
	ID        int64  `json:"id"`
	Trademark string `json:"trademark,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Country   string `json:"country,omitempty"`
	SourceID  int64  `json:"source_id"`
}

// Product is the persisted descriptive record. SourceArticle is the
// source's own product identifier and the dedup key within a source;
// it stays stable across crawl runs even when other fields change.
type Product struct {
	ID             int64  `json:"id"`
	ManufacturerID int64  `json:"manufacturer_id"`
	SourceID       int64  `json:"source_id"`
	Name           string `json:"name"`
	SourceArticle  string `json:"source_article"`
	Barcode        string `json:"barcode,omitempty"`
	Description    string `json:"description,omitempty"`
	Composition    string `json:"composition,omitempty"`
	StorageInfo    string `json:"storage_info,omitempty"`
	Unit           string `json:"unit,omitempty"`
}

// Property is a global (not source-scoped) attribute name. Shared
// vocabulary across sources, e.g. the "Белки" nutrition field, collides
// intentionally.
type Property struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group,omitempty"`
}

// ProductArticle pairs a persisted product id with its source article,
// used to warm the identity cache at run start.
type ProductArticle struct {
	ProductID int64
	Article   string
}

// PricePoint is one sample of the append-only price time series.
type PricePoint struct {
	ProductID  int64           `json:"product_id"`
	Price      decimal.Decimal `json:"price"`
	RecordedAt time.Time       `json:"recorded_at"`
}
