package models

import "github.com/shopspring/decimal"

// ProductRecord is the normalized, internal form of a crawled product.
//
// Every source maps its own raw shape into this structure before the
// record reaches the ingestion engine; the engine never branches on a
// source-specific shape.
type ProductRecord struct {
	Article      string            `json:"article"`      // source's own product id, dedup key
	Name         string            `json:"name"`         // display name
	Manufacturer ManufacturerIdent `json:"manufacturer"` // identity fields, may be partially empty
	Categories   []CategoryRef     `json:"categories"`   // ordered chain, root first
	Properties   []PropertyValue   `json:"properties"`   // flat attribute list
	Images       []string          `json:"images"`       // ordered image URLs
	Price        decimal.Decimal   `json:"price"`
	Barcode      string            `json:"barcode,omitempty"`
	Description  string            `json:"description,omitempty"`
	Composition  string            `json:"composition,omitempty"`
	StorageInfo  string            `json:"storage_info,omitempty"`
	Unit         string            `json:"unit,omitempty"`
}

// ManufacturerIdent carries the manufacturer identity fields as the
// source exposes them.
type ManufacturerIdent struct {
	Trademark string `json:"trademark,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Country   string `json:"country,omitempty"`
}

// CategoryRef is one entry of a product's category chain. Parent is the
// source's explicit parent name when the source supplies one; empty
// means "no explicit parent, fall back to the previous chain entry".
type CategoryRef struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// PropertyValue is one attribute value of a product. Several values for
// the same property name are allowed.
type PropertyValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Group string `json:"group,omitempty"`
}
