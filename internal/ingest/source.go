package ingest

import (
	"context"

	"pricewatch/pkg/models"
)

// Source is implemented by each site adapter. A source exposes its
// crawl as an explicit two-level plan (outer category, inner
// subcategory) so the driver can checkpoint by plain indices instead
// of an opaque traversal position, and then streams the products of
// one plan unit at a time.
//
// The product stream is lazy and non-restartable: each emitted record
// is fully resolved and persisted before the next one is requested.
type Source interface {
	Name() string
	Plan(ctx context.Context) (Plan, error)
	Products(ctx context.Context, group, unit int, emit func(models.ProductRecord) error) error
}

// Plan is the outer traversal of a source's catalog. Unit names are
// for logging only; the checkpoint cursor is (group index, unit
// index).
type Plan struct {
	Groups []PlanGroup
}

type PlanGroup struct {
	Name  string
	Units []string
}
