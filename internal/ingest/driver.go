// Package ingest orchestrates one crawl run per source: it walks the
// source's plan under the checkpoint manager and, for each yielded
// product, sequences the resolver calls so that a partial failure can
// never leave a product graph permanently invisible to future runs.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"pricewatch/internal/cache"
	"pricewatch/internal/checkpoint"
	"pricewatch/internal/resolver"
	"pricewatch/pkg/models"
)

// Options tune one driver instance; the zero value is the documented
// default behavior.
type Options struct {
	// UpdateKnown re-ingests descriptive fields of already-known
	// products. Off by default: a product's descriptive data is
	// considered immutable once ingested, only price is time-series.
	UpdateKnown bool
	// RootAliases are chain roots meaning "all products"; filtered out
	// by the reconciler.
	RootAliases []string
	// Notifier receives progress events; nil disables reporting.
	Notifier Notifier
	// Now overrides the price timestamp clock in tests.
	Now func() time.Time
}

// Report is the user-visible outcome of one run of one source.
type Report struct {
	RunID    string        `json:"run_id"`
	Source   string        `json:"source"`
	Counts   Counts        `json:"counts"`
	Resumed  bool          `json:"resumed"`
	Duration time.Duration `json:"duration"`
}

type Driver struct {
	gw       resolver.Gateway
	props    *cache.Properties
	stateDir string
	opts     Options
}

func NewDriver(gw resolver.Gateway, props *cache.Properties, stateDir string, opts Options) *Driver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Driver{gw: gw, props: props, stateDir: stateDir, opts: opts}
}

// Run ingests one source to completion (or until ctx is canceled).
// Per-product failures are logged and counted, never fatal; checkpoint
// write failures abort the run, since proceeding with an unpersisted
// cursor would silently skip work on resume.
func (d *Driver) Run(ctx context.Context, src Source) (*Report, error) {
	started := time.Now()
	report := &Report{RunID: uuid.NewString(), Source: src.Name()}

	res, err := resolver.New(ctx, d.gw, src.Name(), d.props)
	if err != nil {
		return report, fmt.Errorf("source %s: %w", src.Name(), err)
	}
	rc := resolver.NewReconciler(res, d.opts.RootAliases)

	cp, err := checkpoint.Open(d.stateDir, src.Name())
	if err != nil {
		return report, fmt.Errorf("source %s: %w", src.Name(), err)
	}
	report.Resumed = cp.State() == checkpoint.StateResuming

	plan, err := src.Plan(ctx)
	if err != nil {
		return report, fmt.Errorf("source %s: plan: %w", src.Name(), err)
	}

	startG, startU := splitCursor(cp.Cursor())
	if report.Resumed {
		log.Printf("[ingest] %s: resuming at group %d unit %d", src.Name(), startG, startU)
	}
	d.notify(Event{Type: "run.start", RunID: report.RunID, Source: src.Name(),
		Cursor: []int{startG, startU}, At: time.Now()})

	for g := startG; g < len(plan.Groups); g++ {
		group := plan.Groups[g]
		u0 := 0
		if g == startG {
			u0 = startU
		}
		for u := u0; u < len(group.Units); u++ {
			if err := ctx.Err(); err != nil {
				// the last flushed checkpoint defines the resume point
				report.Duration = time.Since(started)
				return report, err
			}

			unitName := group.Units[u]
			log.Printf("[ingest] %s: unit %q (%d/%d in %q)", src.Name(), unitName, u+1, len(group.Units), group.Name)

			err := src.Products(ctx, g, u, func(rec models.ProductRecord) error {
				d.ingestOne(ctx, res, rc, rec, &report.Counts)
				return ctx.Err()
			})
			if err != nil {
				report.Duration = time.Since(started)
				return report, fmt.Errorf("source %s: unit %q: %w", src.Name(), unitName, err)
			}

			// the cursor always names the next unit to process, so a
			// completed unit is never reprocessed after a crash
			next := []int{g, u + 1}
			if u+1 >= len(group.Units) {
				next = []int{g + 1, 0}
			}
			if err := cp.Advance(next); err != nil {
				report.Duration = time.Since(started)
				return report, fmt.Errorf("source %s: checkpoint: %w", src.Name(), err)
			}
			d.notify(Event{Type: "unit.done", RunID: report.RunID, Source: src.Name(),
				Unit: unitName, Cursor: next, Counts: report.Counts, At: time.Now()})
		}
	}

	cp.Complete()
	report.Duration = time.Since(started)
	log.Printf("[ingest] %s: done in %s: %d created, %d known, %d malformed, %d failed",
		src.Name(), report.Duration.Round(time.Millisecond),
		report.Counts.Created, report.Counts.Known, report.Counts.Malformed, report.Counts.Failed)
	d.notify(Event{Type: "run.done", RunID: report.RunID, Source: src.Name(),
		Counts: report.Counts, At: time.Now()})
	return report, nil
}

// ingestOne resolves a single product record. Ordering matters: the
// product row comes before categories, properties and images, so that
// an interruption mid-product leaves a product that the next run finds
// as already known. Relations missing from such a partial run are an
// accepted gap, not retried automatically.
func (d *Driver) ingestOne(ctx context.Context, res *resolver.Resolver, rc *resolver.Reconciler,
	rec models.ProductRecord, counts *Counts) {

	if rec.Article == "" || rec.Name == "" {
		counts.Malformed++
		log.Printf("[ingest] source %d: skipping malformed record (article=%q name=%q)",
			res.SourceID, rec.Article, rec.Name)
		return
	}

	productID, known := res.KnownArticle(rec.Article)
	if !known {
		manufacturerID, err := res.Manufacturer(ctx, rec.Manufacturer)
		if err != nil {
			counts.Failed++
			log.Printf("[ingest] source %d: product %s: %v", res.SourceID, rec.Article, err)
			return
		}

		productID, err = res.Product(ctx, rec, manufacturerID)
		if err != nil {
			counts.Failed++
			log.Printf("[ingest] source %d: product %s: %v", res.SourceID, rec.Article, err)
			return
		}

		// from here on the product row exists; a failure leaves the
		// product partially populated and it will never be retried
		if err := d.ingestRelations(ctx, res, rc, rec, productID); err != nil {
			counts.Failed++
			log.Printf("[ingest] source %d: product %s left partial: %v", res.SourceID, rec.Article, err)
			return
		}
		counts.Created++
	} else {
		counts.Known++
		if d.opts.UpdateKnown {
			if err := d.gw.UpdateProduct(ctx, models.Product{
				ID:          productID,
				Name:        rec.Name,
				Barcode:     rec.Barcode,
				Description: rec.Description,
				Composition: rec.Composition,
				StorageInfo: rec.StorageInfo,
				Unit:        rec.Unit,
			}); err != nil {
				log.Printf("[ingest] source %d: product %s: update: %v", res.SourceID, rec.Article, err)
			}
		}
	}

	if rec.Price.IsPositive() {
		at := d.opts.Now().Truncate(time.Second)
		if err := d.gw.AppendPrice(ctx, productID, rec.Price, at); err != nil {
			counts.Failed++
			log.Printf("[ingest] source %d: product %s: append price: %v", res.SourceID, rec.Article, err)
		}
	}
}

func (d *Driver) ingestRelations(ctx context.Context, res *resolver.Resolver, rc *resolver.Reconciler,
	rec models.ProductRecord, productID int64) error {

	categoryIDs, err := rc.Resolve(ctx, rec.Categories)
	if err != nil {
		// a bad chain is a data problem, not a persistence problem:
		// keep the product, skip its category links
		log.Printf("[ingest] source %d: product %s: %v; categories skipped", res.SourceID, rec.Article, err)
		categoryIDs = nil
	}
	if len(categoryIDs) > 0 {
		if err := d.gw.LinkProductCategories(ctx, productID, categoryIDs); err != nil {
			return fmt.Errorf("link categories: %w", err)
		}
	}

	for _, pv := range groupProperties(rec.Properties) {
		propertyID, err := res.Property(ctx, pv.name, pv.group)
		if err != nil {
			return err
		}
		if err := d.gw.LinkProductPropertyValues(ctx, productID, propertyID, pv.values); err != nil {
			return fmt.Errorf("link property %q: %w", pv.name, err)
		}
	}

	if len(rec.Images) > 0 {
		if err := d.gw.LinkProductImages(ctx, productID, rec.Images); err != nil {
			return fmt.Errorf("link images: %w", err)
		}
	}
	return nil
}

type propertyValues struct {
	name   string
	group  string
	values []string
}

// groupProperties collapses the flat attribute list into one entry per
// property name, preserving first-seen order and keeping every value.
func groupProperties(props []models.PropertyValue) []propertyValues {
	index := make(map[string]int, len(props))
	out := make([]propertyValues, 0, len(props))
	for _, p := range props {
		if p.Name == "" {
			continue
		}
		if i, ok := index[p.Name]; ok {
			out[i].values = append(out[i].values, p.Value)
			continue
		}
		index[p.Name] = len(out)
		out = append(out, propertyValues{name: p.Name, group: p.Group, values: []string{p.Value}})
	}
	return out
}

func (d *Driver) notify(ev Event) {
	if d.opts.Notifier != nil {
		d.opts.Notifier.Notify(ev)
	}
}

func splitCursor(c []int) (int, int) {
	switch len(c) {
	case 0:
		return 0, 0
	case 1:
		return c[0], 0
	default:
		return c[0], c[1]
	}
}
