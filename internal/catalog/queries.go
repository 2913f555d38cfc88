package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/pkg/models"
)

// CategoryNode is one node of the per-source category tree the API
// serves.
type CategoryNode struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Children []*CategoryNode `json:"children,omitempty"`
}

// ProductQuery filters the product listing.
type ProductQuery struct {
	SourceID int64
	Q        string // keyword search in name
	Limit    int
	Offset   int
}

// ProductDetail is the full product view: descriptive row plus all
// relations and the price history.
type ProductDetail struct {
	Product      models.Product      `json:"product"`
	Manufacturer models.Manufacturer `json:"manufacturer"`
	Categories   []string            `json:"categories"`
	Properties   []PropertyWithValue `json:"properties"`
	Images       []string            `json:"images"`
	Prices       []models.PricePoint `json:"prices"`
}

type PropertyWithValue struct {
	Name  string `json:"name"`
	Group string `json:"group,omitempty"`
	Value string `json:"value"`
}

// SourceStats is the per-source row count summary the CLI prints.
type SourceStats struct {
	Source        models.Source `json:"source"`
	Products      int           `json:"products"`
	Categories    int           `json:"categories"`
	Manufacturers int           `json:"manufacturers"`
	PricePoints   int           `json:"price_points"`
}

func (r *Repo) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CategoryTree assembles the category forest of one source. Iterative
// build over two maps, no recursion into the database.
func (r *Repo) CategoryTree(ctx context.Context, sourceID int64) ([]*CategoryNode, error) {
	cats, err := r.ListCategories(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	nodes := make(map[int64]*CategoryNode, len(cats))
	for _, c := range cats {
		nodes[c.ID] = &CategoryNode{ID: c.ID, Name: c.Name}
	}

	var roots []*CategoryNode
	for _, c := range cats {
		n := nodes[c.ID]
		if c.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[*c.ParentID]
		if !ok {
			// orphaned parent reference: surface the node as a root
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	return roots, nil
}

func buildProductSQL(q ProductQuery, count bool) (string, []any) {
	var b strings.Builder
	var args []any

	if count {
		b.WriteString(`SELECT COUNT(*) FROM products`)
	} else {
		b.WriteString(`SELECT id, manufacturer_id, source_id, name, source_article, barcode, description, composition, storage_info, unit FROM products`)
	}

	var where []string
	if q.SourceID != 0 {
		where = append(where, `source_id = ?`)
		args = append(args, q.SourceID)
	}
	if q.Q != "" {
		where = append(where, `name LIKE ?`)
		args = append(args, "%"+q.Q+"%")
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	if !count {
		b.WriteString(` ORDER BY id LIMIT ? OFFSET ?`)
		limit := q.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		args = append(args, limit, q.Offset)
	}
	return b.String(), args
}

func (r *Repo) CountProducts(ctx context.Context, q ProductQuery) (int, error) {
	sqlStr, args := buildProductSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

func (r *Repo) ListProducts(ctx context.Context, q ProductQuery) ([]models.Product, error) {
	sqlStr, args := buildProductSQL(q, false)
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (models.Product, error) {
	var p models.Product
	var barcode, description, composition, storage, unit sql.NullString
	if err := row.Scan(&p.ID, &p.ManufacturerID, &p.SourceID, &p.Name, &p.SourceArticle,
		&barcode, &description, &composition, &storage, &unit); err != nil {
		return p, fmt.Errorf("scan product: %w", err)
	}
	p.Barcode = barcode.String
	p.Description = description.String
	p.Composition = composition.String
	p.StorageInfo = storage.String
	p.Unit = unit.String
	return p, nil
}

// GetProductDetail returns nil when the product does not exist.
func (r *Repo) GetProductDetail(ctx context.Context, id int64) (*ProductDetail, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, manufacturer_id, source_id, name, source_article, barcode, description, composition, storage_info, unit
		FROM products WHERE id = ?
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	detail := &ProductDetail{Product: p}

	var trademark, fullName, country sql.NullString
	err = r.DB.QueryRowContext(ctx, `
		SELECT id, trademark, full_name, country, source_id FROM manufacturers WHERE id = ?
	`, p.ManufacturerID).Scan(&detail.Manufacturer.ID, &trademark, &fullName, &country, &detail.Manufacturer.SourceID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("get manufacturer: %w", err)
	}
	detail.Manufacturer.Trademark = trademark.String
	detail.Manufacturer.FullName = fullName.String
	detail.Manufacturer.Country = country.String

	if detail.Categories, err = r.productCategories(ctx, id); err != nil {
		return nil, err
	}
	if detail.Properties, err = r.productProperties(ctx, id); err != nil {
		return nil, err
	}
	if detail.Images, err = r.productImages(ctx, id); err != nil {
		return nil, err
	}
	if detail.Prices, err = r.PriceHistory(ctx, id); err != nil {
		return nil, err
	}
	return detail, nil
}

func (r *Repo) productCategories(ctx context.Context, productID int64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.name
		FROM product_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id = ?
		ORDER BY pc.id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("product categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Repo) productProperties(ctx context.Context, productID int64) ([]PropertyWithValue, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT p.name, p.grouping, v.value
		FROM product_property_values v
		JOIN properties p ON p.id = v.property_id
		WHERE v.product_id = ?
		ORDER BY v.id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("product properties: %w", err)
	}
	defer rows.Close()

	var out []PropertyWithValue
	for rows.Next() {
		var pv PropertyWithValue
		var group, value sql.NullString
		if err := rows.Scan(&pv.Name, &group, &value); err != nil {
			return nil, fmt.Errorf("scan property value: %w", err)
		}
		pv.Group = group.String
		pv.Value = value.String
		out = append(out, pv)
	}
	return out, rows.Err()
}

func (r *Repo) productImages(ctx context.Context, productID int64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT url FROM product_images WHERE product_id = ? ORDER BY position
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("product images: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan image url: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// PriceHistory returns the append-only price series, oldest first.
func (r *Repo) PriceHistory(ctx context.Context, productID int64) ([]models.PricePoint, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT price, recorded_at FROM product_prices WHERE product_id = ? ORDER BY recorded_at
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var raw string
		var at time.Time
		if err := rows.Scan(&raw, &at); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", raw, err)
		}
		out = append(out, models.PricePoint{ProductID: productID, Price: price, RecordedAt: at})
	}
	return out, rows.Err()
}

func (r *Repo) Stats(ctx context.Context) ([]SourceStats, error) {
	sources, err := r.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SourceStats, 0, len(sources))
	for _, s := range sources {
		st := SourceStats{Source: s}
		row := r.DB.QueryRowContext(ctx, `
			SELECT
				(SELECT COUNT(*) FROM products WHERE source_id = ?),
				(SELECT COUNT(*) FROM categories WHERE source_id = ?),
				(SELECT COUNT(*) FROM manufacturers WHERE source_id = ?),
				(SELECT COUNT(*) FROM product_prices pp JOIN products p ON p.id = pp.product_id WHERE p.source_id = ?)
		`, s.ID, s.ID, s.ID, s.ID)
		if err := row.Scan(&st.Products, &st.Categories, &st.Manufacturers, &st.PricePoints); err != nil {
			return nil, fmt.Errorf("stats for %s: %w", s.Name, err)
		}
		out = append(out, st)
	}
	return out, nil
}
