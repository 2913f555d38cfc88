// Package catalog is the persistence gateway: transactional create and
// lookup operations for every entity kind, plus the read queries the
// API and CLI serve. The ingestion engine only ever talks to the
// resolver.Gateway subset; uniqueness enforcement lives here, in the
// schema's unique constraints, not in the engine.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// CreateOrGetSource is idempotent by the unique constraint on name.
func (r *Repo) CreateOrGetSource(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM sources WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup source: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `INSERT INTO sources (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert source: %w", err)
	}
	return res.LastInsertId()
}

func (r *Repo) ListCategories(ctx context.Context, sourceID int64) ([]models.Category, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, name, parent_id, source_id
		FROM categories
		WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var (
			c      models.Category
			parent sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Name, &parent, &c.SourceID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if parent.Valid {
			c.ParentID = &parent.Int64
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory is safe against a row created out-of-process: it
// looks the (source, name, parent) identity up first and only inserts
// on a true miss; the unique index backs the race.
func (r *Repo) CreateCategory(ctx context.Context, name string, parentID *int64, sourceID int64) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		SELECT id FROM categories
		WHERE source_id = ? AND name = ? AND IFNULL(parent_id, 0) = ?
	`, sourceID, name, derefID(parentID)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup category: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO categories (name, parent_id, source_id) VALUES (?, ?, ?)
	`, name, parentID, sourceID)
	if err != nil {
		return 0, fmt.Errorf("insert category %q: %w", name, err)
	}
	return res.LastInsertId()
}

func (r *Repo) ListManufacturers(ctx context.Context, sourceID int64) ([]models.Manufacturer, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, trademark, full_name, country, source_id
		FROM manufacturers
		WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list manufacturers: %w", err)
	}
	defer rows.Close()

	var out []models.Manufacturer
	for rows.Next() {
		var m models.Manufacturer
		var trademark, fullName, country sql.NullString
		if err := rows.Scan(&m.ID, &trademark, &fullName, &country, &m.SourceID); err != nil {
			return nil, fmt.Errorf("scan manufacturer: %w", err)
		}
		m.Trademark = trademark.String
		m.FullName = fullName.String
		m.Country = country.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repo) CreateManufacturer(ctx context.Context, m models.Manufacturer) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO manufacturers (trademark, full_name, country, source_id)
		VALUES (?, ?, ?, ?)
	`, nullStr(m.Trademark), nullStr(m.FullName), nullStr(m.Country), m.SourceID)
	if err != nil {
		return 0, fmt.Errorf("insert manufacturer %q: %w", m.Trademark, err)
	}
	return res.LastInsertId()
}

func (r *Repo) ListProductArticles(ctx context.Context, sourceID int64) ([]models.ProductArticle, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, source_article FROM products WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var out []models.ProductArticle
	for rows.Next() {
		var a models.ProductArticle
		if err := rows.Scan(&a.ProductID, &a.Article); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateProduct relies on the unique constraint on (source_id,
// source_article): an out-of-process duplicate resolves to the
// existing row instead of erroring.
func (r *Repo) CreateProduct(ctx context.Context, p models.Product) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		SELECT id FROM products WHERE source_id = ? AND source_article = ?
	`, p.SourceID, p.SourceArticle).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup product: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO products
			(manufacturer_id, source_id, name, source_article, barcode, description, composition, storage_info, unit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ManufacturerID, p.SourceID, p.Name, p.SourceArticle,
		nullStr(p.Barcode), nullStr(p.Description), nullStr(p.Composition), nullStr(p.StorageInfo), nullStr(p.Unit))
	if err != nil {
		return 0, fmt.Errorf("insert product %q: %w", p.SourceArticle, err)
	}
	return res.LastInsertId()
}

func (r *Repo) UpdateProduct(ctx context.Context, p models.Product) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE products
		SET name = ?, barcode = ?, description = ?, composition = ?, storage_info = ?, unit = ?
		WHERE id = ?
	`, p.Name, nullStr(p.Barcode), nullStr(p.Description), nullStr(p.Composition),
		nullStr(p.StorageInfo), nullStr(p.Unit), p.ID)
	if err != nil {
		return fmt.Errorf("update product %d: %w", p.ID, err)
	}
	return nil
}

func (r *Repo) ListProperties(ctx context.Context) ([]models.Property, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, grouping FROM properties`)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []models.Property
	for rows.Next() {
		var (
			p     models.Property
			group sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &group); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		p.Group = group.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) CreateProperty(ctx context.Context, name, group string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM properties WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup property: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `INSERT INTO properties (name, grouping) VALUES (?, ?)`,
		name, nullStr(group))
	if err != nil {
		return 0, fmt.Errorf("insert property %q: %w", name, err)
	}
	return res.LastInsertId()
}

func (r *Repo) LinkProductCategories(ctx context.Context, productID int64, categoryIDs []int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, cid := range categoryIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO product_categories (product_id, category_id) VALUES (?, ?)
		`, productID, cid); err != nil {
			return fmt.Errorf("link category %d: %w", cid, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repo) LinkProductPropertyValues(ctx context.Context, productID, propertyID int64, values []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_property_values (product_id, property_id, value) VALUES (?, ?, ?)
		`, productID, propertyID, v); err != nil {
			return fmt.Errorf("link property value: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repo) LinkProductImages(ctx context.Context, productID int64, urls []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, u := range urls {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_images (product_id, position, url) VALUES (?, ?, ?)
		`, productID, i, u); err != nil {
			return fmt.Errorf("link image: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repo) AppendPrice(ctx context.Context, productID int64, price decimal.Decimal, at time.Time) error {
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO product_prices (product_id, price, recorded_at) VALUES (?, ?, ?)
	`, productID, price.String(), at); err != nil {
		return fmt.Errorf("append price: %w", err)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
