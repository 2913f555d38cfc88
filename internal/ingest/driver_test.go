package ingest

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/cache"
	"pricewatch/internal/catalog"
	"pricewatch/pkg/database"
	"pricewatch/pkg/models"
)

func setupTestDriver(t *testing.T, opts Options) (*Driver, *sql.DB) {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return NewDriver(catalog.NewRepo(db), cache.NewProperties(), t.TempDir(), opts), db
}

// fakeSource serves canned records and can be told to fail a unit,
// recording which units were streamed.
type fakeSource struct {
	name     string
	plan     Plan
	products map[[2]int][]models.ProductRecord
	failUnit int
	served   [][2]int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Plan(context.Context) (Plan, error) { return s.plan, nil }

func (s *fakeSource) Products(_ context.Context, group, unit int, emit func(models.ProductRecord) error) error {
	if s.failUnit >= 0 && unit == s.failUnit {
		return errors.New("connection reset")
	}
	s.served = append(s.served, [2]int{group, unit})
	for _, rec := range s.products[[2]int{group, unit}] {
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

func record(article, name string) models.ProductRecord {
	return models.ProductRecord{
		Article: article,
		Name:    name,
		Manufacturer: models.ManufacturerIdent{
			Trademark: "Савушкин", FullName: `ОАО "Савушкин продукт"`, Country: "Беларусь",
		},
		Categories: []models.CategoryRef{{Name: "Молочное"}, {Name: "Творог"}},
		Properties: []models.PropertyValue{
			{Name: "Белки", Value: "18", Group: "Пищевая ценность"},
		},
		Images: []string{"https://img.example/" + article + ".jpg"},
		Price:  decimal.RequireFromString("4.35"),
	}
}

func TestDriverRunIsIdempotent(t *testing.T) {
	d, db := setupTestDriver(t, Options{})
	src := &fakeSource{
		name:     "shop.test",
		plan:     Plan{Groups: []PlanGroup{{Name: "Молочное", Units: []string{"Творог"}}}},
		failUnit: -1,
		products: map[[2]int][]models.ProductRecord{
			{0, 0}: {record("p-1", "Творог 9%"), record("p-2", "Творог 5%")},
		},
	}

	rep1, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if rep1.Counts.Created != 2 || rep1.Counts.Known != 0 {
		t.Fatalf("first run counts = %+v, want 2 created", rep1.Counts)
	}
	if rep1.Resumed {
		t.Fatal("first run reported as resumed")
	}

	rep2, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep2.Counts.Known != 2 || rep2.Counts.Created != 0 {
		t.Fatalf("second run counts = %+v, want 2 known", rep2.Counts)
	}

	// entities stayed single, prices accumulated
	for _, q := range []struct {
		query string
		want  int
	}{
		{"SELECT COUNT(*) FROM products", 2},
		{"SELECT COUNT(*) FROM manufacturers", 1},
		{"SELECT COUNT(*) FROM categories", 2},
		{"SELECT COUNT(*) FROM properties", 1},
		{"SELECT COUNT(*) FROM product_prices", 4},
	} {
		var n int
		if err := db.QueryRow(q.query).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q.query, err)
		}
		if n != q.want {
			t.Errorf("%s = %d, want %d", q.query, n, q.want)
		}
	}
}

func TestDriverResumeSkipsCompletedUnits(t *testing.T) {
	plan := Plan{Groups: []PlanGroup{{Name: "catalog", Units: []string{"u0", "u1", "u2", "u3", "u4"}}}}
	products := map[[2]int][]models.ProductRecord{}
	for i, a := range []string{"a0", "a1", "a2", "a3", "a4"} {
		products[[2]int{0, i}] = []models.ProductRecord{record(a, "product "+a)}
	}

	stateDir := t.TempDir()
	db, err := database.Open(database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	d := NewDriver(catalog.NewRepo(db), cache.NewProperties(), stateDir, Options{})

	broken := &fakeSource{name: "shop.test", plan: plan, products: products, failUnit: 2}
	if _, err := d.Run(context.Background(), broken); err == nil {
		t.Fatal("run over a failing unit succeeded")
	}

	fixed := &fakeSource{name: "shop.test", plan: plan, products: products, failUnit: -1}
	rep, err := d.Run(context.Background(), fixed)
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if !rep.Resumed {
		t.Fatal("second run not reported as resumed")
	}

	want := [][2]int{{0, 2}, {0, 3}, {0, 4}}
	if len(fixed.served) != len(want) {
		t.Fatalf("resumed run served %v, want %v", fixed.served, want)
	}
	for i := range want {
		if fixed.served[i] != want[i] {
			t.Fatalf("resumed run served %v, want %v", fixed.served, want)
		}
	}
	if rep.Counts.Created != 3 {
		t.Fatalf("resumed run created %d products, want 3", rep.Counts.Created)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("total products = %d, want 5", n)
	}

	// a clean run drops its checkpoint: the next one starts fresh
	rep3, err := d.Run(context.Background(), fixed)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if rep3.Resumed {
		t.Fatal("run after completion reported as resumed")
	}
}

func TestDriverSkipsMalformedRecords(t *testing.T) {
	d, db := setupTestDriver(t, Options{})
	src := &fakeSource{
		name:     "shop.test",
		plan:     Plan{Groups: []PlanGroup{{Name: "g", Units: []string{"u"}}}},
		failUnit: -1,
		products: map[[2]int][]models.ProductRecord{
			{0, 0}: {
				{Article: "", Name: "nameless"},
				{Article: "x-1", Name: ""},
				record("ok-1", "Valid product"),
			},
		},
	}

	rep, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Counts.Malformed != 2 || rep.Counts.Created != 1 {
		t.Fatalf("counts = %+v, want 2 malformed, 1 created", rep.Counts)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("products = %d, want 1", n)
	}
}

func TestDriverKeepsProductOnBadChain(t *testing.T) {
	d, db := setupTestDriver(t, Options{})

	rec := record("loop-1", "Product with cyclic chain")
	rec.Categories = []models.CategoryRef{
		{Name: "Овощи"},
		{Name: "Корнеплоды"},
		{Name: "Овощи"},
	}
	src := &fakeSource{
		name:     "shop.test",
		plan:     Plan{Groups: []PlanGroup{{Name: "g", Units: []string{"u"}}}},
		failUnit: -1,
		products: map[[2]int][]models.ProductRecord{{0, 0}: {rec}},
	}

	rep, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Counts.Created != 1 {
		t.Fatalf("counts = %+v, want 1 created", rep.Counts)
	}

	var products, categories int
	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&products); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&categories); err != nil {
		t.Fatal(err)
	}
	if products != 1 {
		t.Fatalf("products = %d, want 1", products)
	}
	if categories != 0 {
		t.Fatalf("categories = %d, want 0: a rejected chain must not persist nodes", categories)
	}
}

func TestDriverUpdateKnown(t *testing.T) {
	d, db := setupTestDriver(t, Options{UpdateKnown: true})
	src := &fakeSource{
		name:     "shop.test",
		plan:     Plan{Groups: []PlanGroup{{Name: "g", Units: []string{"u"}}}},
		failUnit: -1,
		products: map[[2]int][]models.ProductRecord{{0, 0}: {record("p-1", "Old name")}},
	}
	if _, err := d.Run(context.Background(), src); err != nil {
		t.Fatalf("first run: %v", err)
	}

	renamed := record("p-1", "New name")
	src.products[[2]int{0, 0}] = []models.ProductRecord{renamed}
	rep, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Counts.Known != 1 {
		t.Fatalf("counts = %+v, want 1 known", rep.Counts)
	}

	var name string
	if err := db.QueryRow("SELECT name FROM products WHERE source_article = 'p-1'").Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "New name" {
		t.Fatalf("product name = %q, want updated name", name)
	}
}

func TestDriverEmitsProgressEvents(t *testing.T) {
	var events []Event
	notifier := notifierFunc(func(ev Event) { events = append(events, ev) })

	d, _ := setupTestDriver(t, Options{Notifier: notifier, Now: func() time.Time {
		return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	}})
	src := &fakeSource{
		name:     "shop.test",
		plan:     Plan{Groups: []PlanGroup{{Name: "g", Units: []string{"u0", "u1"}}}},
		failUnit: -1,
		products: map[[2]int][]models.ProductRecord{
			{0, 0}: {record("p-1", "One")},
			{0, 1}: {record("p-2", "Two")},
		},
	}

	if _, err := d.Run(context.Background(), src); err != nil {
		t.Fatalf("run: %v", err)
	}

	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	want := []string{"run.start", "unit.done", "unit.done", "run.done"}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event types = %v, want %v", types, want)
		}
	}
	if got := events[1].Cursor; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("first unit.done cursor = %v, want [0 1]", got)
	}
}

type notifierFunc func(Event)

func (f notifierFunc) Notify(ev Event) { f(ev) }
