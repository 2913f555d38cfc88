package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pricewatch/pkg/models"
)

const fixtureJSON = `{
  "groups": [
    {
      "name": "Молочное",
      "units": [
        {
          "name": "Творог",
          "products": [
            {"article": "m-1", "name": "Творог 9%", "price": "4.35"},
            {"article": "m-2", "name": "Творог 5%", "price": "3.99"}
          ]
        },
        {"name": "Сыры", "products": [{"article": "m-3", "name": "Сыр твёрдый", "price": "12.10"}]}
      ]
    }
  ]
}`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(fixtureJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPlanMirrorsFixtureLayout(t *testing.T) {
	src := New("mirror.test", writeFixture(t))

	plan, err := src.Plan(context.Background())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Groups) != 1 || plan.Groups[0].Name != "Молочное" {
		t.Fatalf("groups = %+v", plan.Groups)
	}
	if got := plan.Groups[0].Units; len(got) != 2 || got[0] != "Творог" || got[1] != "Сыры" {
		t.Fatalf("units = %v", got)
	}
}

func TestProductsStreamsOneUnit(t *testing.T) {
	src := New("mirror.test", writeFixture(t))

	var articles []string
	err := src.Products(context.Background(), 0, 0, func(rec models.ProductRecord) error {
		articles = append(articles, rec.Article)
		return nil
	})
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	if len(articles) != 2 || articles[0] != "m-1" || articles[1] != "m-2" {
		t.Fatalf("articles = %v", articles)
	}

	if err := src.Products(context.Background(), 0, 5, func(models.ProductRecord) error { return nil }); err == nil {
		t.Fatal("out-of-range unit accepted")
	}
}
