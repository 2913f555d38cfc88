package resolver

import (
	"context"
	"errors"
	"testing"

	"pricewatch/pkg/models"
)

func chain(names ...string) []models.CategoryRef {
	refs := make([]models.CategoryRef, 0, len(names))
	for _, n := range names {
		refs = append(refs, models.CategoryRef{Name: n})
	}
	return refs
}

func TestChainSameNameDifferentParents(t *testing.T) {
	gw := newMemGateway()
	res := newTestResolver(t, gw)
	rc := NewReconciler(res, nil)
	ctx := context.Background()

	idsA, err := rc.Resolve(ctx, chain("Food", "Dairy"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	idsB, err := rc.Resolve(ctx, chain("Household", "Dairy"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(idsA) != 2 || len(idsB) != 2 {
		t.Fatalf("want 2 ids per chain, got %d and %d", len(idsA), len(idsB))
	}
	if idsA[1] == idsB[1] {
		t.Errorf("Dairy under Food and Dairy under Household share id %d; want distinct rows", idsA[1])
	}
	if gw.createCalls["category"] != 4 {
		t.Errorf("created %d categories, want 4", gw.createCalls["category"])
	}
}

func TestChainIdempotent(t *testing.T) {
	gw := newMemGateway()
	res := newTestResolver(t, gw)
	rc := NewReconciler(res, nil)
	ctx := context.Background()

	first, err := rc.Resolve(ctx, chain("Food", "Dairy", "Milk"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := rc.Resolve(ctx, chain("Food", "Dairy", "Milk"))
	if err != nil {
		t.Fatal(err)
	}

	for i := range first {
		if first[i] != second[i] {
			t.Errorf("position %d resolved to %d then %d", i, first[i], second[i])
		}
	}
	if gw.createCalls["category"] != 3 {
		t.Errorf("created %d categories across two walks, want 3", gw.createCalls["category"])
	}
}

func TestChainExplicitParentWins(t *testing.T) {
	gw := newMemGateway()
	res := newTestResolver(t, gw)
	rc := NewReconciler(res, nil)
	ctx := context.Background()

	// seed: Food and its child Dairy
	foodID, err := res.Category(ctx, "Food", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.Category(ctx, "Dairy", foodID); err != nil {
		t.Fatal(err)
	}

	// source returns siblings in the list but declares the real
	// ancestor explicitly: "Milk" must land under Dairy, not Cheese
	ids, err := rc.Resolve(ctx, []models.CategoryRef{
		{Name: "Cheese", Parent: "Food"},
		{Name: "Milk", Parent: "Dairy"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("want 2 ids, got %d", len(ids))
	}

	var milk models.Category
	for _, c := range gw.categories {
		if c.Name == "Milk" {
			milk = c
		}
	}
	if milk.ParentID == nil {
		t.Fatal("Milk has no parent")
	}
	dairyID, _ := res.Category(ctx, "Dairy", foodID)
	if *milk.ParentID != dairyID {
		t.Errorf("Milk parent = %d, want Dairy id %d", *milk.ParentID, dairyID)
	}
}

func TestChainMissingDeclaredParentFallsBack(t *testing.T) {
	gw := newMemGateway()
	res := newTestResolver(t, gw)
	rc := NewReconciler(res, nil)
	ctx := context.Background()

	ids, err := rc.Resolve(ctx, []models.CategoryRef{
		{Name: "Food"},
		{Name: "Dairy", Parent: "Nonexistent"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var dairy models.Category
	for _, c := range gw.categories {
		if c.Name == "Dairy" {
			dairy = c
		}
	}
	if dairy.ParentID == nil || *dairy.ParentID != ids[0] {
		t.Errorf("Dairy should fall back to previous chain item Food (id %d), got %v", ids[0], dairy.ParentID)
	}
}

func TestChainFiltersRootAlias(t *testing.T) {
	gw := newMemGateway()
	res := newTestResolver(t, gw)
	rc := NewReconciler(res, []string{"Все товары"})
	ctx := context.Background()

	ids, err := rc.Resolve(ctx, chain("Все товары", "Food", "Dairy"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("alias should be filtered, got %d ids", len(ids))
	}

	for _, c := range gw.categories {
		if c.Name == "Все товары" {
			t.Error("root alias was persisted as a category")
		}
		if c.Name == "Food" && c.ParentID != nil {
			t.Errorf("Food should be a root after alias filtering, parent = %d", *c.ParentID)
		}
	}
}

func TestChainRejectsCycles(t *testing.T) {
	gw := newMemGateway()
	res := newTestResolver(t, gw)
	rc := NewReconciler(res, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		chain []models.CategoryRef
	}{
		{
			name:  "self-referential node",
			chain: []models.CategoryRef{{Name: "Food", Parent: "Food"}},
		},
		{
			name:  "name repeats in chain",
			chain: chain("Food", "Dairy", "Food"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := rc.Resolve(ctx, tt.chain); !errors.Is(err, ErrCyclicChain) {
				t.Errorf("Resolve = %v, want ErrCyclicChain", err)
			}
		})
	}
}
