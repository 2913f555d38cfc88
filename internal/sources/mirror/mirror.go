// Package mirror is a demo-safe source that serves a catalog from a
// local JSON fixture instead of a live site. It exercises the exact
// same plan/stream contract the live adapters use.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"pricewatch/internal/ingest"
	"pricewatch/pkg/models"
)

type Source struct {
	name string
	path string
}

// fixture is the on-disk shape: groups of units, each unit carrying
// its normalized product records.
type fixture struct {
	Groups []struct {
		Name  string `json:"name"`
		Units []struct {
			Name     string                 `json:"name"`
			Products []models.ProductRecord `json:"products"`
		} `json:"units"`
	} `json:"groups"`
}

func New(name, path string) *Source {
	if name == "" {
		name = "mirror"
	}
	return &Source{name: name, path: path}
}

func (s *Source) Name() string { return s.name }

func (s *Source) load() (*fixture, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("mirror: read fixture: %w", err)
	}
	var f fixture
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("mirror: parse fixture: %w", err)
	}
	return &f, nil
}

func (s *Source) Plan(_ context.Context) (ingest.Plan, error) {
	f, err := s.load()
	if err != nil {
		return ingest.Plan{}, err
	}

	var plan ingest.Plan
	for _, g := range f.Groups {
		pg := ingest.PlanGroup{Name: g.Name}
		for _, u := range g.Units {
			pg.Units = append(pg.Units, u.Name)
		}
		plan.Groups = append(plan.Groups, pg)
	}
	return plan, nil
}

func (s *Source) Products(_ context.Context, group, unit int, emit func(models.ProductRecord) error) error {
	f, err := s.load()
	if err != nil {
		return err
	}
	if group >= len(f.Groups) || unit >= len(f.Groups[group].Units) {
		return fmt.Errorf("mirror: unit (%d,%d) out of range", group, unit)
	}

	for _, rec := range f.Groups[group].Units[unit].Products {
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}
