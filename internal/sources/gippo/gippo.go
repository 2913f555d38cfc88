// Package gippo adapts gippo-market.by to the ingest.Source contract.
// The shop exposes a JSON API: a flat category list rooted at an
// "all products" node, a per-category paginated product listing, and
// a detail endpoint whose breadcrumbs carry explicit category chains.
package gippo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/ingest"
	"pricewatch/pkg/models"
)

const (
	defaultAPI      = "https://app.willesden.by/api/guest/shop"
	defaultMarketID = "73"
	rootSlug        = "vse"
)

type category struct {
	ID       json.Number `json:"id"`
	Title    string      `json:"title"`
	Slug     string      `json:"slug"`
	ParentID json.Number `json:"parent_id"`
}

type Source struct {
	name     string
	api      string
	marketID string
	client   *http.Client
	headers  map[string]string

	plan       ingest.Plan
	mainCats   []category
	bySlug     map[string]category
	byID       map[string]category
	planLoaded bool
}

type Option func(*Source)

func WithBaseURL(base string) Option {
	return func(s *Source) { s.api = base }
}

func WithHeaders(h map[string]string) Option {
	return func(s *Source) { s.headers = h }
}

func WithMarketID(id string) Option {
	return func(s *Source) { s.marketID = id }
}

func New(name string, opts ...Option) *Source {
	if name == "" {
		name = "gippo-market.by"
	}
	s := &Source{
		name:     name,
		api:      defaultAPI,
		marketID: defaultMarketID,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Name() string { return s.name }

func (s *Source) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("gippo: build request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("gippo: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gippo: %s: status %d: %s", url, resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gippo: decode %s: %w", url, err)
	}
	return nil
}

// Plan fetches the flat category list and cuts it down to the main
// categories, the direct children of the "vse" root. One plan group
// spans the whole catalog; each main category is a unit. The cut list
// is cached because the checkpoint cursor indexes into it.
func (s *Source) Plan(ctx context.Context) (ingest.Plan, error) {
	if s.planLoaded {
		return s.plan, nil
	}

	var cats []category
	if err := s.getJSON(ctx, s.api+"/categories", &cats); err != nil {
		return ingest.Plan{}, err
	}

	var rootID string
	for _, c := range cats {
		if c.ParentID.String() == "" && c.Slug == rootSlug {
			rootID = c.ID.String()
			break
		}
	}
	if rootID == "" {
		return ingest.Plan{}, fmt.Errorf("gippo: no %q root in category list", rootSlug)
	}

	group := ingest.PlanGroup{Name: "catalog"}
	s.mainCats = nil
	s.bySlug = make(map[string]category, len(cats))
	s.byID = make(map[string]category, len(cats))
	for _, c := range cats {
		s.bySlug[c.Slug] = c
		s.byID[c.ID.String()] = c
		if c.ParentID.String() == rootID {
			s.mainCats = append(s.mainCats, c)
			group.Units = append(group.Units, c.Title)
		}
	}

	s.plan = ingest.Plan{Groups: []ingest.PlanGroup{group}}
	s.planLoaded = true
	return s.plan, nil
}

type listingPage struct {
	Data []struct {
		ID json.Number `json:"id"`
	} `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

func (s *Source) Products(ctx context.Context, group, unit int, emit func(models.ProductRecord) error) error {
	if _, err := s.Plan(ctx); err != nil {
		return err
	}
	if group != 0 || unit >= len(s.mainCats) {
		return fmt.Errorf("gippo: unit (%d,%d) out of range", group, unit)
	}
	main := s.mainCats[unit]

	// iterative pagination: follow links.next until it comes back empty
	next := fmt.Sprintf("%s/products?page=1&filter[categories][slug]=%s&market_id=%s",
		s.api, url.QueryEscape(main.Slug), s.marketID)
	for next != "" {
		var page listingPage
		if err := s.getJSON(ctx, next, &page); err != nil {
			return err
		}

		for _, item := range page.Data {
			rec, err := s.fetchProduct(ctx, item.ID.String(), main)
			if err != nil {
				return err
			}
			if err := emit(*rec); err != nil {
				return err
			}
		}

		next = page.Links.Next
		if next != "" && !strings.Contains(next, "filter[categories]") {
			next = fmt.Sprintf("%s&filter[categories][slug]=%s&market_id=%s",
				next, url.QueryEscape(main.Slug), s.marketID)
		}
	}
	return nil
}

// propertyItem is one entry of the detail endpoint's property map,
// keyed by its own code.
type propertyItem struct {
	Code  string          `json:"code"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
	Group string          `json:"group"`
}

var nutritionCodes = map[string]bool{
	"fats": true, "proteins": true, "energy": true, "energyJ": true, "carbohydrates": true,
}

// manufacturer identity travels inside the property map, not as a
// dedicated field
var manufacturerCodes = map[string]bool{
	"nameManufacturer": true, "nameCountry": true, "brandText": true,
}

type productDetail struct {
	ID          json.Number             `json:"id"`
	Title       string                  `json:"title"`
	Barcode     string                  `json:"barcode"`
	Description string                  `json:"description"`
	Unit        string                  `json:"short_name_uom"`
	Images      []string                `json:"images"`
	Properties  map[string]propertyItem `json:"properties"`
	Breadcrumbs []struct {
		Title string `json:"title"`
		Slug  string `json:"slug"`
	} `json:"breadcrumbs"`
	Markets []struct {
		Proposal struct {
			Price decimal.Decimal `json:"price"`
		} `json:"proposal"`
	} `json:"markets"`
}

func (s *Source) fetchProduct(ctx context.Context, id string, main category) (*models.ProductRecord, error) {
	url := fmt.Sprintf("%s/products/%s?category_id=%s&market_id=%s", s.api, id, main.ID.String(), s.marketID)
	var p productDetail
	if err := s.getJSON(ctx, url, &p); err != nil {
		return nil, err
	}

	rec := models.ProductRecord{
		Article:     p.ID.String(),
		Name:        strings.TrimSpace(p.Title),
		Barcode:     p.Barcode,
		Description: strings.TrimSpace(p.Description),
		Unit:        p.Unit,
		Images:      p.Images,
	}
	if len(p.Markets) > 0 {
		rec.Price = p.Markets[0].Proposal.Price
	}

	if item, ok := p.Properties["nameManufacturer"]; ok {
		rec.Manufacturer.FullName = propValue(item)
	}
	if item, ok := p.Properties["nameCountry"]; ok {
		rec.Manufacturer.Country = propValue(item)
	}
	if item, ok := p.Properties["brandText"]; ok {
		rec.Manufacturer.Trademark = propValue(item)
	}

	for code, item := range p.Properties {
		if manufacturerCodes[code] {
			continue
		}
		group := item.Group
		if group == "" {
			if nutritionCodes[code] {
				group = "Пищевая ценность"
			} else {
				group = "Основные характеристики"
			}
		}
		name := item.Name
		if name == "" {
			name = code
		}
		rec.Properties = append(rec.Properties, models.PropertyValue{
			Name: name, Value: propValue(item), Group: group,
		})
	}

	rec.Categories = s.breadcrumbChain(p, main)
	return &rec, nil
}

// breadcrumbChain turns the detail breadcrumbs into category refs with
// explicit parents resolved from the full category list. The main
// category is prepended when the breadcrumbs omit it, and a parent
// pointing at the "all products" root stays empty.
func (s *Source) breadcrumbChain(p productDetail, main category) []models.CategoryRef {
	var refs []models.CategoryRef

	hasMain := false
	for _, b := range p.Breadcrumbs {
		if b.Slug == main.Slug || b.Title == main.Title {
			hasMain = true
			break
		}
	}
	if !hasMain {
		refs = append(refs, models.CategoryRef{Name: main.Title})
	}

	for _, b := range p.Breadcrumbs {
		title := b.Title
		if title == "" {
			title = main.Title
		}
		ref := models.CategoryRef{Name: title}
		if c, ok := s.bySlug[b.Slug]; ok {
			if parent, ok := s.byID[c.ParentID.String()]; ok && parent.Slug != rootSlug {
				ref.Parent = parent.Title
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

// propValue renders a property value that may arrive as a string,
// number, or bool.
func propValue(item propertyItem) string {
	var str string
	if err := json.Unmarshal(item.Value, &str); err == nil {
		return str
	}
	var num float64
	if err := json.Unmarshal(item.Value, &num); err == nil {
		return strconv.FormatFloat(num, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(item.Value, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return strings.Trim(string(item.Value), `"`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
