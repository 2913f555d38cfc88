// Package edostavka adapts edostavka.by to the ingest.Source
// contract: a two-level category plan scraped from the /categories
// HTML page, paginated product listings embedded as Next.js page
// props, and a JSON detail API per product.
package edostavka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"pricewatch/internal/ingest"
	"pricewatch/pkg/models"
)

const (
	defaultHost = "https://edostavka.by"
	defaultAPI  = "https://api2.edostavka.by/api/v2"
)

type Source struct {
	name   string
	host   string
	api    string
	client *http.Client

	// Headers captured by the operator's cookie-intercept tooling;
	// applied to every page request.
	headers map[string]string

	plan       ingest.Plan
	unitURLs   [][]string
	planLoaded bool
}

type Option func(*Source)

// WithBaseURL points both the HTML pages and the JSON API at one base,
// for tests and local mirrors.
func WithBaseURL(base string) Option {
	return func(s *Source) {
		s.host = base
		s.api = base + "/api/v2"
	}
}

func WithHeaders(h map[string]string) Option {
	return func(s *Source) { s.headers = h }
}

func New(name string, opts ...Option) *Source {
	if name == "" {
		name = "edostavka.by"
	}
	s := &Source{
		name:   name,
		host:   defaultHost,
		api:    defaultAPI,
		client: &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Name() string { return s.name }

func (s *Source) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("edostavka: build request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edostavka: do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("edostavka: %s: status %d: %s", url, resp.StatusCode, truncate(string(body), 200))
	}
	return resp, nil
}

// Plan scrapes the two-level category layout from the /categories
// page. The result is cached: the checkpoint cursor indexes into this
// plan, so it must stay stable for the lifetime of a run.
func (s *Source) Plan(ctx context.Context) (ingest.Plan, error) {
	if s.planLoaded {
		return s.plan, nil
	}

	resp, err := s.get(ctx, s.host+"/categories")
	if err != nil {
		return ingest.Plan{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ingest.Plan{}, fmt.Errorf("edostavka: parse categories page: %w", err)
	}

	var plan ingest.Plan
	var urls [][]string
	doc.Find("div[class*='categories_subcategory__']").Each(func(_ int, div *goquery.Selection) {
		title := div.Find("a[class*='categories_subcategory__title__']").First()
		if title.Length() == 0 {
			return
		}
		group := ingest.PlanGroup{Name: strings.TrimSpace(title.Text())}
		var groupURLs []string

		div.Find("li[class*='categories_subcategory__item__'] a[class*='categories_subcategory__link__']").
			Each(func(_ int, a *goquery.Selection) {
				href, ok := a.Attr("href")
				if !ok {
					return
				}
				group.Units = append(group.Units, strings.TrimSpace(a.Text()))
				groupURLs = append(groupURLs, href)
			})

		plan.Groups = append(plan.Groups, group)
		urls = append(urls, groupURLs)
	})

	if len(plan.Groups) == 0 {
		return ingest.Plan{}, fmt.Errorf("edostavka: no categories found on %s/categories", s.host)
	}

	s.plan = plan
	s.unitURLs = urls
	s.planLoaded = true
	return plan, nil
}

// listing mirrors props.pageProps.listing of the category page.
type listing struct {
	Products []struct {
		ProductID json.Number `json:"productId"`
	} `json:"products"`
	PageNumber int `json:"pageNumber"`
	PageAmount int `json:"pageAmount"`
}

func (s *Source) Products(ctx context.Context, group, unit int, emit func(models.ProductRecord) error) error {
	if _, err := s.Plan(ctx); err != nil {
		return err
	}
	if group >= len(s.unitURLs) || unit >= len(s.unitURLs[group]) {
		return fmt.Errorf("edostavka: unit (%d,%d) out of range", group, unit)
	}
	baseURL := s.host + s.unitURLs[group][unit]

	// iterative pagination: page until pageNumber reaches pageAmount
	page := 0
	for {
		url := baseURL
		if page > 0 {
			url = fmt.Sprintf("%s?page=%d", baseURL, page+1)
		}

		l, err := s.fetchListing(ctx, url)
		if err != nil {
			return err
		}

		for _, p := range l.Products {
			rec, err := s.fetchProduct(ctx, p.ProductID.String())
			if err != nil {
				return err
			}
			if rec == nil {
				continue // product vanished between listing and detail
			}
			if err := emit(*rec); err != nil {
				return err
			}
		}

		if l.PageNumber >= l.PageAmount {
			return nil
		}
		page = l.PageNumber
	}
}

// fetchListing extracts the JSON Next.js embeds in the page's
// __NEXT_DATA__ script tag.
func (s *Source) fetchListing(ctx context.Context, url string) (*listing, error) {
	resp, err := s.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("edostavka: parse listing page: %w", err)
	}

	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if raw == "" {
		return nil, fmt.Errorf("edostavka: %s: no __NEXT_DATA__ script", url)
	}

	var pageData struct {
		Props struct {
			PageProps struct {
				Listing listing `json:"listing"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(raw), &pageData); err != nil {
		return nil, fmt.Errorf("edostavka: decode page props: %w", err)
	}
	return &pageData.Props.PageProps.Listing, nil
}

// productDetail mirrors the /product/{id} API response.
type productDetail struct {
	Product *struct {
		ProductID   json.Number `json:"productId"`
		ProductName string      `json:"productName"`
		Categories  []string    `json:"categories"`
		Images      []string    `json:"images"`
		LegalInfo   struct {
			Title                string `json:"title"`
			TrademarkName        string `json:"trademarkName"`
			ManufacturerName     string `json:"manufacturerName"`
			CountryOfManufacture string `json:"countryOfManufacture"`
		} `json:"legalInfo"`
		Description struct {
			ProductDescription string `json:"productDescription"`
			Composition        string `json:"composition"`
			StoragePeriod      string `json:"storagePeriod"`
		} `json:"description"`
		QuantityInfo struct {
			Measure string `json:"measure"`
		} `json:"quantityInfo"`
		Price struct {
			DiscountedPrice decimal.Decimal `json:"discountedPrice"`
		} `json:"price"`
		AdditionalProperties []struct {
			GroupName     string `json:"groupName"`
			GroupProperty []struct {
				PropertyName  string   `json:"propertyName"`
				PropertyValue []string `json:"propertyValue"`
			} `json:"groupProperty"`
		} `json:"additionalProperties"`
		CustomPropertyGroup []struct {
			PropertyName  string   `json:"propertyName"`
			PropertyValue []string `json:"propertyValue"`
		} `json:"customPropertyGroup"`
	} `json:"product"`
}

func (s *Source) fetchProduct(ctx context.Context, id string) (*models.ProductRecord, error) {
	resp, err := s.get(ctx, s.api+"/product/"+id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var detail productDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("edostavka: decode product %s: %w", id, err)
	}
	if detail.Product == nil {
		return nil, nil
	}
	p := detail.Product

	// the trademark field is often empty; the legal title stands in
	trademark := p.LegalInfo.TrademarkName
	if trademark == "" {
		trademark = p.LegalInfo.Title
	}

	rec := models.ProductRecord{
		Article: p.ProductID.String(),
		Name:    strings.TrimSpace(p.ProductName),
		Manufacturer: models.ManufacturerIdent{
			Trademark: trademark,
			FullName:  p.LegalInfo.ManufacturerName,
			Country:   p.LegalInfo.CountryOfManufacture,
		},
		Images:      p.Images,
		Price:       p.Price.DiscountedPrice,
		Description: strings.TrimSpace(p.Description.ProductDescription),
		Composition: strings.TrimSpace(p.Description.Composition),
		StorageInfo: strings.TrimSpace(p.Description.StoragePeriod),
		Unit:        p.QuantityInfo.Measure,
	}

	// the detail API gives the chain as bare names, root first
	for _, name := range p.Categories {
		rec.Categories = append(rec.Categories, models.CategoryRef{Name: name})
	}

	for _, group := range p.AdditionalProperties {
		for _, prop := range group.GroupProperty {
			for _, v := range prop.PropertyValue {
				rec.Properties = append(rec.Properties, models.PropertyValue{
					Name: prop.PropertyName, Value: v, Group: group.GroupName,
				})
			}
		}
	}
	for _, prop := range p.CustomPropertyGroup {
		for _, v := range prop.PropertyValue {
			rec.Properties = append(rec.Properties, models.PropertyValue{
				Name: prop.PropertyName, Value: v, Group: "Пищевая ценность",
			})
		}
	}

	return &rec, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
