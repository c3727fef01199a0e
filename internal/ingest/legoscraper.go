package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/config"
	"github.com/hadleybricks/brickvest/pkg/httputil"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

var gbpPattern = regexp.MustCompile(`£([\d,]+\.?\d{0,2})`)

// Themes whose sets are magazine freebies or promos with no product page.
var unscrapableThemes = map[string]bool{
	"Collectable Minifigures": true,
	"Promotional":             true,
	"Seasonal":                true,
}

// ScrapeResult summarises one scrape run.
type ScrapeResult struct {
	Attempted int `json:"attempted"`
	Found     int `json:"found"`
	NotFound  int `json:"not_found"`
	Errors    int `json:"errors"`
	Updated   int `json:"updated"`
}

// LegoScraper recovers retail prices straight from lego.com product
// pages, for sets every other backfill pass missed.
type LegoScraper struct {
	httpClient *httputil.Client
	sets       contracts.SetRepository
	baseURL    string
	log        *logger.Logger

	// DryRun previews prices without writing them.
	DryRun bool
	// Limit caps how many sets are scraped; 0 means all.
	Limit int
}

// NewLegoScraper creates a scraper.
func NewLegoScraper(httpClient *httputil.Client, sets contracts.SetRepository, cfg config.LegoConfig, log *logger.Logger) *LegoScraper {
	return &LegoScraper{
		httpClient: httpClient,
		sets:       sets,
		baseURL:    cfg.BaseURL,
		log:        log.WithField("component", "ingest.legoscraper"),
	}
}

// Run scrapes product pages for sets still missing a retail price.
func (s *LegoScraper) Run(ctx context.Context) (*ScrapeResult, error) {
	missing, err := s.sets.ListMissingRRP(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sets missing rrp: %w", err)
	}

	targets := filterScrapeable(missing)
	if s.Limit > 0 && len(targets) > s.Limit {
		targets = targets[:s.Limit]
	}
	result := &ScrapeResult{Attempted: len(targets)}
	if len(targets) == 0 {
		s.log.Info("No sets to scrape")
		return result, nil
	}

	found := make(map[string]float64)
	for _, set := range targets {
		price, err := s.scrapeSet(ctx, set.SetNumber)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("set_number", set.SetNumber).Warn("Scrape failed")
			result.Errors++
		case price == 0:
			result.NotFound++
		default:
			s.log.WithFields(map[string]interface{}{
				"set_number": set.SetNumber,
				"price":      price,
			}).Info("Scraped retail price")
			found[set.SetNumber] = price
			result.Found++
		}
	}

	if s.DryRun {
		s.log.WithField("found", len(found)).Info("Dry run, skipping writes")
		return result, nil
	}

	for sn, price := range found {
		if err := s.sets.UpdateRRP(ctx, sn, price, "lego_scrape"); err != nil {
			return result, fmt.Errorf("failed to update rrp for %s: %w", sn, err)
		}
		result.Updated++
	}

	s.log.WithFields(map[string]interface{}{
		"attempted": result.Attempted,
		"found":     result.Found,
		"updated":   result.Updated,
	}).Info("Scrape complete")
	return result, nil
}

func (s *LegoScraper) scrapeSet(ctx context.Context, setNumber string) (float64, error) {
	// Product URLs use the bare number without the variant suffix.
	numPart := strings.SplitN(setNumber, "-", 2)[0]
	url := fmt.Sprintf("%s/%s", s.baseURL, numPart)

	resp, err := s.httpClient.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to parse page: %w", err)
	}
	return extractPrice(doc), nil
}

// filterScrapeable drops magazine freebies (6+ digit numbers), promos
// and other sets without a product page.
func filterScrapeable(sets []contracts.CatalogSet) []contracts.CatalogSet {
	var out []contracts.CatalogSet
	for _, s := range sets {
		numPart := strings.SplitN(s.SetNumber, "-", 2)[0]
		if len(numPart) >= 6 {
			continue
		}
		if unscrapableThemes[s.Theme] {
			continue
		}
		if s.Pieces == nil || *s.Pieces < 10 {
			continue
		}
		out = append(out, s)
	}
	return out
}

// extractPrice pulls the GBP price from a product page, trying JSON-LD
// structured data, then the price element, then any price-looking text.
func extractPrice(doc *goquery.Document) float64 {
	if price := priceFromJSONLD(doc); price > 0 {
		return price
	}

	sel := doc.Find(`[data-test="product-price"]`)
	if sel.Length() == 0 {
		sel = doc.Find(`[data-test="product-price-sale"]`)
	}
	if sel.Length() > 0 {
		if price := parseGBP(sel.First().Text()); price > 0 {
			return price
		}
	}

	// Last resort: first plausible price anywhere in the body.
	for _, m := range gbpPattern.FindAllStringSubmatch(doc.Find("body").Text(), -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil && v >= 3 && v <= 1000 {
			return v
		}
	}
	return 0
}

type jsonLDOffer struct {
	Price         json.Number `json:"price"`
	PriceCurrency string      `json:"priceCurrency"`
}

type jsonLDItem struct {
	Offers json.RawMessage `json:"offers"`
}

func priceFromJSONLD(doc *goquery.Document) float64 {
	var price float64
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := strings.TrimSpace(sel.Text())

		var items []jsonLDItem
		if strings.HasPrefix(raw, "[") {
			if err := json.Unmarshal([]byte(raw), &items); err != nil {
				return true
			}
		} else {
			var item jsonLDItem
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				return true
			}
			items = []jsonLDItem{item}
		}

		for _, item := range items {
			if len(item.Offers) == 0 {
				continue
			}
			var offers []jsonLDOffer
			if strings.HasPrefix(strings.TrimSpace(string(item.Offers)), "[") {
				if err := json.Unmarshal(item.Offers, &offers); err != nil {
					continue
				}
			} else {
				var offer jsonLDOffer
				if err := json.Unmarshal(item.Offers, &offer); err != nil {
					continue
				}
				offers = []jsonLDOffer{offer}
			}
			for _, offer := range offers {
				if offer.PriceCurrency != "GBP" {
					continue
				}
				if v, err := offer.Price.Float64(); err == nil && v > 0 {
					price = v
					return false
				}
			}
		}
		return true
	})
	return price
}

func parseGBP(text string) float64 {
	m := gbpPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
