// Package ingest fills catalog and pricing gaps from external sources:
// the Brickset API, marketplace price history, and lego.com itself.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hadleybricks/brickvest/pkg/config"
	"github.com/hadleybricks/brickvest/pkg/httputil"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

const bricksetPageSize = 500

// BricksetClient calls the Brickset v3 API.
type BricksetClient struct {
	httpClient *httputil.Client
	log        *logger.Logger
	apiKey     string
	baseURL    string
}

// NewBricksetClient creates a Brickset API client.
func NewBricksetClient(httpClient *httputil.Client, cfg config.BricksetConfig, log *logger.Logger) *BricksetClient {
	return &BricksetClient{
		httpClient: httpClient,
		log:        log.WithField("component", "ingest.brickset"),
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
	}
}

type bricksetGetSetsResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Matches int           `json:"matches"`
	Sets    []bricksetSet `json:"sets"`
}

type bricksetSet struct {
	Number        *string `json:"number"`
	NumberVariant int     `json:"numberVariant"`
	LEGOCom       struct {
		UK struct {
			RetailPrice *float64 `json:"retailPrice"`
		} `json:"UK"`
	} `json:"LEGOCom"`
}

// FetchUKPrices pages through getSets for the given years and returns
// UK retail prices keyed by set number ("12345-1" format). Prices
// below the catalog floor are dropped.
func (c *BricksetClient) FetchUKPrices(ctx context.Context, years []int, minPrice float64) (map[string]float64, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("brickset api key not configured")
	}

	prices := make(map[string]float64)
	for _, year := range years {
		page := 1
		for {
			resp, err := c.getSets(ctx, year, page)
			if err != nil {
				return nil, fmt.Errorf("brickset getSets year %d page %d: %w", year, page, err)
			}
			if resp.Status != "success" {
				return nil, fmt.Errorf("brickset api error: %s", resp.Message)
			}
			if len(resp.Sets) == 0 {
				break
			}

			for _, s := range resp.Sets {
				if s.Number == nil {
					continue
				}
				variant := s.NumberVariant
				if variant == 0 {
					variant = 1
				}
				price := s.LEGOCom.UK.RetailPrice
				if price == nil || *price < minPrice {
					continue
				}
				prices[fmt.Sprintf("%s-%d", *s.Number, variant)] = *price
			}

			if page*bricksetPageSize >= resp.Matches {
				break
			}
			page++
		}
	}

	c.log.WithFields(map[string]interface{}{
		"years":  years,
		"priced": len(prices),
	}).Info("Fetched UK retail prices from Brickset")
	return prices, nil
}

func (c *BricksetClient) getSets(ctx context.Context, year, page int) (*bricksetGetSetsResponse, error) {
	params, err := json.Marshal(map[string]string{"year": strconv.Itoa(year)})
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"apiKey":       {c.apiKey},
		"userHash":     {""},
		"params":       {string(params)},
		"pageSize":     {strconv.Itoa(bricksetPageSize)},
		"pageNumber":   {strconv.Itoa(page)},
		"extendedData": {"1"},
	}

	resp, err := c.httpClient.Post(ctx, c.baseURL+"/getSets",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var out bricksetGetSetsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}
