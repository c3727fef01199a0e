package ingest

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadleybricks/brickvest/internal/contracts"
)

func parseHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractPriceFromJSONLD(t *testing.T) {
	doc := parseHTML(t, `<html><head>
		<script type="application/ld+json">
		{"@type":"Product","name":"Castle","offers":{"price":"349.99","priceCurrency":"GBP"}}
		</script>
	</head><body>£9.99 shipping</body></html>`)

	assert.InDelta(t, 349.99, extractPrice(doc), 1e-9)
}

func TestExtractPriceFromJSONLDOfferArray(t *testing.T) {
	doc := parseHTML(t, `<html><head>
		<script type="application/ld+json">
		[{"@type":"Product","offers":[
			{"price":"399.99","priceCurrency":"USD"},
			{"price":"349.99","priceCurrency":"GBP"}
		]}]
		</script>
	</head><body></body></html>`)

	assert.InDelta(t, 349.99, extractPrice(doc), 1e-9)
}

func TestExtractPriceFromPriceElement(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<div data-test="product-price"><span>Price</span> £129.99</div>
	</body></html>`)

	assert.InDelta(t, 129.99, extractPrice(doc), 1e-9)
}

func TestExtractPriceFallsBackToBodyText(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<p>Members earn points.</p>
		<p>Now £1,049.99 with free delivery</p>
	</body></html>`)

	assert.InDelta(t, 1049.99, extractPrice(doc), 1e-9)
}

func TestExtractPriceIgnoresImplausibleBodyMatches(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<p>Over £2,000,000 donated to charity</p>
	</body></html>`)

	assert.Zero(t, extractPrice(doc))
}

func TestFilterScrapeableDropsFreebiesAndPromos(t *testing.T) {
	sets := []contracts.CatalogSet{
		{SetNumber: "10001-1", Theme: "Icons", Pieces: ptr(1000)},
		{SetNumber: "112233-1", Theme: "City", Pieces: ptr(50)},
		{SetNumber: "10002-1", Theme: "Promotional", Pieces: ptr(200)},
		{SetNumber: "10003-1", Theme: "Collectable Minifigures", Pieces: ptr(8)},
		{SetNumber: "10004-1", Theme: "City", Pieces: ptr(5)},
		{SetNumber: "10005-1", Theme: "City"},
	}

	out := filterScrapeable(sets)
	require.Len(t, out, 1)
	assert.Equal(t, "10001-1", out[0].SetNumber)
}
