package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hadleybricks/brickvest/internal/ingest"
	"github.com/hadleybricks/brickvest/pkg/httputil"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Price data ingestion",
	Long: `Ingestion passes that fill gaps in the catalog and price history.

Subcommands:
  backfill-rrp - recover missing UK retail prices (catalog API, seeded
                 Amazon prices, buy-box history proxy, regional conversion)
  import-keepa - trigger buy-box history imports for uncovered ASINs
  scrape-lego  - scrape current retail prices from the storefront

Example:
  go run ./cmd/brickvest ingest backfill-rrp
  go run ./cmd/brickvest ingest scrape-lego --dry-run --limit 20`,
}

var (
	backfillSkipBrickset bool
	scrapeDryRun         bool
	scrapeLimit          int
)

var backfillRRPCmd = &cobra.Command{
	Use:   "backfill-rrp",
	Short: "Recover missing retail prices",
	RunE:  runBackfillRRP,
}

var importKeepaCmd = &cobra.Command{
	Use:   "import-keepa",
	Short: "Import buy-box price history",
	RunE:  runImportKeepa,
}

var scrapeLegoCmd = &cobra.Command{
	Use:   "scrape-lego",
	Short: "Scrape storefront retail prices",
	RunE:  runScrapeLego,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(backfillRRPCmd)
	ingestCmd.AddCommand(importKeepaCmd)
	ingestCmd.AddCommand(scrapeLegoCmd)

	backfillRRPCmd.Flags().BoolVar(&backfillSkipBrickset, "skip-brickset", false, "skip the catalog API pass")
	scrapeLegoCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "preview prices without writing them")
	scrapeLegoCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "cap how many sets are scraped (0 = all)")
}

func runBackfillRRP(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	httpClient, err := d.catalogHTTPClient()
	if err != nil {
		return err
	}
	brickset := ingest.NewBricksetClient(httpClient, d.cfg.Brickset, d.log)

	backfiller := ingest.NewBackfiller(d.sets, d.backfill, brickset, d.log)
	backfiller.SkipBrickset = backfillSkipBrickset

	result, err := backfiller.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Backfill complete: %d missing -> %d still missing\n", result.InitialMissing, result.StillMissing)
	fmt.Printf("  brickset_api:        %d\n", result.BricksetUpdated)
	fmt.Printf("  amazon_seeded:       %d\n", result.AmazonUpdated)
	fmt.Printf("  keepa_p95:           %d\n", result.KeepaUpdated)
	fmt.Printf("  regional_conversion: %d\n", result.RegionalUpdated)
	return nil
}

func runImportKeepa(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	httpClient := httputil.New(d.log)
	importer := ingest.NewKeepaImporter(httpClient, d.sets, d.backfill, d.cfg.Keepa, d.log)

	result, err := importer.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Keepa import complete: %d ASINs, %d already covered\n", result.TotalASINs, result.AlreadyImported)
	fmt.Printf("  processed: %d, snapshots: %d, failed: %d, no data: %d\n",
		result.Processed, result.Snapshots, result.Failed, result.SkippedNoData)
	return nil
}

func runScrapeLego(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	httpClient := httputil.New(d.log)
	scraper := ingest.NewLegoScraper(httpClient, d.sets, d.cfg.Lego, d.log)
	scraper.DryRun = scrapeDryRun
	scraper.Limit = scrapeLimit

	result, err := scraper.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Scrape complete: %d attempted, %d priced, %d not found, %d failed\n",
		result.Attempted, result.Updated, result.NotFound, result.Errors)
	return nil
}
