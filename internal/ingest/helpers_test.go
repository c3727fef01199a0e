package ingest

import (
	"context"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/config"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.Config{
		Env:       "development",
		LogLevel:  "error",
		LogFormat: "json",
	})
}

// fakeSetRepo is an in-memory contracts.SetRepository. Sets with a nil
// RRPGBP count as missing; UpdateRRP fills them in, so waterfall
// passes see a shrinking missing list.
type fakeSetRepo struct {
	sets    map[string]*contracts.CatalogSet
	asins   map[string]string
	updates []rrpUpdate
}

type rrpUpdate struct {
	setNumber string
	price     float64
	source    string
}

func newFakeSetRepo(sets ...contracts.CatalogSet) *fakeSetRepo {
	repo := &fakeSetRepo{sets: make(map[string]*contracts.CatalogSet)}
	for i := range sets {
		s := sets[i]
		repo.sets[s.SetNumber] = &s
	}
	return repo
}

func (r *fakeSetRepo) ListRetired(ctx context.Context) ([]contracts.CatalogSet, error) {
	return nil, nil
}

func (r *fakeSetRepo) ListScoreable(ctx context.Context, cutoff time.Time) ([]contracts.CatalogSet, error) {
	return nil, nil
}

func (r *fakeSetRepo) ListMissingRRP(ctx context.Context) ([]contracts.CatalogSet, error) {
	var out []contracts.CatalogSet
	for _, s := range r.sets {
		if s.RRPGBP == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSetRepo) UpdateRRP(ctx context.Context, setNumber string, rrp float64, source string) error {
	r.updates = append(r.updates, rrpUpdate{setNumber, rrp, source})
	if s, ok := r.sets[setNumber]; ok {
		s.RRPGBP = &rrp
	}
	return nil
}

func (r *fakeSetRepo) ListASINs(ctx context.Context) (map[string]string, error) {
	return r.asins, nil
}

func (r *fakeSetRepo) sourceFor(setNumber string) string {
	for _, u := range r.updates {
		if u.setNumber == setNumber {
			return u.source
		}
	}
	return ""
}

// fakeBackfillSource serves canned fallback data.
type fakeBackfillSource struct {
	amazon   map[string]float64
	keepa    map[string][]float64
	regional map[string]RegionalPrice
}

func (f *fakeBackfillSource) AmazonSeededPrices(ctx context.Context, setNumbers []string) (map[string]float64, error) {
	return filterKeys(f.amazon, setNumbers), nil
}

func (f *fakeBackfillSource) KeepaBuyBoxPrices(ctx context.Context, setNumbers []string) (map[string][]float64, error) {
	return filterKeys(f.keepa, setNumbers), nil
}

func (f *fakeBackfillSource) RegionalPrices(ctx context.Context, setNumbers []string) (map[string]RegionalPrice, error) {
	return filterKeys(f.regional, setNumbers), nil
}

func filterKeys[V any](m map[string]V, keys []string) map[string]V {
	out := make(map[string]V)
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
