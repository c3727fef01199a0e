package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadleybricks/brickvest/internal/artifacts"
	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/features"
	"github.com/hadleybricks/brickvest/internal/training"
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

// memStore is an in-memory implementation of every repository the
// pipeline touches.
type memStore struct {
	retired   []contracts.CatalogSet
	scoreable []contracts.CatalogSet
	snaps     map[string][]contracts.PriceSnapshot

	rows  map[string]contracts.TrainingRow
	preds map[string]contracts.Prediction
	runs  []contracts.ModelRun

	failRetired bool
}

func newMemStore() *memStore {
	return &memStore{
		snaps: make(map[string][]contracts.PriceSnapshot),
		rows:  make(map[string]contracts.TrainingRow),
		preds: make(map[string]contracts.Prediction),
	}
}

func (m *memStore) ListRetired(ctx context.Context) ([]contracts.CatalogSet, error) {
	if m.failRetired {
		return nil, errors.New("connection refused")
	}
	return m.retired, nil
}

func (m *memStore) ListScoreable(ctx context.Context, cutoff time.Time) ([]contracts.CatalogSet, error) {
	return m.scoreable, nil
}

func (m *memStore) ListMissingRRP(ctx context.Context) ([]contracts.CatalogSet, error) {
	return nil, nil
}

func (m *memStore) UpdateRRP(ctx context.Context, setNumber string, rrp float64, source string) error {
	return nil
}

func (m *memStore) ListASINs(ctx context.Context) (map[string]string, error) {
	return nil, nil
}

func (m *memStore) ListBySets(ctx context.Context, setNumbers []string) (map[string][]contracts.PriceSnapshot, error) {
	out := make(map[string][]contracts.PriceSnapshot, len(setNumbers))
	for _, n := range setNumbers {
		if snaps, ok := m.snaps[n]; ok {
			out[n] = snaps
		}
	}
	return out, nil
}

func (m *memStore) InsertBatch(ctx context.Context, snaps []contracts.PriceSnapshot) (int, error) {
	for _, s := range snaps {
		m.snaps[s.SetNumber] = append(m.snaps[s.SetNumber], s)
	}
	return len(snaps), nil
}

func (m *memStore) UpsertRows(ctx context.Context, rows []contracts.TrainingRow) (int, error) {
	for _, r := range rows {
		m.rows[r.SetNumber] = r
	}
	return len(rows), nil
}

func (m *memStore) ListAll(ctx context.Context) ([]contracts.TrainingRow, error) {
	out := make([]contracts.TrainingRow, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SetNumber < out[b].SetNumber })
	return out, nil
}

func (m *memStore) UpdateFeatures(ctx context.Context, rows []contracts.TrainingRow) (int, error) {
	n := 0
	for _, r := range rows {
		if _, ok := m.rows[r.SetNumber]; !ok {
			continue
		}
		m.rows[r.SetNumber] = r
		n++
	}
	return n, nil
}

func (m *memStore) UpsertBatch(ctx context.Context, preds []contracts.Prediction) (int, error) {
	for _, p := range preds {
		m.preds[p.SetNumber] = p
	}
	return len(preds), nil
}

func (m *memStore) ListRanked(ctx context.Context, limit, offset int) ([]contracts.Prediction, error) {
	out := make([]contracts.Prediction, 0, len(m.preds))
	for _, p := range m.preds {
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CompositeScore > out[b].CompositeScore })
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *memStore) Insert(ctx context.Context, run *contracts.ModelRun) (int64, error) {
	m.runs = append(m.runs, *run)
	return int64(len(m.runs)), nil
}

func (m *memStore) LatestByHorizon(ctx context.Context, version string) (map[contracts.Horizon]contracts.ModelRun, error) {
	out := make(map[contracts.Horizon]contracts.ModelRun)
	for _, r := range m.runs {
		out[r.Horizon] = r
	}
	return out, nil
}

// themeTargets is the synthetic log appreciation per theme and horizon.
// Icons sets appreciate strongly; City sets stay flat.
var themeTargets = map[string]map[contracts.Horizon]float64{
	"Icons": {
		contracts.Horizon6m:  0.25,
		contracts.Horizon1yr: 0.50,
		contracts.Horizon2yr: 0.70,
		contracts.Horizon3yr: 0.85,
	},
	"City": {
		contracts.Horizon6m:  0.00,
		contracts.Horizon1yr: 0.00,
		contracts.Horizon2yr: 0.02,
		contracts.Horizon3yr: 0.03,
	},
}

// addRetiredSet registers one retired set with enough snapshots around
// every milestone to label all four horizons.
func addRetiredSet(m *memStore, setNumber, theme string, rrp float64, exitYear, jitterSeed int) {
	exit := time.Date(exitYear, time.June, 15, 0, 0, 0, 0, time.UTC)
	launch := exit.AddDate(-2, 0, 0)
	pieces := 800 + jitterSeed*13
	m.retired = append(m.retired, contracts.CatalogSet{
		SetNumber:    setNumber,
		Name:         "Set " + setNumber,
		Theme:        theme,
		YearReleased: intPtr(exitYear - 2),
		Pieces:       &pieces,
		RRPGBP:       &rrp,
		Status:       contracts.StatusRetired,
		LaunchDate:   &launch,
		ExitDate:     &exit,
	})

	// Three snapshots around retirement at a slight discount.
	for d := -1; d <= 1; d++ {
		m.snaps[setNumber] = append(m.snaps[setNumber], contracts.PriceSnapshot{
			SetNumber:  setNumber,
			CapturedAt: exit.AddDate(0, 0, d),
			Price:      rrp * 0.97,
			Source:     "keepa_amazon_buybox",
		})
	}

	// Three snapshots inside every horizon window at the theme's price.
	for _, ms := range contracts.Milestones {
		if ms.Horizon == "" {
			continue
		}
		target := themeTargets[theme][ms.Horizon]
		center := exit.AddDate(0, 0, ms.OffsetDays)
		for d := -1; d <= 1; d++ {
			jitter := 1 + float64((jitterSeed+d)%3-1)*0.01
			m.snaps[setNumber] = append(m.snaps[setNumber], contracts.PriceSnapshot{
				SetNumber:  setNumber,
				CapturedAt: center.AddDate(0, 0, d),
				Price:      rrp * math.Exp(target) * jitter,
				Source:     "keepa_amazon_buybox",
			})
		}
	}
}

// buildWorld creates eight retired sets per year across 2016-2023,
// split evenly between the two themes, plus two live sets to score.
func buildWorld() *memStore {
	m := newMemStore()
	i := 0
	for year := 2016; year <= 2023; year++ {
		for k := 0; k < 4; k++ {
			i++
			addRetiredSet(m, fmt.Sprintf("%d-1", 10000+i), "Icons", 150+float64(i), year, i)
			addRetiredSet(m, fmt.Sprintf("%d-1", 60000+i), "City", 40+float64(i), year, i)
		}
	}

	m.scoreable = []contracts.CatalogSet{
		{
			SetNumber: "10900-1",
			Name:      "Grand Arcade",
			Theme:     "Icons",
			Pieces:    intPtr(3200),
			RRPGBP:    fPtr(180),
			Status:    contracts.StatusAvailable,
		},
		{
			SetNumber: "60900-1",
			Name:      "Patrol Van",
			Theme:     "City",
			Pieces:    intPtr(420),
			RRPGBP:    fPtr(45),
			Status:    contracts.StatusAvailable,
		},
	}
	return m
}

func testTrainingConfig() training.Config {
	cfg := training.DefaultConfig()
	cfg.MinHorizonRows = 30
	cfg.MinFoldTrain = 15
	cfg.MinFoldVal = 4
	cfg.Trials = 4
	cfg.NumRounds = 80
	cfg.EarlyStopping = 10
	cfg.Parallelism = 2
	cfg.Seed = 7
	return cfg
}

func TestRunnerFullPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}

	store := buildWorld()
	models := artifacts.NewStore(t.TempDir())
	runner := NewRunner(store, store, store, store, store, models, newTestLogger()).
		WithTrainingConfig(testTrainingConfig())

	require.NoError(t, runner.Run(context.Background()))

	// Every retired set became a fully labelled row with a current
	// feature vector.
	rows, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 64)
	for _, row := range rows {
		assert.Equal(t, contracts.QualityGood, row.Quality, row.SetNumber)
		require.NotNil(t, row.Features, row.SetNumber)
		assert.Equal(t, features.Version, row.FeatureVersion)
	}

	// All four horizons trained and recorded a run.
	require.Len(t, store.runs, len(contracts.Horizons))
	for _, h := range contracts.Horizons {
		assert.True(t, models.HasHorizon(h), string(h))
	}

	// Both live sets were scored.
	require.Len(t, store.preds, 2)
	icons := store.preds["10900-1"]
	city := store.preds["60900-1"]

	iconsFc, ok := icons.Horizons[contracts.Horizon1yr]
	require.True(t, ok)
	cityFc, ok := city.Horizons[contracts.Horizon1yr]
	require.True(t, ok)

	// Icons retire into ~65% appreciation, City stays flat; the model
	// must separate them with the right sign.
	assert.Greater(t, iconsFc.AppreciationPct, cityFc.AppreciationPct+10)
	assert.Greater(t, iconsFc.AppreciationPct, 0.0)
	assert.Greater(t, icons.CompositeScore, city.CompositeScore)

	// Ranked listing puts the appreciating set first.
	ranked, err := store.ListRanked(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "10900-1", ranked[0].SetNumber)
}

func TestRunnerHaltsOnBuildFailure(t *testing.T) {
	store := buildWorld()
	store.failRetired = true
	models := artifacts.NewStore(t.TempDir())
	runner := NewRunner(store, store, store, store, store, models, newTestLogger())

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline halted at build")
	assert.Empty(t, store.rows)
}

func TestRunStepRejectsUnknownStep(t *testing.T) {
	store := newMemStore()
	models := artifacts.NewStore(t.TempDir())
	runner := NewRunner(store, store, store, store, store, models, newTestLogger())

	assert.Error(t, runner.RunStep(context.Background(), Step("deploy")))
}

func intPtr(v int) *int       { return &v }
func fPtr(v float64) *float64 { return &v }
