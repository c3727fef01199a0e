package training

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// paramDef defines one hyperparameter search dimension.
type paramDef struct {
	name    string
	lo, hi  float64
	logUnif bool
	integer bool
}

// searchSpace matches the tuned boosting hyperparameters.
var searchSpace = []paramDef{
	{name: "num_leaves", lo: 15, hi: 63, integer: true},
	{name: "learning_rate", lo: 0.01, hi: 0.1, logUnif: true},
	{name: "min_child_samples", lo: 10, hi: 50, integer: true},
	{name: "feature_fraction", lo: 0.6, hi: 0.9},
	{name: "lambda_l1", lo: 0, hi: 10},
	{name: "lambda_l2", lo: 0, hi: 10},
	{name: "max_depth", lo: 3, hi: 7, integer: true},
}

const (
	startupTrials  = 10   // pure random before the TPE model kicks in
	tpeGamma       = 0.25 // fraction of trials considered "good"
	tpeCandidates  = 24   // candidates scored per TPE suggestion
	minKDEBandwidth = 1e-3
)

// trial is one completed hyperparameter evaluation.
type trial struct {
	params map[string]float64
	score  float64 // lower is better
}

// Searcher runs a tree-structured Parzen estimator search: completed
// trials are split into good and bad sets, candidates are drawn from a
// KDE over the good set and scored by the good/bad density ratio.
type Searcher struct {
	Trials      int
	Parallelism int
	Seed        int64
}

// Objective evaluates one parameter assignment and returns its score
// (lower is better).
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

// Run executes the search and returns the best trial.
func (s *Searcher) Run(ctx context.Context, objective Objective) (*trial, error) {
	parallelism := s.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	var mu sync.Mutex
	history := make([]trial, 0, s.Trials)
	rng := rand.New(rand.NewSource(s.Seed))

	remaining := s.Trials
	for remaining > 0 {
		batch := parallelism
		if batch > remaining {
			batch = remaining
		}

		// Suggestions are drawn serially against the current history so
		// the sampler stays deterministic; only evaluation fans out.
		suggestions := make([]map[string]float64, batch)
		mu.Lock()
		for i := range suggestions {
			suggestions[i] = suggest(history, rng)
		}
		mu.Unlock()

		g, gctx := errgroup.WithContext(ctx)
		for _, params := range suggestions {
			g.Go(func() error {
				score, err := objective(gctx, params)
				if err != nil {
					return err
				}
				mu.Lock()
				history = append(history, trial{params: params, score: score})
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		remaining -= batch
	}

	best := &history[0]
	for i := range history {
		if history[i].score < best.score {
			best = &history[i]
		}
	}
	return best, nil
}

// suggest draws the next parameter assignment.
func suggest(history []trial, rng *rand.Rand) map[string]float64 {
	if len(history) < startupTrials {
		return randomParams(rng)
	}

	sorted := append([]trial(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].score < sorted[j].score })
	nGood := int(math.Ceil(tpeGamma * float64(len(sorted))))
	if nGood < 1 {
		nGood = 1
	}
	good, bad := sorted[:nGood], sorted[nGood:]

	params := make(map[string]float64, len(searchSpace))
	for _, def := range searchSpace {
		params[def.name] = suggestParam(def, good, bad, rng)
	}
	return params
}

func randomParams(rng *rand.Rand) map[string]float64 {
	params := make(map[string]float64, len(searchSpace))
	for _, def := range searchSpace {
		params[def.name] = def.fromUnit(rng.Float64())
	}
	return params
}

// suggestParam samples candidates from a Gaussian KDE over the good
// trials and keeps the one with the highest good/bad density ratio.
func suggestParam(def paramDef, good, bad []trial, rng *rand.Rand) float64 {
	goodVals := internalValues(def, good)
	badVals := internalValues(def, bad)

	bestVal := 0.0
	bestRatio := math.Inf(-1)
	for c := 0; c < tpeCandidates; c++ {
		// Draw around a random good observation.
		center := goodVals[rng.Intn(len(goodVals))]
		v := center + kdeBandwidth(def, len(goodVals))*rng.NormFloat64()
		v = clampUnitless(def, v)

		ratio := kdeDensity(goodVals, v, def) / math.Max(kdeDensity(badVals, v, def), 1e-12)
		if ratio > bestRatio {
			bestRatio = ratio
			bestVal = v
		}
	}
	return def.fromInternal(bestVal)
}

// internalValues maps trial values to the sampler's working scale.
func internalValues(def paramDef, trials []trial) []float64 {
	out := make([]float64, len(trials))
	for i, t := range trials {
		v := t.params[def.name]
		if def.logUnif {
			v = math.Log(v)
		}
		out[i] = v
	}
	return out
}

func kdeBandwidth(def paramDef, n int) float64 {
	lo, hi := def.internalBounds()
	bw := (hi - lo) / math.Sqrt(float64(n)+1)
	if bw < minKDEBandwidth {
		bw = minKDEBandwidth
	}
	return bw
}

func kdeDensity(values []float64, x float64, def paramDef) float64 {
	if len(values) == 0 {
		return 1e-12
	}
	bw := kdeBandwidth(def, len(values))
	var sum float64
	for _, v := range values {
		d := (x - v) / bw
		sum += math.Exp(-0.5 * d * d)
	}
	return sum / (float64(len(values)) * bw)
}

func clampUnitless(def paramDef, v float64) float64 {
	lo, hi := def.internalBounds()
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (d paramDef) internalBounds() (float64, float64) {
	if d.logUnif {
		return math.Log(d.lo), math.Log(d.hi)
	}
	return d.lo, d.hi
}

// fromUnit maps u in [0,1) onto the parameter's range.
func (d paramDef) fromUnit(u float64) float64 {
	lo, hi := d.internalBounds()
	return d.fromInternal(lo + u*(hi-lo))
}

// fromInternal maps a working-scale value back to the external scale.
func (d paramDef) fromInternal(v float64) float64 {
	if d.logUnif {
		v = math.Exp(v)
	}
	if v < d.lo {
		v = d.lo
	}
	if v > d.hi {
		v = d.hi
	}
	if d.integer {
		v = math.Round(v)
	}
	return v
}
