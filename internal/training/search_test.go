package training

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRespectsBounds(t *testing.T) {
	s := &Searcher{Trials: 30, Parallelism: 1, Seed: 7}

	var seen []map[string]float64
	_, err := s.Run(context.Background(), func(_ context.Context, params map[string]float64) (float64, error) {
		seen = append(seen, params)
		return params["lambda_l1"], nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 30)

	for _, params := range seen {
		for _, def := range searchSpace {
			v, ok := params[def.name]
			require.True(t, ok, "missing param %s", def.name)
			assert.GreaterOrEqual(t, v, def.lo, def.name)
			assert.LessOrEqual(t, v, def.hi, def.name)
			if def.integer {
				assert.Equal(t, math.Trunc(v), v, "%s must be integral", def.name)
			}
		}
	}
}

func TestSearchConvergesTowardsOptimum(t *testing.T) {
	// Objective minimised at learning_rate = 0.05, num_leaves = 31.
	objective := func(_ context.Context, p map[string]float64) (float64, error) {
		dLR := (p["learning_rate"] - 0.05) / 0.05
		dNL := (p["num_leaves"] - 31) / 31
		return dLR*dLR + dNL*dNL, nil
	}

	s := &Searcher{Trials: 50, Parallelism: 4, Seed: 99}
	best, err := s.Run(context.Background(), objective)
	require.NoError(t, err)

	score, err := objective(context.Background(), best.params)
	require.NoError(t, err)
	assert.Equal(t, best.score, score)
	assert.Less(t, best.score, 0.5, "search should beat a bad corner of the space")
}

func TestSearchDeterministicWithSeed(t *testing.T) {
	objective := func(_ context.Context, p map[string]float64) (float64, error) {
		return p["lambda_l2"], nil
	}

	s1 := &Searcher{Trials: 20, Parallelism: 1, Seed: 5}
	b1, err := s1.Run(context.Background(), objective)
	require.NoError(t, err)

	s2 := &Searcher{Trials: 20, Parallelism: 1, Seed: 5}
	b2, err := s2.Run(context.Background(), objective)
	require.NoError(t, err)

	assert.Equal(t, b1.score, b2.score)
	assert.Equal(t, b1.params, b2.params)
}

func TestSearchPropagatesObjectiveError(t *testing.T) {
	s := &Searcher{Trials: 10, Parallelism: 2, Seed: 1}
	_, err := s.Run(context.Background(), func(_ context.Context, _ map[string]float64) (float64, error) {
		return 0, assert.AnError
	})
	assert.Error(t, err)
}
