package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePtr(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	ok := 42.5

	assert.Nil(t, sanitizePtr(nil))
	assert.Nil(t, sanitizePtr(&nan))
	assert.Nil(t, sanitizePtr(&inf))
	assert.Equal(t, &ok, sanitizePtr(&ok))
}

func TestSanitizeFeatureMapNullsNonFinite(t *testing.T) {
	nan := math.NaN()
	v := 1.5

	out := sanitizeFeatureMap(map[string]*float64{
		"good":    &v,
		"bad":     &nan,
		"missing": nil,
	})

	assert.Len(t, out, 3)
	assert.Equal(t, &v, out["good"])
	assert.Nil(t, out["bad"])
	assert.Nil(t, out["missing"])
	assert.Nil(t, sanitizeFeatureMap(nil))
}
