package store

import "math"

// isFinite reports whether v is a usable number.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// sanitizePtr maps NaN/Inf values to nil so they persist as NULL.
func sanitizePtr(v *float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	return v
}

// sanitizeFeatureMap returns a copy with non-finite values nulled.
func sanitizeFeatureMap(features map[string]*float64) map[string]*float64 {
	if features == nil {
		return nil
	}
	out := make(map[string]*float64, len(features))
	for k, v := range features {
		out[k] = sanitizePtr(v)
	}
	return out
}
