package handlers

import (
	"encoding/json"
	"math"
	"net/http"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// nullable maps NaN and ±Inf to nil, since encoding/json rejects them
func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v := v
		out[i] = &v
	}
	return out
}

func nullableSeries(series map[string][]float64) map[string][]*float64 {
	out := make(map[string][]*float64, len(series))
	for name, values := range series {
		out[name] = nullable(values)
	}
	return out
}
