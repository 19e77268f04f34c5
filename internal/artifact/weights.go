package artifact

import (
	"encoding/json"
	"fmt"
	"math"
)

// document is the on-disk weight format: {"weights": [...]}.
type document struct {
	Weights []float64 `json:"weights"`
}

// EncodeWeights renders a weight vector as a weight document.
func EncodeWeights(w []float64) ([]byte, error) {
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("weight %d is not finite", i)
		}
	}

	if w == nil {
		w = []float64{}
	}

	return json.Marshal(document{Weights: w})
}

// DecodeWeights parses a weight document.
func DecodeWeights(data []byte) ([]float64, error) {
	var doc document

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if doc.Weights == nil {
		return nil, fmt.Errorf("%w: missing weights field", ErrMalformed)
	}

	return doc.Weights, nil
}
