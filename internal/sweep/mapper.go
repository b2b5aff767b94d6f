package sweep

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"gridsweep/internal/engine"
	"gridsweep/internal/grid"
	"gridsweep/internal/result"
)

// Mapper converts a task payload into an outcome. Returning an error marks
// the point as failed.
type Mapper func(*engine.Payload) (result.Outcome, error)

// ErrPayload is wrapped by mapping errors reported by the simulation itself.
var ErrPayload = errors.New("simulation reported an error")

// JSONMapper decodes payloads shaped like {"<objective>": number}. Objective
// names may be dotted paths into nested objects; null maps to NaN. A payload
// carrying an "error" member is a failure.
func JSONMapper(objectives []grid.Objective) Mapper {
	return func(p *engine.Payload) (result.Outcome, error) {
		var doc map[string]any
		if err := p.Decode(&doc); err != nil {
			return nil, err
		}
		if msg, ok := doc["error"]; ok && msg != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, msg)
		}

		out := make(result.Outcome, len(objectives))
		for i, obj := range objectives {
			v, ok := lookup(doc, obj.Name)
			if !ok {
				return nil, fmt.Errorf("objective %s missing from payload", obj.Name)
			}
			switch n := v.(type) {
			case nil:
				out[i] = math.NaN()
			case float64:
				out[i] = n
			case json.Number:
				f, err := n.Float64()
				if err != nil {
					return nil, fmt.Errorf("objective %s: %w", obj.Name, err)
				}
				out[i] = f
			default:
				return nil, fmt.Errorf("objective %s: expected number, got %T", obj.Name, v)
			}
		}
		return out, nil
	}
}

func lookup(doc map[string]any, path string) (any, bool) {
	if v, ok := doc[path]; ok {
		return v, true
	}
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
