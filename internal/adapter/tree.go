package adapter

import (
	"context"

	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/policy"
)

// RedactTree walks a decoded JSON value and redacts every string leaf
// independently. Object keys and non-string leaves (numbers, booleans, null)
// are copied unchanged; the input is not modified.
func RedactTree(ctx context.Context, p Processor, res policy.Resolution, v interface{}) (interface{}, classifier.Stats, int) {
	total := classifier.NewStats()
	units := 0

	var walk func(v interface{}) interface{}
	walk = func(v interface{}) interface{} {
		switch val := v.(type) {
		case map[string]interface{}:
			out := make(map[string]interface{}, len(val))
			for k, item := range val {
				out[k] = walk(item)
			}
			return out
		case []interface{}:
			out := make([]interface{}, len(val))
			for i, item := range val {
				out[i] = walk(item)
			}
			return out
		case string:
			redacted, stats := p.ProcessResolved(ctx, val, res)
			total.Add(stats)
			units++
			return redacted
		default:
			return v
		}
	}
	return walk(v), total, units
}
