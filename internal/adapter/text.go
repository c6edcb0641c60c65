package adapter

import (
	"context"
	"fmt"
	"io"

	"github.com/dativo-io/piiredact/internal/policy"
)

// RedactText treats the whole input as a single text unit.
func RedactText(ctx context.Context, p Processor, res policy.Resolution, r io.Reader, w io.Writer) (Summary, error) {
	sum := newSummary(FormatText)

	data, err := io.ReadAll(r)
	if err != nil {
		return sum, fmt.Errorf("reading text input: %w", err)
	}
	out, stats := p.ProcessResolved(ctx, string(data), res)
	sum.add(stats)

	if _, err := io.WriteString(w, out); err != nil {
		return sum, fmt.Errorf("writing text output: %w", err)
	}
	return sum, nil
}
