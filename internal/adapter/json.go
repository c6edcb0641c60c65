package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dativo-io/piiredact/internal/policy"
)

// RedactJSON decodes one JSON document, redacts its string leaves and writes
// it back indented with two spaces. Numbers keep their original text.
func RedactJSON(ctx context.Context, p Processor, res policy.Resolution, r io.Reader, w io.Writer) (Summary, error) {
	sum := newSummary(FormatJSON)

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return sum, fmt.Errorf("decoding JSON input: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return sum, fmt.Errorf("decoding JSON input: unexpected data after top-level value")
	}

	redacted, stats, units := RedactTree(ctx, p, res, doc)
	sum.Stats.Add(stats)
	sum.Units = units

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(redacted); err != nil {
		return sum, fmt.Errorf("encoding JSON output: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return sum, fmt.Errorf("writing JSON output: %w", err)
	}
	return sum, nil
}
