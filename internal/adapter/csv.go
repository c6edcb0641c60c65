package adapter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/policy"
)

// RedactCSV redacts every non-empty cell of every data row. The header row
// is copied unchanged. Rows are processed by up to workers goroutines; the
// output keeps the input row order.
func RedactCSV(ctx context.Context, p Processor, res policy.Resolution, r io.Reader, w io.Writer, workers int) (Summary, error) {
	sum := newSummary(FormatCSV)

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return sum, nil
	}
	if err != nil {
		return sum, fmt.Errorf("reading CSV header: %w", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return sum, fmt.Errorf("reading CSV rows: %w", err)
	}

	out := make([][]string, len(rows))
	rowStats := make([]classifier.Stats, len(rows))
	rowUnits := make([]int, len(rows))

	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stats := classifier.NewStats()
			cells := make([]string, len(row))
			for j, cell := range row {
				if cell == "" {
					continue
				}
				redacted, s := p.ProcessResolved(gctx, cell, res)
				cells[j] = redacted
				stats.Add(s)
				rowUnits[i]++
			}
			out[i] = cells
			rowStats[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, fmt.Errorf("redacting CSV rows: %w", err)
	}

	for i := range rows {
		sum.Stats.Add(rowStats[i])
		sum.Units += rowUnits[i]
	}
	sum.RowsProcessed = len(rows)
	sum.ColumnsProcessed = len(header)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return sum, fmt.Errorf("writing CSV header: %w", err)
	}
	if err := cw.WriteAll(out); err != nil {
		return sum, fmt.Errorf("writing CSV rows: %w", err)
	}
	return sum, nil
}
