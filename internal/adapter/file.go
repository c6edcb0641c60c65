package adapter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	piiotel "github.com/dativo-io/piiredact/internal/otel"
	"github.com/dativo-io/piiredact/internal/policy"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiredact/internal/adapter")

// Options controls RedactFile.
type Options struct {
	Format  Format
	Workers int
}

// RedactFile redacts the file at inPath into outPath. The output is written
// to a temporary file next to outPath and renamed into place only on
// success, so a failed run never leaves a partial output behind.
func RedactFile(ctx context.Context, p Processor, res policy.Resolution, inPath, outPath string, opts Options) (Summary, error) {
	format := ResolveFormat(opts.Format, inPath)

	ctx, span := tracer.Start(ctx, "adapter.redact_file")
	defer span.End()
	span.SetAttributes(
		attribute.String("adapter.format", string(format)),
		attribute.String("pii.sector", res.Sector),
	)

	in, err := os.Open(inPath)
	if err != nil {
		return Summary{Format: format}, fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	log.Info().
		Str("input", filepath.Base(inPath)).
		Str("format", string(format)).
		Str("sector", res.Sector).
		Func(piiotel.LogTraceFields(ctx)).
		Msg("redaction_started")

	var sum Summary
	err = WriteFileAtomic(outPath, func(w io.Writer) error {
		var err error
		switch format {
		case FormatCSV:
			sum, err = RedactCSV(ctx, p, res, in, w, opts.Workers)
		case FormatJSON:
			sum, err = RedactJSON(ctx, p, res, in, w)
		case FormatText:
			sum, err = RedactText(ctx, p, res, in, w)
		default:
			err = fmt.Errorf("unsupported format %q", format)
		}
		return err
	})
	if err != nil {
		return sum, err
	}

	span.SetAttributes(attribute.Int("pii.redaction_count", sum.Stats.TotalRedactions))
	log.Info().
		Str("output", filepath.Base(outPath)).
		Int("units", sum.Units).
		Int("total_redactions", sum.Stats.TotalRedactions).
		Func(piiotel.LogTraceFields(ctx)).
		Msg("redaction_completed")
	return sum, nil
}

// WriteFileAtomic writes path through a temporary file in the same
// directory and renames it into place once write succeeds.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp output: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := write(tmp); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("setting output permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replacing output: %w", err)
	}
	return nil
}
