package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	piiotel "github.com/dativo-io/piiredact/internal/otel"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiredact/internal/audit")

// ErrNotFound is returned when a report ID is not in the store.
var ErrNotFound = errors.New("report not found")

// Store persists HMAC-signed reports in SQLite.
type Store struct {
	db     *sqlx.DB
	signer *Signer
}

// Index is the summary row shown by listings.
type Index struct {
	ID              string    `json:"id" db:"id"`
	GeneratedAt     time.Time `json:"generated_at" db:"generated_at"`
	Sector          string    `json:"sector" db:"sector"`
	Input           string    `json:"input,omitempty" db:"input"`
	TotalRedactions int       `json:"total_redactions" db:"total_redactions"`
}

// NewStore opens (or creates) the report database at dbPath.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening report database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		generated_at TIMESTAMP NOT NULL,
		sector TEXT NOT NULL,
		input TEXT NOT NULL DEFAULT '',
		total_redactions INTEGER NOT NULL,
		report_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(generated_at);
	CREATE INDEX IF NOT EXISTS idx_reports_sector ON reports(sector);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating report schema: %w", err)
	}

	return &Store{db: db, signer: signer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Signer returns the signer used for stored reports.
func (s *Store) Signer() *Signer {
	return s.signer
}

// Save signs r and stores it. r.Signature is set on success.
func (s *Store) Save(ctx context.Context, r *Report) error {
	ctx, span := tracer.Start(ctx, "audit.store",
		trace.WithAttributes(
			attribute.String("report.id", r.ID),
			attribute.String("report.sector", r.Sector),
			attribute.Int("report.total_redactions", r.Statistics.TotalRedactions),
		))
	defer span.End()

	if err := r.SignWith(s.signer); err != nil {
		return err
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	query := `INSERT INTO reports (id, generated_at, sector, input, total_redactions, report_json, signature)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Metadata.GeneratedAt, r.Sector, r.Input,
		r.Statistics.TotalRedactions, string(body), r.Signature,
	)
	if err != nil {
		return fmt.Errorf("storing report: %w", err)
	}
	return nil
}

// Get retrieves a report by ID.
func (s *Store) Get(ctx context.Context, id string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "audit.get",
		trace.WithAttributes(attribute.String("report.id", id)))
	defer span.End()

	var body string
	err := s.db.GetContext(ctx, &body, `SELECT report_json FROM reports WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying report: %w", err)
	}

	var r Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("unmarshaling report: %w", err)
	}
	return &r, nil
}

// List returns index rows, newest first. An empty sector matches all
// sectors; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, sector string, limit int) ([]Index, error) {
	ctx, span := tracer.Start(ctx, "audit.list",
		trace.WithAttributes(attribute.String("report.sector", sector)))
	defer span.End()

	query := `SELECT id, generated_at, sector, input, total_redactions FROM reports WHERE 1=1`
	args := []any{}
	if sector != "" {
		query += ` AND sector = ?`
		args = append(args, sector)
	}
	query += ` ORDER BY generated_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var out []Index
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	span.SetAttributes(attribute.Int("report.count", len(out)))
	return out, nil
}

// Verify recomputes the signature of a stored report.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "audit.verify",
		trace.WithAttributes(attribute.String("report.id", id)))
	defer span.End()

	r, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	ok, err := r.VerifyWith(s.signer)
	span.SetAttributes(attribute.Bool("report.valid", ok))
	return ok, err
}

// Purge deletes reports generated before cutoff and returns how many were
// removed.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "audit.purge",
		trace.WithAttributes(attribute.String("report.cutoff", cutoff.UTC().Format(time.RFC3339))))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE generated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging reports: %w", err)
	}
	span.SetAttributes(attribute.Int64("report.purged", n))
	return n, nil
}
