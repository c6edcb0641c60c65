// Package audit keeps the redaction audit trail: the in-memory log of
// substitutions, running statistics, handling recommendations, and signed
// reports persisted in SQLite.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dativo-io/piiredact/internal/classifier"
)

// Span is a half-open byte range. It serializes as "start-end".
type Span struct {
	Start int
	End   int
}

func (s Span) String() string {
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// MarshalText implements encoding.TextMarshaler.
func (s Span) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Span) UnmarshalText(b []byte) error {
	if _, err := fmt.Sscanf(string(b), "%d-%d", &s.Start, &s.End); err != nil {
		return fmt.Errorf("parsing span %q: %w", b, err)
	}
	return nil
}

// Entry records one substitution. It never holds the matched fragment; Hash
// is empty when audit hashing is disabled.
type Entry struct {
	Timestamp   time.Time           `json:"timestamp"`
	Category    classifier.Category `json:"type"`
	Name        string              `json:"name"`
	Sensitivity classifier.Tier     `json:"sensitivity"`
	Hash        string              `json:"hash"`
	Span        Span                `json:"position"`
}

// Log is an append-only list of entries owned by one engine. It implements
// classifier.Recorder and is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Record appends an entry for d stamped with the current wall-clock time.
func (l *Log) Record(_ context.Context, d classifier.Detection) {
	e := Entry{
		Category:    d.Category,
		Name:        d.Name,
		Sensitivity: d.Sensitivity,
		Hash:        d.Hash,
		Span:        Span{Start: d.Start, End: d.End},
	}
	l.mu.Lock()
	e.Timestamp = l.now().UTC()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Entries returns a copy of the current entries.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Drain returns every entry and clears the log in one step.
func (l *Log) Drain() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.entries
	l.entries = nil
	return out
}

// Restore puts previously drained entries back in front of anything
// recorded since the drain.
func (l *Log) Restore(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(append([]Entry(nil), entries...), l.entries...)
}

// Reset discards every entry.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Tally accumulates redaction statistics across calls. It is safe for
// concurrent use.
type Tally struct {
	mu    sync.Mutex
	stats classifier.Stats
	units int
}

// NewTally creates a zeroed tally.
func NewTally() *Tally {
	return &Tally{stats: classifier.NewStats()}
}

// Add folds the stats of one processed unit into the tally.
func (t *Tally) Add(s classifier.Stats) {
	t.mu.Lock()
	t.stats.Add(s)
	t.units++
	t.mu.Unlock()
}

// Snapshot returns a copy of the running stats and the number of units
// folded in.
func (t *Tally) Snapshot() (classifier.Stats, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.Clone(), t.units
}

// Drain returns the running stats and resets the tally.
func (t *Tally) Drain() (classifier.Stats, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, n := t.stats, t.units
	t.stats = classifier.NewStats()
	t.units = 0
	return s, n
}

// Restore folds previously drained stats and units back into the tally.
func (t *Tally) Restore(s classifier.Stats, units int) {
	t.mu.Lock()
	t.stats.Add(s)
	t.units += units
	t.mu.Unlock()
}
