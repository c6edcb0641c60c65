package classifier

// Stats aggregates redaction counters. A fresh value is produced per Redact
// call; callers accumulate across calls with Add.
type Stats struct {
	TotalRedactions int              `json:"total_redactions"`
	ByCategory      map[Category]int `json:"by_category"`
	BySensitivity   map[Tier]int     `json:"by_sensitivity"`
}

// NewStats returns zeroed counters with every tier pre-seeded.
func NewStats() Stats {
	s := Stats{
		ByCategory:    make(map[Category]int),
		BySensitivity: make(map[Tier]int, len(Tiers)),
	}
	for _, t := range Tiers {
		s.BySensitivity[t] = 0
	}
	return s
}

// Count records one redacted detection.
func (s *Stats) Count(d Detection) {
	s.ensure()
	s.TotalRedactions++
	s.ByCategory[d.Category]++
	s.BySensitivity[d.Sensitivity]++
}

// Add folds other into s.
func (s *Stats) Add(other Stats) {
	s.ensure()
	s.TotalRedactions += other.TotalRedactions
	for k, v := range other.ByCategory {
		s.ByCategory[k] += v
	}
	for k, v := range other.BySensitivity {
		s.BySensitivity[k] += v
	}
}

// Clone returns a deep copy of s.
func (s Stats) Clone() Stats {
	out := NewStats()
	out.Add(s)
	return out
}

// CategoriesInOrder returns the categories with a non-zero count, in catalog
// order, so printed summaries are reproducible.
func (s Stats) CategoriesInOrder() []Category {
	var out []Category
	for _, c := range AllCategories {
		if s.ByCategory[c] > 0 {
			out = append(out, c)
		}
	}
	return out
}

func (s *Stats) ensure() {
	if s.ByCategory == nil {
		s.ByCategory = make(map[Category]int)
	}
	if s.BySensitivity == nil {
		s.BySensitivity = make(map[Tier]int, len(Tiers))
		for _, t := range Tiers {
			s.BySensitivity[t] = 0
		}
	}
}
