// Package policy maps sector identifiers to the PII categories scanned for
// that sector. Sector policies are built once from the redaction config and
// are read-only afterwards.
package policy

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/config"
)

// GeneralSector is the fallback for empty or unknown sector ids. It adds no
// categories beyond the universal set.
const GeneralSector = "general"

// Sector is one resolved sector policy.
type Sector struct {
	ID     string                `json:"id"`
	Strict bool                  `json:"strict"`
	Extra  []classifier.Category `json:"extra_categories"`
}

// Resolution is the outcome of resolving a sector id for one request.
// Strict is advisory: it is reported alongside results but does not change
// matching.
type Resolution struct {
	Requested  string                `json:"requested"`
	Sector     string                `json:"sector"`
	Strict     bool                  `json:"strict"`
	Categories []classifier.Category `json:"categories"`
}

// Fallback reports whether the requested sector was unknown and resolved as
// general.
func (r Resolution) Fallback() bool {
	return r.Requested != r.Sector
}

// Policies holds every configured sector.
type Policies struct {
	registry *classifier.Registry
	sectors  map[string]Sector
	scanAll  bool
}

// New builds sector policies from cfg. Unknown category ids listed in a
// sector are logged and ignored. A general sector is always present; cfg may
// override it.
func New(registry *classifier.Registry, cfg *config.RedactionConfig) *Policies {
	p := &Policies{
		registry: registry,
		sectors:  map[string]Sector{GeneralSector: {ID: GeneralSector}},
		scanAll:  cfg.ScanAllCategories,
	}
	for id, sc := range cfg.Sectors {
		s := Sector{ID: id, Strict: sc.StrictMode}
		seen := make(map[classifier.Category]bool, len(sc.AdditionalPatterns))
		for _, raw := range sc.AdditionalPatterns {
			c := classifier.Category(raw)
			if _, ok := registry.Get(c); !ok {
				log.Warn().Str("sector", id).Str("category", raw).Msg("sector_unknown_category_ignored")
				continue
			}
			if seen[c] {
				continue
			}
			seen[c] = true
			s.Extra = append(s.Extra, c)
		}
		p.sectors[id] = s
	}
	return p
}

// ScanAll reports whether every category is scanned regardless of sector.
func (p *Policies) ScanAll() bool {
	return p.scanAll
}

// Sectors returns every sector sorted by id.
func (p *Policies) Sectors() []Sector {
	out := make([]Sector, 0, len(p.sectors))
	for _, s := range p.sectors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns the sector registered under id.
func (p *Policies) Lookup(id string) (Sector, bool) {
	s, ok := p.sectors[id]
	return s, ok
}

// Resolve returns the categories to scan for sectorID: the universal set
// plus the sector's extra categories, in catalog order. Unknown or empty ids
// resolve as a bare general sector with only the universal set, even when
// the config gives "general" extra categories; those apply only when
// "general" is requested by name. It never fails and has no side effects.
func (p *Policies) Resolve(sectorID string) Resolution {
	s, ok := p.sectors[sectorID]
	if !ok {
		s = Sector{ID: GeneralSector}
	}
	return Resolution{
		Requested:  sectorID,
		Sector:     s.ID,
		Strict:     s.Strict,
		Categories: p.categoriesFor(s),
	}
}

// ResolveCategories is Resolve without the sector metadata.
func (p *Policies) ResolveCategories(sectorID string) []classifier.Category {
	return p.Resolve(sectorID).Categories
}

func (p *Policies) categoriesFor(s Sector) []classifier.Category {
	if p.scanAll {
		return p.registry.Categories()
	}
	extra := make(map[classifier.Category]bool, len(s.Extra))
	for _, c := range s.Extra {
		extra[c] = true
	}
	var out []classifier.Category
	for _, def := range p.registry.Definitions() {
		if def.Universal || extra[def.ID] {
			out = append(out, def.ID)
		}
	}
	return out
}
