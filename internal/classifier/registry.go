package classifier

import (
	"fmt"
	"regexp"

	"github.com/dativo-io/piiredact/patterns"
)

// PatternDefinition is a compiled, immutable catalog entry.
type PatternDefinition struct {
	ID          Category
	Name        string
	Sensitivity Tier
	Replacement string
	Universal   bool
	rule        *regexp.Regexp
}

// FindAll returns the [start, end) byte offsets of every non-overlapping,
// leftmost-first match of the rule in text.
func (p *PatternDefinition) FindAll(text string) [][]int {
	return p.rule.FindAllStringIndex(text, -1)
}

// Rule returns the source of the compiled matching rule.
func (p *PatternDefinition) Rule() string {
	return p.rule.String()
}

// Registry holds the compiled catalog. It is built once and read-only
// afterwards, so it is safe for concurrent use.
type Registry struct {
	defs  []*PatternDefinition
	index map[Category]*PatternDefinition
}

// NewRegistry compiles the embedded catalog. Every rule is compiled eagerly;
// an invalid rule or a catalog that does not match the closed category set is
// a startup error.
func NewRegistry() (*Registry, error) {
	cf, err := ParseCatalog(patterns.PIICatalogYAML())
	if err != nil {
		return nil, fmt.Errorf("loading embedded catalog: %w", err)
	}
	return CompileCatalog(cf.Categories)
}

// MustNewRegistry is like NewRegistry but panics on error. The embedded
// catalog is expected to always compile.
func MustNewRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(fmt.Sprintf("classifier.NewRegistry: %v", err))
	}
	return r
}

// CompileCatalog validates entries against the closed category set and
// compiles each rule case-insensitively. The resulting registry follows
// AllCategories order regardless of entry order.
func CompileCatalog(entries []CategoryConfig) (*Registry, error) {
	index := make(map[Category]*PatternDefinition, len(entries))
	for _, e := range entries {
		if !e.ID.Known() {
			return nil, fmt.Errorf("unknown category %q in catalog", e.ID)
		}
		if _, dup := index[e.ID]; dup {
			return nil, fmt.Errorf("duplicate category %q in catalog", e.ID)
		}
		if e.Sensitivity.Rank() == 0 {
			return nil, fmt.Errorf("category %q: invalid sensitivity %q", e.ID, e.Sensitivity)
		}
		if e.Replacement == "" {
			return nil, fmt.Errorf("category %q: empty replacement template", e.ID)
		}
		rule, err := regexp.Compile("(?i)" + e.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling rule for category %q: %w", e.ID, err)
		}
		name := e.Name
		if name == "" {
			name = string(e.ID)
		}
		index[e.ID] = &PatternDefinition{
			ID:          e.ID,
			Name:        name,
			Sensitivity: e.Sensitivity,
			Replacement: e.Replacement,
			Universal:   e.Universal,
			rule:        rule,
		}
	}

	defs := make([]*PatternDefinition, 0, len(AllCategories))
	for _, c := range AllCategories {
		def, ok := index[c]
		if !ok {
			return nil, fmt.Errorf("category %q missing from catalog", c)
		}
		defs = append(defs, def)
	}
	return &Registry{defs: defs, index: index}, nil
}

// Get returns the definition for c.
func (r *Registry) Get(c Category) (*PatternDefinition, bool) {
	def, ok := r.index[c]
	return def, ok
}

// Definitions returns every definition in catalog order.
func (r *Registry) Definitions() []*PatternDefinition {
	out := make([]*PatternDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Universal returns the categories scanned for every sector, in catalog order.
func (r *Registry) Universal() []Category {
	var out []Category
	for _, d := range r.defs {
		if d.Universal {
			out = append(out, d.ID)
		}
	}
	return out
}

// Categories returns every category in catalog order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.ID
	}
	return out
}
