// Package patterns provides the embedded PII catalog and default redaction
// settings. The catalog is a closed set: internal/classifier rejects any
// category it does not know and any known category that is missing.
package patterns

import _ "embed"

//go:embed pii_catalog.yaml
var piiCatalogYAML []byte

//go:embed defaults.yaml
var defaultsYAML []byte

// PIICatalogYAML returns the embedded PII category definitions.
func PIICatalogYAML() []byte { return piiCatalogYAML }

// DefaultsYAML returns the embedded default redaction configuration.
func DefaultsYAML() []byte { return defaultsYAML }
