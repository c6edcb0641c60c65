package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	piiotel "github.com/dativo-io/piiredact/internal/otel"
	"github.com/dativo-io/piiredact/patterns"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiredact/internal/config")

// SectorConfig is one entry of the sectors mapping.
type SectorConfig struct {
	StrictMode         bool     `yaml:"strict_mode" json:"strict_mode"`
	AdditionalPatterns []string `yaml:"additional_patterns" json:"additional_patterns"`
}

// RedactionConfig is the user-facing redaction configuration after merging
// over the embedded defaults.
type RedactionConfig struct {
	RedactionChar     string                  `yaml:"redaction_char" json:"redaction_char"`
	PreserveFormat    bool                    `yaml:"preserve_format" json:"preserve_format"`
	LogRedactions     bool                    `yaml:"log_redactions" json:"log_redactions"`
	HashOriginal      bool                    `yaml:"hash_original" json:"hash_original"`
	ScanAllCategories bool                    `yaml:"scan_all_categories" json:"scan_all_categories"`
	Sectors           map[string]SectorConfig `yaml:"sectors" json:"sectors"`
}

// redactionSchema validates a user redaction config. Unknown top-level keys
// are allowed and ignored.
const redactionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "piiredact redaction configuration",
  "type": "object",
  "additionalProperties": true,
  "properties": {
    "redaction_char": {"type": "string", "minLength": 1},
    "preserve_format": {"type": "boolean"},
    "log_redactions": {"type": "boolean"},
    "hash_original": {"type": "boolean"},
    "scan_all_categories": {"type": "boolean"},
    "sectors": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "strict_mode": {"type": "boolean"},
          "additional_patterns": {"type": "array", "items": {"type": "string", "minLength": 1}}
        }
      }
    }
  }
}`

// DefaultRedactionConfig returns the embedded defaults.
func DefaultRedactionConfig() (*RedactionConfig, error) {
	return ParseRedactionConfig(nil)
}

// LoadRedactionConfig reads a JSON or YAML redaction config from path and
// merges it over the defaults. An empty path yields the defaults. A file that
// cannot be read, parsed or validated is an error.
func LoadRedactionConfig(ctx context.Context, path string) (*RedactionConfig, error) {
	_, span := tracer.Start(ctx, "config.load_redaction")
	defer span.End()

	if path == "" {
		return DefaultRedactionConfig()
	}
	span.SetAttributes(attribute.String("config.path", filepath.Base(path)))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading redaction config %s: %w", path, err)
	}
	cfg, err := ParseRedactionConfig(data)
	if err != nil {
		return nil, fmt.Errorf("redaction config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseRedactionConfig validates user (JSON or YAML) and shallow-merges it
// over the defaults: every top-level key present in user replaces the default
// value for that key wholesale. Nil or blank user yields the defaults.
func ParseRedactionConfig(user []byte) (*RedactionConfig, error) {
	merged, err := decodeDocument(patterns.DefaultsYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if strings.TrimSpace(string(user)) != "" {
		overlay, err := decodeDocument(user)
		if err != nil {
			return nil, err
		}
		if err := validateRedactionDocument(overlay); err != nil {
			return nil, err
		}
		for k, v := range overlay {
			merged[k] = v
		}
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding merged config: %w", err)
	}
	var cfg RedactionConfig
	if err := yaml.Unmarshal(out, &cfg); err != nil {
		return nil, fmt.Errorf("decoding merged config: %w", err)
	}
	if cfg.Sectors == nil {
		cfg.Sectors = map[string]SectorConfig{}
	}
	return &cfg, nil
}

// decodeDocument parses JSON or YAML (JSON is valid YAML) into a top-level
// mapping.
func decodeDocument(data []byte) (map[string]interface{}, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if raw == nil {
		return map[string]interface{}{}, nil
	}
	doc, ok := normalizeYAML(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("parsing config: top level must be a mapping")
	}
	return doc, nil
}

func validateRedactionDocument(doc map[string]interface{}) error {
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("converting config to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(redactionSchema),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var b strings.Builder
		for _, verr := range result.Errors() {
			fmt.Fprintf(&b, "- %s\n", verr)
		}
		return fmt.Errorf("schema validation errors:\n%s", b.String())
	}
	return nil
}

// normalizeYAML converts map[interface{}]interface{} nodes to
// map[string]interface{} so the tree can be marshalled to JSON.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[k] = normalizeYAML(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(v)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}
