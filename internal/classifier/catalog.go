package classifier

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Category identifies one PII category of the fixed catalog.
type Category string

// The closed set of categories. The embedded catalog must define each of
// them exactly once and nothing else.
const (
	CategorySSN           Category = "ssn"
	CategoryCreditCard    Category = "credit_card"
	CategoryPhone         Category = "phone"
	CategoryEmail         Category = "email"
	CategoryIPAddress     Category = "ip_address"
	CategoryDateOfBirth   Category = "date_of_birth"
	CategoryAddress       Category = "address"
	CategoryZipCode       Category = "zip_code"
	CategoryMedicalRecord Category = "medical_record"
	CategoryAccountNumber Category = "account_number"
	CategoryPatientID     Category = "patient_id"
	CategoryInvestmentID  Category = "investment_id"
	CategoryClientID      Category = "client_id"
	CategoryServiceTicket Category = "service_ticket"
)

// AllCategories lists the catalog in its canonical order. Detection, tie
// breaking and reporting all follow this order.
var AllCategories = []Category{
	CategorySSN,
	CategoryCreditCard,
	CategoryPhone,
	CategoryEmail,
	CategoryIPAddress,
	CategoryDateOfBirth,
	CategoryAddress,
	CategoryZipCode,
	CategoryMedicalRecord,
	CategoryAccountNumber,
	CategoryPatientID,
	CategoryInvestmentID,
	CategoryClientID,
	CategoryServiceTicket,
}

var categoryRank = func() map[Category]int {
	m := make(map[Category]int, len(AllCategories))
	for i, c := range AllCategories {
		m[c] = i
	}
	return m
}()

// Known reports whether c belongs to the catalog.
func (c Category) Known() bool {
	_, ok := categoryRank[c]
	return ok
}

// rank returns the catalog position of c; unknown categories sort last.
func (c Category) rank() int {
	if r, ok := categoryRank[c]; ok {
		return r
	}
	return len(AllCategories)
}

// Tier is a sensitivity classification. L1 is the most sensitive.
type Tier string

// Sensitivity tiers, most to least sensitive.
const (
	TierL1 Tier = "L1"
	TierL2 Tier = "L2"
	TierL3 Tier = "L3"
)

// Tiers lists every tier from most to least sensitive.
var Tiers = []Tier{TierL1, TierL2, TierL3}

// Rank returns 1 for L1, 2 for L2, 3 for L3 and 0 for anything else.
func (t Tier) Rank() int {
	switch t {
	case TierL1:
		return 1
	case TierL2:
		return 2
	case TierL3:
		return 3
	default:
		return 0
	}
}

// Label is the human-readable handling class of the tier.
func (t Tier) Label() string {
	switch t {
	case TierL1:
		return "Restricted"
	case TierL2:
		return "Confidential"
	case TierL3:
		return "Internal"
	default:
		return "Unknown"
	}
}

// CatalogFile is the top-level YAML structure of the embedded catalog.
type CatalogFile struct {
	Categories []CategoryConfig `yaml:"categories"`
}

// CategoryConfig is one catalog entry before compilation.
type CategoryConfig struct {
	ID          Category `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Sensitivity Tier     `yaml:"sensitivity" json:"sensitivity"`
	Regex       string   `yaml:"regex" json:"regex"`
	Replacement string   `yaml:"replacement" json:"replacement"`
	Universal   bool     `yaml:"universal,omitempty" json:"universal,omitempty"`
}

// ParseCatalog parses catalog YAML bytes.
func ParseCatalog(data []byte) (*CatalogFile, error) {
	var cf CatalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing catalog YAML: %w", err)
	}
	return &cf, nil
}
