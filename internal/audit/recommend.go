package audit

import "github.com/dativo-io/piiredact/internal/classifier"

// Handling recommendations, in the order Recommend emits them.
const (
	RecommendL1       = "🔴 L1 Restricted data detected: Implement strongest encryption, access controls, and audit logging"
	RecommendL2       = "🟡 L2 Confidential data detected: Use encryption and role-based access controls"
	RecommendVolume   = "High volume of PII detected: Consider automated redaction pipeline for future data processing"
	RecommendEmail    = "Multiple email addresses detected: Review email handling policies for AI training data"
	RecommendStanding = "Regular PII audits recommended for all AI training datasets"
)

const (
	highVolumeThreshold = 100
	manyEmailsThreshold = 10
)

// Recommend derives handling advice from redaction stats. The standing audit
// reminder is always present and always last.
func Recommend(stats classifier.Stats) []string {
	var out []string
	if stats.BySensitivity[classifier.TierL1] > 0 {
		out = append(out, RecommendL1)
	}
	if stats.BySensitivity[classifier.TierL2] > 0 {
		out = append(out, RecommendL2)
	}
	if stats.TotalRedactions > highVolumeThreshold {
		out = append(out, RecommendVolume)
	}
	if stats.ByCategory[classifier.CategoryEmail] > manyEmailsThreshold {
		out = append(out, RecommendEmail)
	}
	return append(out, RecommendStanding)
}
