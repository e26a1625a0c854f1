package manager

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

// IntegrityIssue is one finding surfaced by VerifyDataIntegrity.
type IntegrityIssue struct {
	EntityType domain.EntityType `json:"entity_type"`
	Kind       string            `json:"kind"`
	Detail     string            `json:"detail"`
	Count      int64             `json:"count"`
}

// IntegrityStats carries the raw counts VerifyDataIntegrity computed, so
// callers can render a report even when is_healthy is true.
type IntegrityStats struct {
	EntityType        domain.EntityType `json:"entity_type"`
	CanonicalCount    int64             `json:"canonical_count"`
	RawDistinctCount  int64             `json:"raw_distinct_count"`
	MissingSourcesCnt int64             `json:"missing_sources_count"`
}

// IntegrityReport is the structured, non-repairing report an integrity
// check returns.
type IntegrityReport struct {
	Issues    []IntegrityIssue `json:"issues"`
	Stats     []IntegrityStats `json:"stats"`
	IsHealthy bool             `json:"is_healthy"`
}

var checkedEntityTypes = []domain.EntityType{
	domain.EntityContact, domain.EntityAccount, domain.EntityOpportunity,
	domain.EntityActivity, domain.EntityUser,
}

// VerifyDataIntegrity checks (a) canonical entities with empty/missing
// `sources` — every canonical entity must carry at least one SourceRef —
// and (b) canonical count vs. distinct-source-id count in the newest Raw
// snapshot for a given source. It never repairs; it only reports.
func (m *Manager) VerifyDataIntegrity(ctx context.Context, entityType domain.EntityType, source string) (*IntegrityReport, error) {
	types := checkedEntityTypes
	if entityType != "" {
		if !entityType.Valid() {
			return nil, errors.ErrValidation("unknown entity type: " + string(entityType))
		}
		types = []domain.EntityType{entityType}
	}

	report := &IntegrityReport{IsHealthy: true}
	for _, t := range types {
		coll := m.store.Collection(t.CollectionName())

		canonicalCount, err := coll.CountDocuments(ctx, bson.M{})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "integrity check: canonical count failed")
		}

		missingSources, err := coll.CountDocuments(ctx, bson.M{
			"$or": []bson.M{
				{"sources": bson.M{"$exists": false}},
				{"sources": bson.M{"$size": 0}},
			},
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "integrity check: missing sources count failed")
		}
		if missingSources > 0 {
			report.IsHealthy = false
			report.Issues = append(report.Issues, IntegrityIssue{
				EntityType: t, Kind: "missing_sources",
				Detail: "canonical entities with no SourceRef",
				Count:  missingSources,
			})
		}

		stat := IntegrityStats{EntityType: t, CanonicalCount: canonicalCount, MissingSourcesCnt: missingSources}

		if source != "" {
			distinct, err := m.raw.DistinctSourceIDCount(ctx, source, t)
			if err != nil {
				return nil, err
			}
			stat.RawDistinctCount = distinct
			if distinct != canonicalCount {
				report.IsHealthy = false
				report.Issues = append(report.Issues, IntegrityIssue{
					EntityType: t, Kind: "canonical_raw_count_mismatch",
					Detail: "canonical count does not match distinct source-id count in the newest raw snapshot",
					Count:  canonicalCount - distinct,
				})
			}
		}

		report.Stats = append(report.Stats, stat)
	}

	return report, nil
}
