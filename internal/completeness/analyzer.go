// Package completeness scores an entity's data against the expected-field
// schema for its kind and reports prioritized gaps.
package completeness

import (
	"fmt"
	"sort"

	"github.com/entigraph/entigraph/internal/kg"
)

// DefaultMinConfidence is the minimum record confidence for a field to
// count as filled.
const DefaultMinConfidence = 0.5

// Analyzer computes completeness scores and gap reports. It is a pure
// function of the entity plus its dependent-record snapshot; it has no
// side effects and holds no mutable state.
type Analyzer struct {
	minConfidence float64
	schema        map[kg.EntityKind][]ExpectedField
}

// NewAnalyzer builds an Analyzer over the default expected-field tables.
// A non-positive minConfidence selects the default.
func NewAnalyzer(minConfidence float64) *Analyzer {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Analyzer{minConfidence: minConfidence, schema: expectedFields}
}

// WithSchema replaces the expected-field table for one kind. Used by tests
// and by deployments that tune the schema per vertical.
func (a *Analyzer) WithSchema(kind kg.EntityKind, fields []ExpectedField) *Analyzer {
	schema := make(map[kg.EntityKind][]ExpectedField, len(a.schema)+1)
	for k, v := range a.schema {
		schema[k] = v
	}
	schema[kind] = fields
	a.schema = schema
	return a
}

func (a *Analyzer) fields(kind kg.EntityKind) []ExpectedField {
	if fields, ok := a.schema[kind]; ok {
		return fields
	}
	return Fields(kind)
}

// Analyze scores the entity against its kind's expected fields. A field is
// filled only when its value is non-empty and at least one supporting
// record meets the confidence floor; low-confidence noise does not inflate
// the score. Gaps come back ordered by priority weight times findability,
// ties broken by field name so query generation is deterministic.
func (a *Analyzer) Analyze(entity kg.Entity, records []kg.Record) kg.GapReport {
	fields := a.fields(entity.Kind)

	confident := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Field == "" || rec.Confidence < a.minConfidence {
			continue
		}
		if rec.Kind == kg.RecordFact || rec.Kind == kg.RecordFieldValue {
			confident[rec.Field] = true
		}
	}

	var filledWeight, totalWeight float64
	var gaps []kg.Gap
	for _, field := range fields {
		weight := float64(field.Priority)
		totalWeight += weight
		if a.filled(entity, confident, field.Name) {
			filledWeight += weight
			continue
		}
		gaps = append(gaps, kg.Gap{
			Field:       field.Name,
			Priority:    field.Priority,
			Findability: field.Findability,
		})
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		ri, rj := gaps[i].Rank(), gaps[j].Rank()
		if ri != rj {
			return ri > rj
		}
		return gaps[i].Field < gaps[j].Field
	})

	score := 0.0
	if totalWeight > 0 {
		score = filledWeight / totalWeight
	}
	return kg.GapReport{
		EntityID:     entity.ID,
		Kind:         entity.Kind,
		Completeness: score,
		Gaps:         gaps,
	}
}

// filled requires both a non-empty value on the entity and a supporting
// record at or above the confidence floor.
func (a *Analyzer) filled(entity kg.Entity, confident map[string]bool, field string) bool {
	if entity.Data == nil {
		return false
	}
	v, ok := entity.Data[field]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString && s == "" {
		return false
	}
	return confident[field]
}

// MinConfidence reports the configured confidence floor.
func (a *Analyzer) MinConfidence() float64 {
	return a.minConfidence
}

// Describe renders a short human-readable summary of a report, used by the
// CLI output.
func Describe(report kg.GapReport) string {
	return fmt.Sprintf("completeness %.2f, %d gaps", report.Completeness, len(report.Gaps))
}
