// Package planner selects the crawl strategy for an entity and generates
// the search queries for one cycle. It is a pure decision layer: no network
// I/O, no persisted state, mode recomputed fresh on every call.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entigraph/entigraph/internal/kg"
	"github.com/entigraph/entigraph/internal/learning"
)

// MaxQueries caps the number of queries a plan may carry.
const MaxQueries = 10

// DefaultTopGaps is how many prioritized gaps feed gap-filling queries.
const DefaultTopGaps = 5

// Planner builds crawl plans from gap reports and learned source patterns.
type Planner struct {
	scorer  *learning.Scorer
	topGaps int
}

// New builds a Planner. The scorer may be nil, in which case plans skip
// pattern hints.
func New(scorer *learning.Scorer, topGaps int) *Planner {
	if topGaps <= 0 {
		topGaps = DefaultTopGaps
	}
	return &Planner{scorer: scorer, topGaps: topGaps}
}

// Input captures what the planner needs to decide a mode.
type Input struct {
	Name   string
	Kind   kg.EntityKind
	Exists bool
	Report kg.GapReport
	// Expansion requests relationship discovery; it wins over gap filling.
	Expansion bool
	// RelationTypes seen on the entity, used to seed expansion queries.
	RelationTypes []string
}

// Plan picks DISCOVERY, GAP_FILLING, or EXPANSION and emits prioritized
// queries for the fetch collaborator.
func (p *Planner) Plan(in Input) kg.CrawlPlan {
	switch {
	case !in.Exists:
		return p.discoveryPlan(in)
	case in.Expansion:
		return p.expansionPlan(in)
	case in.Report.Completeness < 1.0:
		return p.gapFillingPlan(in)
	default:
		// Nothing missing; fall back to relationship discovery so a cycle
		// on a complete entity still makes progress.
		return p.expansionPlan(in)
	}
}

func (p *Planner) discoveryPlan(in Input) kg.CrawlPlan {
	templates := discoveryTemplates(in.Kind)
	queries := make([]kg.Query, 0, len(templates))
	for i, tpl := range templates {
		queries = append(queries, kg.Query{
			Text:     fmt.Sprintf(tpl, in.Name),
			Priority: float64(len(templates) - i),
		})
	}
	return kg.CrawlPlan{
		Mode:     kg.ModeDiscovery,
		Queries:  capQueries(queries),
		Strategy: "broad kind-specific discovery",
	}
}

func (p *Planner) gapFillingPlan(in Input) kg.CrawlPlan {
	gaps := in.Report.Gaps
	if len(gaps) > p.topGaps {
		gaps = gaps[:p.topGaps]
	}

	var hint string
	if p.scorer != nil {
		if patterns := p.scorer.SuggestedPatterns(in.Kind, 1); len(patterns) > 0 && patterns[0].Confidence >= 0.5 {
			hint = patternHints[patterns[0].PageType]
		}
	}

	queries := make([]kg.Query, 0, len(gaps))
	for _, gap := range gaps {
		text := fmt.Sprintf("\"%s\" %s", in.Name, gapTerms(gap.Field))
		if hint != "" {
			text += " " + hint
		}
		queries = append(queries, kg.Query{
			Text:     text,
			Priority: gap.Rank(),
			Field:    gap.Field,
		})
	}
	return kg.CrawlPlan{
		Mode:     kg.ModeGapFilling,
		Queries:  capQueries(queries),
		Strategy: fmt.Sprintf("fill top %d gaps", len(queries)),
	}
}

func (p *Planner) expansionPlan(in Input) kg.CrawlPlan {
	terms := expansionTerms(in.Kind, in.RelationTypes)
	queries := make([]kg.Query, 0, len(terms))
	for i, term := range terms {
		queries = append(queries, kg.Query{
			Text:     fmt.Sprintf("\"%s\" %s", in.Name, term),
			Priority: float64(len(terms) - i),
		})
	}
	return kg.CrawlPlan{
		Mode:     kg.ModeExpansion,
		Queries:  capQueries(queries),
		Strategy: "relationship discovery",
	}
}

// capQueries sorts by priority descending (ties by text for determinism)
// and truncates to the plan limit.
func capQueries(queries []kg.Query) []kg.Query {
	sort.SliceStable(queries, func(i, j int) bool {
		if queries[i].Priority != queries[j].Priority {
			return queries[i].Priority > queries[j].Priority
		}
		return queries[i].Text < queries[j].Text
	})
	if len(queries) > MaxQueries {
		queries = queries[:MaxQueries]
	}
	return queries
}

// gapTerms maps a schema field to search terms likely to surface it.
func gapTerms(field string) string {
	if terms, ok := fieldTerms[field]; ok {
		return terms
	}
	return strings.ReplaceAll(field, "_", " ")
}
