package consolidation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/kg"
)

// Candidate is a possible duplicate of a name being looked up.
type Candidate struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Method   string  `json:"method"` // "string" or "embedding"
}

// FindCandidates returns entities that look like duplicates of the given
// name, best match first. The string path is the fast path; when an
// embedder is wired, entities of the same kind are also compared by name
// embedding under the stricter embedding threshold. Already-merged
// entities never come back as candidates.
func (e *Engine) FindCandidates(ctx context.Context, name string, kind kg.EntityKind) ([]Candidate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("candidate search: empty name")
	}

	byID := make(map[string]Candidate)

	matches, err := e.store.SearchEntities(ctx, coreToken(name), kind, 50)
	if err != nil {
		return nil, fmt.Errorf("candidate search: %w", err)
	}
	for _, entity := range matches {
		if entity.Merged() {
			continue
		}
		score := nameSimilarity(name, entity.Name)
		if score >= e.cfg.StringThreshold {
			byID[entity.ID] = Candidate{EntityID: entity.ID, Name: entity.Name, Score: score, Method: "string"}
		}
	}

	if e.embedder != nil {
		if err := e.embeddingCandidates(ctx, name, kind, byID); err != nil {
			// Embedding search is best effort; fall back to string matches.
			e.logger.Warn("embedding candidate search failed", zap.Error(err))
		}
	}

	out := make([]Candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

func (e *Engine) embeddingCandidates(
	ctx context.Context,
	name string,
	kind kg.EntityKind,
	byID map[string]Candidate,
) error {
	queryVec, err := e.embedder.Embed(ctx, name)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	entities, err := e.store.ListEntities(ctx, kind, 500, 0)
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	for _, entity := range entities {
		if entity.Merged() {
			continue
		}
		if _, already := byID[entity.ID]; already {
			continue
		}
		vec, err := e.embedder.Embed(ctx, entity.Name)
		if err != nil {
			continue
		}
		score := e.embedder.Similarity(queryVec, vec)
		if score >= e.cfg.EmbeddingThreshold {
			byID[entity.ID] = Candidate{EntityID: entity.ID, Name: entity.Name, Score: score, Method: "embedding"}
		}
	}
	return nil
}

// corporate suffixes stripped before comparing names.
var nameSuffixes = []string{
	"inc", "inc.", "corp", "corp.", "corporation", "llc", "ltd", "ltd.",
	"limited", "co", "co.", "company", "gmbh", "plc", "sa", "ag",
}

func normalizeName(name string) []string {
	name = strings.ToLower(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '(', ')', '"', '\'':
			return -1
		}
		return r
	}, name)
	tokens := strings.Fields(name)
	out := tokens[:0]
	for _, tok := range tokens {
		suffix := false
		for _, s := range nameSuffixes {
			if tok == s {
				suffix = true
				break
			}
		}
		if !suffix {
			out = append(out, tok)
		}
	}
	return out
}

// coreToken picks the longest normalized token as the substring probe for
// the store's search; full similarity is computed on the results.
func coreToken(name string) string {
	tokens := normalizeName(name)
	longest := ""
	for _, tok := range tokens {
		if len(tok) > len(longest) {
			longest = tok
		}
	}
	if longest == "" {
		return strings.ToLower(strings.TrimSpace(name))
	}
	return longest
}

// nameSimilarity compares two names after normalization: 1.0 for an exact
// normalized match, otherwise token-set Jaccard overlap.
func nameSimilarity(a, b string) float64 {
	ta, tb := normalizeName(a), normalizeName(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if strings.Join(ta, " ") == strings.Join(tb, " ") {
		return 1
	}
	setA := make(map[string]bool, len(ta))
	for _, tok := range ta {
		setA[tok] = true
	}
	setB := make(map[string]bool, len(tb))
	for _, tok := range tb {
		setB[tok] = true
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
