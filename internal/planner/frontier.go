package planner

import (
	"sort"
	"strings"

	"github.com/entigraph/entigraph/internal/kg"
	"github.com/entigraph/entigraph/internal/learning"
)

// Frontier score range. Learned adjustments are clamped here, not in the
// scorer.
const (
	MinScore = 0
	MaxScore = 100
)

// Frontier ranks candidate URLs for fetching. Base heuristics come from
// the URL itself; the learning scorer then shifts the score by domain
// reliability.
type Frontier struct {
	scorer *learning.Scorer
}

// NewFrontier builds a Frontier. A nil scorer disables learned adjustment.
func NewFrontier(scorer *learning.Scorer) *Frontier {
	return &Frontier{scorer: scorer}
}

// ScoredURL pairs a URL with its adjusted frontier score.
type ScoredURL struct {
	URL   string
	Score float64
}

// Score computes the adjusted priority of one URL for the given entity.
func (f *Frontier) Score(rawURL string, entity kg.Entity) float64 {
	score := baseScore(rawURL, entity)
	if f.scorer != nil {
		score = f.scorer.AdjustScore(score, learning.Domain(rawURL))
	}
	return clamp(score)
}

// Rank scores and orders URLs best first, dropping duplicates.
func (f *Frontier) Rank(urls []string, entity kg.Entity) []ScoredURL {
	seen := make(map[string]bool, len(urls))
	out := make([]ScoredURL, 0, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, ScoredURL{URL: u, Score: f.Score(u, entity)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out
}

func baseScore(rawURL string, entity kg.Entity) float64 {
	score := 50.0
	pageType := learning.ClassifyPageType(rawURL, entityWebsite(entity))
	switch pageType {
	case learning.PageTypeOfficial:
		score += 30
	case learning.PageTypeWiki:
		score += 20
	case learning.PageTypeDirectory:
		score += 10
	case learning.PageTypeNews:
		score += 5
	case learning.PageTypeSocial:
		score -= 5
	}
	lower := strings.ToLower(rawURL)
	if strings.Contains(lower, strings.ToLower(strings.ReplaceAll(entity.Name, " ", ""))) ||
		strings.Contains(lower, strings.ToLower(strings.ReplaceAll(entity.Name, " ", "-"))) {
		score += 10
	}
	if strings.HasSuffix(lower, ".pdf") || strings.Contains(lower, "/search?") {
		score -= 20
	}
	return score
}

func entityWebsite(entity kg.Entity) string {
	if entity.Data == nil {
		return ""
	}
	if v, ok := entity.Data["website"]; ok {
		if s, isString := v.(string); isString {
			return s
		}
	}
	return ""
}

func clamp(score float64) float64 {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
