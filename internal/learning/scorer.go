// Package learning maintains per-domain and per-page-pattern reliability
// statistics with temporal decay. It is advisory: lookups never fail, they
// fall back to neutral defaults.
package learning

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/kg"
)

// Defaults for the scorer's tunables.
const (
	DefaultAlpha      = 0.1
	DefaultMinSamples = 3
	DefaultNeutral    = 0.5
	DefaultDecayDays  = 30
)

// Config controls scorer behavior. Zero values select defaults.
type Config struct {
	Alpha      float64
	MinSamples int
	Neutral    float64
	DecayDays  float64
}

func (c Config) withDefaults() Config {
	if c.Alpha <= 0 {
		c.Alpha = DefaultAlpha
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.Neutral <= 0 {
		c.Neutral = DefaultNeutral
	}
	if c.DecayDays <= 0 {
		c.DecayDays = DefaultDecayDays
	}
	return c
}

// DomainStat tracks learned reliability for one web domain.
type DomainStat struct {
	SuccessCount int       `json:"success_count"`
	TotalCount   int       `json:"total_count"`
	EMAQuality   float64   `json:"ema_quality"`
	LastUpdated  time.Time `json:"last_updated"`
}

// PagePattern tracks learned quality for one (entity kind, page type) pair.
type PagePattern struct {
	PageType    string  `json:"page_type"`
	EMAQuality  float64 `json:"ema_quality"`
	SampleCount int     `json:"sample_count"`
	Confidence  float64 `json:"confidence"`
}

type patternKey struct {
	kind     kg.EntityKind
	pageType string
}

// Scorer is the learning state. Construct one per process and inject it;
// workers update it concurrently under its lock.
type Scorer struct {
	mu       sync.RWMutex
	cfg      Config
	domains  map[string]*DomainStat
	patterns map[patternKey]*PagePattern
	clock    kg.Clock
	logger   *zap.Logger
}

// NewScorer builds a Scorer with its own empty state.
func NewScorer(cfg Config, clock kg.Clock, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		cfg:      cfg.withDefaults(),
		domains:  make(map[string]*DomainStat),
		patterns: make(map[patternKey]*PagePattern),
		clock:    clock,
		logger:   logger,
	}
}

// RecordOutcome folds one crawl outcome into the domain and pattern state.
// Failed outcomes count as zero quality.
func (s *Scorer) RecordOutcome(domain, pageType string, kind kg.EntityKind, success bool, quality float64) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return
	}
	if !success {
		quality = 0
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	stat, ok := s.domains[domain]
	if !ok {
		stat = &DomainStat{EMAQuality: s.cfg.Neutral}
		s.domains[domain] = stat
	}
	stat.TotalCount++
	if success {
		stat.SuccessCount++
	}
	stat.EMAQuality += s.cfg.Alpha * (quality - stat.EMAQuality)
	stat.LastUpdated = now

	if pageType != "" {
		key := patternKey{kind: kind, pageType: pageType}
		pattern, ok := s.patterns[key]
		if !ok {
			pattern = &PagePattern{PageType: pageType, EMAQuality: s.cfg.Neutral}
			s.patterns[key] = pattern
		}
		pattern.SampleCount++
		pattern.EMAQuality += s.cfg.Alpha * (quality - pattern.EMAQuality)
		pattern.Confidence = confidenceFor(pattern.SampleCount)
	}

	s.logger.Debug("outcome recorded",
		zap.String("domain", domain),
		zap.String("page_type", pageType),
		zap.Bool("success", success),
		zap.Float64("quality", quality),
	)
}

// DomainReliability returns the learned quality for a domain, decayed by
// elapsed time since the last observation. Domains with fewer than the
// minimum sample count return the neutral default so one lucky or unlucky
// crawl cannot dominate scoring.
func (s *Scorer) DomainReliability(domain string) float64 {
	domain = normalizeDomain(domain)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stat, ok := s.domains[domain]
	if !ok || stat.TotalCount < s.cfg.MinSamples {
		return s.cfg.Neutral
	}
	ageDays := s.clock.Now().Sub(stat.LastUpdated).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	fresh := 1 - ageDays/s.cfg.DecayDays
	if fresh < 0 {
		fresh = 0
	}
	decay := 0.8 + 0.2*fresh
	return stat.EMAQuality * decay
}

// Reliability bounds used by AdjustScore.
const (
	highReliability = 0.8
	lowReliability  = 0.3
	highBonus       = 30
	lowPenalty      = 20
)

// AdjustScore shifts a base frontier score by the domain's learned
// reliability. Clamping to the frontier's score range is the caller's job.
func (s *Scorer) AdjustScore(baseScore float64, domain string) float64 {
	reliability := s.DomainReliability(domain)
	switch {
	case reliability > highReliability:
		return baseScore + highBonus
	case reliability < lowReliability:
		return baseScore - lowPenalty
	default:
		return baseScore
	}
}

// SuggestedPatterns returns the top-N page types by learned quality for an
// entity kind, best first. Ties break by page type name.
func (s *Scorer) SuggestedPatterns(kind kg.EntityKind, n int) []PagePattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []PagePattern
	for key, pattern := range s.patterns {
		if key.kind != kind {
			continue
		}
		out = append(out, *pattern)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EMAQuality != out[j].EMAQuality {
			return out[i].EMAQuality > out[j].EMAQuality
		}
		return out[i].PageType < out[j].PageType
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// DomainStats returns a copy of the per-domain state, optionally filtered
// by a domain substring. Used by the stats API.
func (s *Scorer) DomainStats(filter string) map[string]DomainStat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]DomainStat)
	for domain, stat := range s.domains {
		if filter != "" && !strings.Contains(domain, filter) {
			continue
		}
		out[domain] = *stat
	}
	return out
}

// confidenceFor grows with sample count and saturates at 1 after ten
// observations.
func confidenceFor(samples int) float64 {
	c := float64(samples) / 10
	if c > 1 {
		return 1
	}
	return c
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "www.")
	return domain
}
