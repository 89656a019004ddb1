package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/kg"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestScorer(clock *fakeClock) *Scorer {
	return NewScorer(Config{}, clock, zap.NewNop())
}

func TestDomainReliabilityNeutralUnderMinSamples(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newTestScorer(clock)

	require.Equal(t, DefaultNeutral, s.DomainReliability("unknown.example"))

	s.RecordOutcome("good.example", PageTypeWiki, kg.KindCompany, true, 1.0)
	s.RecordOutcome("good.example", PageTypeWiki, kg.KindCompany, true, 1.0)
	require.Equal(t, DefaultNeutral, s.DomainReliability("good.example"))

	s.RecordOutcome("good.example", PageTypeWiki, kg.KindCompany, true, 1.0)
	require.NotEqual(t, DefaultNeutral, s.DomainReliability("good.example"))
}

func TestRecordOutcomeMovesEMA(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newTestScorer(clock)

	for i := 0; i < 50; i++ {
		s.RecordOutcome("good.example", PageTypeOfficial, kg.KindCompany, true, 0.9)
	}
	require.InDelta(t, 0.9, s.DomainReliability("good.example"), 0.05)

	for i := 0; i < 50; i++ {
		s.RecordOutcome("bad.example", PageTypeOther, kg.KindCompany, false, 0.9)
	}
	// Failures fold in as zero quality.
	require.Less(t, s.DomainReliability("bad.example"), 0.1)
}

func TestDomainReliabilityDecaysWithAge(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newTestScorer(clock)
	for i := 0; i < 50; i++ {
		s.RecordOutcome("stale.example", PageTypeWiki, kg.KindCompany, true, 1.0)
	}
	fresh := s.DomainReliability("stale.example")

	clock.now = clock.now.Add(15 * 24 * time.Hour)
	half := s.DomainReliability("stale.example")
	require.Less(t, half, fresh)

	clock.now = clock.now.Add(60 * 24 * time.Hour)
	old := s.DomainReliability("stale.example")
	// Past the decay window the factor bottoms out at 0.8.
	require.InDelta(t, fresh*0.8, old, 0.01)
}

func TestAdjustScoreBounds(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newTestScorer(clock)

	// Neutral domain: no change.
	require.Equal(t, 50.0, s.AdjustScore(50, "neutral.example"))

	for i := 0; i < 100; i++ {
		s.RecordOutcome("great.example", PageTypeWiki, kg.KindCompany, true, 1.0)
		s.RecordOutcome("awful.example", PageTypeOther, kg.KindCompany, false, 0)
	}
	require.Equal(t, 80.0, s.AdjustScore(50, "great.example"))
	require.Equal(t, 30.0, s.AdjustScore(50, "awful.example"))
}

func TestSuggestedPatternsOrderedAndConfident(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newTestScorer(clock)

	for i := 0; i < 20; i++ {
		s.RecordOutcome("a.example", PageTypeWiki, kg.KindCompany, true, 0.9)
	}
	for i := 0; i < 5; i++ {
		s.RecordOutcome("b.example", PageTypeSocial, kg.KindCompany, true, 0.4)
	}
	s.RecordOutcome("c.example", PageTypeNews, kg.KindPerson, true, 1.0)

	patterns := s.SuggestedPatterns(kg.KindCompany, 10)
	require.Len(t, patterns, 2)
	require.Equal(t, PageTypeWiki, patterns[0].PageType)
	require.Equal(t, 1.0, patterns[0].Confidence)
	require.InDelta(t, 0.5, patterns[1].Confidence, 1e-9)

	require.Empty(t, s.SuggestedPatterns(kg.KindLocation, 10))
}

func TestDomainStatsFilter(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newTestScorer(clock)
	s.RecordOutcome("www.Alpha.Example", PageTypeWiki, kg.KindCompany, true, 0.7)
	s.RecordOutcome("beta.example", PageTypeWiki, kg.KindCompany, true, 0.7)

	all := s.DomainStats("")
	require.Len(t, all, 2)
	require.Contains(t, all, "alpha.example")

	filtered := s.DomainStats("beta")
	require.Len(t, filtered, 1)
}

func TestClassifyPageType(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://en.wikipedia.org/wiki/Acme":     PageTypeWiki,
		"https://www.linkedin.com/company/acme":  PageTypeSocial,
		"https://www.crunchbase.com/org/acme":    PageTypeDirectory,
		"https://techcrunch.com/2026/01/acme":    PageTypeNews,
		"https://randomblog.example/post":        PageTypeOther,
	}
	for rawURL, want := range cases {
		require.Equal(t, want, ClassifyPageType(rawURL, ""), rawURL)
	}

	require.Equal(t, PageTypeOfficial, ClassifyPageType("https://www.acme.example/about", "https://acme.example"))
	require.Equal(t, "acme.example", Domain("https://www.acme.example/about"))
}
