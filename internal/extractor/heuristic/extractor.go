// Package heuristic extracts structured facts from HTML pages with CSS
// selectors and phrase patterns. It is deliberately conservative: a fact is
// only emitted when the page states it near the entity's own name, and the
// quality signal reflects how much was found.
package heuristic

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/entigraph/entigraph/internal/kg"
)

// Extractor implements kg.Extractor without any external model. It exists
// so the service runs end to end out of the box; deployments with an LLM
// extraction sidecar swap it out behind the same interface.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

var _ kg.Extractor = (*Extractor)(nil)

// personPatterns match "founded by Jane Doe", "CEO John Smith", and the
// reversed "Jane Doe, founder of ...".
var (
	roleThenName = regexp.MustCompile(`(?i)\b(founded by|founder|co-founder|CEO|CTO|chief executive|president|chairman)\b[,:\s]+([A-Z][a-z]+(?: [A-Z][a-z]+){1,2})`)
	nameThenRole = regexp.MustCompile(`([A-Z][a-z]+(?: [A-Z][a-z]+){1,2}),? (?:the )?\b(founder|co-founder|CEO|CTO|president|chairman)\b`)

	headquarters = regexp.MustCompile(`(?i)\bheadquarter(?:s|ed)?\s+(?:is\s+|are\s+)?(?:in|at)\s+([A-Z][A-Za-z]+(?:[ ,] ?[A-Z][A-Za-z]+){0,2})`)
	foundedYear  = regexp.MustCompile(`(?i)\b(?:founded|established|incorporated)\s+(?:in\s+)?(\d{4})\b`)
	revenue      = regexp.MustCompile(`(?i)\brevenue\s+of\s+(\$[\d.,]+\s*(?:billion|million|trillion)?)`)
	employees    = regexp.MustCompile(`(?i)\b([\d.,]+(?:\s*thousand)?)\s+employees\b`)
)

// Extract parses the page and emits whatever facts the heuristics find.
// Pages that do not mention the entity name yield an empty, zero-quality
// result rather than an error.
func (x *Extractor) Extract(_ context.Context, entityName string, _ kg.EntityKind, text, pageType, _ string) (kg.ExtractedFacts, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(text)))
	if err != nil {
		return kg.ExtractedFacts{}, nil
	}

	body := doc.Find("body").Text()
	if body == "" {
		body = text
	}
	if entityName != "" && !strings.Contains(strings.ToLower(body), strings.ToLower(entityName)) {
		return kg.ExtractedFacts{BasicInfo: map[string]string{}}, nil
	}

	facts := kg.ExtractedFacts{
		BasicInfo:  map[string]string{},
		Financials: map[string]string{},
	}

	if desc := metaContent(doc, `meta[name="description"]`, `meta[property="og:description"]`); desc != "" {
		facts.BasicInfo["description"] = desc
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		facts.BasicInfo["title"] = title
	}
	if site := metaContent(doc, `meta[property="og:url"]`); site != "" {
		facts.BasicInfo["website"] = site
	}
	if m := foundedYear.FindStringSubmatch(body); m != nil {
		facts.BasicInfo["founded"] = m[1]
	}
	if m := headquarters.FindStringSubmatch(body); m != nil {
		hq := strings.TrimSpace(m[1])
		facts.BasicInfo["headquarters"] = hq
		facts.Locations = append(facts.Locations, hq)
	}
	if m := revenue.FindStringSubmatch(body); m != nil {
		facts.Financials["revenue"] = strings.TrimSpace(m[1])
	}
	if m := employees.FindStringSubmatch(body); m != nil {
		facts.Financials["employees"] = strings.TrimSpace(m[1])
	}

	facts.Persons = extractPersons(body)
	facts.Quality = quality(facts, pageType)
	return facts, nil
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func extractPersons(body string) []kg.ExtractedPerson {
	seen := map[string]bool{}
	var persons []kg.ExtractedPerson

	for _, m := range roleThenName.FindAllStringSubmatch(body, -1) {
		role := strings.ToLower(strings.TrimSpace(m[1]))
		name := strings.TrimSpace(m[2])
		if seen[name] {
			continue
		}
		seen[name] = true
		persons = append(persons, kg.ExtractedPerson{Name: name, Role: normalizeRole(role)})
	}
	for _, m := range nameThenRole.FindAllStringSubmatch(body, -1) {
		name := strings.TrimSpace(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		persons = append(persons, kg.ExtractedPerson{
			Name: name,
			Role: normalizeRole(strings.ToLower(m[2])),
		})
	}
	return persons
}

func normalizeRole(role string) string {
	switch role {
	case "founded by":
		return "founder"
	case "chief executive":
		return "ceo"
	case "ceo", "cto":
		return role
	default:
		return role
	}
}

// quality scores in [0,1] by how many fact groups were populated. About
// pages get a small boost since they tend to be authoritative.
func quality(facts kg.ExtractedFacts, pageType string) float64 {
	score := 0.0
	if len(facts.BasicInfo) > 0 {
		score += 0.3
	}
	if len(facts.Persons) > 0 {
		score += 0.25
	}
	if len(facts.Locations) > 0 {
		score += 0.15
	}
	if len(facts.Financials) > 0 {
		score += 0.2
	}
	if pageType == "about" || pageType == "official" {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}
