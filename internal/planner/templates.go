package planner

import (
	"strings"

	"github.com/entigraph/entigraph/internal/kg"
	"github.com/entigraph/entigraph/internal/learning"
)

// Discovery templates per kind, broadest first. %s is the entity name.
var discoveryQueryTemplates = map[kg.EntityKind][]string{
	kg.KindCompany: {
		"\"%s\" official",
		"\"%s\" company",
		"\"%s\" about",
		"\"%s\" wikipedia",
		"\"%s\" crunchbase",
	},
	kg.KindPerson: {
		"\"%s\"",
		"\"%s\" biography",
		"\"%s\" linkedin",
		"\"%s\" wikipedia",
	},
	kg.KindProduct: {
		"\"%s\" product",
		"\"%s\" official site",
		"\"%s\" review",
		"\"%s\" specifications",
	},
	kg.KindOrganization: {
		"\"%s\" organization",
		"\"%s\" official",
		"\"%s\" about",
		"\"%s\" wikipedia",
	},
	kg.KindLocation: {
		"\"%s\" location",
		"\"%s\" wikipedia",
		"\"%s\" map",
	},
}

var genericDiscoveryTemplates = []string{
	"\"%s\"",
	"\"%s\" about",
	"\"%s\" wikipedia",
}

func discoveryTemplates(kind kg.EntityKind) []string {
	if templates, ok := discoveryQueryTemplates[kind]; ok {
		return templates
	}
	return genericDiscoveryTemplates
}

// fieldTerms maps expected-field names to search phrasing.
var fieldTerms = map[string]string{
	"official_name": "official name",
	"website":       "official website",
	"industry":      "industry sector",
	"headquarters":  "headquarters location",
	"founded":       "year founded",
	"ticker":        "stock ticker symbol",
	"revenue":       "annual revenue",
	"employees":     "number of employees",
	"full_name":     "full name",
	"occupation":    "occupation profession",
	"affiliation":   "works at company",
	"maker":         "made by manufacturer",
	"release_date":  "release date",
	"published_at":  "publication date",
}

// Expansion terms per kind; relation types already present on the entity
// get folded in so known edge kinds deepen first.
var expansionKindTerms = map[kg.EntityKind][]string{
	kg.KindCompany:      {"competitors", "subsidiaries", "founders", "partners", "acquisitions"},
	kg.KindPerson:       {"colleagues", "companies founded", "board member"},
	kg.KindProduct:      {"competitors", "manufacturer", "alternatives"},
	kg.KindOrganization: {"members", "partners", "chapters"},
}

var relationSearchTerms = map[string]string{
	"founded_by":    "founders",
	"subsidiary_of": "subsidiaries",
	"competitor_of": "competitors",
	"partner_of":    "partners",
	"works_at":      "employees leadership",
	"located_in":    "offices locations",
	"produces":      "products",
}

func expansionTerms(kind kg.EntityKind, relationTypes []string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, rt := range relationTypes {
		if rt == kg.RelDuplicateOf {
			continue
		}
		term, ok := relationSearchTerms[rt]
		if !ok {
			term = strings.ReplaceAll(rt, "_", " ")
		}
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	for _, term := range expansionKindTerms[kind] {
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		terms = []string{"related", "associated"}
	}
	return terms
}

// patternHints nudges gap-filling queries toward page types the scorer has
// learned to trust for the kind.
var patternHints = map[string]string{
	learning.PageTypeWiki:      "wikipedia",
	learning.PageTypeNews:      "news",
	learning.PageTypeSocial:    "linkedin",
	learning.PageTypeDirectory: "crunchbase",
	learning.PageTypeOfficial:  "site:official",
}
