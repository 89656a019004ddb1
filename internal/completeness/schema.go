package completeness

import "github.com/entigraph/entigraph/internal/kg"

// ExpectedField describes one field the graph wants filled for a kind,
// with its priority tier and how likely a web search is to surface it.
type ExpectedField struct {
	Name        string
	Priority    kg.GapPriority
	Findability float64
}

// expectedFields maps each entity kind to its expected-field table.
// Findability scores reflect how often general web search surfaces the
// field: official names and websites are nearly always findable, revenue
// and headcount much less so.
var expectedFields = map[kg.EntityKind][]ExpectedField{
	kg.KindCompany: {
		{Name: "official_name", Priority: kg.PriorityCritical, Findability: 0.95},
		{Name: "website", Priority: kg.PriorityCritical, Findability: 0.9},
		{Name: "industry", Priority: kg.PriorityImportant, Findability: 0.8},
		{Name: "headquarters", Priority: kg.PriorityImportant, Findability: 0.75},
		{Name: "founded", Priority: kg.PriorityImportant, Findability: 0.7},
		{Name: "ticker", Priority: kg.PriorityImportant, Findability: 0.6},
		{Name: "description", Priority: kg.PrioritySupplementary, Findability: 0.85},
		{Name: "revenue", Priority: kg.PrioritySupplementary, Findability: 0.4},
		{Name: "employees", Priority: kg.PrioritySupplementary, Findability: 0.45},
	},
	kg.KindPerson: {
		{Name: "full_name", Priority: kg.PriorityCritical, Findability: 0.95},
		{Name: "occupation", Priority: kg.PriorityCritical, Findability: 0.8},
		{Name: "affiliation", Priority: kg.PriorityImportant, Findability: 0.7},
		{Name: "title", Priority: kg.PriorityImportant, Findability: 0.65},
		{Name: "location", Priority: kg.PrioritySupplementary, Findability: 0.5},
		{Name: "education", Priority: kg.PrioritySupplementary, Findability: 0.45},
	},
	kg.KindProduct: {
		{Name: "official_name", Priority: kg.PriorityCritical, Findability: 0.95},
		{Name: "maker", Priority: kg.PriorityCritical, Findability: 0.85},
		{Name: "category", Priority: kg.PriorityImportant, Findability: 0.75},
		{Name: "release_date", Priority: kg.PriorityImportant, Findability: 0.6},
		{Name: "description", Priority: kg.PrioritySupplementary, Findability: 0.8},
		{Name: "price", Priority: kg.PrioritySupplementary, Findability: 0.55},
	},
	kg.KindOrganization: {
		{Name: "official_name", Priority: kg.PriorityCritical, Findability: 0.95},
		{Name: "website", Priority: kg.PriorityCritical, Findability: 0.85},
		{Name: "mission", Priority: kg.PriorityImportant, Findability: 0.7},
		{Name: "headquarters", Priority: kg.PriorityImportant, Findability: 0.7},
		{Name: "founded", Priority: kg.PrioritySupplementary, Findability: 0.6},
		{Name: "members", Priority: kg.PrioritySupplementary, Findability: 0.35},
	},
	kg.KindLocation: {
		{Name: "official_name", Priority: kg.PriorityCritical, Findability: 0.95},
		{Name: "country", Priority: kg.PriorityCritical, Findability: 0.9},
		{Name: "region", Priority: kg.PriorityImportant, Findability: 0.8},
		{Name: "population", Priority: kg.PrioritySupplementary, Findability: 0.65},
		{Name: "coordinates", Priority: kg.PrioritySupplementary, Findability: 0.7},
	},
	kg.KindTopic: {
		{Name: "name", Priority: kg.PriorityCritical, Findability: 0.95},
		{Name: "summary", Priority: kg.PriorityImportant, Findability: 0.8},
		{Name: "category", Priority: kg.PrioritySupplementary, Findability: 0.7},
	},
	kg.KindNews: {
		{Name: "headline", Priority: kg.PriorityCritical, Findability: 0.95},
		{Name: "published_at", Priority: kg.PriorityImportant, Findability: 0.8},
		{Name: "source", Priority: kg.PriorityImportant, Findability: 0.85},
		{Name: "summary", Priority: kg.PrioritySupplementary, Findability: 0.75},
	},
}

// Fields returns the expected-field table for a kind. Unknown kinds fall
// back to the topic table, the smallest generic schema.
func Fields(kind kg.EntityKind) []ExpectedField {
	if fields, ok := expectedFields[kind]; ok {
		return fields
	}
	return expectedFields[kg.KindTopic]
}
