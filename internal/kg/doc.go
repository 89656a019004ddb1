// Package kg defines the core knowledge-graph types and the collaborator
// interfaces shared across subsystems. Entities, relationships, and their
// dependent records live here, along with the contracts for the persistent
// store, the fetch/extract collaborators, and the embedding service.
package kg
