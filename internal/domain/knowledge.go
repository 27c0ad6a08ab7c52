package domain

import "context"

// LookupResult is the shape every knowledge tool returns to handlers.
type LookupResult struct {
	Items    []map[string]any  `json:"items"`
	Found    bool              `json:"found"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// KnowledgeSource answers substring queries against one named dataset.
type KnowledgeSource interface {
	Lookup(ctx context.Context, dataset, query string) (LookupResult, error)
	// Datasets returns the names of the loaded datasets.
	Datasets() []string
}
