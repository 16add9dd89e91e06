// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for slopped-in: normalized
// paper records returned by the search proxy, engine lifecycle status, cached
// posts, and the configuration blocks read by the CLI.
package types

// PaperRecord is one normalized entry of an upstream arXiv feed.
type PaperRecord struct {
	// Title is the paper title with whitespace runs collapsed and ends trimmed.
	Title string `json:"title" yaml:"title"`

	// Summary is the abstract, cleaned the same way as Title. It is the
	// input to post generation.
	Summary string `json:"summary" yaml:"summary"`

	// Published is the upstream publication timestamp, passed through verbatim.
	Published string `json:"published" yaml:"published"`

	// Authors is the comma-joined author list, or "Unknown" when the entry
	// names nobody.
	Authors string `json:"authors" yaml:"authors"`

	// Link is the entry identifier URL. It keys selection and the post cache.
	Link string `json:"link" yaml:"link"`
}

// SearchResponse is the success body of GET /api/search.
type SearchResponse struct {
	Papers []PaperRecord `json:"papers"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
