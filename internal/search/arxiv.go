// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"

	"github.com/pdiddy/slopped-in/internal/httputil"
	"github.com/pdiddy/slopped-in/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

const unknownAuthors = "Unknown"

// BuildExpression constructs the search_query parameter: a full-text match
// on query, plus a submittedDate range when recency is not RecencyAll.
//
//	all:transformers AND submittedDate:[202410180000 TO 202510180000]
func BuildExpression(query string, recency Recency, now time.Time) string {
	expr := "all:" + query

	from, to, ok := recency.DateRange(now)
	if !ok {
		return expr
	}
	return fmt.Sprintf("%s AND submittedDate:[%s TO %s]", expr, formatArxivDate(from), formatArxivDate(to))
}

// buildQueryURL assembles the upstream request URL for expr.
func buildQueryURL(base, expr string, maxResults int) string {
	v := url.Values{}
	v.Set("search_query", expr)
	v.Set("start", "0")
	v.Set("max_results", strconv.Itoa(maxResults))
	v.Set("sortBy", "relevance")
	return base + "?" + v.Encode()
}

// fetchFeed issues one GET and parses the Atom response.
func fetchFeed(ctx context.Context, client *http.Client, queryURL, userAgent string) (*atom.Feed, error) {
	resp, err := httputil.Get(ctx, client, queryURL, userAgent)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	fp := &atom.Parser{}
	feed, err := fp.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	return feed, nil
}

// Normalize flattens feed entries into paper records, preserving upstream
// order. A nil feed or one without entries yields an empty, non-nil slice.
func Normalize(feed *atom.Feed) []types.PaperRecord {
	papers := []types.PaperRecord{}
	if feed == nil {
		return papers
	}

	for _, entry := range feed.Entries {
		if entry == nil {
			continue
		}
		papers = append(papers, types.PaperRecord{
			Title:     collapseWhitespace(entry.Title),
			Summary:   collapseWhitespace(entry.Summary),
			Published: entry.Published,
			Authors:   joinAuthors(entry.Authors),
			Link:      entry.ID,
		})
	}
	return papers
}

// joinAuthors renders author names as "A, B, C", or "Unknown" when none
// carry a name.
func joinAuthors(people []*atom.Person) string {
	names := make([]string, 0, len(people))
	for _, p := range people {
		if p == nil {
			continue
		}
		if name := strings.TrimSpace(p.Name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return unknownAuthors
	}
	return strings.Join(names, ", ")
}

// collapseWhitespace replaces every whitespace run with one space and trims the ends.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
