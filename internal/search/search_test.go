package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pdiddy/slopped-in/internal/ratelimit"
	"github.com/pdiddy/slopped-in/pkg/types"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

const twoEntryFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <title type="html">ArXiv Query: search_query=all:transformers</title>
  <id>http://arxiv.org/api/abc</id>
  <updated>2025-03-14T00:00:00-05:00</updated>
  <entry>
    <id>http://arxiv.org/abs/2403.01234v1</id>
    <updated>2024-03-02T18:00:00Z</updated>
    <published>2024-03-02T18:00:00Z</published>
    <title>Attention Is
      Still All   You Need</title>
    <summary>  We revisit the
  transformer architecture.
</summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <link href="http://arxiv.org/abs/2403.01234v1" rel="alternate" type="text/html"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2403.05678v2</id>
    <updated>2024-03-05T10:00:00Z</updated>
    <published>2024-03-05T10:00:00Z</published>
    <title>Sparse Mixtures</title>
    <summary>Routing tokens to experts.</summary>
    <author><name>Grace Hopper</name></author>
  </entry>
</feed>`

const emptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title type="html">ArXiv Query: search_query=all:zzzz</title>
  <id>http://arxiv.org/api/empty</id>
  <updated>2025-03-14T00:00:00-05:00</updated>
</feed>`

const noAuthorFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <id>http://arxiv.org/api/one</id>
  <updated>2025-03-14T00:00:00-05:00</updated>
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <published>2024-01-01T00:00:00Z</published>
    <title>Anonymous Paper</title>
    <summary>No names here.</summary>
  </entry>
</feed>`

// stubLimiter answers Allow with a fixed result.
type stubLimiter struct {
	allow bool
	err   error
	calls int32
}

func (l *stubLimiter) Allow(_ context.Context, _ string) (bool, error) {
	atomic.AddInt32(&l.calls, 1)
	return l.allow, l.err
}

// upstream records what the fake arXiv server received.
type upstream struct {
	mu        sync.Mutex
	calls     int
	lastQuery string
}

func (u *upstream) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

func (u *upstream) LastQuery() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastQuery
}

// arxivServer serves body with the given status and records each request.
func arxivServer(t *testing.T, status int, body string) (*httptest.Server, *upstream) {
	t.Helper()
	u := &upstream{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.calls++
		u.lastQuery = r.URL.RawQuery
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/atom+xml")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, u
}

func newTestProxy(baseURL string, limiter ratelimit.Limiter) *Proxy {
	p := NewProxy(types.SearchConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "slopped-in/test"},
		BaseURL:    baseURL,
	}, limiter, nil)
	p.now = func() time.Time { return fixedNow }
	return p
}

// --- ParseRecency ---

func TestParseRecency(t *testing.T) {
	tests := []struct {
		in      string
		want    Recency
		wantErr bool
	}{
		{"", RecencyAll, false},
		{"all", RecencyAll, false},
		{"month", RecencyMonth, false},
		{"year", RecencyYear, false},
		{" Year ", RecencyYear, false},
		{"decade", "", true},
		{"5", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRecency(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRecency) {
					t.Fatalf("ParseRecency(%q) error = %v, want ErrInvalidRecency", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRecency(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRecency(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// --- BuildExpression ---

func TestBuildExpression(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		recency Recency
		want    string
	}{
		{"all", "transformers", RecencyAll, "all:transformers"},
		{"month", "transformers", RecencyMonth, "all:transformers AND submittedDate:[202502140000 TO 202503140000]"},
		{"year", "transformers", RecencyYear, "all:transformers AND submittedDate:[202403140000 TO 202503140000]"},
		{"phrase kept verbatim", "graph neural nets", RecencyAll, "all:graph neural nets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildExpression(tt.query, tt.recency, fixedNow); got != tt.want {
				t.Errorf("BuildExpression = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatArxivDate(t *testing.T) {
	got := formatArxivDate(time.Date(2024, 1, 5, 23, 59, 0, 0, time.UTC))
	if got != "202401050000" {
		t.Errorf("formatArxivDate = %q, want 202401050000", got)
	}
}

func TestBuildQueryURL(t *testing.T) {
	got := buildQueryURL("https://example.test/api/query", "all:a b", 10)
	want := "https://example.test/api/query?max_results=10&search_query=all%3Aa+b&sortBy=relevance&start=0"
	if got != want {
		t.Errorf("buildQueryURL =\n  %s\nwant\n  %s", got, want)
	}
}

// --- Proxy.Search ---

func TestSearchNormalizesEntries(t *testing.T) {
	srv, up := arxivServer(t, http.StatusOK, twoEntryFeed)
	p := newTestProxy(srv.URL, nil)

	got, err := p.Search(context.Background(), Request{ClientKey: "1.2.3.4", Query: "transformers"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []types.PaperRecord{
		{
			Title:     "Attention Is Still All You Need",
			Summary:   "We revisit the transformer architecture.",
			Published: "2024-03-02T18:00:00Z",
			Authors:   "Ada Lovelace, Alan Turing",
			Link:      "http://arxiv.org/abs/2403.01234v1",
		},
		{
			Title:     "Sparse Mixtures",
			Summary:   "Routing tokens to experts.",
			Published: "2024-03-05T10:00:00Z",
			Authors:   "Grace Hopper",
			Link:      "http://arxiv.org/abs/2403.05678v2",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
	if up.Calls() != 1 {
		t.Errorf("upstream calls = %d, want 1", up.Calls())
	}
}

func TestSearchEmptyFeedReturnsEmptyList(t *testing.T) {
	srv, _ := arxivServer(t, http.StatusOK, emptyFeed)
	p := newTestProxy(srv.URL, nil)

	got, err := p.Search(context.Background(), Request{Query: "zzzz"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Search() = %#v, want empty non-nil slice", got)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(types.SearchResponse{Papers: got}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != `{"papers":[]}` {
		t.Errorf("encoded = %s, want {\"papers\":[]}", buf.String())
	}
}

func TestSearchMissingAuthorsAreUnknown(t *testing.T) {
	srv, _ := arxivServer(t, http.StatusOK, noAuthorFeed)
	p := newTestProxy(srv.URL, nil)

	got, err := p.Search(context.Background(), Request{Query: "anonymous"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d papers, want 1", len(got))
	}
	if got[0].Authors != "Unknown" {
		t.Errorf("Authors = %q, want Unknown", got[0].Authors)
	}
}

func TestSearchSendsExpectedQuery(t *testing.T) {
	srv, up := arxivServer(t, http.StatusOK, emptyFeed)
	p := newTestProxy(srv.URL, nil)

	if _, err := p.Search(context.Background(), Request{Query: "  transformers  ", Years: "year"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := buildQueryURL("", "all:transformers AND submittedDate:[202403140000 TO 202503140000]", 10)
	if "?"+up.LastQuery() != want {
		t.Errorf("upstream query = %q, want %q", "?"+up.LastQuery(), want)
	}
}

func TestSearchEmptyQueryMakesNoUpstreamCall(t *testing.T) {
	srv, up := arxivServer(t, http.StatusOK, emptyFeed)
	p := newTestProxy(srv.URL, nil)

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := p.Search(context.Background(), Request{Query: q})
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Search(%q) error = %v, want ErrEmptyQuery", q, err)
		}
	}
	if up.Calls() != 0 {
		t.Errorf("upstream calls = %d, want 0", up.Calls())
	}
}

func TestSearchInvalidRecencyMakesNoUpstreamCall(t *testing.T) {
	srv, up := arxivServer(t, http.StatusOK, emptyFeed)
	p := newTestProxy(srv.URL, nil)

	_, err := p.Search(context.Background(), Request{Query: "x", Years: "decade"})
	if !errors.Is(err, ErrInvalidRecency) {
		t.Errorf("error = %v, want ErrInvalidRecency", err)
	}
	if up.Calls() != 0 {
		t.Errorf("upstream calls = %d, want 0", up.Calls())
	}
}

func TestSearchUpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"rate limited upstream", http.StatusTooManyRequests, "slow down"},
		{"malformed xml", http.StatusOK, "<html><body>oops</body></html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, up := arxivServer(t, tt.status, tt.body)
			p := newTestProxy(srv.URL, nil)

			_, err := p.Search(context.Background(), Request{Query: "x"})
			if !errors.Is(err, ErrUpstream) {
				t.Errorf("error = %v, want ErrUpstream", err)
			}
			if up.Calls() != 1 {
				t.Errorf("upstream calls = %d, want exactly 1 (no retries)", up.Calls())
			}
		})
	}
}

func TestSearchUnreachableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	p := newTestProxy(base, nil)
	_, err := p.Search(context.Background(), Request{Query: "x"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream", err)
	}
}

func TestSearchRateLimitCheckedBeforeValidation(t *testing.T) {
	srv, up := arxivServer(t, http.StatusOK, emptyFeed)
	lim := &stubLimiter{allow: false}
	p := newTestProxy(srv.URL, lim)

	_, err := p.Search(context.Background(), Request{ClientKey: "c", Query: ""})
	if !errors.Is(err, ratelimit.ErrLimited) {
		t.Errorf("error = %v, want ErrLimited", err)
	}
	if atomic.LoadInt32(&lim.calls) != 1 {
		t.Errorf("limiter calls = %d, want 1", atomic.LoadInt32(&lim.calls))
	}
	if up.Calls() != 0 {
		t.Errorf("upstream calls = %d, want 0", up.Calls())
	}
}

func TestSearchLimiterFailure(t *testing.T) {
	srv, up := arxivServer(t, http.StatusOK, emptyFeed)
	boom := errors.New("redis down")
	p := newTestProxy(srv.URL, &stubLimiter{err: boom})

	_, err := p.Search(context.Background(), Request{Query: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped limiter error", err)
	}
	if errors.Is(err, ratelimit.ErrLimited) {
		t.Error("limiter failure must not be reported as ErrLimited")
	}
	if up.Calls() != 0 {
		t.Errorf("upstream calls = %d, want 0", up.Calls())
	}
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	srv, _ := arxivServer(t, http.StatusOK, twoEntryFeed)
	p := NewProxy(types.SearchConfig{BaseURL: srv.URL, MaxResults: 1}, nil, nil)

	got, err := p.Search(context.Background(), Request{Query: "x"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Attention Is Still All You Need" {
		t.Errorf("got %+v, want only the first entry", got)
	}
}

// --- Normalize ---

func TestNormalizeNilFeed(t *testing.T) {
	got := Normalize(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("Normalize(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"plain", "plain"},
		{"  a \n\t b  ", "a b"},
		{"line\none\r\ntwo", "line one two"},
	}
	for _, tt := range tests {
		if got := collapseWhitespace(tt.in); got != tt.want {
			t.Errorf("collapseWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Formatting ---

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable([]types.PaperRecord{{
		Title:     "Sparse Mixtures",
		Authors:   "Grace Hopper",
		Published: "2024-03-05T10:00:00Z",
		Link:      "http://arxiv.org/abs/2403.05678v2",
	}}, &buf)

	out := buf.String()
	for _, want := range []string{"Sparse Mixtures", "Grace Hopper", "2024-03-05", "2403.05678v2", "1 results"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(nil, &buf)
	if !strings.Contains(buf.String(), "No results found.") {
		t.Errorf("got %q", buf.String())
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := FormatJSON([]types.PaperRecord{{Title: "T", Link: "L"}}, &buf); err != nil {
		t.Fatal(err)
	}
	var resp types.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Papers) != 1 || resp.Papers[0].Link != "L" {
		t.Errorf("decoded = %+v", resp)
	}
}
