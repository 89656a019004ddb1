package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const searchResultsPage = `<html><body>
<div class="result">
  <a class="result__a" href="https://acme.example/about">Acme - About</a>
</div>
<div class="result">
  <a class="result__a" href="/l/?uddg=https%3A%2F%2Fen.wikipedia.org%2Fwiki%2FAcme">Acme - Wikipedia</a>
</div>
<div class="result">
  <a class="result__a" href="javascript:void(0)">junk</a>
</div>
<div class="result">
  <a class="result__a" href="https://third.example/">Third</a>
</div>
</body></html>`

func TestSearchParsesResults(t *testing.T) {
	t.Parallel()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(searchResultsPage))
	}))
	t.Cleanup(server.Close)

	s := NewSearcher(server.URL, "test-agent", 5*time.Second)
	urls, err := s.Search(context.Background(), `"Acme" official website`, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if gotQuery != `"Acme" official website` {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	want := []string{
		"https://acme.example/about",
		"https://en.wikipedia.org/wiki/Acme",
	}
	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("url %d: want %q, got %q", i, want[i], urls[i])
		}
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	s := NewSearcher("", "", 0)
	if _, err := s.Search(context.Background(), "   ", 5); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestResolveResultURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		href string
		want string
	}{
		{"https://acme.example/", "https://acme.example/"},
		{"/l/?uddg=https%3A%2F%2Facme.example%2Fabout", "https://acme.example/about"},
		{"javascript:void(0)", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := resolveResultURL(tc.href); got != tc.want {
			t.Fatalf("resolveResultURL(%q) = %q, want %q", tc.href, got, tc.want)
		}
	}
}
