package collyfetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/entigraph/entigraph/internal/kg"
)

const defaultSearchEndpoint = "https://html.duckduckgo.com/html/"

// Searcher resolves queries into result URLs by scraping the DuckDuckGo
// HTML endpoint, which serves results without JavaScript.
type Searcher struct {
	endpoint      string
	userAgent     string
	timeout       time.Duration
	baseCollector *colly.Collector
}

// NewSearcher builds a Searcher. An empty endpoint selects DuckDuckGo.
func NewSearcher(endpoint, userAgent string, timeout time.Duration) *Searcher {
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Searcher{
		endpoint:      endpoint,
		userAgent:     userAgent,
		timeout:       timeout,
		baseCollector: c,
	}
}

var _ kg.Searcher = (*Searcher)(nil)

// Search runs one query and returns up to limit result URLs in rank order.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	if limit <= 0 {
		limit = 10
	}

	collector := s.baseCollector.Clone()
	if s.userAgent != "" {
		collector.UserAgent = s.userAgent
	}
	collector.SetRequestTimeout(s.timeout)

	var (
		results  []string
		scrapErr error
	)
	collector.OnHTML("a.result__a", func(el *colly.HTMLElement) {
		if len(results) >= limit {
			return
		}
		if target := resolveResultURL(el.Attr("href")); target != "" {
			results = append(results, target)
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		scrapErr = err
	})

	searchURL := s.endpoint + "?q=" + url.QueryEscape(query)
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(searchURL)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("search canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("search visit failed: %w", err)
		}
		if scrapErr != nil {
			return nil, fmt.Errorf("search response failed: %w", scrapErr)
		}
	}
	return results, nil
}

// resolveResultURL unwraps DuckDuckGo's redirect links (/l/?uddg=...) and
// drops anything that is not an absolute http(s) URL.
func resolveResultURL(href string) string {
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if wrapped := parsed.Query().Get("uddg"); wrapped != "" {
		if unwrapped, err := url.QueryUnescape(wrapped); err == nil {
			href = unwrapped
			parsed, err = url.Parse(href)
			if err != nil {
				return ""
			}
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return href
}
