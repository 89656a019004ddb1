package learning

import (
	"net/url"
	"strings"
)

// Page types fed into the pattern state. Coarse buckets on purpose; the
// scorer learns which of them pay off per entity kind.
const (
	PageTypeOfficial  = "official"
	PageTypeWiki      = "wiki"
	PageTypeNews      = "news"
	PageTypeSocial    = "social"
	PageTypeDirectory = "directory"
	PageTypeOther     = "other"
)

var socialHosts = []string{
	"linkedin.com", "twitter.com", "x.com", "facebook.com", "instagram.com", "youtube.com",
}

var directoryHosts = []string{
	"crunchbase.com", "bloomberg.com", "pitchbook.com", "glassdoor.com",
	"opencorporates.com", "dnb.com", "zoominfo.com",
}

var newsHosts = []string{
	"reuters.com", "apnews.com", "bbc.", "nytimes.com", "theguardian.com",
	"techcrunch.com", "forbes.com", "cnbc.com", "wsj.com",
}

// ClassifyPageType buckets a URL by its host. entityWebsite, when known,
// marks pages on the entity's own domain as official.
func ClassifyPageType(rawURL, entityWebsite string) string {
	host := hostOf(rawURL)
	if host == "" {
		return PageTypeOther
	}
	if entityWebsite != "" {
		if own := hostOf(entityWebsite); own != "" && strings.HasSuffix(host, own) {
			return PageTypeOfficial
		}
	}
	if strings.Contains(host, "wikipedia.org") || strings.Contains(host, "wikidata.org") {
		return PageTypeWiki
	}
	for _, h := range socialHosts {
		if strings.HasSuffix(host, h) {
			return PageTypeSocial
		}
	}
	for _, h := range directoryHosts {
		if strings.HasSuffix(host, h) {
			return PageTypeDirectory
		}
	}
	for _, h := range newsHosts {
		if strings.Contains(host, h) {
			return PageTypeNews
		}
	}
	return PageTypeOther
}

// Domain extracts the lowercase registrable-ish host from a URL, without
// the www prefix. Returns "" for unparseable input.
func Domain(rawURL string) string {
	return normalizeDomain(hostOf(rawURL))
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
