package crawler

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/lukemcguire/zombietrail/urlutil"
)

// ExtractLinks parses HTML from the given reader and returns every anchor
// with an href, in document order. Relative URLs are resolved against the
// document's <base href> if present, otherwise against baseURL. Non-HTTP
// schemes and hrefs that do not parse are dropped, the rest are normalized.
// Repeated links are kept so that every anchor produces its own record.
func ExtractLinks(body io.Reader, baseURL *url.URL) ([]PageLink, error) {
	root, err := html.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	base := baseURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, parseErr := url.Parse(strings.TrimSpace(href)); parseErr == nil {
			base = baseURL.ResolveReference(ref)
		}
	}

	links := []PageLink{}
	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href := strings.TrimSpace(anchor.AttrOr("href", ""))

		hrefURL, parseErr := url.Parse(href)
		if parseErr != nil {
			return
		}
		resolved := base.ResolveReference(hrefURL).String()
		if !urlutil.IsHTTPScheme(resolved) {
			return
		}

		normalized, normErr := urlutil.Normalize(resolved)
		if normErr != nil {
			return
		}
		links = append(links, PageLink{URL: normalized, Text: anchor.Text()})
	})

	return links, nil
}
