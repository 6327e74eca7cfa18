// Package links extracts hyperlink targets from HTML documents.
package links

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const anchorSelector = "a[href]"

// Extractor pulls raw href values out of anchor elements. Resolution and
// normalization are left to the caller.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// ExtractLinks returns every non-empty href in document order, duplicates
// included. Non-navigational schemes such as mailto: and javascript: are
// returned as-is and rejected later by normalization.
func (e *Extractor) ExtractLinks(body []byte) ([]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrParse, err)
	}

	var hrefs []string
	doc.Find(anchorSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if href = strings.TrimSpace(href); href != "" {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs, nil
}

var _ crawler.LinkExtractor = (*Extractor)(nil)
