// Package extract pulls structured content out of fetched HTML.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sitegrab/sitegrab/internal/scraper"
)

// Document is the structured record extracted from one fetched page.
type Document struct {
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	StatusCode int               `json:"status_code"`
	FetchedAt  time.Time         `json:"timestamp"`
	Text       string            `json:"text_content"`
	Links      []string          `json:"links"`
	MetaTags   map[string]string `json:"meta_tags"`
	Headers    map[string]string `json:"headers"`
}

// FromResponse parses the raw body of a successful fetch. The engine never
// inspects body content; everything body-shaped happens here.
func FromResponse(resp scraper.FetchResponse) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return Document{}, fmt.Errorf("parse html for %s: %w", resp.URL, err)
	}

	headers := make(map[string]string, len(resp.Headers))
	for key := range resp.Headers {
		headers[key] = resp.Headers.Get(key)
	}

	return Document{
		URL:        resp.URL,
		Title:      title(doc),
		StatusCode: resp.StatusCode,
		FetchedAt:  resp.FetchedAt,
		Text:       textContent(doc),
		Links:      links(doc),
		MetaTags:   metaTags(doc),
		Headers:    headers,
	}, nil
}

func title(doc *goquery.Document) string {
	t := strings.TrimSpace(doc.Find("title").First().Text())
	if t == "" {
		return "No title"
	}
	return t
}

func textContent(doc *goquery.Document) string {
	root := doc.Selection.Clone()
	root.Find("script, style, noscript").Remove()
	body := root.Find("body")
	raw := body.Text()
	if body.Length() == 0 {
		raw = root.Text()
	}
	return strings.Join(strings.Fields(raw), " ")
}

func links(doc *goquery.Document) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			out = append(out, href)
		}
	})
	return out
}

func metaTags(doc *goquery.Document) map[string]string {
	tags := make(map[string]string)
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		content, ok := sel.Attr("content")
		if !ok {
			return
		}
		name, ok := sel.Attr("name")
		if !ok || name == "" {
			name, ok = sel.Attr("property")
			if !ok || name == "" {
				name = "unknown"
			}
		}
		tags[name] = content
	})
	return tags
}
