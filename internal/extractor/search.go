// Package extractor turns upstream catalog pages into catalog types. Page
// structure is read with goquery; the embedded episode payload is parsed by
// a structured strategy with a pattern-based fallback.
package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gabriel/tatakai-scraper/internal/catalog"
	"github.com/gabriel/tatakai-scraper/internal/textutil"
)

var tracer = otel.Tracer("tatakai/extractor")

var _ catalog.SearchExtractor = (*SearchExtractor)(nil)

const (
	searchBlockSelector         = "article"
	fallbackSearchBlockSelector = ".result-item, .bs, li.post"
)

var thumbnailAttributes = []string{"src", "data-src", "data-lazy-src", "data-original", "srcset"}

type SearchExtractor struct {
	baseURL *url.URL
}

func NewSearchExtractor(baseURL string) (*SearchExtractor, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &SearchExtractor{baseURL: base}, nil
}

func (e *SearchExtractor) ExtractSearchResults(ctx context.Context, html string) ([]catalog.CatalogEntry, error) {
	_, span := tracer.Start(ctx, "extractor.search")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	blocks := doc.Find(searchBlockSelector)
	if blocks.Length() == 0 {
		blocks = doc.Find(fallbackSearchBlockSelector)
	}

	entries := make([]catalog.CatalogEntry, 0, blocks.Length())
	blocks.Each(func(_ int, block *goquery.Selection) {
		entry, ok := e.extractEntry(block)
		if ok {
			entries = append(entries, entry)
		}
	})

	span.SetAttributes(
		attribute.Int("extractor.blocks", blocks.Length()),
		attribute.Int("extractor.entries", len(entries)),
	)
	return entries, nil
}

func (e *SearchExtractor) extractEntry(block *goquery.Selection) (catalog.CatalogEntry, bool) {
	var (
		link *url.URL
		slug string
	)
	block.Find("a[href]").EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		if isCategoryLink(anchor) {
			return true
		}
		resolved := resolveURL(e.baseURL, anchor.AttrOr("href", ""))
		if resolved == nil {
			return true
		}
		candidate := lastPathSegment(resolved.Path)
		if candidate == "" {
			return true
		}
		link, slug = resolved, candidate
		return false
	})
	if link == nil {
		return catalog.CatalogEntry{}, false
	}

	return catalog.CatalogEntry{
		Title:      e.entryTitle(block, link, slug),
		Slug:       slug,
		URL:        link.String(),
		Thumbnail:  imageURL(e.baseURL, block.Find("img")),
		Categories: categories(block),
	}, true
}

// entryTitle prefers visible text of any link to the entry, then a title
// attribute, then the prettified slug.
func (e *SearchExtractor) entryTitle(block *goquery.Selection, link *url.URL, slug string) string {
	target := link.String()
	var title, attrTitle string
	block.Find("a[href]").EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		resolved := resolveURL(e.baseURL, anchor.AttrOr("href", ""))
		if resolved == nil || resolved.String() != target {
			return true
		}
		if text := textutil.CleanText(anchor.Text()); text != "" {
			title = text
			return false
		}
		if attrTitle == "" {
			attrTitle = textutil.CleanText(anchor.AttrOr("title", ""))
		}
		return true
	})

	switch {
	case title != "":
		return title
	case attrTitle != "":
		return attrTitle
	default:
		return textutil.PrettifySlug(slug)
	}
}

func isCategoryLink(anchor *goquery.Selection) bool {
	rel := strings.ToLower(anchor.AttrOr("rel", ""))
	for _, value := range strings.Fields(rel) {
		if value == "tag" || value == "category" {
			return true
		}
	}
	href := strings.ToLower(anchor.AttrOr("href", ""))
	return strings.Contains(href, "/category/") || strings.Contains(href, "/genre/") || strings.Contains(href, "/tag/")
}

func categories(block *goquery.Selection) []string {
	labels := make([]string, 0, 4)
	block.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		if !isCategoryLink(anchor) {
			return
		}
		labels = append(labels, textutil.CleanText(anchor.Text()))
	})
	unique := textutil.UniqueNonEmpty(labels)
	if unique == nil {
		return []string{}
	}
	return unique
}

// imageURL returns the first usable image address among the images, trying
// src before the lazy-load attributes.
func imageURL(base *url.URL, images *goquery.Selection) string {
	var found string
	images.EachWithBreak(func(_ int, image *goquery.Selection) bool {
		for _, attr := range thumbnailAttributes {
			value := strings.TrimSpace(image.AttrOr(attr, ""))
			if attr == "srcset" {
				value = firstSrcsetCandidate(value)
			}
			if value == "" || strings.HasPrefix(strings.ToLower(value), "data:") {
				continue
			}
			if resolved := resolveURL(base, value); resolved != nil {
				found = resolved.String()
				return false
			}
		}
		return true
	})
	return found
}

func firstSrcsetCandidate(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	return base, nil
}

// resolveURL resolves href against base and rejects anything that is not an
// http(s) address.
func resolveURL(base *url.URL, href string) *url.URL {
	trimmed := strings.TrimSpace(href)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil
	}
	if parsed.Host == "" {
		return nil
	}
	return parsed
}

func lastPathSegment(path string) string {
	segments := strings.Split(path, "/")
	for index := len(segments) - 1; index >= 0; index-- {
		if segment := strings.TrimSpace(segments[index]); segment != "" {
			return segment
		}
	}
	return ""
}
