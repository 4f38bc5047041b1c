package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gabriel/tatakai-scraper/internal/catalog"
	"github.com/gabriel/tatakai-scraper/internal/textutil"
)

var _ catalog.DetailExtractor = (*DetailExtractor)(nil)

var (
	posterSelectors      = []string{".poster img", ".thumb img", "article img"}
	descriptionSelectors = []string{".description", ".synopsis", "[itemprop=description]", ".entry-content p"}
	ratingSelectors      = []string{"[itemprop=ratingValue]", ".rating", ".score", "[class*=rating]"}

	ratingValuePattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

type DetailExtractor struct {
	baseURL *url.URL
	servers *ServerRegistry
	logger  *slog.Logger
}

func NewDetailExtractor(baseURL string, servers *ServerRegistry, logger *slog.Logger) (*DetailExtractor, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if servers == nil {
		servers = DefaultServerRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailExtractor{baseURL: base, servers: servers, logger: logger}, nil
}

// ExtractTitleDetail never fails on missing metadata or a missing or broken
// episode payload; those yield empty fields and an empty episode list.
func (e *DetailExtractor) ExtractTitleDetail(ctx context.Context, html string, slug string, episodeFilter *int) (catalog.TitleDetail, error) {
	_, span := tracer.Start(ctx, "extractor.detail")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.slug", slug))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return catalog.TitleDetail{}, fmt.Errorf("parse detail page: %w", err)
	}

	detail := catalog.TitleDetail{
		Title:       e.title(doc, slug),
		Slug:        slug,
		Thumbnail:   e.thumbnail(doc),
		Description: description(doc),
		Rating:      rating(doc),
		Episodes:    e.episodes(doc, slug),
	}

	span.SetAttributes(attribute.Int("extractor.episodes", len(detail.Episodes)))
	return detail.FilterEpisode(episodeFilter), nil
}

func (e *DetailExtractor) title(doc *goquery.Document, slug string) string {
	if title := textutil.CleanText(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	if title := metaContent(doc, "og:title"); title != "" {
		return title
	}
	return textutil.PrettifySlug(slug)
}

func (e *DetailExtractor) thumbnail(doc *goquery.Document) string {
	for _, selector := range posterSelectors {
		if found := imageURL(e.baseURL, doc.Find(selector)); found != "" {
			return found
		}
	}
	if image := resolveURL(e.baseURL, metaContent(doc, "og:image")); image != nil {
		return image.String()
	}
	return ""
}

func description(doc *goquery.Document) string {
	for _, selector := range descriptionSelectors {
		if text := textutil.CleanText(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return metaContent(doc, "og:description")
}

func rating(doc *goquery.Document) string {
	for _, selector := range ratingSelectors {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, node *goquery.Selection) bool {
			raw := node.AttrOr("content", "")
			if raw == "" {
				raw = node.Text()
			}
			found = ratingValuePattern.FindString(textutil.CleanText(raw))
			return found == ""
		})
		if found != "" {
			return strings.ReplaceAll(found, ",", ".")
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, property string) string {
	selector := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, property, property)
	return textutil.CleanText(doc.Find(selector).First().AttrOr("content", ""))
}

func (e *DetailExtractor) episodes(doc *goquery.Document, slug string) []catalog.Episode {
	scripts := make([]string, 0, doc.Find("script").Length())
	doc.Find("script").Each(func(_ int, script *goquery.Selection) {
		scripts = append(scripts, script.Text())
	})

	literal, ok := locatePayload(scripts, e.servers)
	if !ok {
		e.logger.Debug("episode payload not found", "slug", slug)
		return []catalog.Episode{}
	}

	serverPairs, strategy, err := parsePayload(literal, e.servers)
	if err != nil {
		e.logger.Warn("episode payload unreadable", "slug", slug, "error", err)
		return []catalog.Episode{}
	}
	e.logger.Debug("episode payload parsed", "slug", slug, "strategy", strategy, "servers", len(serverPairs))

	return groupEpisodes(serverPairs, slug, e.logger)
}
