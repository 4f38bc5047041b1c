package catalog

import "context"

// SearchExtractor turns a search results page into catalog entries.
type SearchExtractor interface {
	ExtractSearchResults(ctx context.Context, html string) ([]CatalogEntry, error)
}

// DetailExtractor turns a title page into a detail with its episode list.
// A nil episodeFilter keeps every episode.
type DetailExtractor interface {
	ExtractTitleDetail(ctx context.Context, html string, slug string, episodeFilter *int) (TitleDetail, error)
}
