package catalog

const DefaultLanguage = "Hindi"

type CatalogEntry struct {
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	URL        string   `json:"url"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
	Categories []string `json:"categories"`
}

type SearchResult struct {
	AnimeList  []CatalogEntry `json:"animeList"`
	TotalFound int            `json:"totalFound"`
}

type ServerLink struct {
	ServerName string `json:"serverName"`
	URL        string `json:"url"`
	Language   string `json:"language"`
	// Season is set when the upstream label carried one (S2E5).
	Season int `json:"season,omitempty"`
}

type Episode struct {
	Number  int          `json:"number"`
	Title   string       `json:"title"`
	Servers []ServerLink `json:"servers"`
}

type TitleDetail struct {
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Description string    `json:"description,omitempty"`
	Rating      string    `json:"rating,omitempty"`
	Episodes    []Episode `json:"episodes"`
}

func NewSearchResult(entries []CatalogEntry) SearchResult {
	if entries == nil {
		entries = []CatalogEntry{}
	}
	return SearchResult{AnimeList: entries, TotalFound: len(entries)}
}

// FilterEpisode returns a copy of the detail holding only the given episode
// number. A nil filter returns the detail unchanged.
func (d TitleDetail) FilterEpisode(number *int) TitleDetail {
	if number == nil {
		return d
	}
	filtered := d
	filtered.Episodes = make([]Episode, 0, 1)
	for _, episode := range d.Episodes {
		if episode.Number == *number {
			filtered.Episodes = append(filtered.Episodes, episode)
		}
	}
	return filtered
}
