package extractor

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"

	"github.com/gabriel/tatakai-scraper/internal/catalog"
)

var (
	seasonEpisodePattern = regexp.MustCompile(`(?i)S(\d+)\s*E(\d+)`)
	digitRunPattern      = regexp.MustCompile(`\d+`)
)

// resolveEpisode maps a raw item label to an episode number. An SxEy label
// yields y and reports x as the season; otherwise the first digit run is the
// number. ok is false when the label cannot be attributed to an episode.
func resolveEpisode(label string) (number int, season int, ok bool) {
	if match := seasonEpisodePattern.FindStringSubmatch(label); len(match) == 3 {
		episode, err := strconv.Atoi(match[2])
		if err != nil || episode < 1 {
			return 0, 0, false
		}
		season, _ = strconv.Atoi(match[1])
		return episode, season, true
	}

	digits := digitRunPattern.FindString(label)
	if digits == "" {
		return 0, 0, false
	}
	episode, err := strconv.Atoi(digits)
	if err != nil || episode < 1 {
		return 0, 0, false
	}
	return episode, 0, true
}

// groupEpisodes flattens every server's items into one episode list sorted
// by number. Items from different seasons that share a number end up in the
// same episode; that merge is logged.
func groupEpisodes(serverPairs []ServerPairs, slug string, logger *slog.Logger) []catalog.Episode {
	byNumber := make(map[int]*catalog.Episode)
	seasons := make(map[int]int)
	warned := make(map[int]bool)

	for _, entry := range serverPairs {
		for _, pair := range entry.Pairs {
			number, season, ok := resolveEpisode(pair.Name)
			if !ok {
				continue
			}

			episode, exists := byNumber[number]
			if !exists {
				episode = &catalog.Episode{
					Number:  number,
					Title:   "Episode " + strconv.Itoa(number),
					Servers: make([]catalog.ServerLink, 0, len(serverPairs)),
				}
				byNumber[number] = episode
			}

			if season > 0 {
				first, seen := seasons[number]
				switch {
				case !seen:
					seasons[number] = season
				case first != season && !warned[number]:
					warned[number] = true
					logger.Warn("episodes from different seasons merged",
						"slug", slug,
						"episode", number,
						"seasons", []int{first, season},
					)
				}
			}

			episode.Servers = append(episode.Servers, catalog.ServerLink{
				ServerName: entry.Server.Name,
				URL:        pair.URL,
				Language:   catalog.DefaultLanguage,
				Season:     season,
			})
		}
	}

	episodes := make([]catalog.Episode, 0, len(byNumber))
	for _, episode := range byNumber {
		episodes = append(episodes, *episode)
	}
	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].Number < episodes[j].Number
	})
	return episodes
}
