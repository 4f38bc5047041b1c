package extractor

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gabriel/tatakai-scraper/internal/catalog"
)

const detailPageHTML = `<!doctype html>
<html><head>
<meta property="og:image" content="https://cdn.example/aot.jpg">
<meta property="og:description" content="Humanity fights for survival.">
</head><body>
<h1>Attack on Titan</h1>
<div class="rating">Rating: 8.9 / 10</div>
<script>var analytics = {id: 1};</script>
<script>
  const episodeData = {
    servabyss: [{"name":"S1E1","url":"https://x/1"}, {"name":"S1E2","url":"https://x/2"}],
    filemoon: [{"name":"01","url":"https://y/1"}]
  };
</script>
</body></html>`

func newTestDetailExtractor(t *testing.T) *DetailExtractor {
	t.Helper()
	extractor, err := NewDetailExtractor(testBaseURL, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new detail extractor: %v", err)
	}
	return extractor
}

func TestExtractTitleDetailMergesServerNamingSchemes(t *testing.T) {
	extractor := newTestDetailExtractor(t)

	detail, err := extractor.ExtractTitleDetail(context.Background(), detailPageHTML, "attack-on-titan", nil)
	if err != nil {
		t.Fatalf("extract detail: %v", err)
	}

	want := catalog.TitleDetail{
		Title:       "Attack on Titan",
		Slug:        "attack-on-titan",
		Thumbnail:   "https://cdn.example/aot.jpg",
		Description: "Humanity fights for survival.",
		Rating:      "8.9",
		Episodes: []catalog.Episode{
			{
				Number: 1,
				Title:  "Episode 1",
				Servers: []catalog.ServerLink{
					{ServerName: "Servabyss", URL: "https://x/1", Language: "Hindi", Season: 1},
					{ServerName: "Filemoon", URL: "https://y/1", Language: "Hindi"},
				},
			},
			{
				Number: 2,
				Title:  "Episode 2",
				Servers: []catalog.ServerLink{
					{ServerName: "Servabyss", URL: "https://x/2", Language: "Hindi", Season: 1},
				},
			},
		},
	}
	if diff := cmp.Diff(want, detail); diff != "" {
		t.Fatalf("unexpected detail (-want +got):\n%s", diff)
	}
}

func TestExtractTitleDetailAppliesEpisodeFilter(t *testing.T) {
	extractor := newTestDetailExtractor(t)

	two := 2
	detail, err := extractor.ExtractTitleDetail(context.Background(), detailPageHTML, "attack-on-titan", &two)
	if err != nil {
		t.Fatalf("extract detail: %v", err)
	}
	if len(detail.Episodes) != 1 || detail.Episodes[0].Number != 2 {
		t.Fatalf("expected only episode 2, got %+v", detail.Episodes)
	}

	missing := 40
	detail, err = extractor.ExtractTitleDetail(context.Background(), detailPageHTML, "attack-on-titan", &missing)
	if err != nil {
		t.Fatalf("extract detail: %v", err)
	}
	if detail.Episodes == nil || len(detail.Episodes) != 0 {
		t.Fatalf("expected empty episode list, got %#v", detail.Episodes)
	}
}

func TestExtractTitleDetailWithoutPayload(t *testing.T) {
	extractor := newTestDetailExtractor(t)

	html := `<html><body>
<div class="poster"><img data-src="/covers/bleach.jpg"></div>
<div class="synopsis"><p>Ichigo gains <b>soul reaper</b> powers.</p></div>
<script>console.log("no episodes here")</script>
</body></html>`

	detail, err := extractor.ExtractTitleDetail(context.Background(), html, "bleach", nil)
	if err != nil {
		t.Fatalf("extract detail: %v", err)
	}
	if detail.Title != "Bleach" {
		t.Fatalf("expected slug fallback title, got %q", detail.Title)
	}
	if detail.Thumbnail != "https://hindidubanime.example/covers/bleach.jpg" {
		t.Fatalf("unexpected thumbnail %q", detail.Thumbnail)
	}
	if detail.Description != "Ichigo gains soul reaper powers." {
		t.Fatalf("unexpected description %q", detail.Description)
	}
	if detail.Rating != "" {
		t.Fatalf("expected no rating, got %q", detail.Rating)
	}
	if detail.Episodes == nil || len(detail.Episodes) != 0 {
		t.Fatalf("expected empty non-nil episodes, got %#v", detail.Episodes)
	}
}

func TestExtractTitleDetailFallsBackToPatternStrategy(t *testing.T) {
	extractor := newTestDetailExtractor(t)

	html := `<html><body><h1>Jujutsu Kaisen</h1>
<script>
window.__eps = {
  servabyss: [{name: "Episode 3", url: "https://x/3"}, {url: 'https://x/4', name: 'Episode 4'}],
  streamtape: [{"name": "Ep 03", "url": "https://z/3"}],
  unknownhost: [{"name": "1", "url": "https://u/1"}],
  build: renderPlayer(),
};
</script></body></html>`

	detail, err := extractor.ExtractTitleDetail(context.Background(), html, "jujutsu-kaisen", nil)
	if err != nil {
		t.Fatalf("extract detail: %v", err)
	}
	if len(detail.Episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %+v", detail.Episodes)
	}

	three := detail.Episodes[0]
	if three.Number != 3 || len(three.Servers) != 2 {
		t.Fatalf("unexpected episode 3: %+v", three)
	}
	if three.Servers[0].ServerName != "Servabyss" || three.Servers[1].ServerName != "Streamtape" {
		t.Fatalf("unexpected server order: %+v", three.Servers)
	}
	if detail.Episodes[1].Number != 4 || detail.Episodes[1].Servers[0].URL != "https://x/4" {
		t.Fatalf("unexpected episode 4: %+v", detail.Episodes[1])
	}
}
