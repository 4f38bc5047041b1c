package extractor

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolveEpisode(t *testing.T) {
	cases := []struct {
		label  string
		number int
		season int
		ok     bool
	}{
		{label: "S5E12", number: 12, season: 5, ok: true},
		{label: "s02e07", number: 7, season: 2, ok: true},
		{label: "S1 E3", number: 3, season: 1, ok: true},
		{label: "Episode 7", number: 7, ok: true},
		{label: "01", number: 1, ok: true},
		{label: "no-digits-here"},
		{label: "Episode 0"},
		{label: "S1E0"},
		{label: ""},
	}

	for _, tc := range cases {
		number, season, ok := resolveEpisode(tc.label)
		if number != tc.number || season != tc.season || ok != tc.ok {
			t.Fatalf("resolveEpisode(%q) = (%d, %d, %v), want (%d, %d, %v)",
				tc.label, number, season, ok, tc.number, tc.season, tc.ok)
		}
	}
}

func TestGroupEpisodesDropsUnattributableLabels(t *testing.T) {
	registry := DefaultServerRegistry()
	servabyss := registry.byKey["servabyss"]

	episodes := groupEpisodes([]ServerPairs{{
		Server: servabyss,
		Pairs: []LinkPair{
			{Name: "Episode 7", URL: "https://x/7"},
			{Name: "no-digits-here", URL: "https://x/none"},
			{Name: "S5E12", URL: "https://x/12"},
		},
	}}, "naruto", slog.New(slog.NewTextHandler(io.Discard, nil)))

	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %+v", episodes)
	}
	if episodes[0].Number != 7 || episodes[1].Number != 12 {
		t.Fatalf("expected episodes 7 and 12 in order, got %d and %d", episodes[0].Number, episodes[1].Number)
	}
}

func TestGroupEpisodesMergesSeasonsOnSameNumber(t *testing.T) {
	registry := DefaultServerRegistry()
	filemoon := registry.byKey["filemoon"]

	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	episodes := groupEpisodes([]ServerPairs{{
		Server: filemoon,
		Pairs: []LinkPair{
			{Name: "S1E1", URL: "https://y/s1e1"},
			{Name: "S2E1", URL: "https://y/s2e1"},
		},
	}}, "demon-slayer", logger)

	if len(episodes) != 1 || len(episodes[0].Servers) != 2 {
		t.Fatalf("expected one merged episode with 2 servers, got %+v", episodes)
	}
	if episodes[0].Servers[0].Season != 1 || episodes[0].Servers[1].Season != 2 {
		t.Fatalf("expected seasons to be kept on links, got %+v", episodes[0].Servers)
	}
	if !strings.Contains(logs.String(), "episodes from different seasons merged") {
		t.Fatalf("expected merge warning, got logs %q", logs.String())
	}
}

func TestPayloadStrategiesAgreeOnWellFormedLiteral(t *testing.T) {
	registry := DefaultServerRegistry()
	literals := []string{
		`{"servabyss":[{"name":"S1E1","url":"https://x/1"},{"name":"S1E2","url":"https:\/\/x\/2"}],"filemoon":[{"name":"01","url":"https://y/1"}]}`,
		`{servabyss: [{name: 'Episode 1', url: 'https://x/1'}], vidhide: [], streamwish: [{url: "https://w/5", name: 5}]}`,
		`{ "doodstream": [ { "url": "https://d/1", "name": "S2E01" } ], "other": [ { "name": "1", "url": "https://o/1" } ] }`,
		`{"servabyss":[{"name":"Episode 1 [HD]","url":"https://x/1"},{"name":"Episode 2","url":"https://x/2"}],"filemoon":[{"name":"{01}","url":"https://y/1"}]}`,
		`{note: "servabyss: [", vidhide: [{name: "it's, 3", url: 'https://v/3?a=[1]', extra: {nested: "url: 'bad'"}}], streamtape: [{name: 4.0, url: "https://t/4"}]}`,
	}

	for _, literal := range literals {
		structured, err := parseStructuredPayload(literal, registry)
		if err != nil {
			t.Fatalf("structured strategy failed on %s: %v", literal, err)
		}
		pattern, err := parsePatternPayload(literal, registry)
		if err != nil {
			t.Fatalf("pattern strategy failed on %s: %v", literal, err)
		}
		if diff := cmp.Diff(structured, pattern); diff != "" {
			t.Fatalf("strategies disagree on %s (-structured +pattern):\n%s", literal, diff)
		}
	}
}

func TestParsePayloadPicksFirstWorkingStrategy(t *testing.T) {
	registry := DefaultServerRegistry()

	_, strategy, err := parsePayload(`{servabyss: [{name: "1", url: "https://x/1"}]}`, registry)
	if err != nil || strategy != "structured" {
		t.Fatalf("expected structured strategy, got %q (%v)", strategy, err)
	}

	pairs, strategy, err := parsePayload(`{servabyss: [{name: "1", url: "https://x/1"}], player: load()}`, registry)
	if err != nil || strategy != "pattern" {
		t.Fatalf("expected pattern strategy, got %q (%v)", strategy, err)
	}
	if len(pairs) != 1 || len(pairs[0].Pairs) != 1 || pairs[0].Pairs[0].URL != "https://x/1" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}

	if _, _, err := parsePayload(`{player: load()}`, registry); err == nil {
		t.Fatalf("expected error when no strategy finds server lists")
	}
}

func TestParseStructuredPayloadNormalizesQuoteStyle(t *testing.T) {
	registry := DefaultServerRegistry()

	cases := []string{
		"{servabyss: [{“name”: “Episode 3”, “url”: “https://x/3”}]}",
		"{servabyss: [{name: `Episode 3`, url: `https://x/3`}]}",
	}
	for _, literal := range cases {
		pairs, err := parseStructuredPayload(literal, registry)
		if err != nil {
			t.Fatalf("structured strategy failed on %s: %v", literal, err)
		}
		if len(pairs) != 1 || len(pairs[0].Pairs) != 1 {
			t.Fatalf("unexpected pairs for %s: %+v", literal, pairs)
		}
		if got := pairs[0].Pairs[0]; got.Name != "Episode 3" || got.URL != "https://x/3" {
			t.Fatalf("unexpected pair for %s: %+v", literal, got)
		}
	}

	if _, err := parseStructuredPayload("{servabyss: [{name: `Episode ${n}`, url: 'https://x'}]}", registry); err == nil {
		t.Fatalf("expected interpolated template string to be rejected")
	}
}

func TestLocatePayloadSkipsBracesInsideStrings(t *testing.T) {
	registry := DefaultServerRegistry()
	scripts := []string{
		`var ga = {id: "UA-1"};`,
		`var page = {note: "a { brace", servabyss: [{"name":"1","url":"https://x/1"}], tail: "}"}; init(page);`,
	}

	literal, ok := locatePayload(scripts, registry)
	if !ok {
		t.Fatalf("expected payload to be located")
	}
	want := `{note: "a { brace", servabyss: [{"name":"1","url":"https://x/1"}], tail: "}"}`
	if literal != want {
		t.Fatalf("unexpected literal:\n got %s\nwant %s", literal, want)
	}

	if _, ok := locatePayload([]string{`console.log("servabyss")`}, registry); ok {
		t.Fatalf("expected no payload without a server list")
	}
}

func TestLoadServerRegistry(t *testing.T) {
	registry, err := LoadServerRegistry("")
	if err != nil {
		t.Fatalf("load default registry: %v", err)
	}
	if len(registry.servers) != 6 || registry.servers[0].Name != "Servabyss" {
		t.Fatalf("unexpected default registry %+v", registry.servers)
	}

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "servers.yaml")
	content := `
servers:
  - key: Filemoon
  - key: vidhide
    name: VidHide Pro
  - key: streamtape
    enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write servers file: %v", err)
	}

	registry, err = LoadServerRegistry(path)
	if err != nil {
		t.Fatalf("load servers file: %v", err)
	}
	want := []Server{
		{Key: "filemoon", Name: "Filemoon"},
		{Key: "vidhide", Name: "VidHide Pro"},
	}
	if diff := cmp.Diff(want, registry.servers); diff != "" {
		t.Fatalf("unexpected servers (-want +got):\n%s", diff)
	}
	if _, ok := registry.byKey["streamtape"]; ok {
		t.Fatalf("disabled server must not be registered")
	}

	duplicate := filepath.Join(tmpDir, "dup.yaml")
	if err := os.WriteFile(duplicate, []byte("servers:\n  - key: filemoon\n  - key: FILEMOON\n"), 0o644); err != nil {
		t.Fatalf("write duplicate file: %v", err)
	}
	if _, err := LoadServerRegistry(duplicate); err == nil {
		t.Fatalf("expected duplicate key error")
	}

	if registry, err := LoadServerRegistry(filepath.Join(tmpDir, "missing.yaml")); err != nil || len(registry.servers) != 6 {
		t.Fatalf("expected default registry for missing file, got %v", err)
	}
}
