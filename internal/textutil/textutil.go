// Package textutil holds the text cleanup shared by the extractors and the
// cache key builder.
package textutil

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var normalizeReplacer = strings.NewReplacer(
	"-", " ",
	".", " ",
	"_", " ",
	",", " ",
	":", " ",
	";", " ",
	"!", " ",
	"?", " ",
	"(", " ",
	")", " ",
	"[", " ",
	"]", " ",
	"'", " ",
	"\"", " ",
	"/", " ",
	"\\", " ",
	"|", " ",
	"+", " ",
	"#", " ",
	"&", " ",
	"*", " ",
)

var (
	htmlTagPattern    = regexp.MustCompile(`(?is)<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// NormalizeQuery lower-cases a search title and collapses punctuation and
// whitespace so that equivalent queries share one cache key.
func NormalizeQuery(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	if clean == "" {
		return ""
	}
	clean = normalizeReplacer.Replace(clean)
	return strings.Join(strings.Fields(clean), " ")
}

// CleanText strips tags, unescapes entities and collapses whitespace.
func CleanText(raw string) string {
	text := htmlTagPattern.ReplaceAllString(raw, " ")
	text = html.UnescapeString(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// PrettifySlug turns "one-piece-film" into "One Piece Film".
func PrettifySlug(slug string) string {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return ""
	}

	trimmed = strings.NewReplacer("-", " ", "_", " ").Replace(trimmed)
	parts := strings.Fields(trimmed)
	for index := range parts {
		first, size := utf8.DecodeRuneInString(parts[index])
		parts[index] = string(unicode.ToUpper(first)) + parts[index][size:]
	}
	return strings.Join(parts, " ")
}

// UniqueNonEmpty trims values and drops blanks and case-insensitive repeats,
// keeping the first spelling seen.
func UniqueNonEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	unique := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, trimmed)
	}

	return unique
}
