package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// LinkPair is one raw {name, url} item of a server's episode list.
type LinkPair struct {
	Name string
	URL  string
}

// ServerPairs holds the raw items found for one registered server.
type ServerPairs struct {
	Server Server
	Pairs  []LinkPair
}

// payloadStrategy parses the embedded server object literal. Every strategy
// returns pairs ordered by the registry and limited to registered servers.
type payloadStrategy struct {
	name  string
	parse func(literal string, servers *ServerRegistry) ([]ServerPairs, error)
}

var payloadStrategies = []payloadStrategy{
	{name: "structured", parse: parseStructuredPayload},
	{name: "pattern", parse: parsePatternPayload},
}

var errNoServerLists = errors.New("no server lists found")

// parsePayload runs the strategies in order and returns the first success
// together with the name of the strategy that produced it.
func parsePayload(literal string, servers *ServerRegistry) ([]ServerPairs, string, error) {
	failures := make([]string, 0, len(payloadStrategies))
	for _, strategy := range payloadStrategies {
		pairs, err := strategy.parse(literal, servers)
		if err == nil {
			return pairs, strategy.name, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", strategy.name, err))
	}
	return nil, "", fmt.Errorf("parse server payload: %s", strings.Join(failures, " | "))
}

var (
	smartQuoteReplacer = strings.NewReplacer(
		"“", `"`,
		"”", `"`,
		"„", `"`,
		"‘", "'",
		"’", "'",
	)
	templateStringReplacer = strings.NewReplacer(
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
	)
)

func parseStructuredPayload(literal string, servers *ServerRegistry) ([]ServerPairs, error) {
	normalized, err := normalizeQuoteStyle(literal)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json5.Unmarshal([]byte(normalized), &decoded); err != nil {
		return nil, fmt.Errorf("decode object literal: %w", err)
	}

	byKey := make(map[string]any, len(decoded))
	for key, value := range decoded {
		lower := strings.ToLower(strings.TrimSpace(key))
		if _, exists := byKey[lower]; exists && key != lower {
			continue
		}
		byKey[lower] = value
	}

	out := make([]ServerPairs, 0, len(servers.servers))
	for _, server := range servers.servers {
		value, ok := byKey[server.Key]
		if !ok {
			continue
		}
		items, ok := value.([]any)
		if !ok {
			continue
		}

		pairs := make([]LinkPair, 0, len(items))
		for _, item := range items {
			object, ok := item.(map[string]any)
			if !ok {
				continue
			}
			pair := LinkPair{
				Name: scalarString(object["name"]),
				URL:  strings.TrimSpace(scalarString(object["url"])),
			}
			if pair.URL == "" {
				continue
			}
			pairs = append(pairs, pair)
		}
		out = append(out, ServerPairs{Server: server, Pairs: pairs})
	}

	return out, nil
}

// normalizeQuoteStyle rewrites typographic quotes and interpolation-free
// template strings into plain JSON5 strings.
func normalizeQuoteStyle(literal string) (string, error) {
	text := smartQuoteReplacer.Replace(literal)
	if !strings.Contains(text, "`") {
		return text, nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	var quote byte
	escaped := false
	for index := 0; index < len(text); index++ {
		ch := text[index]
		if quote != 0 {
			builder.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			quote = ch
			builder.WriteByte(ch)
		case '`':
			end := strings.IndexByte(text[index+1:], '`')
			if end < 0 {
				return "", fmt.Errorf("unterminated template string")
			}
			content := text[index+1 : index+1+end]
			if strings.Contains(content, "${") {
				return "", fmt.Errorf("template string interpolation is not supported")
			}
			builder.WriteByte('"')
			builder.WriteString(templateStringReplacer.Replace(content))
			builder.WriteByte('"')
			index += end + 1
		default:
			builder.WriteByte(ch)
		}
	}
	return builder.String(), nil
}

func scalarString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}

const quotedValue = `(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)'|` + "`([^`]*)`" + `)`

var (
	fieldKeyPattern    = regexp.MustCompile(`^\s*(?:` + quotedValue + `|([A-Za-z_$][\w$-]*))\s*$`)
	stringValuePattern = regexp.MustCompile(`^\s*` + quotedValue + `\s*$`)
	scalarValuePattern = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?|true|false)\s*$`)
)

// parsePatternPayload walks the literal field by field, skipping string
// contents, and reads keys and scalar values with targeted patterns. Values
// it cannot read, such as function calls, are ignored rather than failing
// the whole literal.
func parsePatternPayload(literal string, servers *ServerRegistry) ([]ServerPairs, error) {
	text := smartQuoteReplacer.Replace(strings.TrimSpace(literal))
	body, ok := delimitedBody(text, '{')
	if !ok {
		return nil, errNoServerLists
	}

	byKey := make(map[string]string)
	for _, field := range splitTopLevel(body, ',') {
		key, value, ok := splitField(field)
		if !ok {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(key))
		if _, exists := byKey[lower]; exists && key != lower {
			continue
		}
		byKey[lower] = value
	}

	out := make([]ServerPairs, 0, len(servers.servers))
	for _, server := range servers.servers {
		value, ok := byKey[server.Key]
		if !ok {
			continue
		}
		items, ok := delimitedBody(strings.TrimSpace(value), '[')
		if !ok {
			continue
		}

		pairs := make([]LinkPair, 0)
		for _, item := range splitTopLevel(items, ',') {
			pair, ok := patternPair(strings.TrimSpace(item))
			if !ok {
				continue
			}
			pairs = append(pairs, pair)
		}
		out = append(out, ServerPairs{Server: server, Pairs: pairs})
	}

	if len(out) == 0 {
		return nil, errNoServerLists
	}
	return out, nil
}

func patternPair(item string) (LinkPair, bool) {
	body, ok := delimitedBody(item, '{')
	if !ok {
		return LinkPair{}, false
	}

	var pair LinkPair
	for _, field := range splitTopLevel(body, ',') {
		key, value, ok := splitField(field)
		if !ok {
			continue
		}
		switch key {
		case "name":
			pair.Name = patternScalar(value)
		case "url":
			pair.URL = strings.TrimSpace(patternScalar(value))
		}
	}
	return pair, pair.URL != ""
}

// splitField cuts "key: value" at the first colon outside strings and
// brackets.
func splitField(field string) (string, string, bool) {
	colon := indexTopLevel(field, ':')
	if colon < 0 {
		return "", "", false
	}
	match := fieldKeyPattern.FindStringSubmatch(field[:colon])
	if match == nil {
		return "", "", false
	}
	return firstQuotedGroup(match), field[colon+1:], true
}

func patternScalar(value string) string {
	if match := stringValuePattern.FindStringSubmatch(value); match != nil {
		return firstQuotedGroup(match)
	}
	match := scalarValuePattern.FindStringSubmatch(value)
	if match == nil {
		return ""
	}
	if number, err := strconv.ParseFloat(match[1], 64); err == nil {
		return strconv.FormatFloat(number, 'f', -1, 64)
	}
	return match[1]
}

func firstQuotedGroup(match []string) string {
	for index := 1; index < len(match); index++ {
		if match[index] == "" {
			continue
		}
		if index <= 2 {
			return unescapeString(match[index])
		}
		return match[index]
	}
	return ""
}

func unescapeString(raw string) string {
	if !strings.Contains(raw, `\`) {
		return raw
	}
	replaced := strings.NewReplacer(`\/`, "/", `\'`, "'").Replace(raw)
	unquoted, err := strconv.Unquote(`"` + replaced + `"`)
	if err != nil {
		return replaced
	}
	return unquoted
}

// walkCode calls visit for every byte of text outside string literals,
// passing the bracket depth in effect before that byte. The walk stops when
// visit returns false.
func walkCode(text string, visit func(index int, depth int) bool) {
	depth := 0
	var quote byte
	escaped := false
	for index := 0; index < len(text); index++ {
		ch := text[index]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			}
			continue
		}
		if !visit(index, depth) {
			return
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		}
	}
}

// matchingDelimiter returns the index closing the bracket at start, or -1.
func matchingDelimiter(text string, start int) int {
	end := -1
	walkCode(text[start:], func(index int, depth int) bool {
		switch text[start+index] {
		case '}', ']', ')':
			if depth == 1 {
				end = start + index
				return false
			}
		}
		return true
	})
	return end
}

// delimitedBody returns what lies between text's opening bracket and its
// match.
func delimitedBody(text string, open byte) (string, bool) {
	if text == "" || text[0] != open {
		return "", false
	}
	end := matchingDelimiter(text, 0)
	if end < 0 {
		return "", false
	}
	return text[1:end], true
}

func splitTopLevel(text string, sep byte) []string {
	parts := make([]string, 0, 4)
	last := 0
	walkCode(text, func(index int, depth int) bool {
		if depth == 0 && text[index] == sep {
			parts = append(parts, text[last:index])
			last = index + 1
		}
		return true
	})
	return append(parts, text[last:])
}

func indexTopLevel(text string, sep byte) int {
	found := -1
	walkCode(text, func(index int, depth int) bool {
		if depth == 0 && text[index] == sep {
			found = index
			return false
		}
		return true
	})
	return found
}

// locatePayload cuts the object literal holding the server lists out of the
// page's scripts.
func locatePayload(scripts []string, servers *ServerRegistry) (string, bool) {
	for _, script := range scripts {
		for _, server := range servers.servers {
			loc := servers.patterns[server.Key].FindStringIndex(script)
			if loc == nil {
				continue
			}
			if literal, ok := enclosingObject(script, loc[0]); ok {
				return literal, true
			}
		}
	}
	return "", false
}

// enclosingObject returns the innermost {...} containing position at,
// skipping braces inside string literals.
func enclosingObject(script string, at int) (string, bool) {
	open := make([]int, 0, 4)
	walkCode(script, func(index int, _ int) bool {
		if index >= at {
			return false
		}
		switch script[index] {
		case '{':
			open = append(open, index)
		case '}':
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		}
		return true
	})
	if len(open) == 0 {
		return "", false
	}

	start := open[len(open)-1]
	end := matchingDelimiter(script, start)
	if end < 0 {
		return "", false
	}
	return script[start : end+1], true
}
