package extractor

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Server is one streaming host whose episode list may appear in the
// embedded payload of a title page.
type Server struct {
	Key  string
	Name string
}

var defaultServerKeys = []string{
	"servabyss",
	"filemoon",
	"streamwish",
	"vidhide",
	"doodstream",
	"streamtape",
}

func DefaultServers() []Server {
	servers := make([]Server, 0, len(defaultServerKeys))
	for _, key := range defaultServerKeys {
		servers = append(servers, Server{Key: key, Name: displayName(key)})
	}
	return servers
}

// ServerRegistry keeps the known servers in priority order. Payload keys
// that are not registered are ignored.
type ServerRegistry struct {
	servers  []Server
	byKey    map[string]Server
	// patterns find "<key>: [" in page scripts.
	patterns map[string]*regexp.Regexp
}

func NewServerRegistry(servers []Server) (*ServerRegistry, error) {
	registry := &ServerRegistry{
		servers:  make([]Server, 0, len(servers)),
		byKey:    make(map[string]Server, len(servers)),
		patterns: make(map[string]*regexp.Regexp, len(servers)),
	}
	for _, server := range servers {
		if err := registry.register(server); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func DefaultServerRegistry() *ServerRegistry {
	registry, err := NewServerRegistry(DefaultServers())
	if err != nil {
		panic(err)
	}
	return registry
}

func (r *ServerRegistry) register(server Server) error {
	key := strings.ToLower(strings.TrimSpace(server.Key))
	if key == "" {
		return fmt.Errorf("server key is required")
	}
	if strings.ContainsFunc(key, func(ch rune) bool { return !isKeyRune(ch) }) {
		return fmt.Errorf("server key %q must contain only letters, digits, '_' or '-'", key)
	}
	if _, exists := r.byKey[key]; exists {
		return fmt.Errorf("server %q already registered", key)
	}

	name := strings.TrimSpace(server.Name)
	if name == "" {
		name = displayName(key)
	}

	server = Server{Key: key, Name: name}
	quoted := regexp.QuoteMeta(key)
	r.patterns[key] = regexp.MustCompile(`(?i)["']?\b` + quoted + `["']?\s*:\s*\[`)
	r.byKey[key] = server
	r.servers = append(r.servers, server)
	return nil
}

// Keys returns the registered keys sorted alphabetically.
func (r *ServerRegistry) Keys() []string {
	keys := make([]string, 0, len(r.servers))
	for _, server := range r.servers {
		keys = append(keys, server.Key)
	}
	sort.Strings(keys)
	return keys
}

type serverFile struct {
	Servers []serverConfig `yaml:"servers"`
}

type serverConfig struct {
	Key     string `yaml:"key"`
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled"`
}

func (c serverConfig) isEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// LoadServerRegistry reads the server list from a YAML file. An empty path
// or a missing file yields the built-in registry.
func LoadServerRegistry(path string) (*ServerRegistry, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return DefaultServerRegistry(), nil
	}

	content, err := os.ReadFile(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultServerRegistry(), nil
		}
		return nil, fmt.Errorf("read servers file: %w", err)
	}

	var file serverFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse servers file: %w", err)
	}

	servers := make([]Server, 0, len(file.Servers))
	for _, cfg := range file.Servers {
		if !cfg.isEnabled() {
			continue
		}
		servers = append(servers, Server{Key: cfg.Key, Name: cfg.Name})
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("servers file %s enables no servers", trimmed)
	}

	registry, err := NewServerRegistry(servers)
	if err != nil {
		return nil, fmt.Errorf("servers file %s: %w", trimmed, err)
	}
	return registry, nil
}

func displayName(key string) string {
	if key == "" {
		return ""
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

func isKeyRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}
