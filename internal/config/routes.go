package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RouteEntry is one row of the route table: a path pattern with {name}
// wildcard segments, the verb it answers to, and the downstream URL
// template the captures substitute into. QueryParams are fixed parameters
// appended to every downstream call for the route, e.g. an API version pin.
type RouteEntry struct {
	Path        string            `yaml:"path"`
	Method      string            `yaml:"method"`
	Target      string            `yaml:"target"`
	CacheTTL    time.Duration     `yaml:"cache_ttl,omitempty"`
	QueryParams map[string]string `yaml:"query_params,omitempty"`
}

// UnmarshalYAML parses cache_ttl from duration strings like "30s".
func (e *RouteEntry) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Path        string            `yaml:"path"`
		Method      string            `yaml:"method"`
		Target      string            `yaml:"target"`
		CacheTTL    string            `yaml:"cache_ttl"`
		QueryParams map[string]string `yaml:"query_params"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	e.Path = raw.Path
	e.Method = raw.Method
	e.Target = raw.Target
	e.QueryParams = raw.QueryParams
	if raw.CacheTTL != "" {
		d, err := time.ParseDuration(raw.CacheTTL)
		if err != nil {
			return fmt.Errorf("route %s: invalid cache_ttl: %w", raw.Path, err)
		}
		e.CacheTTL = d
	}
	return nil
}

// RateLimitPolicy is the per-key-type limit for one window.
type RateLimitPolicy struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// UnmarshalYAML parses window from duration strings like "1m".
func (p *RateLimitPolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Limit  int    `yaml:"limit"`
		Window string `yaml:"window"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	p.Limit = raw.Limit
	if raw.Window != "" {
		d, err := time.ParseDuration(raw.Window)
		if err != nil {
			return fmt.Errorf("invalid rate limit window: %w", err)
		}
		p.Window = d
	}
	return nil
}

// RouteFile is the on-disk gateway routing and policy document.
type RouteFile struct {
	Routes      []RouteEntry               `yaml:"routes"`
	RateLimits  map[string]RateLimitPolicy `yaml:"rate_limits"`
	PublicPaths []string                   `yaml:"public_paths"`
}

// LoadRoutes parses the YAML route table at path.
func LoadRoutes(path string) (*RouteFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read route file: %w", err)
	}

	var rf RouteFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("couldn't parse route file: %w", err)
	}

	if len(rf.Routes) == 0 {
		return nil, fmt.Errorf("route file %s declares no routes", path)
	}
	for i, r := range rf.Routes {
		if r.Path == "" || r.Method == "" || r.Target == "" {
			return nil, fmt.Errorf("route %d is missing path, method, or target", i)
		}
	}

	return &rf, nil
}
