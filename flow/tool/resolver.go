package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// Resolver maps symbolic tool-server identifiers to connection
// descriptors. The catalog that backs a Resolver (database, registry
// service, config file) is external to the execution engine; executors
// only consume this interface.
type Resolver interface {
	// Resolve returns the config for a single identifier, or nil if the
	// identifier is unknown. The error return is reserved for lookup
	// transport failures, not for absent entries.
	Resolve(ctx context.Context, id string) (*ServerConfig, error)

	// ResolveMany resolves a batch of identifiers. Unknown identifiers are
	// dropped silently from the result.
	ResolveMany(ctx context.Context, ids []string) ([]*ServerConfig, error)
}

// StaticResolver is a map-backed Resolver for tests, demos, and
// file-based catalogs.
type StaticResolver struct {
	servers map[string]*ServerConfig
}

// NewStaticResolver creates a resolver over a fixed set of configs,
// keyed by ServerConfig.Name.
func NewStaticResolver(configs ...*ServerConfig) *StaticResolver {
	m := make(map[string]*ServerConfig, len(configs))
	for _, c := range configs {
		m[c.Name] = c
	}
	return &StaticResolver{servers: m}
}

// Resolve implements Resolver. Absent entries log a warning and return
// nil without error so callers can decide whether absence is fatal.
func (r *StaticResolver) Resolve(ctx context.Context, id string) (*ServerConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, ok := r.servers[id]
	if !ok {
		log.Warn().Str("server", id).Msg("tool server not found in catalog")
		return nil, nil
	}
	return cfg, nil
}

// ResolveMany implements Resolver. Unknown identifiers are dropped.
func (r *StaticResolver) ResolveMany(ctx context.Context, ids []string) ([]*ServerConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*ServerConfig, 0, len(ids))
	for _, id := range ids {
		if cfg, ok := r.servers[id]; ok {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// LoadCatalog reads a JSON catalog file mapping server names to configs
// and returns a StaticResolver over it.
//
// File format:
//
//	{
//	  "servers": {
//	    "firecrawl": {"url": "https://api.firecrawl.dev", "capability": "web-research"},
//	    "docs-qa":   {"url": "https://docs.example.com/mcp", "authToken": "${DOCS_TOKEN}"}
//	  }
//	}
func LoadCatalog(path string) (*StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool catalog %s: %w", path, err)
	}

	var catalog struct {
		Servers map[string]*ServerConfig `json:"servers"`
	}
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse tool catalog %s: %w", path, err)
	}

	configs := make([]*ServerConfig, 0, len(catalog.Servers))
	for name, cfg := range catalog.Servers {
		if cfg.Name == "" {
			cfg.Name = name
		}
		configs = append(configs, cfg)
	}
	return NewStaticResolver(configs...), nil
}
