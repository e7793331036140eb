package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(
		&ServerConfig{Name: "firecrawl", URL: "https://api.firecrawl.dev", Capability: CapabilityWebResearch},
		&ServerConfig{Name: "docs-qa", URL: "https://docs.example.com/mcp"},
	)
	ctx := context.Background()

	cfg, err := r.Resolve(ctx, "firecrawl")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg == nil || cfg.URL != "https://api.firecrawl.dev" {
		t.Errorf("cfg = %+v", cfg)
	}

	// Absence is not an error.
	cfg, err = r.Resolve(ctx, "missing")
	if err != nil || cfg != nil {
		t.Errorf("absent entry: cfg=%+v err=%v", cfg, err)
	}
}

func TestStaticResolverMany(t *testing.T) {
	r := NewStaticResolver(
		&ServerConfig{Name: "a", URL: "https://a"},
		&ServerConfig{Name: "b", URL: "https://b"},
	)

	configs, err := r.ResolveMany(context.Background(), []string{"a", "nope", "b"})
	if err != nil {
		t.Fatalf("ResolveMany: %v", err)
	}
	if len(configs) != 2 || configs[0].Name != "a" || configs[1].Name != "b" {
		t.Errorf("configs = %+v", configs)
	}
}

func TestStaticResolverCancelledContext(t *testing.T) {
	r := NewStaticResolver(&ServerConfig{Name: "a", URL: "https://a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Resolve(ctx, "a"); err == nil {
		t.Error("expected context error from Resolve")
	}
	if _, err := r.ResolveMany(ctx, []string{"a"}); err == nil {
		t.Error("expected context error from ResolveMany")
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	content := `{
	  "servers": {
	    "firecrawl": {"url": "https://api.firecrawl.dev", "capability": "web-research"},
	    "named": {"name": "explicit", "url": "https://named.example.com"}
	  }
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	ctx := context.Background()
	cfg, err := r.Resolve(ctx, "firecrawl")
	if err != nil || cfg == nil {
		t.Fatalf("firecrawl: cfg=%v err=%v", cfg, err)
	}
	if cfg.Name != "firecrawl" {
		t.Errorf("map key should fill the missing name, got %q", cfg.Name)
	}
	if cfg.Capability != CapabilityWebResearch {
		t.Errorf("capability = %q", cfg.Capability)
	}

	// An explicit name wins over the map key.
	cfg, err = r.Resolve(ctx, "explicit")
	if err != nil || cfg == nil {
		t.Fatalf("explicit: cfg=%v err=%v", cfg, err)
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Error("expected error for malformed catalog")
	}
}
