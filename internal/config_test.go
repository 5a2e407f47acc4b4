package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgconfig "github.com/starford/raido/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Build.ImageQuality != 75 {
		t.Errorf("ImageQuality = %v, want 75", cfg.Build.ImageQuality)
	}
	if !cfg.Build.PassThroughWebP {
		t.Error("PassThroughWebP should default to true")
	}
}

func TestSiteConfig_EntryMustBeMarkdown(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Site.Entry = "index.html"
	if err := cfg.Validate(); err == nil {
		t.Fatal("non-markdown entry should fail validation")
	}
}

func TestSiteConfig_EmptyKeepAllowed(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Site.Keep = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty keep should pass: %v", err)
	}
}

func TestBuildConfig_QualityRange(t *testing.T) {
	for _, q := range []float32{0, 101} {
		cfg := NewDefaultConfig()
		cfg.Build.ImageQuality = q
		if err := cfg.Validate(); err == nil {
			t.Errorf("quality %v should fail validation", q)
		}
	}
}

func TestConfig_ResolveRelativePaths(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Site.Output = "/srv/www"
	cfg.Resolve("/etc/site")

	if want := filepath.Join("/etc/site", "src"); cfg.Site.Source != want {
		t.Errorf("Source = %q, want %q", cfg.Site.Source, want)
	}
	if cfg.Site.Output != "/srv/www" {
		t.Errorf("absolute Output changed to %q", cfg.Site.Output)
	}
	if cfg.Site.Entry != "index.md" {
		t.Errorf("Entry must stay source-relative, got %q", cfg.Site.Entry)
	}
}

func TestConfig_LoadTOML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "raido.toml")
	content := `
[app]
log_level = "debug"

[site]
source = "content"

[build]
tolerate_font_failures = true

[fetch]
timeout = "5s"
`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(p, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.App.LogLevel)
	}
	if cfg.Site.Source != filepath.Join(dir, "content") {
		t.Errorf("Source = %q", cfg.Site.Source)
	}
	if !cfg.Build.TolerateFontFailures {
		t.Error("TolerateFontFailures not loaded")
	}
	if time.Duration(cfg.Fetch.Timeout) != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", time.Duration(cfg.Fetch.Timeout))
	}
	if cfg.Build.DateLayout == "" {
		t.Error("defaults must survive partial config")
	}
}

func TestConfig_LoadYAMLInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "raido.yaml")
	if err := os.WriteFile(p, []byte("site:\n  entry: home.txt\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := pkgconfig.Load(p, NewDefaultConfig()); err == nil {
		t.Fatal("invalid entry should fail")
	}
}
