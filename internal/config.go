package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/assets"
	"github.com/starford/raido/internal/highlight"
	"github.com/starford/raido/internal/shell"
	"github.com/starford/raido/internal/styles"
)

var markdownPath = regexp.MustCompile(`\.md$`)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app" toml:"app"`
	Site      SiteConfig        `yaml:"site" toml:"site"`
	Styles    StylesConfig      `yaml:"styles" toml:"styles"`
	Highlight HighlightConfig   `yaml:"highlight" toml:"highlight"`
	Build     BuildConfig       `yaml:"build" toml:"build"`
	Fetch     FetchConfig       `yaml:"fetch" toml:"fetch"`
	SQLite    SQLiteConfig      `yaml:"sqlite" toml:"sqlite"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Styles.Validate(); err != nil {
		return fmt.Errorf("styles: %w", err)
	}
	if err := c.Build.Validate(); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := c.Fetch.Validate(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return c.SQLite.Validate()
}

// Resolve makes every relative path absolute against baseDir, the
// directory of the configuration file.
func (c *Config) Resolve(baseDir string) {
	for _, p := range []*string{
		&c.Site.Source,
		&c.Site.Assets,
		&c.Site.Output,
		&c.Site.Prelude,
		&c.Styles.Root,
		&c.Highlight.ThemeDir,
		&c.SQLite.Path,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
}

// SiteConfig locates the inputs and the output of the site.
type SiteConfig struct {
	Source string `yaml:"source" toml:"source"`
	Assets string `yaml:"assets" toml:"assets"`
	Output string `yaml:"output" toml:"output"`
	// Prelude is the page shell.
	Prelude string `yaml:"prelude" toml:"prelude"`
	// Entry and Keep are relative to Source.
	Entry string `yaml:"entry" toml:"entry"`
	Keep  string `yaml:"keep" toml:"keep"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Source, validation.Required),
		validation.Field(&c.Assets, validation.Required),
		validation.Field(&c.Output, validation.Required),
		validation.Field(&c.Prelude, validation.Required),
		validation.Field(&c.Entry, validation.Required, validation.Match(markdownPath)),
		validation.Field(&c.Keep, validation.Match(markdownPath)),
	)
}

// StylesConfig maps style chunk names to files.
type StylesConfig struct {
	Root   string `yaml:"root" toml:"root"`
	Global string `yaml:"global" toml:"global"`
	// Names overrides the default <name>.css file of a chunk.
	Names map[string]string `yaml:"names" toml:"names"`
}

// Validate validates the styles configuration.
func (c *StylesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// HighlightConfig selects the syntax highlighting theme.
type HighlightConfig struct {
	// ThemeDir holds extra chroma XML styles. It may not exist.
	ThemeDir string `yaml:"theme_dir" toml:"theme_dir"`
	Theme    string `yaml:"theme" toml:"theme"`
}

// BuildConfig holds build behaviour.
type BuildConfig struct {
	// Concurrency bounds parallel work; 0 uses every CPU.
	Concurrency          int     `yaml:"concurrency" toml:"concurrency"`
	Force                bool    `yaml:"force" toml:"force"`
	TolerateFontFailures bool    `yaml:"tolerate_font_failures" toml:"tolerate_font_failures"`
	ImageQuality         float32 `yaml:"image_quality" toml:"image_quality"`
	PassThroughWebP      bool    `yaml:"pass_through_webp" toml:"pass_through_webp"`
	DateLayout           string  `yaml:"date_layout" toml:"date_layout"`
}

// Validate validates the build configuration.
func (c *BuildConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Min(0)),
		validation.Field(&c.ImageQuality, validation.Required, validation.Min(float32(1)), validation.Max(float32(100))),
		validation.Field(&c.DateLayout, validation.Required),
	)
}

// FetchConfig configures retrieval of remote images and webfonts.
type FetchConfig struct {
	Timeout    Duration `yaml:"timeout" toml:"timeout"`
	MaxBytes   int64    `yaml:"max_bytes" toml:"max_bytes"`
	Retries    uint64   `yaml:"retries" toml:"retries"`
	Backoff    Duration `yaml:"backoff" toml:"backoff"`
	BlockLocal bool     `yaml:"block_local" toml:"block_local"`
}

// Validate validates the fetch configuration.
func (c *FetchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(Duration(0))),
		validation.Field(&c.MaxBytes, validation.Min(int64(0))),
		validation.Field(&c.Backoff, validation.Min(Duration(0))),
	)
}

// SQLiteConfig holds the build manifest database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// Duration is a time.Duration written as a string such as "30s" in config
// files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Site: SiteConfig{
			Source:  "./src",
			Assets:  "./assets",
			Output:  "./out",
			Prelude: "./lib/prelude.html",
			Entry:   "index.md",
			Keep:    "_keep.md",
		},
		Styles: StylesConfig{
			Root:   "./lib/style-chunks",
			Global: styles.DefaultGlobalFile,
		},
		Highlight: HighlightConfig{
			ThemeDir: "./lib/themes",
			Theme:    highlight.DefaultTheme,
		},
		Build: BuildConfig{
			ImageQuality:    assets.DefaultQuality,
			PassThroughWebP: true,
			DateLayout:      shell.DefaultDateLayout,
		},
		Fetch: FetchConfig{
			Timeout:    Duration(30 * time.Second),
			MaxBytes:   20 << 20,
			Retries:    3,
			Backoff:    Duration(500 * time.Millisecond),
			BlockLocal: true,
		},
		SQLite: SQLiteConfig{
			Path: "./.raido/manifest.db",
		},
	}
}
