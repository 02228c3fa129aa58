// Package config holds spellmark's settings: typed sections with defaults,
// layered loading from file and environment, validation, a live store and
// a file watcher that reloads the store when the file changes.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Config is the complete settings tree.
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Online    OnlineConfig    `toml:"online"`
	Offline   OfflineConfig   `toml:"offline"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Storage   StorageConfig   `toml:"storage"`
	Scripts   ScriptsConfig   `toml:"scripts"`
	Logging   LoggingConfig   `toml:"logging"`
}

// GeneralConfig holds settings shared by both backends.
type GeneralConfig struct {
	// EnabledByDefault applies to documents without an explicit attribute.
	EnabledByDefault bool `toml:"enabled_by_default"`

	// Offline selects the local dictionary backend.
	Offline bool `toml:"offline"`

	// ExperimentalCorrect allows applying replacements to the document.
	ExperimentalCorrect bool `toml:"experimental_correct"`

	// CustomDictionary seeds the user dictionary.
	CustomDictionary []string `toml:"custom_dictionary"`

	// DefaultLanguage is a language tag or "auto".
	DefaultLanguage string `toml:"default_language"`

	// ReportAuto announces automatic language detection.
	ReportAuto bool `toml:"report_auto"`
}

// OnlineConfig configures the LanguageTool client.
type OnlineConfig struct {
	Server            string   `toml:"server"`
	Username          string   `toml:"username"`
	APIKey            string   `toml:"api_key"`
	Picky             bool     `toml:"picky"`
	MotherTongue      string   `toml:"mother_tongue"`
	PreferredVariants []string `toml:"preferred_variants"`

	// RequestsPerMinute paces requests; 0 disables pacing.
	RequestsPerMinute int      `toml:"requests_per_minute"`
	Timeout           Duration `toml:"timeout"`
}

// OfflineConfig configures the local dictionary backend.
type OfflineConfig struct {
	// Dictionaries lists the bundles to load, by language code.
	Dictionaries    []string `toml:"dictionaries"`
	DictionaryDir   string   `toml:"dictionary_dir"`
	DownloadMissing bool     `toml:"download_missing"`
	DownloadURL     string   `toml:"download_url"`
	MaxSuggestions  int      `toml:"max_suggestions"`
	MaxErrors       int      `toml:"max_errors"`
}

// SchedulerConfig bounds check concurrency and rendering.
type SchedulerConfig struct {
	// OnlineConcurrency is the batch size for networked checks.
	OnlineConcurrency int `toml:"online_concurrency"`

	// OfflineConcurrency is the batch size for local checks; 0 is unbounded.
	OfflineConcurrency int `toml:"offline_concurrency"`

	MaxWidthPerChar  float64  `toml:"max_width_per_char"`
	ExcludedElements []string `toml:"excluded_elements"`
}

// StorageConfig locates the user dictionary database.
type StorageConfig struct {
	Path string `toml:"path"`
}

// ScriptsConfig lists Lua suggestion filters.
type ScriptsConfig struct {
	Filters []string `toml:"filters"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in settings.
func Default() *Config {
	base := baseDir()
	return &Config{
		General: GeneralConfig{
			EnabledByDefault: true,
			CustomDictionary: []string{"SySpell", "SiYuan"},
			DefaultLanguage:  "auto",
		},
		Online: OnlineConfig{
			Server:            "https://api.languagetoolplus.com/",
			MotherTongue:      "en-US",
			PreferredVariants: []string{"en-US", "de-DE"},
			RequestsPerMinute: 20,
			Timeout:           Duration{30 * time.Second},
		},
		Offline: OfflineConfig{
			Dictionaries:    []string{"en"},
			DictionaryDir:   filepath.Join(base, "dictionaries"),
			DownloadMissing: true,
			DownloadURL:     "https://raw.githubusercontent.com/wooorm/dictionaries/main/dictionaries",
			MaxSuggestions:  5,
			MaxErrors:       2,
		},
		Scheduler: SchedulerConfig{
			OnlineConcurrency:  10,
			OfflineConcurrency: 0,
			MaxWidthPerChar:    16,
			ExcludedElements:   []string{"code", "img", "inline-math", "math", "inline-code"},
		},
		Storage: StorageConfig{
			Path: filepath.Join(base, "spellmark.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.toml")
}

func baseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".spellmark"
	}
	return filepath.Join(dir, "spellmark")
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.General.CustomDictionary = slices.Clone(c.General.CustomDictionary)
	out.Online.PreferredVariants = slices.Clone(c.Online.PreferredVariants)
	out.Offline.Dictionaries = slices.Clone(c.Offline.Dictionaries)
	out.Scheduler.ExcludedElements = slices.Clone(c.Scheduler.ExcludedElements)
	out.Scripts.Filters = slices.Clone(c.Scripts.Filters)
	return &out
}

// Concurrency returns the batch size for the active backend. Zero means
// unbounded.
func (c *Config) Concurrency() int {
	if c.General.Offline {
		return c.Scheduler.OfflineConcurrency
	}
	return c.Scheduler.OnlineConcurrency
}
