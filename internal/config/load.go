package config

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/spellmark/internal/config/loader"
)

// Options controls Load.
type Options struct {
	// Path is the config file. Empty uses DefaultPath. A missing file is
	// not an error.
	Path string

	// FS reads the config file. Nil uses the OS file system.
	FS loader.FileSystem

	// Environ replaces the process environment when non-nil.
	Environ []string

	// NoEnv skips environment variables.
	NoEnv bool
}

// Load builds a Config from defaults, the config file and SPELLMARK_*
// environment variables, in increasing priority, and validates it.
func Load(opts Options) (*Config, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath()
	}

	defaults, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	fileLoader, err := loader.ForPath(opts.FS, path)
	if err != nil {
		return nil, err
	}
	layers := []loader.Loader{fileLoader}
	if !opts.NoEnv {
		if opts.Environ != nil {
			layers = append(layers, loader.NewEnvLoaderFrom(loader.EnvPrefix, opts.Environ))
		} else {
			layers = append(layers, loader.NewEnvLoader(loader.EnvPrefix))
		}
	}

	merged := loader.Clone(defaults)
	for _, l := range layers {
		layer, err := l.Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, layer)
	}
	coerce(merged, defaults)

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding defaults: %w", err)
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := loader.EncodeTOML(m)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// coerce adjusts values whose type differs from the default's: scalars
// become strings where a string is expected, and comma separated strings
// become lists.
func coerce(m, defaults map[string]any) {
	for key, def := range defaults {
		val, ok := m[key]
		if !ok {
			continue
		}
		switch d := def.(type) {
		case map[string]any:
			if sub, ok := val.(map[string]any); ok {
				coerce(sub, d)
			}
		case string:
			if _, ok := val.(string); !ok {
				m[key] = fmt.Sprint(val)
			}
		case []any:
			if s, ok := val.(string); ok {
				m[key] = splitList(s)
			}
		case float64:
			if i, ok := val.(int64); ok {
				m[key] = float64(i)
			}
		}
	}
}

func splitList(s string) []any {
	out := []any{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
