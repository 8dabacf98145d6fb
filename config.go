package springview

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ----------------------------- Configuration --------------------------------

// Config describes an engine. Zero paths are left unset.
type Config struct {
	ViewPath         string         `yaml:"view_path"`
	ViewExt          string         `yaml:"view_ext"`
	CachePath        string         `yaml:"cache_path"`
	CacheExt         string         `yaml:"cache_ext"`
	CacheLifetime    int            `yaml:"cache_lifetime"`
	ProgramCacheSize int            `yaml:"program_cache_size"`
	Layout           string         `yaml:"layout"`
	LayoutFlag       string         `yaml:"layout_flag"`
	Vars             map[string]any `yaml:"vars"`
}

// EnvPrefix prefixes the environment variables read by LoadConfig.
const EnvPrefix = "SPRINGVIEW_"

// DefaultConfig returns the configuration New would use with no options.
func DefaultConfig() Config {
	return Config{
		ViewExt:          DefaultViewExt,
		CacheExt:         DefaultCacheExt,
		CacheLifetime:    DefaultCacheLifetime,
		ProgramCacheSize: defaultProgramCacheSize,
		LayoutFlag:       DefaultMainFlag,
	}
}

// LoadConfig reads the YAML file at path (if any) over the defaults, then
// applies SPRINGVIEW_* variables from the process environment and from
// envFiles. Process variables win over the files.
func LoadConfig(path string, envFiles ...string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %q: %w", path, err)
		}
	}

	fileEnv := map[string]string{}
	if len(envFiles) > 0 {
		m, err := godotenv.Read(envFiles...)
		if err != nil {
			return cfg, fmt.Errorf("reading env files: %w", err)
		}
		fileEnv = m
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := fileEnv[EnvPrefix+key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"VIEW_PATH":   &c.ViewPath,
		"VIEW_EXT":    &c.ViewExt,
		"CACHE_PATH":  &c.CachePath,
		"CACHE_EXT":   &c.CacheExt,
		"LAYOUT":      &c.Layout,
		"LAYOUT_FLAG": &c.LayoutFlag,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	ints := map[string]*int{
		"CACHE_LIFETIME":     &c.CacheLifetime,
		"PROGRAM_CACHE_SIZE": &c.ProgramCacheSize,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := cast.ToIntE(strings.TrimSpace(v))
		if err != nil {
			return newError(ErrInvalidArgument, "config", "", fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
		}
		*dst = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.CacheLifetime < 0 {
		return newError(ErrInvalidArgument, "config", "", "cache_lifetime must not be negative")
	}
	if c.ProgramCacheSize < 0 {
		return newError(ErrInvalidArgument, "config", "", "program_cache_size must not be negative")
	}
	return nil
}

// NewFromConfig builds an engine from cfg. opts are applied after the
// options derived from cfg.
func NewFromConfig(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := []Option{WithCacheLifetime(cfg.CacheLifetime), WithProgramCacheSize(cfg.ProgramCacheSize)}
	if cfg.ViewExt != "" {
		base = append(base, WithViewExt(cfg.ViewExt))
	}
	if cfg.CacheExt != "" {
		base = append(base, WithCacheExt(cfg.CacheExt))
	}
	e, err := New(cfg.ViewPath, cfg.CachePath, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if len(cfg.Vars) > 0 {
		e.AssignMap(cfg.Vars)
	}
	if cfg.Layout != "" {
		flag := cfg.LayoutFlag
		if flag == "" {
			flag = DefaultMainFlag
		}
		if err := e.SetLayout(cfg.Layout, flag); err != nil {
			return nil, err
		}
	}
	return e, nil
}
