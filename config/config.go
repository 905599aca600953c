// Package config loads application settings from file, environment, and
// defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tsawler/epubkit/assemble"
	"github.com/tsawler/epubkit/epubdoc"
	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/pipeline"
	"github.com/tsawler/epubkit/profile"
	"github.com/tsawler/epubkit/ruby"
	"github.com/tsawler/epubkit/segment"
	"github.com/tsawler/epubkit/split"
)

// EnvPrefix prefixes every environment override: EPUBKIT_SPLIT_MAX_TOKENS.
const EnvPrefix = "EPUBKIT"

// Config is the application configuration.
type Config struct {
	WorkDir     string `mapstructure:"workdir" yaml:"workdir" json:"workdir"`
	ProfilesDir string `mapstructure:"profiles_dir" yaml:"profiles_dir" json:"profiles_dir"`

	Log     LogConfig     `mapstructure:"log" yaml:"log" json:"log"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract" json:"extract"`
	Ruby    RubyConfig    `mapstructure:"ruby" yaml:"ruby" json:"ruby"`
	Split   SplitConfig   `mapstructure:"split" yaml:"split" json:"split"`
	Build   BuildConfig   `mapstructure:"build" yaml:"build" json:"build"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"` // text or json
}

// ExtractConfig holds the extraction heuristics' thresholds.
type ExtractConfig struct {
	IllustrationMaxBytes int64   `mapstructure:"illustration_max_bytes" yaml:"illustration_max_bytes" json:"illustration_max_bytes"`
	IllustrationMaxText  int     `mapstructure:"illustration_max_text" yaml:"illustration_max_text" json:"illustration_max_text"`
	NavFallbackThreshold int     `mapstructure:"nav_fallback_threshold" yaml:"nav_fallback_threshold" json:"nav_fallback_threshold"`
	TitleScanLines       int     `mapstructure:"title_scan_lines" yaml:"title_scan_lines" json:"title_scan_lines"`
	HookMinRunes         int     `mapstructure:"hook_min_runes" yaml:"hook_min_runes" json:"hook_min_runes"`
	HookTitle            string  `mapstructure:"hook_title" yaml:"hook_title" json:"hook_title"`
	TOCLinkDensity       float64 `mapstructure:"toc_link_density" yaml:"toc_link_density" json:"toc_link_density"`
	SmallImageMaxPx      int     `mapstructure:"small_image_max_px" yaml:"small_image_max_px" json:"small_image_max_px"`
	SyntheticTitle       string  `mapstructure:"synthetic_title" yaml:"synthetic_title" json:"synthetic_title"`
	ProbeAllImages       bool    `mapstructure:"probe_all_images" yaml:"probe_all_images" json:"probe_all_images"`

	// Profile forces a publisher profile. Empty detects it.
	Profile string `mapstructure:"profile" yaml:"profile,omitempty" json:"profile,omitempty"`
}

// RubyConfig tunes name extraction.
type RubyConfig struct {
	Threshold  float64 `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	Morphology bool    `mapstructure:"morphology" yaml:"morphology" json:"morphology"`

	// StylisticFile extends the built-in stylistic exclusion list.
	StylisticFile string `mapstructure:"stylistic_file" yaml:"stylistic_file,omitempty" json:"stylistic_file,omitempty"`
}

// SplitConfig holds the token budget.
type SplitConfig struct {
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	MinTokens int    `mapstructure:"min_tokens" yaml:"min_tokens" json:"min_tokens"`
	Language  string `mapstructure:"language" yaml:"language" json:"language"`
}

// BuildConfig controls rebuilt containers.
type BuildConfig struct {
	Profile     string `mapstructure:"profile" yaml:"profile" json:"profile"` // epub3 or epub2
	Language    string `mapstructure:"language" yaml:"language" json:"language"`
	Vertical    bool   `mapstructure:"vertical" yaml:"vertical" json:"vertical"`
	SmartQuotes bool   `mapstructure:"smart_quotes" yaml:"smart_quotes" json:"smart_quotes"`
	Stylesheet  string `mapstructure:"stylesheet" yaml:"stylesheet,omitempty" json:"stylesheet,omitempty"`
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if _, err := markup.ParseProfile(c.Build.Profile); err != nil {
		errs = append(errs, fmt.Errorf("build.profile: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Ruby.Threshold < 0 || c.Ruby.Threshold > 1 {
		errs = append(errs, fmt.Errorf("ruby.threshold must be within [0, 1], got %v", c.Ruby.Threshold))
	}
	if c.Split.MaxTokens > 0 && c.Split.MinTokens*2 > c.Split.MaxTokens {
		errs = append(errs, fmt.Errorf("split.min_tokens (%d) must be at most half of split.max_tokens (%d)",
			c.Split.MinTokens, c.Split.MaxTokens))
	}
	return errors.Join(errs...)
}

// PipelineConfig converts the configuration for the pipeline. Profiles and
// logger are passed through.
func (c *Config) PipelineConfig(store *profile.Store, log *slog.Logger) (pipeline.Config, error) {
	prof, err := markup.ParseProfile(c.Build.Profile)
	if err != nil {
		return pipeline.Config{}, err
	}

	var stylistic []ruby.Pair
	if c.Ruby.StylisticFile != "" {
		data, err := os.ReadFile(c.Ruby.StylisticFile)
		if err != nil {
			return pipeline.Config{}, fmt.Errorf("reading stylistic list: %w", err)
		}
		if stylistic, err = ruby.ParseStylistic(data); err != nil {
			return pipeline.Config{}, fmt.Errorf("%s: %w", c.Ruby.StylisticFile, err)
		}
	}

	var css []byte
	if c.Build.Stylesheet != "" {
		if css, err = os.ReadFile(c.Build.Stylesheet); err != nil {
			return pipeline.Config{}, fmt.Errorf("reading stylesheet: %w", err)
		}
	}

	e := c.Extract
	return pipeline.Config{
		WorkDir: c.WorkDir,
		Container: epubdoc.Options{
			IllustrationMaxBytes: e.IllustrationMaxBytes,
			IllustrationMaxText:  e.IllustrationMaxText,
		},
		Segment: segment.Config{
			NavFallbackThreshold: e.NavFallbackThreshold,
			TitleScanLines:       e.TitleScanLines,
			HookMinRunes:         e.HookMinRunes,
			HookTitle:            e.HookTitle,
			TOCLinkDensity:       e.TOCLinkDensity,
			SyntheticTitle:       e.SyntheticTitle,
		},
		SmallImageMaxPx: e.SmallImageMaxPx,
		ProbeAll:        e.ProbeAllImages,
		Ruby:            ruby.Config{Threshold: c.Ruby.Threshold, Stylistic: stylistic},
		Morphology:      c.Ruby.Morphology,
		Split: split.Config{
			MaxTokens: c.Split.MaxTokens,
			MinTokens: c.Split.MinTokens,
			Language:  c.Split.Language,
		},
		Build: assemble.Options{
			Profile:     prof,
			Vertical:    c.Build.Vertical,
			SmartQuotes: c.Build.SmartQuotes,
			Stylesheet:  css,
		},
		Language: c.Build.Language,
		Profile:  e.Profile,
		Profiles: store,
		Logger:   log,
	}, nil
}

// Manager loads configuration and reloads it when the file changes.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager loads configuration from cfgFile, or from epubkit.yaml in
// the working directory or $HOME/.epubkit when cfgFile is empty. A missing
// default file is not an error.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{v: viper.New()}
	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}
	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg
	return cm, nil
}

func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	for key, value := range defaultValues(DefaultConfig()) {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("epubkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.epubkit")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration.
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// File returns the config file in use, or "".
func (cm *Manager) File() string {
	return cm.v.ConfigFileUsed()
}

// Set overrides a key, as a command-line flag does.
func (cm *Manager) Set(key string, value any) error {
	cm.v.Set(key, value)
	cfg, err := cm.load()
	if err != nil {
		return err
	}
	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()
	return nil
}

// OnChange registers a callback for configuration reloads.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig reloads the configuration when its file changes. An invalid
// edit is ignored and the previous configuration stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			slog.Warn("config reload rejected", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	header := []byte("# epubkit configuration\n# Every key can be overridden with an EPUBKIT_ environment variable,\n# e.g. EPUBKIT_SPLIT_MAX_TOKENS=8000.\n\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
