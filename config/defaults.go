package config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		WorkDir: "work",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Extract: ExtractConfig{
			IllustrationMaxBytes: 10 * 1024,
			IllustrationMaxText:  5,
			NavFallbackThreshold: 3,
			TitleScanLines:       3,
			HookMinRunes:         400,
			HookTitle:            "Prologue",
			TOCLinkDensity:       0.6,
			SmallImageMaxPx:      64,
			SyntheticTitle:       "Chapter %d",
		},
		Ruby: RubyConfig{
			Threshold:  0.70,
			Morphology: true,
		},
		Split: SplitConfig{
			MaxTokens: 6000,
			MinTokens: 1500,
			Language:  "ja",
		},
		Build: BuildConfig{
			Profile:  "epub3",
			Language: "en",
		},
	}
}

// defaultValues flattens the defaults into viper keys. Every key is set
// individually so environment overrides reach nested values.
func defaultValues(c *Config) map[string]any {
	return map[string]any{
		"workdir":      c.WorkDir,
		"profiles_dir": c.ProfilesDir,

		"log.level":  c.Log.Level,
		"log.format": c.Log.Format,

		"extract.illustration_max_bytes": c.Extract.IllustrationMaxBytes,
		"extract.illustration_max_text":  c.Extract.IllustrationMaxText,
		"extract.nav_fallback_threshold": c.Extract.NavFallbackThreshold,
		"extract.title_scan_lines":       c.Extract.TitleScanLines,
		"extract.hook_min_runes":         c.Extract.HookMinRunes,
		"extract.hook_title":             c.Extract.HookTitle,
		"extract.toc_link_density":       c.Extract.TOCLinkDensity,
		"extract.small_image_max_px":     c.Extract.SmallImageMaxPx,
		"extract.synthetic_title":        c.Extract.SyntheticTitle,
		"extract.probe_all_images":       c.Extract.ProbeAllImages,
		"extract.profile":                c.Extract.Profile,

		"ruby.threshold":      c.Ruby.Threshold,
		"ruby.morphology":     c.Ruby.Morphology,
		"ruby.stylistic_file": c.Ruby.StylisticFile,

		"split.max_tokens": c.Split.MaxTokens,
		"split.min_tokens": c.Split.MinTokens,
		"split.language":   c.Split.Language,

		"build.profile":      c.Build.Profile,
		"build.language":     c.Build.Language,
		"build.vertical":     c.Build.Vertical,
		"build.smart_quotes": c.Build.SmartQuotes,
		"build.stylesheet":   c.Build.Stylesheet,
	}
}
