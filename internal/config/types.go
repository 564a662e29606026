package config

import "fmt"

// Config represents a complete training configuration.
type Config struct {
	// Corpus names the run; with the language pair it keys the cache directory.
	Corpus string `yaml:"corpus" validate:"required,excludesall=/\\"`
	SL     string `yaml:"sl" validate:"required,excludesall=/\\ "`
	TL     string `yaml:"tl" validate:"required,excludesall=/\\ ,nefield=SL"`

	CorpusSL string `yaml:"corpus_sl" validate:"required"`
	CorpusTL string `yaml:"corpus_tl"`
	LangData string `yaml:"lang_data" validate:"required"`

	TrainingLines int     `yaml:"training_lines" validate:"gt=0"`
	IsParallel    *bool   `yaml:"is_parallel"`
	Crisphold     float64 `yaml:"crisphold" validate:"gt=0"`
	MaxRules      int     `yaml:"max_rules" validate:"gt=0"`

	// TLModel is a prebuilt target-language model; when set no model is built.
	TLModel string `yaml:"tl_model,omitempty"`

	FastAlign   string `yaml:"fast_align,omitempty"`
	IRSTLMDir   string `yaml:"irstlm_dir,omitempty"`
	LexToolsDir string `yaml:"lex_tools_dir,omitempty"`
	Python      string `yaml:"python,omitempty"`

	Service ServiceConfig `yaml:"service"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines process-level settings.
type ServiceConfig struct {
	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=json text"`
}

// Parallel reports whether the run trains from a parallel corpus.
func (c *Config) Parallel() bool {
	return c.IsParallel == nil || *c.IsParallel
}

// Pair returns the SL-TL direction key.
func (c *Config) Pair() string {
	return fmt.Sprintf("%s-%s", c.SL, c.TL)
}

// ReversePair returns the TL-SL direction key.
func (c *Config) ReversePair() string {
	return fmt.Sprintf("%s-%s", c.TL, c.SL)
}

// Defaults returns a Config with the values used when a key is absent.
func Defaults() *Config {
	parallel := true
	return &Config{
		TrainingLines: 100000,
		IsParallel:    &parallel,
		Crisphold:     1.5,
		MaxRules:      10,
		FastAlign:     "fast_align",
		Python:        "python3",
		Service: ServiceConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}
