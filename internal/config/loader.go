package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultFile is the config looked up in the working directory when no path is given.
const DefaultFile = "config.yaml"

// Load reads, interpolates, defaults, and validates a training config.
// A .env file next to the config is loaded first; variables already set in
// the environment win.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFile)
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but %s not found: %s", DefaultFile, absPath)
		}
	}

	configDir := filepath.Dir(absPath)
	if err := loadDotEnv(configDir); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	cfg = applyConfigDefaults(cfg)
	resolvePaths(cfg, configDir)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadDotEnv(dir string) error {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	return nil
}

// loadConfigFile loads and parses a single config file without defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.TrainingLines == 0 {
		cfg.TrainingLines = defaults.TrainingLines
	}
	if cfg.IsParallel == nil {
		cfg.IsParallel = defaults.IsParallel
	}
	// An absent crisphold reads as 0, which validation would reject.
	if cfg.Crisphold == 0 {
		cfg.Crisphold = defaults.Crisphold
	}
	if cfg.MaxRules == 0 {
		cfg.MaxRules = defaults.MaxRules
	}
	if cfg.FastAlign == "" {
		cfg.FastAlign = defaults.FastAlign
	}
	if cfg.Python == "" {
		cfg.Python = defaults.Python
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)

	return cfg
}

// resolvePaths makes file paths relative to the config's directory absolute.
// Executables given by bare name stay as-is so PATH lookup still applies.
func resolvePaths(cfg *Config, baseDir string) {
	for _, p := range []*string{&cfg.CorpusSL, &cfg.CorpusTL, &cfg.LangData, &cfg.TLModel, &cfg.IRSTLMDir, &cfg.LexToolsDir} {
		*p = resolvePath(*p, baseDir)
	}
	if strings.ContainsRune(cfg.FastAlign, filepath.Separator) {
		cfg.FastAlign = resolvePath(cfg.FastAlign, baseDir)
	}
}

func resolvePath(p, baseDir string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
