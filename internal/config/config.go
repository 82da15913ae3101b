// File: internal/config/config.go
// Package config holds the runtime configuration for forceps. Values are
// resolved by viper from defaults, an optional config file, environment
// variables (FORCEPS_ prefix) and CLI flags, in that order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of the application configuration tree.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Loader  LoaderConfig  `mapstructure:"loader" yaml:"loader"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal color names for console output.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects and tunes the page backend.
type BrowserConfig struct {
	// Backend is "chrome" (CDP-driven headless Chrome) or "static"
	// (in-process HTML fetch and parse, no script execution).
	Backend string       `mapstructure:"backend" yaml:"backend"`
	Chrome  ChromeConfig `mapstructure:"chrome" yaml:"chrome"`
	Static  StaticConfig `mapstructure:"static" yaml:"static"`
}

// ChromeConfig holds settings for the headless Chrome backend.
type ChromeConfig struct {
	// ExecPath overrides the browser binary discovered on PATH.
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NoSandbox         bool          `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// StaticConfig holds settings for the script-less HTTP backend.
type StaticConfig struct {
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	AcceptLanguage    string        `mapstructure:"accept_language" yaml:"accept_language"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// LoaderConfig tunes the scenario and mapping loaders.
type LoaderConfig struct {
	// BindingMode is "name" (#bind: placeholders resolved by key) or
	// "index" (whole values replaced by 1-based row number).
	BindingMode string `mapstructure:"binding_mode" yaml:"binding_mode"`
	// Sheet selects a worksheet when the input is a spreadsheet.
	// Empty means the first sheet.
	Sheet string `mapstructure:"sheet" yaml:"sheet"`
}

// ExtractConfig tunes the extraction engine.
type ExtractConfig struct {
	ChildConcurrency int `mapstructure:"child_concurrency" yaml:"child_concurrency"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are fixed literals, so this cannot fail at runtime.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "forceps-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.backend", "chrome")
	v.SetDefault("browser.chrome.headless", true)
	v.SetDefault("browser.chrome.no_sandbox", false)
	v.SetDefault("browser.chrome.navigation_timeout", "45s")
	v.SetDefault("browser.chrome.action_timeout", "15s")
	v.SetDefault("browser.static.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.static.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.static.timeout", "30s")
	v.SetDefault("browser.static.requests_per_second", 4.0)

	// -- Loader --
	v.SetDefault("loader.binding_mode", "name")
	v.SetDefault("loader.sheet", "")

	// -- Extract --
	v.SetDefault("extract.child_concurrency", 4)
}

// NewFromViper unmarshals and validates a configuration from a viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case "chrome", "static":
	default:
		return fmt.Errorf("browser.backend must be \"chrome\" or \"static\", got %q", c.Browser.Backend)
	}
	if c.Browser.Chrome.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.chrome.navigation_timeout must be a positive duration")
	}
	if c.Browser.Chrome.ActionTimeout <= 0 {
		return fmt.Errorf("browser.chrome.action_timeout must be a positive duration")
	}
	if c.Browser.Static.Timeout <= 0 {
		return fmt.Errorf("browser.static.timeout must be a positive duration")
	}
	if c.Browser.Static.RequestsPerSecond <= 0 {
		return fmt.Errorf("browser.static.requests_per_second must be positive")
	}
	switch c.Loader.BindingMode {
	case "name", "index":
	default:
		return fmt.Errorf("loader.binding_mode must be \"name\" or \"index\", got %q", c.Loader.BindingMode)
	}
	if c.Extract.ChildConcurrency <= 0 {
		return fmt.Errorf("extract.child_concurrency must be a positive integer")
	}
	return nil
}
