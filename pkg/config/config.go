// Package config loads websocat settings from a YAML file and the environment.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "reflect"
    "strings"

    "github.com/spf13/viper"

    "github.com/jw3/websocat/pkg/peer"
)

// Config is the root configuration. Command-line flags are applied on top of
// it by the caller.
type Config struct {
    Log     LogConfig     `mapstructure:"log"`
    Metrics MetricsConfig `mapstructure:"metrics"`
    Options peer.Options  `mapstructure:"options"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    Rotation    RotationConfig `mapstructure:"rotation"`
    Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
    Listen string `mapstructure:"listen"`
    Path   string `mapstructure:"path"`
}

// Default returns a Config populated with the stock values. Logs go to
// stderr so they never mix with data on stdout.
func Default() *Config {
    return &Config{
        Log: LogConfig{
            Level:   "warn",
            Format:  "console",
            Outputs: []string{"stderr"},
            Rotation: RotationConfig{
                Filename:   "websocat.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Metrics: MetricsConfig{Path: "/metrics"},
        Options: *peer.Default(),
    }
}

// Load reads configuration from path (if non-empty), otherwise from
// $WEBSOCAT_CONFIG or ~/.websocat/websocat.yaml when present. Environment
// variables use the prefix WEBSOCAT and `.`/`-` are replaced with `_`.
// Example: WEBSOCAT_OPTIONS_BUFFER_SIZE=4096
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("WEBSOCAT")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("metrics.listen", cfg.Metrics.Listen)
    v.SetDefault("metrics.path", cfg.Metrics.Path)
    seed(v, "options", reflect.ValueOf(cfg.Options))

    if path == "" {
        if envPath := os.Getenv("WEBSOCAT_CONFIG"); envPath != "" { path = envPath }
    }
    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("websocat")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".websocat"))
        }
    }

    // a missing file in the search path is fine; a named file must exist
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if path != "" || !errors.As(err, &notFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }
    if err := cfg.validate(); err != nil { return nil, err }
    return cfg, nil
}

// seed registers a default for every mapstructure-tagged field of s.
func seed(v *viper.Viper, prefix string, s reflect.Value) {
    t := s.Type()
    for i := 0; i < t.NumField(); i++ {
        tag := t.Field(i).Tag.Get("mapstructure")
        if tag == "" || tag == "-" { continue }
        v.SetDefault(prefix+"."+tag, s.Field(i).Interface())
    }
}

func (c *Config) validate() error {
    switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
    case "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }
    if c.Log.Format == "" { c.Log.Format = "console" }
    if len(c.Log.Outputs) == 0 { c.Log.Outputs = []string{"stderr"} }
    if c.Metrics.Path == "" { c.Metrics.Path = "/metrics" }
    if err := c.Options.Validate(); err != nil { return fmt.Errorf("invalid options: %w", err) }
    return nil
}
