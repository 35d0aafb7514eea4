package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/logx"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/source"
)

// EnvPrefix is prepended to environment overrides, e.g. AELOGS_WORKERS.
const EnvPrefix = "AELOGS"

type Config struct {
	Encodings []string       `mapstructure:"encodings"`
	Preamble  PreambleConfig `mapstructure:"preamble"`
	Workers   int            `mapstructure:"workers"`
	Output    OutputConfig   `mapstructure:"output"`
	Watch     WatchConfig    `mapstructure:"watch"`
	Server    ServerConfig   `mapstructure:"server"`
	Log       logx.Config    `mapstructure:"log"`
}

// PreambleConfig lists banner markers. Empty means no stripping.
type PreambleConfig struct {
	Anchors []string `mapstructure:"anchors"`
}

type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	Prefix     string `mapstructure:"prefix"`
	LivePrefix string `mapstructure:"live_prefix"`
	Format     string `mapstructure:"format"` // text | json
}

type WatchConfig struct {
	Pattern    string `mapstructure:"pattern"`
	Checkpoint string `mapstructure:"checkpoint"`
	FromStart  bool   `mapstructure:"from_start"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the HTTP surface
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Encodings: append([]string(nil), source.DefaultEncodings...),
		Workers:   runtime.NumCPU(),
		Output: OutputConfig{
			Dir:        "csv",
			Prefix:     "combined_",
			LivePrefix: "live_combined_",
			Format:     "text",
		},
		Watch: WatchConfig{
			Pattern:    "*.LOG.txt",
			Checkpoint: ".aelogs-state.json",
			FromStart:  true,
		},
		Log: logx.Config{Level: "info", Format: "console"},
	}
}

// SetDefaults registers Default() on v so that every key is known to
// viper's env and flag binding.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("encodings", d.Encodings)
	v.SetDefault("preamble.anchors", []string{})
	v.SetDefault("workers", d.Workers)
	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.prefix", d.Output.Prefix)
	v.SetDefault("output.live_prefix", d.Output.LivePrefix)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("watch.pattern", d.Watch.Pattern)
	v.SetDefault("watch.checkpoint", d.Watch.Checkpoint)
	v.SetDefault("watch.from_start", d.Watch.FromStart)
	v.SetDefault("server.addr", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals v into a Config and validates it. Values come from the
// defaults, then the YAML file, then AELOGS_* variables, then flags.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, c.Validate()
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if len(c.Encodings) == 0 {
		errs = append(errs, errors.New("encodings must not be empty"))
	} else if _, err := source.NewReader(c.Encodings...); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Output.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("output.format must be text or json, got %q", c.Output.Format))
	}
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}
	return errors.Join(errs...)
}
