package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/aggregator"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/config"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/lifecycle"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/logx"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/parser"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/source"
)

const AppName = "aelogs"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// app carries the settings shared by all subcommands of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd(version string) *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	cmd := &cobra.Command{
		Use:   AppName,
		Short: "aelogs - scheduler log lifecycle analyzer",
		Long: `aelogs reconstructs job and report lifecycles from scheduler logs.
It merges any number of daily log files into job, report and event tables,
computes how many jobs ran concurrently, and writes the result as CSV.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: $HOME/.aelogs.yaml or ./.aelogs.yaml)")
	pf.StringP("output", "o", "text", "terminal output format: text, json")
	pf.StringP("level", "l", "info", "log level: trace, debug, info, warn, error")
	pf.String("log-format", "console", "log format: console, json")
	pf.StringP("dir", "d", "csv", "directory for CSV exports")
	pf.IntP("workers", "w", 0, "sources parsed in parallel (default: number of CPUs)")
	pf.StringSlice("encodings", nil, "encoding fallback order (default: utf-8,iso-8859-1,windows-1252,ascii)")
	pf.StringSlice("anchor", nil, "preamble anchor text; lines before the first match are skipped")

	bind(a.v, pf.Lookup("output"), "output.format")
	bind(a.v, pf.Lookup("level"), "log.level")
	bind(a.v, pf.Lookup("log-format"), "log.format")
	bind(a.v, pf.Lookup("dir"), "output.dir")
	bind(a.v, pf.Lookup("workers"), "workers")
	bind(a.v, pf.Lookup("encodings"), "encodings")
	bind(a.v, pf.Lookup("anchor"), "preamble.anchors")

	cmd.AddCommand(
		newProcessCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd(Version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) initConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(home)
	}
	a.v.AddConfigPath(".")
	a.v.SetConfigName("." + AppName)
	a.v.SetConfigType("yaml")

	var notFound viper.ConfigFileNotFoundError
	if err := a.v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// load decodes the effective configuration and builds the logger.
func (a *app) load() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(a.v)
	if err != nil {
		return cfg, logx.Nop(), err
	}
	log := logx.New(cfg.Log)
	if used := a.v.ConfigFileUsed(); used != "" {
		log.Debug().Str("file", used).Msg("config loaded")
	}
	return cfg, log, nil
}

// newAggregator wires reader, extractor and folder per cfg.
func newAggregator(cfg config.Config, opts aggregator.Options) (*aggregator.Aggregator, error) {
	reader, err := source.NewReader(cfg.Encodings...)
	if err != nil {
		return nil, err
	}
	folder := lifecycle.NewFolder(parser.NewExtractor(), cfg.Preamble.Anchors)
	if opts.Workers == 0 {
		opts.Workers = cfg.Workers
	}
	return aggregator.New(reader, folder, opts), nil
}

// bind ties a flag to a config key; only flags set on the command line
// override the file and environment.
func bind(v *viper.Viper, f *pflag.Flag, key string) {
	cobra.CheckErr(v.BindPFlag(key, f))
}

// absAll resolves paths for stable source names.
func absAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}
