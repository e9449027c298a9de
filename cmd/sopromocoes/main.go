package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/luansfranca/sopromocoes/config"
)

var (
	cfgFile string
	cfg     = config.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:           "sopromocoes",
	Short:         "Promotional deals storefront",
	Long:          `Serves and inspects the deals catalog: browse by category, search titles, export snapshots.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "YAML config file")
	flags.StringVar(&cfg.Backend, "backend", cfg.Backend, "Catalog backend: rest, postgres, sqlite, or memory")
	flags.StringVar(&cfg.CatalogURL, "catalog-url", cfg.CatalogURL, "REST root of the hosted catalog")
	flags.StringVar(&cfg.CatalogKey, "catalog-key", cfg.CatalogKey, "Read-only API key for the REST catalog")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "DSN for the postgres or sqlite backend")
	flags.StringVar(&cfg.FixturesFile, "fixtures", cfg.FixturesFile, "YAML fixtures for the memory backend")
	flags.DurationVar(&cfg.QueryTimeout, "query-timeout", cfg.QueryTimeout, "Timeout for each catalog query")
	flags.StringVar(&cfg.FailurePolicy, "failure-policy", cfg.FailurePolicy, "lenient or strict")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")

	rootCmd.AddCommand(serveCmd, browseCmd, searchCmd, exportCmd)
}

// loadConfig layers defaults, .env, the config file, SOPROMOCOES_* variables
// and finally explicitly set flags.
func loadConfig(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	merged := config.DefaultConfig()
	if cfgFile != "" {
		if err := merged.LoadFile(cfgFile); err != nil {
			return err
		}
	}
	if err := merged.ApplyEnv(); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	applyChangedFlags(cmd, merged)
	*cfg = *merged

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyChangedFlags copies flag values the user actually set onto merged.
// Flags are bound to cfg, which still holds their parsed values.
func applyChangedFlags(cmd *cobra.Command, merged *config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("backend", func() { merged.Backend = cfg.Backend })
	set("catalog-url", func() { merged.CatalogURL = cfg.CatalogURL })
	set("catalog-key", func() { merged.CatalogKey = cfg.CatalogKey })
	set("database-url", func() { merged.DatabaseURL = cfg.DatabaseURL })
	set("fixtures", func() { merged.FixturesFile = cfg.FixturesFile })
	set("query-timeout", func() { merged.QueryTimeout = cfg.QueryTimeout })
	set("failure-policy", func() { merged.FailurePolicy = cfg.FailurePolicy })
	set("verbose", func() { merged.Verbose = cfg.Verbose })
	set("listen", func() { merged.ListenAddr = cfg.ListenAddr })
	set("metrics-addr", func() { merged.MetricsAddr = cfg.MetricsAddr })
	set("session-store", func() { merged.SessionStore = cfg.SessionStore })
	set("redis-addr", func() { merged.RedisAddr = cfg.RedisAddr })
	set("output", func() { merged.ExportFile = cfg.ExportFile })
	set("format", func() { merged.ExportFormat = cfg.ExportFormat })
	set("workers", func() { merged.ExportWorkers = cfg.ExportWorkers })
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

const shutdownTimeout = 5 * time.Second
