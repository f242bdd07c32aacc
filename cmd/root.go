package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/logging"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Issue tracker - project-scoped issue records over HTTP",
	Long: `tracker stores issues grouped by project and serves them over a JSON HTTP API.
Issues can also be managed from the command line or through MCP tools.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/tracker/config.yaml)")
}

func initConfig() {
	// .env values become environment variables before viper reads them.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers the default value of every config key.
func setDefaults() {
	dir, _ := configDirFunc()

	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "tracker.db"))
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("postgres.dsn", "")
	viper.SetDefault("postgres.max_conns", 4)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.request_timeout", "10s")
	viper.SetDefault("log.level", "info")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	logger = newLogger(os.Stderr, false)

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// newLogger builds the logger from log.level; --verbose forces debug.
func newLogger(w io.Writer, noColor bool) *slog.Logger {
	level, err := logging.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using info\n", err)
	}
	if verbose {
		level = slog.LevelDebug
	}
	return logging.New(w, level, noColor)
}

// getStore returns the shared store, initializing it on first call.
func getStore(ctx context.Context) (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	driver := viper.GetString("store.driver")
	dsn := viper.GetString("db_path")
	if driver == "postgres" {
		dsn = viper.GetString("postgres.dsn")
	}

	s, err := store.Open(ctx, driver, dsn, viper.GetInt32("postgres.max_conns"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getService returns an issue service bound to the shared store.
func getService(ctx context.Context) (*issues.Service, store.Store, error) {
	s, err := getStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return issues.NewService(s, logger), s, nil
}

func closeStore() {
	if dataStore == nil {
		return
	}
	if err := dataStore.Close(); err != nil && logger != nil {
		logger.Warn("close store", "error", err)
	}
	dataStore = nil
}
