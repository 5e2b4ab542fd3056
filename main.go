package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sarthi/config"
)

var logLevel = ""

var rootCmd = &cobra.Command{
	Use:   "sarthi",
	Short: "Guided reflection workflow service",
	Long: `Sarthi walks a user through writing a reflection for someone else
(category, recipient, relation, message) and screens every message for
distress signals before it is stored.`,
	SilenceUsage: true,
}

// ConfigFlags are shared by every command that needs the configuration.
type ConfigFlags struct {
	Path     string
	Database string
	DbPath   string
	LogJSON  bool
}

func (f *ConfigFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Path, "config", "", "Path to the JSON configuration file (defaults and environment only when empty)")
	fs.StringVar(&f.Database, "database", "", "Database driver override (sqlite3 or postgres)")
	fs.StringVar(&f.DbPath, "db-path", "", "SQLite database file override")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Emit logs as JSON")
}

// Load reads the configuration, applies flag overrides and sets up logging.
func (f *ConfigFlags) Load() (config.Configuration, error) {
	cfg, err := config.Load(f.Path)
	if err != nil {
		return cfg, err
	}
	if f.Database != "" {
		cfg.Database = f.Database
	}
	if f.DbPath != "" {
		cfg.DbPath = f.DbPath
	}
	if f.LogJSON {
		cfg.LogJSON = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, err
	}
	log.SetLevel(level)
	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	log.Debug("debug logging enabled")
	return cfg, nil
}

func main() {
	// Add some millisecond precision to log timestamps, useful for debugging performance.
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)

	rootCmd.AddCommand(
		NewServeCommand(),
		NewMigrateCommand(),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (trace,debug,info,warn,error), overrides the configuration file")

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("could not execute root command")
	}
}
