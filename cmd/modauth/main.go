package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"modular-auth/internal/config"
)

var rootFlags struct {
	ConfigFile string
	LogLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "modauth",
	Short: "Login, registration and user administration widgets",
	Long: `modauth serves login, registration and password reset pages backed by a JSON
file, SQLite or PostgreSQL, plus admin screens for users and permission groups.`,
	Example: `modauth serve
  modauth -c config.yaml init-storage
  modauth create-user --username admin --email admin@example.com --group admin`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.ConfigFile, "config", "c", "", "Path to config file (default: ./config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.LogLevel, "log-level", "", "Log level (debug, info, warn, error), overrides log.level")

	rootCmd.AddCommand(serveCmd, initStorageCmd, createUserCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command shares.
func setup() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(rootFlags.ConfigFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log.format %q", cfg.Log.Format)
	}

	level := cfg.Log.Level
	if rootFlags.LogLevel != "" {
		level = rootFlags.LogLevel
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(parsed)
	return logger, nil
}
