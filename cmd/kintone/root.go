package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/kintone/adapters/metrics"
	"github.com/artpar/kintone/adapters/remote"
	"github.com/artpar/kintone/bootstrap"
	"github.com/artpar/kintone/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "kintone",
	Short: "Read, write and mirror kintone app records",
	Long: `kintone talks to one kintone app over the REST API.

Records:
  kintone form                         # Print the field schema
  kintone get 12                       # Print one record
  kintone list --where 'status=Done'   # Query records
  kintone add --set title=Hello        # Create a record

Files:
  kintone upload report.pdf
  kintone download <fileKey> -o report.pdf

Local copy:
  kintone mirror --watch               # Keep a SQLite copy up to date

Configuration is read from --config, or from KINTONE_* variables when the
file does not exist.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error. SIGINT and
// SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "kintone.yaml", "config file path")
}

// session is what every remote command needs.
type session struct {
	cfg    *config.Config
	logger zerolog.Logger
	api    *remote.API
}

// newSession loads the configuration and builds the API client.
func newSession(m *metrics.Collector) (*session, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, err
	}
	return newSessionFrom(cfg, m)
}

// newSessionFrom asks for a missing password and builds the API client
// for cfg. m may be nil.
func newSessionFrom(cfg *config.Config, m *metrics.Collector) (*session, error) {
	logger := bootstrap.NewLogger(cfg.Logging, os.Stderr)
	if err := completePassword(cfg); err != nil {
		return nil, err
	}
	return &session{
		cfg:    cfg,
		logger: logger,
		api:    bootstrap.NewAPI(cfg, logger, m, nil),
	}, nil
}

// completePassword prompts for auth.password when only auth.user is set.
func completePassword(cfg *config.Config) error {
	if cfg.Auth.User == "" || cfg.Auth.Password != "" {
		return nil
	}
	password, err := promptPassword(fmt.Sprintf("Password for %s: ", cfg.Auth.User))
	if err != nil {
		return err
	}
	cfg.Auth.Password = password
	return nil
}

func promptPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("auth.password is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
