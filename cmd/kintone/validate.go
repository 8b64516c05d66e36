package main

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/kintone/adapters/sqlite"
	"github.com/artpar/kintone/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the kintone configuration.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - The app form can be fetched (optional)
  - The mirror database is writable (optional)

Examples:
  kintone validate
  kintone validate --check-remote --config /etc/kintone/kintone.yaml`,
	RunE: runValidate,
}

var (
	validateCheckRemote   bool
	validateCheckDatabase bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckRemote, "check-remote", false, "fetch the app form with the configured credentials")
	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check that the mirror database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Site: %s\n", checkMark, cfg.BaseURL())
	if cfg.App.GuestSpaceID > 0 {
		fmt.Fprintf(out, "  %s App: %d (guest space %d)\n", checkMark, cfg.App.ID, cfg.App.GuestSpaceID)
	} else {
		fmt.Fprintf(out, "  %s App: %d\n", checkMark, cfg.App.ID)
	}
	fmt.Fprintf(out, "  %s Auth: %s\n", checkMark, authMode(cfg.Auth))
	fmt.Fprintf(out, "  %s Mirror database: %s\n", checkMark, cfg.Mirror.DSN)

	failed := false
	if validateCheckRemote {
		n, err := checkRemote()
		if err != nil {
			failed = true
			fmt.Fprintf(out, "  %s Form reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Form reachable (%d fields)\n", checkMark, n)
		}
	}

	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Mirror.DSN); err != nil {
			failed = true
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database writable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	if failed {
		return fmt.Errorf("configuration checks failed")
	}
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func authMode(a config.AuthConfig) string {
	mode := "none"
	switch {
	case a.User != "":
		mode = "password (" + a.User + ")"
	case a.APIToken != "":
		mode = "api token"
	}
	if a.BasicUser != "" {
		mode += " + basic"
	}
	return mode
}

func checkRemote() (int, error) {
	s, err := newSession(nil)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	form, err := s.api.Form(ctx)
	if err != nil {
		return 0, err
	}
	return len(form), nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
