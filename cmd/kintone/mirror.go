package main

import (
	"fmt"
	"os"
	"time"

	"github.com/artpar/kintone/bootstrap"
	"github.com/artpar/kintone/config"
	"github.com/spf13/cobra"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Copy the app's form and records into a local SQLite database",
	Long: `Copy the app's form and records into the database at mirror.dsn.

Without --watch a single run is made. With --watch the copy is refreshed
every mirror.interval; the config file is watched and reloaded on change
or SIGHUP, and /health and /metrics are served when metrics are enabled.

Examples:
  kintone mirror
  kintone mirror --watch --config /etc/kintone/kintone.yaml`,
	Args: cobra.NoArgs,
	RunE: runMirror,
}

var mirrorWatch bool

func init() {
	rootCmd.AddCommand(mirrorCmd)

	mirrorCmd.Flags().BoolVar(&mirrorWatch, "watch", false, "keep running and mirror every interval")
}

func runMirror(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	if err := completePassword(cfg); err != nil {
		return err
	}
	opts := bootstrap.Options{
		Logger:   bootstrap.NewLogger(cfg.Logging, os.Stderr),
		Password: cfg.Auth.Password,
		Serve:    mirrorWatch,
		Version:  version,
	}

	// Hot reload needs a file to watch.
	var a *bootstrap.App
	if _, statErr := os.Stat(cfgFile); mirrorWatch && statErr == nil {
		a, err = bootstrap.NewWithHotReload(cfgFile, opts)
	} else {
		a, err = bootstrap.New(cfg, opts)
	}
	if err != nil {
		return err
	}

	if mirrorWatch {
		return a.Run(ctx)
	}

	defer a.Shutdown()
	run, err := a.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Mirrored %d records of app %d in %s (run %s)\n",
		checkMark, run.Records, run.AppID, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond), run.ID)
	return nil
}
