package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func main() {
	os.Exit(int(Run()))
}

func Run() ExitCode {
	rootCmd := &cobra.Command{
		Use:   "medcrew",
		Short: "Clinical decision support crew: multi-stage case analysis, chat and batch evaluation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().StringP("config", "c", "config.json", "path to the JSON config file (optional)")
	rootCmd.PersistentFlags().String("crew", "", "path to a crew definition YAML file (default: built-in neurology crew)")

	rootCmd.AddCommand(
		NewAnalyzeCmd().Command(),
		NewChatCmd().Command(),
		NewBatchCmd().Command(),
		NewServeCmd().Command(),
		NewValidateCmd().Command(),
	)

	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}

	return exitCodeSuccess
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
