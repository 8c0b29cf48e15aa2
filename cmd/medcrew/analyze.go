package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rahul/medcrew/internal/agent"
	"github.com/rahul/medcrew/internal/document"
	"github.com/spf13/cobra"
)

type AnalyzeCmd struct{}

func NewAnalyzeCmd() *AnalyzeCmd {
	return &AnalyzeCmd{}
}

func (c *AnalyzeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [clinical data]",
		Short: "Run the full specialist analysis on one case",
		Long: `Run every stage of the crew on one case and print the final report.

The clinical data is taken from the arguments, or from --input ("-" reads stdin).
A PDF, HTML or text document can be attached with --document, as a path or an http(s) URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath, err := cmd.Flags().GetString("input")
			if err != nil {
				return fmt.Errorf("failed to get input flag: %w", err)
			}
			docPath, err := cmd.Flags().GetString("document")
			if err != nil {
				return fmt.Errorf("failed to get document flag: %w", err)
			}
			outPath, err := cmd.Flags().GetString("output")
			if err != nil {
				return fmt.Errorf("failed to get output flag: %w", err)
			}

			a, err := newApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			clinical := strings.Join(args, " ")
			if inputPath != "" {
				data, err := readFile(inputPath)
				if err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				clinical = strings.TrimSpace(clinical + "\n" + string(data))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			documentText := ""
			switch {
			case document.IsURL(docPath):
				documentText, err = a.fetcher.Fetch(ctx, docPath)
				if err != nil {
					a.log.Warn("document download failed, continuing without it", "url", docPath, "error", err)
					documentText = ""
				}
			case docPath != "":
				data, err := os.ReadFile(docPath)
				if err != nil {
					return fmt.Errorf("failed to read document: %w", err)
				}
				documentText = a.documents.TextOrEmpty(filepath.Base(docPath), data)
			}

			payload, err := agent.ComposePayload(clinical, documentText)
			if err != nil {
				return err
			}

			report, runErr := a.runner.Run(ctx, payload)
			if report == nil {
				return runErr
			}

			out := report.Markdown()
			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
				a.log.Info("report written", "path", outPath, "run", report.RunID, "partial", report.Partial)
			} else {
				fmt.Println(out)
			}

			if runErr != nil {
				return fmt.Errorf("analysis incomplete: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringP("input", "i", "", "file with the clinical data (\"-\" reads stdin)")
	cmd.Flags().StringP("document", "d", "", "document to attach (PDF, HTML or text), path or URL")
	cmd.Flags().StringP("output", "o", "", "write the report to this file instead of stdout")

	return cmd
}
