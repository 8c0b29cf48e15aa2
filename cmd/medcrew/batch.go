package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/rahul/medcrew/internal/batch"
	"github.com/spf13/cobra"
)

type BatchCmd struct{}

func NewBatchCmd() *BatchCmd {
	return &BatchCmd{}
}

func (c *BatchCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Analyze every case of a CSV dataset and write the reports to a CSV file",
		Long: `Analyze every case of a CSV dataset.

The input needs the columns case_id, expected_label and clinical_description
(or id_caso, diagnostico_esperado and descricao_clinica). A failed case does not
stop the batch; its report column holds the failure instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath, err := cmd.Flags().GetString("input")
			if err != nil {
				return fmt.Errorf("failed to get input flag: %w", err)
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

			delay := a.cfg.Batch.Delay()
			if cmd.Flags().Changed("delay") {
				if delay, err = cmd.Flags().GetDuration("delay"); err != nil {
					return fmt.Errorf("failed to get delay flag: %w", err)
				}
			}
			concurrency := a.cfg.Batch.Concurrency
			if cmd.Flags().Changed("concurrency") {
				if concurrency, err = cmd.Flags().GetInt("concurrency"); err != nil {
					return fmt.Errorf("failed to get concurrency flag: %w", err)
				}
			}

			in, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("failed to open dataset: %w", err)
			}
			cases, err := batch.ReadCases(in)
			in.Close()
			if err != nil {
				return err
			}
			a.log.Info("dataset loaded", "cases", len(cases), "delay", delay, "concurrency", concurrency)

			runner, err := batch.NewRunner(batch.Config{
				Logger:      a.log,
				Analyzer:    a.runner,
				Delay:       delay,
				Concurrency: concurrency,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results := runner.Run(ctx, cases)

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			if err := batch.WriteResults(out, results); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}

			failed := printSummary(os.Stdout, results)
			a.log.Info("batch finished", "output", outPath, "cases", len(results), "failed", failed)
			return nil
		},
	}

	cmd.Flags().StringP("input", "i", "", "CSV dataset")
	cmd.Flags().StringP("output", "o", "batch_report.csv", "CSV file for the generated reports")
	cmd.Flags().Duration("delay", 0, "pause between the start of consecutive cases (default from config, 20s)")
	cmd.Flags().Int("concurrency", 0, "cases analyzed at the same time (default from config, 1)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func printSummary(w io.Writer, results []batch.Result) int {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Case", "Expected", "Status", "Detail"})

	failed := 0
	for _, r := range results {
		status, detail := "ok", fmt.Sprintf("%d chars", len(r.Report))
		if r.Err != nil {
			failed++
			status, detail = "FAILED", truncateCell(r.Err.Error(), 60)
		}
		table.Append([]string{r.ID, truncateCell(r.ExpectedLabel, 30), status, detail})
	}
	table.SetFooter([]string{"", "", "failed", fmt.Sprintf("%d / %d", failed, len(results))})
	table.Render()
	return failed
}

func truncateCell(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
