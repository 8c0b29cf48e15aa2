package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rahul/medcrew/internal/agent"
	"github.com/spf13/cobra"
)

type ValidateCmd struct{}

func NewValidateCmd() *ValidateCmd {
	return &ValidateCmd{}
}

func (c *ValidateCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the crew definition and print its tasks in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, def, log, err := loadSettings(cmd, os.Stderr)
			if err != nil {
				return err
			}
			pipeline, err := def.Pipeline()
			if err != nil {
				return err
			}
			stage, _, err := def.ConversationStage()
			if err != nil {
				return err
			}

			printTasks(cmd.OutOrStdout(), pipeline, stage.ID)

			if err := cfg.Validate(); err != nil {
				log.Warn("configuration is not ready to run", "error", err)
			}
			return nil
		},
	}
	return cmd
}

// printTasks lists the pipeline tasks in execution order with the role of
// the stage each one runs on.
func printTasks(w io.Writer, pipeline *agent.Pipeline, conversationStage string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"#", "Task", "Stage", "Role", "Context"})
	for i, t := range pipeline.Tasks() {
		s, _ := pipeline.Stage(t.Stage)
		table.Append([]string{fmt.Sprint(i + 1), t.ID, t.Stage, truncateCell(s.Role, 40), strings.Join(t.Context, ", ")})
	}
	table.Render()
	fmt.Fprintf(w, "Conversation stage: %s\n", conversationStage)
}
