package main

import (
	"github.com/spf13/cobra"

	"github.com/qdrop/qdrop/internal/telemetry"
)

func newHistoryCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show past transfer sessions recorded in ~/.qdrop/history.jsonl",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				return telemetry.ClearHistory()
			}
			if len(args) == 1 {
				telemetry.ShowDetail(args[0])
				return nil
			}
			telemetry.ShowHistory()
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "delete all recorded history")
	return cmd
}
