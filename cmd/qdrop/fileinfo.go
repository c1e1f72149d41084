package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qdrop/qdrop/internal/engine"
)

func newFileInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file-info <path>",
		Short: "Print the size and kind of a local path without offering it (file_info)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := engine.StatPath(args[0])
			if err != nil {
				return err
			}
			kind := "file"
			if info.IsDir {
				kind = "directory"
			}
			fmt.Printf("%s\t%d bytes\t%s\n", args[0], info.Size, kind)
			return nil
		},
	}
}
