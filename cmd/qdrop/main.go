// Command qdrop is the host CLI for the qdrop file-transfer engine. It
// wires internal/engine's Sender/Receiver behind the §6 host command
// surface (spec.md), grounded on the teacher's cmd/jend/main.go but
// rebuilt onto cobra (in the teacher's go.mod, never imported there)
// instead of a hand-rolled os.Args loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qdrop",
		Short:         "Peer-to-peer file and directory transfer",
		Long:          "qdrop sends files and directories directly between two machines over an authenticated, NAT-traversing QUIC connection.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().Bool("tui", false, "show a live progress UI instead of plain status lines")
	cmd.PersistentFlags().String("bind-port", "9000", "UDP port for the direct QUIC listener")

	cmd.AddCommand(
		newUploadCmd(),
		newDownloadCmd(),
		newHistoryCmd(),
		newFileInfoCmd(),
	)
	return cmd
}

// exitCodeFor maps an engine error to the CLI exit codes in spec.md §6:
// 0 success, 1 generic error, 2 offer rejected, 3 cancelled, 4 network error.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case isRejected(err):
		return 2
	case isCancelled(err):
		return 3
	case isNetworkError(err):
		return 4
	default:
		return 1
	}
}
