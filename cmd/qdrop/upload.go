package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/qdrop/qdrop/internal/archive"
	"github.com/qdrop/qdrop/internal/config"
	"github.com/qdrop/qdrop/internal/discovery"
	"github.com/qdrop/qdrop/internal/engine"
	"github.com/qdrop/qdrop/internal/logging"
	"github.com/qdrop/qdrop/internal/progressx"
	"github.com/qdrop/qdrop/internal/ui"
)

func newUploadCmd() *cobra.Command {
	var archiveFormat string

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Offer one or more files/directories to a peer (upload_files)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tui, _ := cmd.Flags().GetBool("tui")
			bindPort, _ := cmd.Flags().GetString("bind-port")
			paths := args

			if archiveFormat != "" {
				bundled, cleanup, err := bundlePaths(paths, archiveFormat)
				if err != nil {
					return err
				}
				defer cleanup()
				paths = bundled
			}

			return runUpload(cmd.Context(), bindPort, paths, tui)
		},
	}

	cmd.Flags().StringVar(&archiveFormat, "archive", "", `bundle the single given path into one archive before sending ("tar.gz" or "zip")`)
	return cmd
}

// bundlePaths archives a single-path upload (one file or directory; more
// than one path is an error) into a temp file, so
// the CLI can offer one FileEntry instead of the native directory tree
// when the user explicitly wants one opaque blob (see internal/archive).
func bundlePaths(paths []string, format string) ([]string, func(), error) {
	if len(paths) != 1 {
		return nil, nil, fmt.Errorf("--archive requires exactly one path")
	}
	archivePath, err := archive.Compress(paths[0], archive.Format(format))
	if err != nil {
		return nil, nil, fmt.Errorf("archive: %w", err)
	}
	return []string{archivePath}, func() { os.Remove(archivePath) }, nil
}

func runUpload(ctx context.Context, bindPort string, paths []string, useTUI bool) error {
	log := logging.FromEnv()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	ep, err := buildEndpoint(ctx, bindPort, log)
	if err != nil {
		return err
	}
	defer ep.Close()

	started := time.Now()
	ticketTag := discovery.Tag(ep.NodeID(), engine.ApplicationTag)

	var sink progressx.EventSink
	var program *tea.Program
	if useTUI {
		model := ui.NewModel(ui.RoleSender)
		program = tea.NewProgram(model)
		sink = ui.Sink(program)
	} else {
		sink = progressx.SinkFunc(func(e progressx.Event) { printEvent("sender", e) })
	}

	sender := engine.NewSender(ep, sink)
	if cfg, cerr := config.Load(); cerr == nil {
		sender.SetTransferTuning(cfg.Concurrency, cfg.ChunkSize)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sender.Run(ctx, paths) }()

	if program != nil {
		if _, perr := program.Run(); perr != nil {
			fmt.Fprintln(os.Stderr, "TUI error:", perr)
		}
		cancel()
	}
	err = <-runErr

	recordSession("sender", ticketTag, len(paths), sender.BytesTransferred(), started, err)
	return err
}
