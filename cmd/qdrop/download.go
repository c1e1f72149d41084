package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/qdrop/qdrop/internal/config"
	"github.com/qdrop/qdrop/internal/discovery"
	"github.com/qdrop/qdrop/internal/engine"
	"github.com/qdrop/qdrop/internal/logging"
	"github.com/qdrop/qdrop/internal/progressx"
	"github.com/qdrop/qdrop/internal/ticket"
	"github.com/qdrop/qdrop/internal/ui"
)

func newDownloadCmd() *cobra.Command {
	var output string
	var yes bool

	cmd := &cobra.Command{
		Use:   "download <ticket>",
		Short: "Redeem a ticket and receive the offered files (download_files)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tui, _ := cmd.Flags().GetBool("tui")
			bindPort, _ := cmd.Flags().GetString("bind-port")

			t, err := ticket.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse ticket: %w", err)
			}

			destDir := output
			if destDir == "" {
				if cfg, cerr := config.Load(); cerr == nil && cfg.DefaultOutputDir != "" {
					destDir = cfg.DefaultOutputDir
				} else {
					destDir = "."
				}
			}

			return runDownload(cmd.Context(), bindPort, t, destDir, tui, yes)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "destination directory (default: config default_output_dir, or cwd)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "accept the offer without prompting")
	return cmd
}

func runDownload(ctx context.Context, bindPort string, t ticket.Ticket, destDir string, useTUI, autoYes bool) error {
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
	ticketTag := discovery.Tag(t.PeerID, t.ApplicationTag)

	var receiver *engine.Receiver
	var sink progressx.EventSink
	var program *tea.Program
	entryCount := 0
	if useTUI {
		model := ui.NewModel(ui.RoleReceiver)
		program = tea.NewProgram(model)
		uiSink := ui.Sink(program)
		sink = progressx.SinkFunc(func(e progressx.Event) {
			uiSink.OnEvent(e)
			if e.Kind == progressx.OfferReceived {
				entryCount = len(e.Entries)
				// the TUI has no interactive accept/reject surface yet,
				// so a TUI session always accepts into destDir.
				receiver.AcceptFiles(destDir)
			}
		})
	} else {
		sink = progressx.SinkFunc(func(e progressx.Event) {
			printEvent("receiver", e)
			if e.Kind == progressx.OfferReceived {
				entryCount = len(e.Entries)
				if autoYes || promptAccept() {
					receiver.AcceptFiles(destDir)
				} else {
					receiver.RejectFiles("declined by user")
				}
			}
		})
	}

	receiver = engine.NewReceiver(ep, sink)
	if cfg, cerr := config.Load(); cerr == nil {
		receiver.SetTransferTuning(cfg.Concurrency, cfg.ChunkSize)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- receiver.Run(ctx, t) }()

	if program != nil {
		if _, perr := program.Run(); perr != nil {
			fmt.Fprintln(os.Stderr, "TUI error:", perr)
		}
		cancel()
	}
	err = <-runErr

	recordSession("receiver", ticketTag, entryCount, receiver.BytesTransferred(), started, err)
	return err
}

func promptAccept() bool {
	fmt.Print("Accept this offer? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}
