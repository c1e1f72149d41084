// Package ui is a bubbletea front end for internal/engine sessions. It
// implements progressx.EventSink and turns each Event into a tea.Msg,
// the same way the teacher's Model consumed its own StatusMsg/
// ProgressMsg/ErrorMsg — generalized here to the session-wide Event
// union (spec.md §4.6) instead of a single-file progress struct, since
// qdrop transfers many files per session.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qdrop/qdrop/internal/progressx"
)

type State int

const (
	StateStart State = iota
	StateConnecting
	StateOffered
	StateTransferring
	StateDone
	StateError
)

type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// EventMsg wraps a progressx.Event as a tea.Msg, so a Model can be
// driven by Program.Send from whatever goroutine is running the
// engine session.
type EventMsg progressx.Event

// Sink adapts a *tea.Program into a progressx.EventSink.
func Sink(p *tea.Program) progressx.EventSink {
	return progressx.SinkFunc(func(e progressx.Event) {
		p.Send(EventMsg(e))
	})
}

type Model struct {
	Role   Role
	State  State
	Ticket string

	TotalBytes uint64
	SentBytes  uint64

	Spinner  spinner.Model
	Progress progress.Model

	Speed    string
	ETA      string
	Protocol string
	Status   string
	Err      error
	Exit     bool

	lastSample     time.Time
	lastSampleSent uint64
}

func NewModel(role Role) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	p := progress.New(
		progress.WithGradient(string(ColorPrimary), string(ColorSecondary)),
		progress.WithWidth(40),
	)

	return Model{
		Role:     role,
		State:    StateStart,
		Spinner:  s,
		Progress: p,
		Speed:    "0 MB/s",
		ETA:      "Calculating...",
		Protocol: "Initializing...",
	}
}

func (m Model) Init() tea.Cmd {
	return m.Spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			m.Exit = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		newProgress, cmd := m.Progress.Update(msg)
		m.Progress = newProgress.(progress.Model)
		return m, cmd

	case EventMsg:
		return m.handleEvent(progressx.Event(msg))
	}

	return m, nil
}

func (m Model) handleEvent(e progressx.Event) (tea.Model, tea.Cmd) {
	switch e.Kind {
	case progressx.TicketReady:
		m.Ticket = e.Ticket
		m.State = StateConnecting
		m.Status = "Waiting for peer..."

	case progressx.PeerConnected:
		m.Protocol = e.Class.String()
		m.Status = "Peer connected. Negotiating..."

	case progressx.OfferReceived:
		m.State = StateOffered
		var total uint64
		for _, entry := range e.Entries {
			total += entry.Size
		}
		m.TotalBytes = total
		m.Status = fmt.Sprintf("Offer received: %d entries, %s", len(e.Entries), formatBytes(total))

	case progressx.FilesDecision:
		if e.Accepted {
			m.Status = "Accepted. Transferring..."
		} else {
			m.Status = "Rejected."
		}

	case progressx.InitialProgress:
		var already uint64
		for _, b := range e.PerFileBytesAlready {
			already += b
		}
		m.SentBytes = already
		m.lastSample = time.Time{}

	case progressx.BytesTransferred:
		m.State = StateTransferring
		now := time.Now()
		if !m.lastSample.IsZero() {
			elapsed := now.Sub(m.lastSample).Seconds()
			if elapsed > 0 {
				bps := float64(e.TotalSoFar-m.lastSampleSent) / elapsed
				m.Speed = fmt.Sprintf("%.2f MB/s", bps/1024/1024)
				if bps > 0 && m.TotalBytes > e.TotalSoFar {
					remaining := float64(m.TotalBytes-e.TotalSoFar) / bps
					m.ETA = time.Duration(remaining * float64(time.Second)).Round(time.Second).String()
				}
			}
		}
		m.lastSample = now
		m.lastSampleSent = e.TotalSoFar
		m.SentBytes = e.TotalSoFar

		if m.TotalBytes > 0 {
			ratio := float64(e.TotalSoFar) / float64(m.TotalBytes)
			return m, m.Progress.SetPercent(ratio)
		}

	case progressx.TransferFinished:
		m.State = StateDone
		return m, tea.Quit

	case progressx.TransferCancelled:
		m.State = StateError
		m.Err = fmt.Errorf("transfer cancelled: %s", e.Reason)
		return m, tea.Quit

	case progressx.ErrorEvent:
		m.State = StateError
		m.Err = fmt.Errorf("%s: %s", e.ErrKind, e.ErrMessage)
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	if m.Err != nil {
		return ContainerStyle.Render(
			lipgloss.JoinVertical(lipgloss.Left,
				ErrorStyle.Render("Error Occurred"),
				fmt.Sprintf("%v", m.Err),
			),
		)
	}

	var content string

	switch m.State {
	case StateStart, StateConnecting, StateOffered:
		header := MatrixHeaderStyle.Render("QDROP")

		info := ""
		if m.Role == RoleSender && m.Ticket != "" {
			info = ViewTicket(m.Ticket)
		} else {
			info = MatrixTextStyle.Render(">> TERMINAL ACTIVE <<\n>> INITIALIZING... <<")
		}

		status := MatrixTextStyle.Render(fmt.Sprintf(">> %s", m.Status))
		content = lipgloss.JoinVertical(lipgloss.Center, header, info, m.Spinner.View(), status)

	case StateTransferring:
		header := TitleStyle.Render("Transfer In Progress")

		telemetry := lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.JoinVertical(lipgloss.Left,
				StatLabelStyle.Render("SPEED"),
				StatValueStyle.Render(m.Speed),
			),
			lipgloss.NewStyle().Width(4).Render(""),
			lipgloss.JoinVertical(lipgloss.Left,
				StatLabelStyle.Render("ETA"),
				StatValueStyle.Render(m.ETA),
			),
			lipgloss.NewStyle().Width(4).Render(""),
			lipgloss.JoinVertical(lipgloss.Left,
				StatLabelStyle.Render("PROTOCOL"),
				StatValueStyle.Render(m.Protocol),
			),
		)

		bar := lipgloss.JoinHorizontal(lipgloss.Bottom, StatLabelStyle.Render("Progress "), m.Progress.View())
		content = lipgloss.JoinVertical(lipgloss.Center, header, telemetry, " ", bar)

	case StateDone:
		content = TitleStyle.Render("Transfer Complete!")
	}

	return ContainerStyle.Render(content)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
