// Package tui is a terminal dashboard for a running recorder. It polls the
// control API and starts or stops sessions on key presses.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"workshop-recorder/internal/service/recorder"
	"workshop-recorder/internal/service/segment"
)

// Key bindings.
const (
	KeyStart = "s"
	KeyStop  = "x"
	KeyQuit  = "q"
	KeyCtrlC = "ctrl+c"
)

const (
	barWidth       = 30
	maxSegmentRows = 8
	requestTimeout = 5 * time.Second
	errorLifetime  = 5 * time.Second
)

// API is the control surface the dashboard drives.
type API interface {
	Status(ctx context.Context) (recorder.Snapshot, error)
	Segments(ctx context.Context) ([]segment.Outcome, error)
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) error
}

// Model is the root bubbletea model.
type Model struct {
	api          API
	pollInterval time.Duration

	snapshot  recorder.Snapshot
	segments  []segment.Outcome
	connected bool
	busy      bool

	errorMessage string
	width        int
}

// New creates a dashboard polling api every pollInterval.
func New(api API, pollInterval time.Duration) Model {
	return Model{api: api, pollInterval: pollInterval}
}

// Init fetches the first status.
func (m Model) Init() tea.Cmd {
	return fetchCmd(m.api)
}

func fetchCmd(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		snap, err := api.Status(ctx)
		if err != nil {
			return ErrMsg{Err: err, Poll: true}
		}
		segs, err := api.Segments(ctx)
		if err != nil {
			return ErrMsg{Err: err, Poll: true}
		}
		return StatusMsg{Snapshot: snap, Segments: segs}
	}
}

func pollCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return PollMsg{}
	})
}

func startCmd(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		id, err := api.Start(ctx)
		if err != nil {
			return ErrMsg{Err: err}
		}
		return StartedMsg{SessionID: id}
	}
}

func stopCmd(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := api.Stop(ctx); err != nil {
			return ErrMsg{Err: err}
		}
		return StoppedMsg{}
	}
}

func clearErrorCmd() tea.Cmd {
	return tea.Tick(errorLifetime, func(time.Time) tea.Msg {
		return ClearErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case StatusMsg:
		m.snapshot = msg.Snapshot
		m.segments = msg.Segments
		m.connected = true
		return m, pollCmd(m.pollInterval)

	case PollMsg:
		return m, fetchCmd(m.api)

	case StartedMsg:
		m.busy = false
		m.snapshot.SessionID = msg.SessionID
		m.snapshot.IsRecording = true
		m.segments = nil
		return m, fetchCmd(m.api)

	case StoppedMsg:
		m.busy = false
		m.snapshot.IsRecording = false
		return m, fetchCmd(m.api)

	case ErrMsg:
		if msg.Poll {
			m.connected = false
			return m, pollCmd(m.pollInterval)
		}
		m.busy = false
		m.errorMessage = msg.Err.Error()
		return m, clearErrorCmd()

	case ClearErrorMsg:
		m.errorMessage = ""
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyCtrlC:
		return m, tea.Quit

	case KeyStart:
		if !m.connected || m.busy || m.snapshot.IsRecording {
			return m, nil
		}
		m.busy = true
		return m, startCmd(m.api)

	case KeyStop:
		if !m.connected || m.busy || !m.snapshot.IsRecording {
			return m, nil
		}
		m.busy = true
		return m, stopCmd(m.api)
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	if !m.connected {
		sections = append(sections, dimStyle.Render("Connecting to recorder..."))
	} else {
		sections = append(sections,
			m.renderTimers(),
			m.renderCounts(),
			m.renderSegments(),
		)
	}
	if m.errorMessage != "" {
		sections = append(sections, errorStyle.Render("Error: "+m.errorMessage))
	}
	sections = append(sections, renderFooter())

	return strings.Join(sections, "\n") + "\n"
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("WORKSHOP RECORDER")
	dot := idleStyle.Render("○ " + m.snapshot.State.String())
	if m.snapshot.IsRecording {
		dot = recordingStyle.Render("● " + m.snapshot.State.String())
	}
	line := title + "  " + dot
	if m.snapshot.SessionID != "" {
		line += dimStyle.Render("  " + m.snapshot.SessionID)
	}
	return line
}

func (m Model) renderTimers() string {
	s := m.snapshot
	chunk := bar(float64(s.ChunkSeconds), float64(s.ChunkDurationSeconds))
	level := bar(s.Level, 1)
	return fmt.Sprintf("Recording %s   Chunk %s %s/%s\nLevel     %s",
		clock(s.RecordingSeconds), chunk, clock(s.ChunkSeconds), clock(s.ChunkDurationSeconds), level)
}

func (m Model) renderCounts() string {
	s := m.snapshot
	return fmt.Sprintf("Segments  %s  %s  %s",
		pendingStyle.Render(fmt.Sprintf("%d processing", s.Processing)),
		completedStyle.Render(fmt.Sprintf("%d completed", s.Completed)),
		errorStyle.Render(fmt.Sprintf("%d failed", s.Failed)),
	)
}

func (m Model) renderSegments() string {
	if len(m.segments) == 0 {
		return dimStyle.Render("No segments yet")
	}

	rows := m.segments
	if len(rows) > maxSegmentRows {
		rows = rows[len(rows)-maxSegmentRows:]
	}
	lines := make([]string, 0, len(rows))
	for _, o := range rows {
		line := fmt.Sprintf("#%-3d %4ds  %-10s", o.Index, o.DurationSeconds, o.State.String())
		if o.IsFinal {
			line += " final"
		}
		switch o.State {
		case segment.StateCompleted:
			line = completedStyle.Render(line)
		case segment.StateFailed:
			line = errorStyle.Render(line + " " + o.Error)
		default:
			line = pendingStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderFooter() string {
	return keyStyle.Render(KeyStart) + dimStyle.Render(" start  ") +
		keyStyle.Render(KeyStop) + dimStyle.Render(" stop  ") +
		keyStyle.Render(KeyQuit) + dimStyle.Render(" quit")
}

// bar renders value/total as a fixed-width bar.
func bar(value, total float64) string {
	filled := 0
	if total > 0 {
		filled = int(value / total * barWidth)
	}
	filled = min(max(filled, 0), barWidth)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

// clock formats seconds as mm:ss.
func clock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
