// Package tui implements `lextrain watch`, a live view of a run's ledger.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lextrain/internal/cache"
	"github.com/mattjoyce/lextrain/internal/inspect"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	theme = inspect.NewDefaultTheme()

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// logTailBytes bounds how much of training.log is read per refresh.
const logTailBytes = 16 << 10

// --- Types ---

// Snapshot is one poll of a cache directory.
type Snapshot struct {
	Report  *inspect.Report
	LogTail string
	At      time.Time
}

type Model struct {
	cacheDir string
	interval time.Duration
	load     func(ctx context.Context, cacheDir string) (Snapshot, error)

	width  int
	height int

	snapshot  Snapshot
	lastError string

	stageTable table.Model
	logView    viewport.Model
}

type snapshotMsg Snapshot
type errMsg struct{ err error }
type tickMsg time.Time

// NewMonitor returns a model polling cacheDir every interval.
func NewMonitor(cacheDir string, interval time.Duration) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "#", Width: 3},
			{Title: "Stage", Width: 16},
			{Title: "Status", Width: 10},
			{Title: "Duration", Width: 10},
			{Title: "Bytes", Width: 12},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	if interval <= 0 {
		interval = time.Second
	}
	return &Model{
		cacheDir:   cacheDir,
		interval:   interval,
		load:       LoadSnapshot,
		stageTable: t,
		logView:    viewport.New(80, 8),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tea.EnterAltScreen)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.stageTable.SetWidth(m.width - 6)
		m.logView.Width = m.width - 6
		m.logView.Height = m.height / 3

	case snapshotMsg:
		m.snapshot = Snapshot(msg)
		m.lastError = ""
		m.updateTable()
		m.logView.SetContent(m.snapshot.LogTail)
		m.logView.GotoBottom()
		return m, m.schedule()

	case errMsg:
		m.lastError = msg.err.Error()
		return m, m.schedule()

	case tickMsg:
		return m, m.poll()
	}

	m.stageTable, cmd = m.stageTable.Update(msg)
	return m, cmd
}

func (m *Model) updateTable() {
	if m.snapshot.Report == nil {
		m.stageTable.SetRows(nil)
		return
	}
	rows := make([]table.Row, 0, len(m.snapshot.Report.Stages))
	for _, s := range m.snapshot.Report.Stages {
		bytes := "-"
		if s.Artifact != "" && s.Bytes >= 0 {
			bytes = fmt.Sprintf("%d", s.Bytes)
		}
		duration := "-"
		if s.Status != "running" {
			duration = (time.Duration(s.Seconds * float64(time.Second))).Round(time.Millisecond).String()
		}
		rows = append(rows, table.Row{
			statusSymbol(s.Status),
			fmt.Sprintf("%d", s.Seq),
			s.Stage,
			s.Status,
			duration,
			bytes,
		})
	}
	m.stageTable.SetRows(rows)
}

func statusSymbol(status string) string {
	style := theme.Status(status)
	switch status {
	case "running":
		return style.Render("◉")
	case "succeeded":
		return style.Render("●")
	case "failed":
		return style.Render("∅")
	default:
		return style.Render("○")
	}
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	stages := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Stages"),
			m.stageTable.View(),
		),
	)
	logs := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("training.log"),
			m.logView.View(),
		),
	)

	parts := []string{m.renderHeader(), stages, logs}
	if m.lastError != "" {
		parts = append(parts, theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [↑/↓] Scroll Stages"))

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderHeader() string {
	r := m.snapshot.Report
	if r == nil {
		return borderStyle.Width(m.width - 4).Render("Waiting for " + m.cacheDir)
	}

	items := []string{
		fmt.Sprintf("Run: %s", r.RunID),
		fmt.Sprintf("Corpus: %s %s", r.Corpus, r.Pair),
		fmt.Sprintf("Status: %s", theme.Status(r.Status).Render(r.Status)),
		fmt.Sprintf("Lines: %d", r.TrainingLines),
	}
	cell := lipgloss.NewStyle().Width((m.width - 4) / len(items))
	cells := make([]string, len(items))
	for i, item := range items {
		cells[i] = cell.Render(item)
	}
	return borderStyle.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
}

// --- Commands ---

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.load(context.Background(), m.cacheDir)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// LoadSnapshot reads the ledger and the end of the training log.
func LoadSnapshot(ctx context.Context, cacheDir string) (Snapshot, error) {
	report, err := inspect.Gather(ctx, cacheDir)
	if err != nil {
		return Snapshot{}, err
	}
	tail, err := readTail(filepath.Join(report.CacheDir, cache.Key{}.FileName(cache.TrainingLog)), logTailBytes)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Report: report, LogTail: tail, At: time.Now()}, nil
}

func readTail(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	offset := info.Size() - limit
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	text := string(data)
	if offset > 0 {
		// Drop the partial first line.
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		}
	}
	return text, nil
}
