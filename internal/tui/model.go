// Package tui implements the interactive chat over a single clinical note.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30

	defaultWidth  = 80
	defaultHeight = 20
	// header, sparkline, input and footer lines
	chromeHeight = 9
)

// AskFunc answers one question against the loaded note.
type AskFunc func(ctx context.Context, query string) (*pipeline.Result, error)

// Config configures the chat model.
type Config struct {
	// NotePath is shown in the header.
	NotePath string
	Ask      AskFunc
	// Timeout bounds each question. Zero means no limit.
	Timeout time.Duration
}

// exchange is one question and its outcome.
type exchange struct {
	query   string
	result  *pipeline.Result
	err     error
	elapsed time.Duration
}

// Model is the bubbletea chat model.
type Model struct {
	cfg Config

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	history []exchange
	scores  []float64
	busy    bool
	pending string
	started time.Time

	quitting bool
}

type answerMsg struct {
	query   string
	result  *pipeline.Result
	err     error
	elapsed time.Duration
}

// NewModel creates a chat model.
func NewModel(cfg Config) Model {
	in := textinput.New()
	in.Placeholder = "Ask a question about the note"
	in.Prompt = "> "
	in.CharLimit = 500
	in.Width = defaultWidth - 4
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = labelStyle

	vp := viewport.New(defaultWidth, defaultHeight-chromeHeight)

	m := Model{
		cfg:      cfg,
		input:    in,
		viewport: vp,
		spinner:  sp,
		scores:   make([]float64, 0, historySize),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// ask runs one question off the UI goroutine.
func (m Model) ask(query string) tea.Cmd {
	askFn := m.cfg.Ask
	timeout := m.cfg.Timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		res, err := askFn(ctx, query)
		return answerMsg{query: query, result: res, err: err, elapsed: time.Since(start)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.pending = query
			m.started = time.Now()
			m.input.Reset()
			m.refresh()
			return m, tea.Batch(m.ask(query), m.spinner.Tick)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case answerMsg:
		m.busy = false
		m.pending = ""
		m.history = append(m.history, exchange(msg))
		if msg.result != nil {
			for _, h := range msg.result.Hits {
				m.scores = appendToHistory(m.scores, float64(h.Score))
			}
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	var b strings.Builder
	if len(m.history) == 0 && !m.busy {
		b.WriteString(dimStyle.Render("No questions yet. Type one below and press enter."))
	}
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(queryStyle.Render("Q: " + ex.query))
		b.WriteString("\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("%s: %v", pipeline.Classify(ex.err), ex.err)))
			continue
		}
		b.WriteString(answerStyle.Render(ex.result.Answer))
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Sources: "))
		b.WriteString(dimStyle.Render(FormatSources(ex.result)))
		b.WriteString(dimStyle.Render("  " + FormatDuration(ex.elapsed.Seconds())))
	}
	if m.busy {
		if len(m.history) > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(queryStyle.Render("Q: " + m.pending))
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + dimStyle.Render(" retrieving and generating..."))
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String()))
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline draws the retrieval score history.
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no scores yet"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(" medrag chat "))
	b.WriteString(" ")
	b.WriteString(dimStyle.Render(m.cfg.NotePath))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Retrieval scores "))
	b.WriteString(createSparkline(m.scores))
	b.WriteString("\n")
	b.WriteString(m.input.View())

	footer := footerKeyStyle.Render("[enter]") + footerStyle.Render(" ask  ") +
		footerKeyStyle.Render("[pgup/pgdn]") + footerStyle.Render(" scroll  ") +
		footerKeyStyle.Render("[esc]") + footerStyle.Render(" quit")
	b.WriteString("\n" + footer)

	return b.String()
}

// Run starts the chat program on the terminal and blocks until the user quits.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(NewModel(cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
