package ui

import (
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrInterrupted is returned by Spin when the user presses Ctrl+C
var ErrInterrupted = errors.New("interrupted")

// SpinnerModel shows a spinner until the work it waits on reports back
type SpinnerModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
	done     bool
	result   string
	err      error
}

// NewSpinner creates a new spinner with a message
func NewSpinner(message string) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)
	return SpinnerModel{
		spinner: s,
		message: message,
	}
}

func (m SpinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progressMsg:
		m.message = string(msg)
		return m, nil
	case spinnerDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m SpinnerModel) View() string {
	if m.done {
		if m.err != nil {
			return RenderStatus("error", m.err.Error()) + "\n"
		}
		return RenderStatus("success", m.result) + "\n"
	}
	if m.quitting {
		return RenderStatus("warning", "Stopped waiting") + "\n"
	}
	return "  " + m.spinner.View() + " " + WhiteStyle.Render(m.message) + "\n"
}

type spinnerDoneMsg struct {
	result string
	err    error
}

type progressMsg string

// Spin runs fn while showing message next to a spinner. fn may report
// progress through update, which replaces the message. Output goes to out;
// when out is not a terminal the spinner is skipped and only the final
// status line is written.
func Spin(out io.Writer, message string, fn func(update func(string)) (string, error)) (string, error) {
	if f, ok := out.(*os.File); !ok || !isTerminal(f) {
		result, err := fn(func(string) {})
		if err != nil {
			_, _ = io.WriteString(out, RenderStatus("error", err.Error())+"\n")
			return "", err
		}
		_, _ = io.WriteString(out, RenderStatus("success", result)+"\n")
		return result, nil
	}

	p := tea.NewProgram(NewSpinner(message), tea.WithOutput(out))
	go func() {
		result, err := fn(func(s string) { p.Send(progressMsg(s)) })
		p.Send(spinnerDoneMsg{result: result, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m := final.(SpinnerModel)
	if m.quitting && !m.done {
		return "", ErrInterrupted
	}
	return m.result, m.err
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
