package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sigStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	targetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const pageSize = 20

type modelState int

const (
	stateBrowse modelState = iota
	stateGoto
)

type interactiveModel struct {
	err      error
	in       *listing
	history  []int
	input    textinput.Model
	selected int
	state    modelState
}

func runInteractive(in *listing) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	p := tea.NewProgram(newInteractiveModel(in))
	_, err := p.Run()
	return err
}

func newInteractiveModel(in *listing) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "offset: "
	ti.Placeholder = "IL_0000 or 0x10"
	ti.Width = 20
	return &interactiveModel{in: in, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.state == stateGoto {
		switch key.String() {
		case "enter":
			m.err = m.jumpToText(m.input.Value())
			m.state = stateBrowse
			m.input.Blur()
			return m, nil
		case "esc":
			m.state = stateBrowse
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.in.instrs)-1 {
			m.selected++
		}
	case "enter":
		m.err = m.follow()
	case "backspace", "b":
		if n := len(m.history); n > 0 {
			m.selected = m.history[n-1]
			m.history = m.history[:n-1]
		}
	case "g":
		m.state = stateGoto
		m.input.SetValue("")
		return m, m.input.Focus()
	}
	return m, nil
}

// follow moves the cursor to the selected branch's target.
func (m *interactiveModel) follow() error {
	if len(m.in.instrs) == 0 {
		return nil
	}
	target, ok := m.in.instrs[m.selected].Target()
	if !ok {
		return nil
	}
	return m.jumpTo(target)
}

func (m *interactiveModel) jumpToText(s string) error {
	s = strings.TrimSpace(s)
	base := 10
	for _, prefix := range []string{"IL_", "0x"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s, base = rest, 16
			break
		}
	}
	off, err := strconv.ParseInt(s, base, 32)
	if err != nil {
		return fmt.Errorf("bad offset %q", s)
	}
	return m.jumpTo(int(off))
}

func (m *interactiveModel) jumpTo(offset int) error {
	for i, in := range m.in.instrs {
		if in.Offset == offset {
			m.history = append(m.history, m.selected)
			m.selected = i
			return nil
		}
	}
	return fmt.Errorf("no instruction at IL_%04x", offset)
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("IL Disassembler"))
	b.WriteString(" ")
	b.WriteString(m.in.name)
	b.WriteString("\n")
	if m.in.method != nil {
		b.WriteString(sigStyle.Render(formatMethod(m.in.method)))
		b.WriteString("\n")
	}
	for _, l := range formatLocals(m.in.locals) {
		b.WriteString(sigStyle.Render(l))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	target := -1
	if len(m.in.instrs) > 0 {
		if t, ok := m.in.instrs[m.selected].Target(); ok {
			target = t
		}
	}
	start := max(0, m.selected-pageSize/2)
	end := min(len(m.in.instrs), start+pageSize)
	for i := start; i < end; i++ {
		in := m.in.instrs[i]
		line := formatInstruction(in)
		switch {
		case i == m.selected:
			b.WriteString(selectedStyle.Render("> " + line))
		case in.Offset == target:
			b.WriteString(targetStyle.Render("  " + line))
		default:
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	b.WriteString("\n")
	if m.state == stateGoto {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter jump • esc cancel"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ move • enter follow branch • b back • g goto • q quit"))
	}
	return b.String()
}
