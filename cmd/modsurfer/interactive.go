package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dylibso/modsurfer/module"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	entryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// browseEntry is one row of the interactive listing: an import or an
// export with its rendered signature.
type browseEntry struct {
	kind      string // "import" or "export"
	namespace string
	name      string
	detail    string
}

type browseModel struct {
	err      error
	filename string
	summary  *module.Module
	entries  []browseEntry
	visible  []int
	filter   textinput.Model
	selected int
	height   int
}

func newBrowseModel(gs *globalState, filename string) *browseModel {
	filter := textinput.New()
	filter.Placeholder = "filter"
	filter.Prompt = "/ "
	filter.Width = 30

	m := &browseModel{filename: filename, filter: filter, height: 24}

	summary, err := loadModule(gs, filename)
	if err != nil {
		m.err = err
		return m
	}
	m.summary = summary

	for _, imp := range summary.Imports {
		m.entries = append(m.entries, browseEntry{
			kind:      "import",
			namespace: imp.Namespace,
			name:      imp.Name,
			detail:    signatureLabel(imp.Func),
		})
	}
	for _, exp := range summary.Exports {
		detail := signatureLabel(exp.Func)
		if exp.Kind != module.ExportFunction {
			detail = "(" + strings.ToLower(exp.Kind.String()) + ")"
		}
		m.entries = append(m.entries, browseEntry{kind: "export", name: exp.Name, detail: detail})
	}
	m.applyFilter()
	return m
}

func (m *browseModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *browseModel) applyFilter() {
	query := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for i, e := range m.entries {
		if query == "" ||
			strings.Contains(strings.ToLower(e.name), query) ||
			strings.Contains(strings.ToLower(e.namespace), query) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(0, len(m.visible)-1)
	}
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "q":
			if !m.filter.Focused() {
				return m, tea.Quit
			}

		case "up", "ctrl+k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down", "ctrl+j":
			if m.selected < len(m.visible)-1 {
				m.selected++
			}
			return m, nil

		case "/":
			if !m.filter.Focused() {
				m.filter.Focus()
				return m, nil
			}

		case "enter":
			m.filter.Blur()
			return m, nil
		}
	}

	if m.filter.Focused() {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}
	return m, nil
}

func (m *browseModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("modsurfer"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString(fmt.Sprintf("  %s · %s · %d imports · %d exports\n",
		m.summary.SourceLanguage, m.summary.Complexity.Risk,
		len(m.summary.Imports), len(m.summary.Exports)))

	if m.filter.Focused() || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Keep the cursor in view on small terminals.
	rows := max(4, m.height-6)
	start := 0
	if m.selected >= rows {
		start = m.selected - rows + 1
	}
	end := min(len(m.visible), start+rows)

	for i := start; i < end; i++ {
		e := m.entries[m.visible[i]]
		label := e.name
		if e.namespace != "" {
			label = e.namespace + "." + e.name
		}
		line := kindStyle.Render(e.kind) + " " + entryStyle.Render(label) + " " + e.detail
		if i == m.selected {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.visible) == 0 {
		b.WriteString(helpStyle.Render("  no entries match"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • / filter • q quit"))
	return b.String()
}

func runInteractive(gs *globalState, filename string) error {
	p := tea.NewProgram(newBrowseModel(gs, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
