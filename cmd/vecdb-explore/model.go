package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/HessamLa/vecdb-hnsw/internal/vecdb"
)

var (
	sTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sAccent = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	sDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sError  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type mode int

const (
	modeCollections mode = iota
	modeProbe
)

type model struct {
	registry *vecdb.Registry
	names    []string
	cursor   int
	mode     mode

	input   textinput.Model
	results []vecdb.SearchResult
	err     error

	width, height int
}

func newModel(r *vecdb.Registry) model {
	ti := textinput.New()
	ti.Placeholder = "stored id to use as query"
	ti.CharLimit = 32
	return model{
		registry: r,
		names:    r.ListCollections(),
		input:    ti,
		mode:     modeCollections,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.mode == modeProbe {
				m.mode = modeCollections
				m.input.Blur()
				return m, nil
			}
			_ = m.registry.Close()
			return m, tea.Quit
		case "up", "k":
			if m.mode == modeCollections && m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.mode == modeCollections && m.cursor < len(m.names)-1 {
				m.cursor++
			}
		case "enter":
			if m.mode == modeCollections && len(m.names) > 0 {
				m.mode = modeProbe
				m.input.Focus()
				m.results = nil
				m.err = nil
				return m, textinput.Blink
			}
			if m.mode == modeProbe {
				m.runProbe()
				return m, nil
			}
		case "esc":
			m.mode = modeCollections
			m.input.Blur()
			return m, nil
		}
	}

	if m.mode == modeProbe {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) runProbe() {
	if len(m.names) == 0 {
		return
	}
	name := m.names[m.cursor]
	c, err := m.registry.GetCollection(name)
	if err != nil {
		m.err = err
		return
	}
	id, err := strconv.ParseInt(strings.TrimSpace(m.input.Value()), 10, 64)
	if err != nil {
		m.err = fmt.Errorf("invalid id: %w", err)
		return
	}
	vec, ok := c.Get(id)
	if !ok {
		m.err = fmt.Errorf("id %d not found in %q", id, name)
		return
	}
	results, err := c.Search(vec, 10, 0)
	if err != nil {
		m.err = err
		return
	}
	m.results = results
	m.err = nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(sTitle.Render("vecdb-explore") + "\n\n")

	if len(m.names) == 0 {
		b.WriteString(sDim.Render("no collections in this database") + "\n")
		return b.String()
	}

	for i, name := range m.names {
		cursor := "  "
		if i == m.cursor {
			cursor = sAccent.Render("> ")
		}
		c, err := m.registry.GetCollection(name)
		if err != nil {
			b.WriteString(fmt.Sprintf("%s%s\n", cursor, name))
			continue
		}
		b.WriteString(fmt.Sprintf("%s%s  %s\n", cursor, name,
			sDim.Render(fmt.Sprintf("dim=%d metric=%s count=%d", c.Dimension(), c.Metric(), c.Count()))))
	}

	if m.mode == modeProbe {
		b.WriteString("\n" + sAccent.Render("probe "+m.names[m.cursor]) + "\n")
		b.WriteString(m.input.View() + "\n")
		if m.err != nil {
			b.WriteString(sError.Render(m.err.Error()) + "\n")
		}
		for i, r := range m.results {
			b.WriteString(fmt.Sprintf("%2d  id=%-8d distance=%.6f\n", i+1, r.UserID, r.Distance))
		}
	}

	b.WriteString("\n" + sDim.Render("↑/↓ select · enter probe · esc back · q quit") + "\n")
	return b.String()
}
