// Package tui implements the interactive skill picker shown by `skillet add`
// when no skills were named on the command line.
package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jingkaihe/skillet/pkg/skills"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// ErrCancelled is returned by Pick when the user quits without confirming
var ErrCancelled = errors.New("selection cancelled")

// Item is one selectable skill
type Item struct {
	Name        string
	Description string
}

// ItemsFromSkills converts discovered skills into picker items
func ItemsFromSkills(list []skills.Skill) []Item {
	items := make([]Item, 0, len(list))
	for _, s := range list {
		items = append(items, Item{Name: s.Name, Description: s.Description})
	}
	return items
}

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	All     key.Binding
	Confirm key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.All, k.Confirm, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, k.ShortHelp()}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:  key.NewBinding(key.WithKeys(" ", "space", "x"), key.WithHelp("space", "toggle")),
		All:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "all")),
		Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Picker is a bubbletea model for multi-selecting skills
type Picker struct {
	title     string
	items     []Item
	width     int
	cursor    int
	selected  map[int]bool
	confirmed bool
	cancelled bool

	keys keyMap
	help help.Model

	titleStyle    lipgloss.Style
	cursorStyle   lipgloss.Style
	selectedStyle lipgloss.Style
	descStyle     lipgloss.Style
}

// NewPicker creates a picker over items. Descriptions are truncated to
// descWidth runes.
func NewPicker(title string, items []Item, descWidth int) Picker {
	return Picker{
		title:         title,
		items:         items,
		width:         descWidth,
		selected:      make(map[int]bool),
		keys:          defaultKeyMap(),
		help:          help.New(),
		titleStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#7aa2f7", Dark: "#7aa2f7"}),
		cursorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		selectedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		descStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model
func (m Picker) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.cancelled = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Toggle):
			if len(m.items) > 0 {
				m.selected[m.cursor] = !m.selected[m.cursor]
			}
		case key.Matches(msg, m.keys.All):
			all := len(m.Selected()) < len(m.items)
			for i := range m.items {
				m.selected[i] = all
			}
		case key.Matches(msg, m.keys.Confirm):
			if len(m.Selected()) == 0 && len(m.items) > 0 {
				m.selected[m.cursor] = true
			}
			m.confirmed = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model
func (m Picker) View() string {
	var b strings.Builder
	b.WriteString(m.titleStyle.Render(m.title))
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString("  no skills found\n")
	}
	for i, item := range m.items {
		pointer := "  "
		if i == m.cursor {
			pointer = m.cursorStyle.Render("❯ ")
		}
		box := "[ ]"
		name := item.Name
		if m.selected[i] {
			box = m.selectedStyle.Render("[x]")
			name = m.selectedStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s%s %s", pointer, box, name)
		if item.Description != "" {
			b.WriteString("  " + m.descStyle.Render(skills.Truncate(item.Description, m.width)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

// Selected returns the selected names in item order
func (m Picker) Selected() []string {
	var names []string
	for i, item := range m.items {
		if m.selected[i] {
			names = append(names, item.Name)
		}
	}
	return names
}

// Confirmed reports whether the user accepted the selection
func (m Picker) Confirmed() bool {
	return m.confirmed
}

// Cancelled reports whether the user quit without confirming
func (m Picker) Cancelled() bool {
	return m.cancelled
}

// Pick runs the picker on the terminal and returns the chosen names. The UI
// is drawn on stderr so stdout stays clean for the command's report.
func Pick(ctx context.Context, title string, items []Item, descWidth int) ([]string, error) {
	p := tea.NewProgram(NewPicker(title, items, descWidth), tea.WithContext(ctx), tea.WithOutput(os.Stderr))
	result, err := p.Run()
	if err != nil {
		return nil, errors.Wrap(err, "error running skill picker")
	}

	picker, ok := result.(Picker)
	if !ok || !picker.Confirmed() {
		return nil, ErrCancelled
	}
	return picker.Selected(), nil
}

// IsInteractive reports whether both stdin and stderr are terminals
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}
