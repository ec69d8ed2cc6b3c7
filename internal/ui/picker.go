package ui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrNothingToPick is returned when a picker is opened without items.
var ErrNothingToPick = errors.New("no items to pick from")

// PickerItem is one entry shown in the interactive picker.
type PickerItem struct {
	Label    string // primary text, e.g. a tag
	SubLabel string // secondary text shown dimmed, e.g. the task ids carrying it
	Value    string // value returned on selection
}

// pickerModel is the Bubble Tea model for a multi-select list. Space toggles
// the item under the cursor; enter confirms. Confirming with nothing toggled
// selects the item under the cursor.
type pickerModel struct {
	title    string
	items    []PickerItem
	cursor   int
	chosen   map[int]bool
	done     bool
	quitting bool
}

func newPickerModel(title string, items []PickerItem) pickerModel {
	return pickerModel{title: title, items: items, chosen: make(map[int]bool)}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case " ", "space", "x":
		m.chosen[m.cursor] = !m.chosen[m.cursor]
	case "a":
		all := len(m.selected()) < len(m.items)
		for i := range m.items {
			m.chosen[i] = all
		}
	case "enter":
		if len(m.items) > 0 {
			if len(m.selected()) == 0 {
				m.chosen[m.cursor] = true
			}
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// selected returns the chosen values in list order.
func (m pickerModel) selected() []string {
	var out []string
	for i, item := range m.items {
		if m.chosen[i] {
			out = append(out, item.Value)
		}
	}
	return out
}

func (m pickerModel) View() string {
	if m.quitting || m.done {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(StyleTitle.Render("  "+m.title) + "\n\n")

	for i, item := range m.items {
		prefix := "    "
		if i == m.cursor {
			prefix = "  ▸ "
		}
		box := "[ ] "
		if m.chosen[i] {
			box = "[x] "
		}

		line := prefix + box + StyleValue.Render(item.Label)
		if item.SubLabel != "" {
			line += "  " + StyleMeta.Render(item.SubLabel)
		}

		if i == m.cursor {
			sb.WriteString(StyleSelected.Render(line) + "\n")
		} else {
			sb.WriteString(line + "\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(StyleMeta.Render("  [ ↑↓ / jk ] navigate   [ space ] toggle   [ a ] all   [ enter ] run   [ q ] cancel") + "\n")
	return sb.String()
}

// PickMany runs an interactive multi-select picker and returns the chosen
// values. It returns (nil, nil) when the user cancels.
func PickMany(title string, items []PickerItem) ([]string, error) {
	if len(items) == 0 {
		return nil, ErrNothingToPick
	}

	p := tea.NewProgram(newPickerModel(title, items), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}

	fm := final.(pickerModel)
	if fm.quitting {
		return nil, nil
	}
	return fm.selected(), nil
}
