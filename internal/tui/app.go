package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mangwale-chat/internal/model"
	"mangwale-chat/internal/realtime"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ChatClient is the part of realtime.Client the terminal UI drives.
type ChatClient interface {
	Messages() []model.ChatMessage
	Typing() bool
	Connected() bool
	SessionID() string
	SendText(text string) error
	ClickButton(btn model.OptionButton) (bool, error)
	ShareLocation(ctx context.Context, lat, lng float64) error
	Reset(ctx context.Context) error
}

type mode int

const (
	modeChat mode = iota
	modeButtons
)

// EventMsg wraps a client event so it can be delivered with tea.Program.Send.
type EventMsg realtime.Event

type errMsg struct{ err error }

type Model struct {
	client ChatClient

	messages  []model.ChatMessage
	typing    bool
	connected bool
	sessionID string

	input    textinput.Model
	mode     mode
	cursor   int
	notice   string
	width    int
	height   int
	quitting bool
}

func NewModel(client ChatClient) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 1000
	ti.Focus()

	m := Model{
		client: client,
		input:  ti,
		width:  100,
		height: 30,
	}
	m.refresh()
	return m
}

func (m *Model) refresh() {
	m.messages = m.client.Messages()
	m.typing = m.client.Typing()
	m.connected = m.client.Connected()
	m.sessionID = m.client.SessionID()
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case EventMsg:
		m.refresh()
		if m.mode == modeButtons && len(m.latestButtons()) == 0 {
			m.mode = modeChat
		}
		return m, nil

	case errMsg:
		m.notice = msg.err.Error()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		if m.mode == modeButtons {
			return m.updateButtons(msg)
		}
		return m.updateChat(msg)
	}
	return m, nil
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		if len(m.latestButtons()) > 0 {
			m.mode = modeButtons
			m.cursor = 0
			m.input.Blur()
		}
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		m.notice = ""
		if strings.HasPrefix(text, "/") {
			return m, m.runCommand(text)
		}
		err := m.client.SendText(text)
		m.refresh()
		if err != nil && !errors.Is(err, realtime.ErrEmptyMessage) {
			m.notice = "Message not sent: " + err.Error()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateButtons(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	buttons := m.latestButtons()

	switch msg.String() {
	case "esc", "tab":
		m.mode = modeChat
		m.input.Focus()

	case "up", "k", "left", "h":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j", "right", "l":
		if m.cursor < len(buttons)-1 {
			m.cursor++
		}

	case "enter":
		if m.cursor >= len(buttons) {
			return m, nil
		}
		login, err := m.client.ClickButton(buttons[m.cursor])
		m.mode = modeChat
		m.input.Focus()
		m.refresh()
		switch {
		case login:
			m.notice = "Login required: restart with MANGWALE_AUTH_TOKEN set to continue as a signed-in user."
		case err != nil:
			m.notice = "Button not sent: " + err.Error()
		}
	}
	return m, nil
}

// runCommand handles slash commands typed in the input.
func (m Model) runCommand(text string) tea.Cmd {
	fields := strings.Fields(text)
	client := m.client

	switch fields[0] {
	case "/quit":
		return tea.Quit

	case "/clear":
		return func() tea.Msg {
			if err := client.Reset(context.Background()); err != nil {
				return errMsg{err}
			}
			return EventMsg{Kind: realtime.EventMessages}
		}

	case "/location":
		lat, lng, err := parseLatLng(strings.Join(fields[1:], ""))
		if err != nil {
			return func() tea.Msg { return errMsg{err} }
		}
		return func() tea.Msg {
			if err := client.ShareLocation(context.Background(), lat, lng); err != nil {
				return errMsg{err}
			}
			return EventMsg{Kind: realtime.EventMessages}
		}

	default:
		return func() tea.Msg { return errMsg{fmt.Errorf("unknown command %s", fields[0])} }
	}
}

// latestButtons returns the buttons of the newest assistant message, plus its
// card actions.
func (m Model) latestButtons() []model.OptionButton {
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.Role != model.RoleAssistant {
			continue
		}
		buttons := append([]model.OptionButton{}, msg.Buttons...)
		for _, card := range msg.Cards {
			buttons = append(buttons, model.OptionButton{
				ID:    card.ID,
				Label: card.Action.Label + ": " + card.Name,
				Value: card.Action.Value,
			})
		}
		return buttons
	}
	return nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	status := offlineStyle.Render("offline")
	if m.connected {
		status = onlineStyle.Render("online")
	}
	b.WriteString(titleStyle.Render("Mangwale Chat") + " " + status + dimStyle.Render("  "+m.sessionID) + "\n\n")

	lines := m.transcriptLines()
	visible := m.transcriptRows()
	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	for i := len(lines); i < visible; i++ {
		b.WriteString("\n")
	}

	if m.typing {
		b.WriteString(dimStyle.Render("  Mangwale is typing...") + "\n")
	} else {
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render("  "+m.notice) + "\n")
	}

	if m.mode == modeButtons {
		b.WriteString(m.renderButtons() + "\n")
		b.WriteString(helpStyle.Render("  ←/→: choose  Enter: send  Esc: back"))
		return b.String()
	}

	b.WriteString(statusBarStyle.Render(">") + " " + m.input.View() + "\n")
	b.WriteString(helpStyle.Render("  Enter: send  Tab: buttons  /location lat,lng  /clear  Esc: quit"))
	return b.String()
}

func (m Model) transcriptLines() []string {
	var lines []string
	for _, msg := range m.messages {
		tag := assistantRoleStyle.Render(" Mangwale ")
		if msg.Role == model.RoleUser {
			tag = userRoleStyle.Render(" You ")
		}
		for i, part := range strings.Split(msg.Content, "\n") {
			if i == 0 {
				lines = append(lines, tag+" "+part)
				continue
			}
			lines = append(lines, "  "+part)
		}
		for _, card := range msg.Cards {
			lines = append(lines, strings.Split(renderCard(card), "\n")...)
		}
		if len(msg.Buttons) > 0 {
			labels := make([]string, len(msg.Buttons))
			for i, btn := range msg.Buttons {
				labels[i] = "[" + btn.Label + "]"
			}
			lines = append(lines, dimStyle.Render("  "+strings.Join(labels, " ")))
		}
	}
	return lines
}

func renderCard(card model.ProductCard) string {
	body := card.Name
	if card.Price != "" {
		body += "  " + card.Price
	}
	var meta []string
	if card.Rating > 0 {
		meta = append(meta, fmt.Sprintf("★ %.1f", card.Rating))
	}
	if card.DeliveryTime != "" {
		meta = append(meta, card.DeliveryTime)
	}
	if len(meta) > 0 {
		body += "\n" + dimStyle.Render(strings.Join(meta, " · "))
	}
	return cardStyle.Render(body)
}

func (m Model) renderButtons() string {
	var parts []string
	for i, btn := range m.latestButtons() {
		if i == m.cursor {
			parts = append(parts, selectedStyle.Render(btn.Label))
			continue
		}
		parts = append(parts, buttonStyle.Render(btn.Label))
	}
	return "  " + strings.Join(parts, " ")
}

func (m Model) transcriptRows() int {
	// title, blank, typing line, input, help
	rows := m.height - 5
	if m.notice != "" {
		rows--
	}
	if rows < 1 {
		rows = 1
	}
	return rows
}

func parseLatLng(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("usage: /location <lat>,<lng>")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", parts[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", parts[1])
	}
	return lat, lng, nil
}
