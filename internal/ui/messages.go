package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/saravenpi/whopchat/internal/chatsync"
	"github.com/saravenpi/whopchat/internal/models"
)

type chatOpenedMsg struct {
	ok bool
}

type messageSentMsg struct{}

type MessagesModel struct {
	app          *App
	chat         models.Chat
	viewport     viewport.Model
	textarea     textarea.Model
	spinner      spinner.Model
	opened       bool
	composing    bool
	ticking      bool
	aiEnabled    bool
	replyTo      *models.Message
	draft        string
	windowWidth  int
	windowHeight int
}

func NewMessagesModel(app *App, chat models.Chat) MessagesModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	vp := viewport.New(80, 20)

	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.CharLimit = 4000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	return MessagesModel{
		app:          app,
		chat:         chat,
		viewport:     vp,
		textarea:     ta,
		spinner:      s,
		ticking:      true,
		aiEnabled:    chat.HasAIParticipant(),
		windowWidth:  80,
		windowHeight: 30,
	}
}

// withDraft queues a message to send as soon as the chat is open.
func (m MessagesModel) withDraft(text string) MessagesModel {
	m.draft = strings.TrimSpace(text)
	return m
}

func (m MessagesModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.openChatCmd())
}

func (m MessagesModel) openChatCmd() tea.Cmd {
	store, chatID := m.app.Store, m.chat.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return chatOpenedMsg{ok: store.FetchSingleChat(ctx, chatID)}
	}
}

func (m MessagesModel) sendMessageCmd(payload models.SendMessagePayload) tea.Cmd {
	store, aiEnabled := m.app.Store, m.aiEnabled
	return func() tea.Msg {
		// AI replies can take a while to stream in.
		ctx, cancel := context.WithTimeout(context.Background(), 2*requestTimeout)
		defer cancel()
		store.SendMessage(ctx, payload, aiEnabled)
		return messageSentMsg{}
	}
}

func (m MessagesModel) messages() []models.Message {
	single := m.app.Store.SingleChat()
	if single == nil || single.Chat.ID != m.chat.ID {
		return nil
	}
	return single.Messages
}

// busy reports whether something on screen is still animating.
func (m MessagesModel) busy() bool {
	flags := m.app.Store.Flags()
	if flags.SingleChatLoading || flags.Sending {
		return true
	}
	for _, message := range m.messages() {
		if message.Streaming {
			return true
		}
	}
	return false
}

func (m MessagesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.resize()
		m.updateViewportContent()
		return m, nil

	case chatOpenedMsg:
		if !msg.ok {
			return m.app.open(NewConversationsModel(m.app))
		}
		m.opened = true
		if single := m.app.Store.SingleChat(); single != nil && single.Chat.ID == m.chat.ID {
			m.chat = single.Chat
		}
		m.updateViewportContent()
		m.viewport.GotoBottom()

		if m.draft != "" {
			payload := models.SendMessagePayload{ChatID: m.chat.ID, Content: m.draft}
			m.draft = ""
			tick := m.startTicking()
			return m, tea.Batch(m.sendMessageCmd(payload), tick)
		}
		return m, nil

	case storeEventMsg:
		if msg.Kind != chatsync.SingleChatChanged && msg.Kind != chatsync.FlagsChanged {
			return m, nil
		}
		atBottom := m.viewport.AtBottom()
		m.updateViewportContent()
		if atBottom {
			m.viewport.GotoBottom()
		}
		tick := m.startTicking()
		return m, tick

	case messageSentMsg:
		return m, nil

	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.updateViewportContent()
			return m, cmd
		}
		m.ticking = false
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if msg.String() == "esc" {
			if m.composing {
				m.composing = false
				m.replyTo = nil
				m.textarea.Reset()
				m.textarea.Blur()
				m.resize()
				return m, nil
			}
			m.app.Store.CloseChat()
			return m.app.open(NewConversationsModel(m.app))
		}

		if m.composing {
			return m.updateCompose(msg)
		}

		if !m.opened {
			return m, nil
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit

		case "n", "c":
			return m.compose(nil)

		case "p":
			if target := replyTarget(m.messages(), m.app.selfID()); target != nil {
				return m.compose(target)
			}
			return m, nil

		case "a":
			if m.chat.HasAIParticipant() {
				m.aiEnabled = !m.aiEnabled
			}
			return m, nil

		case "r":
			tick := m.startTicking()
			return m, tea.Batch(m.openChatCmd(), tick)

		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m MessagesModel) compose(replyTo *models.Message) (tea.Model, tea.Cmd) {
	m.composing = true
	m.replyTo = replyTo
	m.textarea.Focus()
	m.resize()
	return m, textarea.Blink
}

func (m MessagesModel) updateCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+s":
		text := strings.TrimSpace(m.textarea.Value())
		if text == "" {
			return m, nil
		}
		payload := models.SendMessagePayload{
			ChatID:  m.chat.ID,
			Content: text,
			ReplyTo: m.replyTo,
		}
		m.textarea.Reset()
		m.textarea.Blur()
		m.composing = false
		m.replyTo = nil
		m.resize()
		m.viewport.GotoBottom()
		tick := m.startTicking()
		return m, tea.Batch(m.sendMessageCmd(payload), tick)

	case "ctrl+x":
		m.replyTo = nil
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *MessagesModel) startTicking() tea.Cmd {
	if m.ticking || !m.busy() {
		return nil
	}
	m.ticking = true
	return m.spinner.Tick
}

func (m *MessagesModel) resize() {
	headerHeight := 4
	helpHeight := 2
	available := m.windowHeight - headerHeight - helpHeight

	m.viewport.Width = m.windowWidth - 4
	m.textarea.SetWidth(m.windowWidth - 4)
	if m.composing {
		composeHeight := 5
		if m.replyTo != nil {
			composeHeight++
		}
		available -= composeHeight
	}
	m.viewport.Height = max(available, 3)
}

func (m *MessagesModel) updateViewportContent() {
	m.viewport.SetContent(renderMessages(m.messages(), m.app.selfID(), m.viewport.Width, m.spinner.View()))
}

// replyTarget is the latest confirmed message from someone else, or the
// latest confirmed message at all.
func replyTarget(messages []models.Message, selfID string) *models.Message {
	var fallback *models.Message
	for i := len(messages) - 1; i >= 0; i-- {
		message := messages[i]
		if message.IsPending() || message.IsFailed() || message.Streaming {
			continue
		}
		if message.SenderID() != selfID {
			return &message
		}
		if fallback == nil {
			fallback = &message
		}
	}
	return fallback
}

func snippet(message *models.Message, width uint) string {
	text := strings.Join(strings.Fields(message.Content), " ")
	if text == "" && message.Image != "" {
		text = "🖼 Image"
	}
	return truncate.StringWithTail(text, width, "...")
}

func renderMessages(messages []models.Message, selfID string, width int, spin string) string {
	if width <= 0 {
		width = 80
	}
	wrapWidth := max(width-10, 10)
	right := lipgloss.NewStyle().Align(lipgloss.Right).Width(width)

	var content strings.Builder
	for i, message := range messages {
		if i > 0 {
			content.WriteString("\n")
		}

		fromMe := message.SenderID() == selfID && selfID != ""
		place := func(s string) string {
			if fromMe {
				return right.Render(s)
			}
			return s
		}

		sender := displayName(message.Sender)
		if fromMe {
			sender = "You"
		}
		header := fmt.Sprintf("%s • %s", sender, message.CreatedAt.Local().Format("3:04 PM"))
		header = messageHeaderStyle.Render(header)
		switch {
		case message.IsFailed():
			header += " " + errorStyle.Render("✗ "+message.Status)
		case message.Status != "":
			header += " " + pendingStyle.Render(message.Status)
		}
		content.WriteString(place(header) + "\n")

		if message.ReplyTo != nil {
			quote := fmt.Sprintf("↳ %s: %s", displayName(message.ReplyTo.Sender), snippet(message.ReplyTo, uint(wrapWidth-4)))
			content.WriteString(place(replyQuoteStyle.Render(quote)) + "\n")
		}

		style := messageFromOtherStyle
		switch {
		case fromMe:
			style = messageFromMeStyle
		case message.Sender != nil && message.Sender.IsAI:
			style = messageFromAIStyle
		}

		switch {
		case message.Streaming && message.Content == "":
			content.WriteString(place(pendingStyle.Render(spin+" thinking...")) + "\n")
		case message.Content != "":
			text := wordwrap.String(message.Content, wrapWidth)
			if message.Streaming {
				text += "▍"
			}
			content.WriteString(place(style.Render(text)) + "\n")
		}

		if message.Image != "" {
			content.WriteString(place(messageHeaderStyle.Render("🖼  [Image: "+message.Image+"]")) + "\n")
		}
	}
	return content.String()
}

func (m MessagesModel) View() string {
	messages := m.messages()
	if !m.opened && len(messages) == 0 {
		return fmt.Sprintf("\n  %s Loading messages...\n", m.spinner.View())
	}

	title := m.chat.Title(m.app.selfID())
	s := titleStyle.Render("💬 "+title) + "\n"
	if m.chat.HasAIParticipant() {
		state := "off"
		if m.aiEnabled {
			state = "on"
		}
		s += statusStyle.Render("🤖 AI replies "+state) + "\n"
	} else if m.chat.IsGroup {
		s += statusStyle.Render(fmt.Sprintf("%d participants", len(m.chat.Participants))) + "\n"
	} else {
		s += "\n"
	}

	if len(messages) == 0 {
		s += normalStyle.Render("  No messages yet. Press 'n' to say hello.") + "\n"
	} else {
		s += m.viewport.View() + "\n"
	}

	if m.composing {
		s += "\n"
		if m.replyTo != nil {
			s += replyQuoteStyle.Render(fmt.Sprintf("Replying to %s: %s", displayName(m.replyTo.Sender), snippet(m.replyTo, 40))) + "\n"
		}
		s += inputStyle.Render("New Message:") + "\n"
		s += m.textarea.View() + "\n"
		help := "ctrl+s: send • esc: cancel"
		if m.replyTo != nil {
			help = "ctrl+s: send • ctrl+x: drop reply • esc: cancel"
		}
		s += helpStyle.Render(help)
		return s
	}

	help := fmt.Sprintf("↑↓/jk: scroll • n: new message • p: reply • r: refresh • esc: back • q: quit • %d%%",
		int(m.viewport.ScrollPercent()*100))
	if m.chat.HasAIParticipant() {
		help = fmt.Sprintf("↑↓/jk: scroll • n: new message • p: reply • a: toggle AI • r: refresh • esc: back • %d%%",
			int(m.viewport.ScrollPercent()*100))
	}
	s += "\n" + helpStyle.Render(help)
	return s
}
