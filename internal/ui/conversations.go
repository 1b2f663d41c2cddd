package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"

	"github.com/saravenpi/whopchat/internal/chatsync"
	"github.com/saravenpi/whopchat/internal/models"
)

type chatItem struct {
	chat   models.Chat
	selfID string
}

type chatsFetchedMsg struct{}

func (i chatItem) Title() string {
	title := i.chat.Title(i.selfID)
	switch {
	case i.chat.IsGroup:
		return "👥 " + title
	case i.chat.IsAIChat || i.chat.HasAIParticipant():
		return "🤖 " + title
	default:
		return title
	}
}

func (i chatItem) Description() string {
	return fmt.Sprintf("%s • %s", formatTimeAgo(lastActivity(i.chat)), lastMessagePreview(i.chat, i.selfID))
}

func (i chatItem) FilterValue() string {
	return i.chat.Title(i.selfID)
}

func lastActivity(chat models.Chat) time.Time {
	if chat.LastMessage != nil && !chat.LastMessage.CreatedAt.IsZero() {
		return chat.LastMessage.CreatedAt
	}
	return chat.UpdatedAt
}

func lastMessagePreview(chat models.Chat, selfID string) string {
	last := chat.LastMessage
	if last == nil {
		return "No messages yet"
	}

	preview := strings.Join(strings.Fields(last.Content), " ")
	if preview == "" && last.Image != "" {
		preview = "🖼 Image"
	}
	if last.SenderID() == selfID && selfID != "" {
		preview = "You: " + preview
	}
	return truncate.StringWithTail(preview, 50, "...")
}

func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	}
	if duration < 2*time.Minute {
		return "1 min ago"
	}
	if duration < time.Hour {
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	}
	if duration < 2*time.Hour {
		return "1h ago"
	}
	if duration < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	}
	if duration < 48*time.Hour {
		return "yesterday"
	}
	if duration < 7*24*time.Hour {
		return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
	}
	return t.Format("Jan 2")
}

type ConversationsModel struct {
	app          *App
	list         list.Model
	search       textinput.Model
	searching    bool
	spinner      spinner.Model
	windowWidth  int
	windowHeight int
}

func NewConversationsModel(app *App) ConversationsModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	l := list.New([]list.Item{}, newListDelegate(), 80, 20)
	l.Title = "Chats"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "Search by name or group"
	search.CharLimit = 100

	m := ConversationsModel{
		app:          app,
		list:         l,
		search:       search,
		spinner:      s,
		windowWidth:  80,
		windowHeight: 30,
	}
	m.refreshItems()
	return m
}

func (m ConversationsModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchChatsCmd())
}

func (m ConversationsModel) fetchChatsCmd() tea.Cmd {
	store := m.app.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		store.FetchChats(ctx)
		return chatsFetchedMsg{}
	}
}

func (m ConversationsModel) loading() bool {
	return m.app.Store.Flags().ChatsLoading
}

// refreshItems rebuilds the list from the Store, applying the search query.
func (m *ConversationsModel) refreshItems() {
	query := m.search.Value()
	chats := m.app.Store.SearchChats(query)
	selfID := m.app.selfID()

	items := make([]list.Item, len(chats))
	for i, chat := range chats {
		items[i] = chatItem{chat: chat, selfID: selfID}
	}
	m.list.SetItems(items)

	if strings.TrimSpace(query) != "" {
		m.list.Title = fmt.Sprintf("Chats - %d matching %q", len(chats), query)
	} else {
		m.list.Title = fmt.Sprintf("Chats - %d total", len(chats))
	}
}

func (m ConversationsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - 4)
		m.search.Width = msg.Width - 6
		return m, nil

	case storeEventMsg:
		if msg.Kind == chatsync.ChatsChanged {
			m.refreshItems()
		}
		return m, nil

	case chatsFetchedMsg:
		m.refreshItems()
		return m, nil

	case spinner.TickMsg:
		if m.loading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.searching {
			return m.updateSearch(msg)
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit

		case "esc":
			return m.app.open(NewMenuModel(m.app))

		case "/":
			m.searching = true
			m.search.Focus()
			return m, textinput.Blink

		case "r":
			if !m.loading() {
				return m, tea.Batch(m.spinner.Tick, m.fetchChatsCmd())
			}
			return m, nil

		case "n":
			return m.app.open(NewPeopleModel(m.app))

		case "enter":
			if item, ok := m.list.SelectedItem().(chatItem); ok {
				return m.app.open(NewMessagesModel(m.app, item.chat))
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m ConversationsModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searching = false
		m.search.Blur()
		m.search.Reset()
		m.refreshItems()
		return m, nil

	case "enter", "down", "up":
		m.searching = false
		m.search.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.refreshItems()
	return m, cmd
}

func (m ConversationsModel) View() string {
	empty := len(m.list.Items()) == 0

	if m.loading() && empty && m.search.Value() == "" {
		return fmt.Sprintf("\n  %s Loading chats...\n", m.spinner.View())
	}

	var s string
	if empty {
		s = titleStyle.Render(m.list.Title) + "\n\n"
		if m.search.Value() != "" {
			s += normalStyle.Render("  No chats match your search.") + "\n"
		} else {
			s += normalStyle.Render("  No chats yet. Press 'n' to start one.") + "\n"
		}
	} else {
		s = m.list.View() + "\n"
	}

	if m.searching || m.search.Value() != "" {
		s += inputStyle.Render(m.search.View()) + "\n"
	}

	if m.loading() {
		s += fmt.Sprintf("%s Refreshing...\n", m.spinner.View())
	}

	if m.searching {
		s += helpStyle.Render("type to filter • enter: done • esc: clear")
	} else {
		s += helpStyle.Render("↑↓/jk: navigate • enter: open • /: search • n: new chat • r: refresh • esc: menu • q: quit")
	}
	return s
}
