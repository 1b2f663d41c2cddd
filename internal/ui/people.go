package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/saravenpi/whopchat/internal/chatsync"
	"github.com/saravenpi/whopchat/internal/models"
)

type userItem struct {
	user     models.User
	selected bool
}

func (i userItem) FilterValue() string { return i.user.Name }

func (i userItem) Title() string {
	mark := "[ ] "
	if i.selected {
		mark = "[x] "
	}
	return mark + displayName(&i.user)
}

func (i userItem) Description() string {
	if i.user.IsAI {
		return "AI assistant • replies as you type"
	}
	return i.user.Email
}

type usersFetchedMsg struct{}

type chatCreatedMsg struct {
	chat *models.Chat
}

// PeopleModel picks who to talk to. One person opens a direct chat, several
// lead to the group form.
type PeopleModel struct {
	app          *App
	list         list.Model
	spinner      spinner.Model
	selected     map[string]bool
	creating     bool
	windowWidth  int
	windowHeight int
}

func NewPeopleModel(app *App) PeopleModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	l := list.New([]list.Item{}, newListDelegate(), 80, 20)
	l.Title = "People"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	m := PeopleModel{
		app:          app,
		list:         l,
		spinner:      s,
		selected:     make(map[string]bool),
		windowWidth:  80,
		windowHeight: 30,
	}
	m.refreshItems()
	return m
}

func (m PeopleModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchUsersCmd())
}

func (m PeopleModel) fetchUsersCmd() tea.Cmd {
	store := m.app.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		store.FetchUsers(ctx)
		return usersFetchedMsg{}
	}
}

func (m PeopleModel) createChatCmd(userID string) tea.Cmd {
	store := m.app.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return chatCreatedMsg{chat: store.CreateChat(ctx, models.CreateChatPayload{Participants: []string{userID}})}
	}
}

func (m PeopleModel) loading() bool {
	return m.app.Store.Flags().UsersLoading
}

func (m *PeopleModel) refreshItems() {
	users := m.app.Store.Users()
	items := make([]list.Item, len(users))
	for i, user := range users {
		items[i] = userItem{user: user, selected: m.selected[user.ID]}
	}
	m.list.SetItems(items)

	if n := m.selectedCount(); n > 0 {
		m.list.Title = fmt.Sprintf("People - %d selected", n)
	} else {
		m.list.Title = fmt.Sprintf("People - %d total", len(users))
	}
}

func (m PeopleModel) selectedCount() int {
	n := 0
	for _, on := range m.selected {
		if on {
			n++
		}
	}
	return n
}

func (m PeopleModel) selectedUsers() []models.User {
	var users []models.User
	for _, user := range m.app.Store.Users() {
		if m.selected[user.ID] {
			users = append(users, user)
		}
	}
	return users
}

func (m PeopleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - 4)
		return m, nil

	case storeEventMsg:
		if msg.Kind == chatsync.UsersChanged {
			m.refreshItems()
		}
		return m, nil

	case usersFetchedMsg:
		m.refreshItems()
		return m, nil

	case chatCreatedMsg:
		m.creating = false
		if msg.chat == nil {
			return m, nil
		}
		return m.app.open(NewMessagesModel(m.app, *msg.chat))

	case spinner.TickMsg:
		if m.loading() || m.creating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.list.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			return m, cmd
		}

		if m.creating {
			return m, nil
		}

		switch msg.String() {
		case "esc", "q":
			if m.list.FilterState() == list.FilterApplied {
				m.list.ResetFilter()
				return m, nil
			}
			return m.app.open(NewConversationsModel(m.app))

		case "r":
			return m, tea.Batch(m.spinner.Tick, m.fetchUsersCmd())

		case " ", "x":
			if item, ok := m.list.SelectedItem().(userItem); ok {
				m.selected[item.user.ID] = !m.selected[item.user.ID]
				m.refreshItems()
			}
			return m, nil

		case "g":
			return m.app.open(NewGroupFormModel(m.app, m.selectedUsers()))

		case "enter":
			chosen := m.selectedUsers()
			switch {
			case len(chosen) > 1:
				return m.app.open(NewGroupFormModel(m.app, chosen))
			case len(chosen) == 1:
				m.creating = true
				return m, tea.Batch(m.spinner.Tick, m.createChatCmd(chosen[0].ID))
			}
			if item, ok := m.list.SelectedItem().(userItem); ok {
				m.creating = true
				return m, tea.Batch(m.spinner.Tick, m.createChatCmd(item.user.ID))
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m PeopleModel) View() string {
	if m.creating {
		return fmt.Sprintf("\n  %s Starting chat...\n", m.spinner.View())
	}

	if m.loading() && len(m.list.Items()) == 0 {
		return fmt.Sprintf("\n  %s Loading people...\n", m.spinner.View())
	}

	if len(m.list.Items()) == 0 {
		s := titleStyle.Render("People") + "\n\n"
		s += normalStyle.Render("  Nobody else has signed up yet.") + "\n"
		s += "\n" + helpStyle.Render("r: refresh • esc: back • q: back")
		return s
	}

	s := m.list.View() + "\n"
	s += helpStyle.Render("↑↓/jk: navigate • enter: chat • space: select • g: new group • /: search • r: refresh • esc: back")
	return s
}
