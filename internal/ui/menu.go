package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

type menuAction int

const (
	menuChats menuAction = iota
	menuNewChat
	menuLogout
)

type menuItem struct {
	title  string
	desc   string
	action menuAction
}

func (i menuItem) FilterValue() string { return i.title }
func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }

type loggedOutMsg struct {
	err error
}

type MenuModel struct {
	app          *App
	list         list.Model
	windowWidth  int
	windowHeight int
}

func NewMenuModel(app *App) MenuModel {
	items := []list.Item{
		menuItem{title: "💬 Chats", desc: "Your conversations, newest first", action: menuChats},
		menuItem{title: "👥 New chat", desc: "Message someone or start a group", action: menuNewChat},
		menuItem{title: "🚪 Log out", desc: "Forget this session", action: menuLogout},
	}

	l := list.New(items, newListDelegate(), 80, 14)
	l.Title = "Whop Chat"
	if user, ok := app.Session.CurrentUser(); ok {
		l.Title = "Whop Chat - " + user.Name
	}
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return MenuModel{
		app:          app,
		list:         l,
		windowWidth:  80,
		windowHeight: 30,
	}
}

func (m MenuModel) Init() tea.Cmd {
	return nil
}

func (m MenuModel) logoutCmd() tea.Cmd {
	app := m.app
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return loggedOutMsg{err: app.Logout(ctx)}
	}
}

func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - 4)
		return m, nil

	case loggedOutMsg:
		if msg.err != nil {
			m.app.Toaster.Error("Failed to clear the saved session")
		}
		return m.app.open(NewLoginModel(m.app))

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}

		if msg.String() == "esc" {
			return m.app.open(NewConversationsModel(m.app))
		}

		if msg.String() == "enter" {
			item, ok := m.list.SelectedItem().(menuItem)
			if !ok {
				return m, nil
			}

			switch item.action {
			case menuChats:
				return m.app.open(NewConversationsModel(m.app))
			case menuNewChat:
				return m.app.open(NewPeopleModel(m.app))
			case menuLogout:
				return m, m.logoutCmd()
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m MenuModel) View() string {
	s := m.list.View() + "\n"
	s += helpStyle.Render("↑↓/jk: navigate • enter: select • esc: chats • q: quit")
	return s
}
