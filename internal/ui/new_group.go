package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/saravenpi/whopchat/internal/models"
)

type groupCreatedMsg struct {
	chat         *models.Chat
	firstMessage string
}

type GroupFormModel struct {
	app          *App
	members      []models.User
	nameInput    textinput.Model
	messageInput textinput.Model
	focusIndex   int
	spinner      spinner.Model
	creating     bool
	windowWidth  int
	windowHeight int
	err          error
}

func NewGroupFormModel(app *App, members []models.User) GroupFormModel {
	nameInput := textinput.New()
	nameInput.Placeholder = "Group name"
	nameInput.Focus()
	nameInput.CharLimit = 100
	nameInput.Width = 60

	messageInput := textinput.New()
	messageInput.Placeholder = "Say hello (optional)"
	messageInput.CharLimit = 1000
	messageInput.Width = 60

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	return GroupFormModel{
		app:          app,
		members:      members,
		nameInput:    nameInput,
		messageInput: messageInput,
		spinner:      s,
	}
}

func (m GroupFormModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m GroupFormModel) createGroupCmd(name, firstMessage string) tea.Cmd {
	store := m.app.Store
	ids := make([]string, len(m.members))
	for i, member := range m.members {
		ids[i] = member.ID
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		chat := store.CreateChat(ctx, models.CreateChatPayload{
			Participants: ids,
			IsGroup:      true,
			GroupName:    name,
		})
		return groupCreatedMsg{chat: chat, firstMessage: firstMessage}
	}
}

func (m GroupFormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.nameInput.Width = msg.Width - 20
		m.messageInput.Width = msg.Width - 20
		return m, nil

	case groupCreatedMsg:
		m.creating = false
		if msg.chat == nil {
			return m, nil
		}
		return m.app.open(NewMessagesModel(m.app, *msg.chat).withDraft(msg.firstMessage))

	case spinner.TickMsg:
		if m.creating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.creating {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "esc":
			return m.app.open(NewPeopleModel(m.app))

		case "tab", "shift+tab", "up", "down":
			m.focusIndex = (m.focusIndex + 1) % 2
			if m.focusIndex == 0 {
				m.nameInput.Focus()
				m.messageInput.Blur()
			} else {
				m.nameInput.Blur()
				m.messageInput.Focus()
			}
			return m, nil

		case "enter", "ctrl+s":
			name := strings.TrimSpace(m.nameInput.Value())
			switch {
			case len(m.members) < 2:
				m.err = errors.New("pick at least two people for a group")
				return m, nil
			case name == "":
				m.err = errors.New("group name is required")
				return m, nil
			}
			m.err = nil
			m.creating = true
			return m, tea.Batch(m.spinner.Tick, m.createGroupCmd(name, m.messageInput.Value()))
		}
	}

	var cmd tea.Cmd
	if m.focusIndex == 0 {
		m.nameInput, cmd = m.nameInput.Update(msg)
	} else {
		m.messageInput, cmd = m.messageInput.Update(msg)
	}
	return m, cmd
}

func (m GroupFormModel) View() string {
	if m.creating {
		return "\n  " + m.spinner.View() + " Creating group...\n"
	}

	label := func(text string, focused bool) string {
		if focused {
			return focusedLabelStyle.Render("> " + text)
		}
		return blurredLabelStyle.Render("  " + text)
	}

	names := make([]string, len(m.members))
	for i, member := range m.members {
		names[i] = displayName(&member)
	}

	content := titleStyle.Render("New Group") + "\n"
	if len(names) > 0 {
		content += normalStyle.Render("With "+strings.Join(names, ", ")) + "\n\n"
	} else {
		content += normalStyle.Render("Nobody selected yet") + "\n\n"
	}

	content += formBoxStyle.Render(
		label("Group name:", m.focusIndex == 0) + "\n" +
			m.nameInput.View() + "\n\n" +
			label("First message:", m.focusIndex == 1) + "\n" +
			m.messageInput.View(),
	)

	if m.err != nil {
		content += "\n\n" + errorStyle.Render("Error: "+m.err.Error())
	}

	content += "\n\n" + helpStyle.Render("tab: switch field • enter: create • esc: back")
	return content
}
