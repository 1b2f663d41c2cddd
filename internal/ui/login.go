package ui

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/api"
	"github.com/saravenpi/whopchat/internal/models"
)

const minPasswordLength = 6

type authDoneMsg struct {
	user *models.User
	err  error
}

// LoginModel signs in or registers. ctrl+r switches between the two.
type LoginModel struct {
	app           *App
	register      bool
	nameInput     textinput.Model
	emailInput    textinput.Model
	passwordInput textinput.Model
	focusIndex    int
	spinner       spinner.Model
	submitting    bool
	err           error
}

func NewLoginModel(app *App) LoginModel {
	nameInput := textinput.New()
	nameInput.Placeholder = "Your name"
	nameInput.CharLimit = 100
	nameInput.Width = 50

	emailInput := textinput.New()
	emailInput.Placeholder = "you@example.com"
	emailInput.CharLimit = 100
	emailInput.Width = 50

	passwordInput := textinput.New()
	passwordInput.Placeholder = "Password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.EchoCharacter = '•'
	passwordInput.CharLimit = 100
	passwordInput.Width = 50

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	m := LoginModel{
		app:           app,
		nameInput:     nameInput,
		emailInput:    emailInput,
		passwordInput: passwordInput,
		spinner:       s,
	}
	if user, ok := app.Session.CurrentUser(); ok {
		m.emailInput.SetValue(user.Email)
	}
	m.updateFocus()
	return m
}

func (m LoginModel) Init() tea.Cmd {
	return textinput.Blink
}

// fields lists the inputs shown in the current mode, in focus order.
func (m *LoginModel) fields() []*textinput.Model {
	if m.register {
		return []*textinput.Model{&m.nameInput, &m.emailInput, &m.passwordInput}
	}
	return []*textinput.Model{&m.emailInput, &m.passwordInput}
}

func (m *LoginModel) updateFocus() {
	fields := m.fields()
	if m.focusIndex >= len(fields) {
		m.focusIndex = 0
	}
	m.nameInput.Blur()
	m.emailInput.Blur()
	m.passwordInput.Blur()
	fields[m.focusIndex].Focus()
}

func (m *LoginModel) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	field := m.fields()[m.focusIndex]
	*field, cmd = field.Update(msg)
	return cmd
}

func (m LoginModel) validate() error {
	if m.register && strings.TrimSpace(m.nameInput.Value()) == "" {
		return errors.New("name is required")
	}
	email := strings.TrimSpace(m.emailInput.Value())
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email address")
	}
	if len(m.passwordInput.Value()) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func (m LoginModel) submitCmd() tea.Cmd {
	app := m.app
	register := m.register
	name := strings.TrimSpace(m.nameInput.Value())
	email := strings.TrimSpace(m.emailInput.Value())
	password := m.passwordInput.Value()

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var (
			user *models.User
			err  error
		)
		if register {
			user, err = app.Client.Register(ctx, api.RegisterRequest{Name: name, Email: email, Password: password})
		} else {
			user, err = app.Client.Login(ctx, api.LoginRequest{Email: email, Password: password})
		}
		if err != nil {
			return authDoneMsg{err: err}
		}

		if err := app.Session.Save(app.Client.BaseURL(), app.Client.Token(), *user); err != nil {
			return authDoneMsg{err: fmt.Errorf("failed to save session: %w", err)}
		}
		return authDoneMsg{user: user}
	}
}

func (m LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case authDoneMsg:
		m.submitting = false
		if msg.err != nil {
			m.app.logger().Warn("authentication failed", zap.Bool("register", m.register), zap.Error(msg.err))
			m.err = errors.New(errorText(msg.err))
			return m, nil
		}
		m.app.logger().Info("signed in", zap.String("user_id", msg.user.ID))
		m.app.StartRealtime()
		m.app.Toaster.Success("Welcome, " + msg.user.Name)
		return m.app.open(NewConversationsModel(m.app))

	case spinner.TickMsg:
		if m.submitting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "esc" {
			return m, tea.Quit
		}

		if m.submitting {
			return m, nil
		}

		switch msg.String() {
		case "ctrl+r":
			m.register = !m.register
			m.focusIndex = 0
			m.err = nil
			m.updateFocus()
			return m, textinput.Blink

		case "tab", "shift+tab", "down", "up":
			total := len(m.fields())
			if msg.String() == "up" || msg.String() == "shift+tab" {
				m.focusIndex = (m.focusIndex - 1 + total) % total
			} else {
				m.focusIndex = (m.focusIndex + 1) % total
			}
			m.updateFocus()
			return m, nil

		case "enter", "ctrl+s":
			if msg.String() == "enter" && m.focusIndex < len(m.fields())-1 {
				m.focusIndex++
				m.updateFocus()
				return m, nil
			}
			if err := m.validate(); err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			m.submitting = true
			return m, tea.Batch(m.spinner.Tick, m.submitCmd())
		}
	}

	cmd := m.updateInputs(msg)
	return m, cmd
}

func (m LoginModel) View() string {
	var b strings.Builder

	title := "Sign in"
	if m.register {
		title = "Create an account"
	}
	b.WriteString(titleStyle.Render("Whop Chat - "+title) + "\n")
	b.WriteString(helpStyle.Render("Server: "+m.app.Client.BaseURL()) + "\n\n")

	renderInput := func(input textinput.Model, label string, focused bool) {
		style := blurredLabelStyle
		if focused {
			style = focusedLabelStyle
		}
		b.WriteString(style.Render(label) + "\n")
		b.WriteString(input.View() + "\n\n")
	}

	offset := 0
	if m.register {
		renderInput(m.nameInput, "Name:", m.focusIndex == 0)
		offset = 1
	}
	renderInput(m.emailInput, "Email:", m.focusIndex == offset)
	renderInput(m.passwordInput, "Password:", m.focusIndex == offset+1)

	if m.submitting {
		b.WriteString(fmt.Sprintf("%s Contacting server...\n\n", m.spinner.View()))
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n")
	}

	toggle := "ctrl+r: create an account"
	if m.register {
		toggle = "ctrl+r: sign in instead"
	}
	b.WriteString(helpStyle.Render("tab/↑↓: navigate • enter: submit • " + toggle + " • esc: quit"))

	return b.String()
}
