// Package ui is the terminal front end. Every screen reads chat state from a
// shared chatsync.Store and re-renders when the Store reports a change.
package ui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/api"
	"github.com/saravenpi/whopchat/internal/chatsync"
	"github.com/saravenpi/whopchat/internal/models"
	"github.com/saravenpi/whopchat/internal/session"
	"github.com/saravenpi/whopchat/internal/socket"
)

const (
	requestTimeout = 30 * time.Second
	toastDuration  = 4 * time.Second
)

// App carries what every screen needs. Screens hold a pointer to the same App.
type App struct {
	Store   *chatsync.Store
	Client  *api.Client
	Session *session.Session
	Socket  *socket.Client
	Toaster *Toaster
	Logger  *zap.Logger

	width  int
	height int

	stopRealtime context.CancelFunc
}

func (a *App) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *App) selfID() string {
	if a.Session == nil {
		return ""
	}
	user, ok := a.Session.CurrentUser()
	if !ok {
		return ""
	}
	return user.ID
}

// open sizes a new screen to the terminal and returns it with its Init command.
func (a *App) open(screen tea.Model) (tea.Model, tea.Cmd) {
	var sizeCmd tea.Cmd
	if a.width > 0 {
		screen, sizeCmd = screen.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height})
	}
	return screen, tea.Batch(screen.Init(), sizeCmd)
}

// StartRealtime (re)connects the socket with the current session cookie and
// feeds its pushes into the Store until StopRealtime is called.
func (a *App) StartRealtime() {
	if a.Socket == nil {
		return
	}
	a.StopRealtime()

	a.Socket.SetCookie(a.Client.Cookie())
	ctx, cancel := context.WithCancel(context.Background())
	a.stopRealtime = cancel

	go func() {
		if err := a.Socket.Run(ctx, a.Store); err != nil && !errors.Is(err, context.Canceled) {
			a.logger().Warn("realtime connection stopped", zap.Error(err))
		}
	}()
}

func (a *App) StopRealtime() {
	if a.stopRealtime != nil {
		a.stopRealtime()
		a.stopRealtime = nil
	}
}

// Logout ends the session on the server and locally. The local state is
// cleared even when the server cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	a.StopRealtime()
	if err := a.Client.Logout(ctx); err != nil {
		a.logger().Warn("server logout failed", zap.Error(err))
	}
	a.Client.ClearToken()
	a.Store.Reset()
	return a.Session.Clear()
}

type storeEventMsg chatsync.Event

func waitForEvent(events <-chan chatsync.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return storeEventMsg(event)
	}
}

// Root owns the Store subscription and the toast line; the current screen is
// swapped underneath it.
type Root struct {
	app         *App
	screen      tea.Model
	events      <-chan chatsync.Event
	unsubscribe func()
	loggedIn    bool
	toast       toastMsg
}

// NewRoot starts on the chat list when a session was restored, otherwise on
// the login form.
func NewRoot(app *App) Root {
	if app.Toaster == nil {
		app.Toaster = NewToaster()
	}
	events, unsubscribe := app.Store.Subscribe()

	_, loggedIn := app.Session.CurrentUser()
	var screen tea.Model
	if loggedIn && app.Client.Token() != "" {
		screen = NewConversationsModel(app)
	} else {
		loggedIn = false
		screen = NewLoginModel(app)
	}

	return Root{
		app:         app,
		screen:      screen,
		events:      events,
		unsubscribe: unsubscribe,
		loggedIn:    loggedIn,
	}
}

func (r Root) Init() tea.Cmd {
	if r.loggedIn {
		r.app.StartRealtime()
	}
	return tea.Batch(r.screen.Init(), waitForEvent(r.events), r.app.Toaster.wait())
}

// Close releases the Store subscription and the socket.
func (r Root) Close() {
	r.app.StopRealtime()
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

func (r Root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// One line stays reserved for toasts.
		r.app.width = msg.Width
		r.app.height = max(msg.Height-1, 1)
		return r.forward(tea.WindowSizeMsg{Width: r.app.width, Height: r.app.height})

	case storeEventMsg:
		next, cmd := r.forward(msg)
		return next, tea.Batch(cmd, waitForEvent(r.events))

	case toastMsg:
		r.toast = msg
		id := msg.id
		return r, tea.Batch(
			r.app.Toaster.wait(),
			tea.Tick(toastDuration, func(time.Time) tea.Msg { return clearToastMsg{id: id} }),
		)

	case clearToastMsg:
		if msg.id == r.toast.id {
			r.toast = toastMsg{}
		}
		return r, nil
	}

	return r.forward(msg)
}

func (r Root) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	r.screen, cmd = r.screen.Update(msg)
	return r, cmd
}

func (r Root) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, r.screen.View(), r.toast.render())
}

func newListDelegate() list.DefaultDelegate {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("5")).
		Bold(true)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("8"))
	return delegate
}

// errorText prefers the message the server meant for the user.
func errorText(err error) string {
	var uf interface{ UserMessage() string }
	if errors.As(err, &uf) && uf.UserMessage() != "" {
		return uf.UserMessage()
	}
	if errors.Is(err, chatsync.ErrNetwork) {
		return "Could not reach the server"
	}
	return err.Error()
}

func displayName(u *models.User) string {
	if u == nil || u.Name == "" {
		return "Unknown"
	}
	if u.IsAI {
		return "🤖 " + u.Name
	}
	return u.Name
}
