package ui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/saravenpi/whopchat/internal/chatsync"
)

type toastMsg struct {
	id    int64
	text  string
	isErr bool
}

type clearToastMsg struct {
	id int64
}

func (t toastMsg) render() string {
	switch {
	case t.text == "":
		return ""
	case t.isErr:
		return errorStyle.Render("✗ " + t.text)
	default:
		return successStyle.Render("✓ " + t.text)
	}
}

// Toaster is the Store's Notifier in the terminal. Notifications are queued
// and shown one at a time on the bottom line.
type Toaster struct {
	ch     chan toastMsg
	nextID atomic.Int64
}

var _ chatsync.Notifier = (*Toaster)(nil)

func NewToaster() *Toaster {
	return &Toaster{ch: make(chan toastMsg, 16)}
}

func (t *Toaster) Error(message string) {
	t.push(message, true)
}

func (t *Toaster) Success(message string) {
	t.push(message, false)
}

// push drops the notification when the queue is full.
func (t *Toaster) push(message string, isErr bool) {
	msg := toastMsg{id: t.nextID.Add(1), text: message, isErr: isErr}
	select {
	case t.ch <- msg:
	default:
	}
}

func (t *Toaster) wait() tea.Cmd {
	return func() tea.Msg {
		return <-t.ch
	}
}
