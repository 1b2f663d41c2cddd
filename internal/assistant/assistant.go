// Package assistant produces the replies of the AI chat participant.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Turn is one message of the conversation so far.
type Turn struct {
	FromAssistant bool
	Text          string
}

// Responder generates a reply to prompt. onDelta is called with each piece of
// text as it is produced; the full reply is returned at the end.
type Responder interface {
	Reply(ctx context.Context, history []Turn, prompt string, onDelta func(delta string)) (string, error)
}

// Echo is the offline responder used when no Gemini key is configured. It
// streams a canned answer word by word.
type Echo struct {
	// Delay between words. Zero streams as fast as possible.
	Delay time.Duration
}

func (e Echo) Reply(ctx context.Context, history []Turn, prompt string, onDelta func(string)) (string, error) {
	reply := fmt.Sprintf("You said: %q. I'm running without a Gemini API key, so this is all I can do.", strings.TrimSpace(prompt))

	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if onDelta != nil {
			onDelta(w)
		}
		if e.Delay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.Delay):
			}
		}
	}
	return reply, nil
}
