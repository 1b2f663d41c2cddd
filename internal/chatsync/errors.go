package chatsync

import (
	"errors"

	"go.uber.org/zap"
)

var (
	// ErrNetwork means the request never got a usable answer: the server was
	// unreachable or failed internally.
	ErrNetwork = errors.New("network failure")
	// ErrValidation means the server rejected the payload.
	ErrValidation = errors.New("validation failure")
	// ErrUnauthorized means the session is missing or expired.
	ErrUnauthorized = errors.New("unauthorized")
)

// userFacing is implemented by errors that carry a message meant for the user.
type userFacing interface {
	UserMessage() string
}

// reportError turns err into a notification. Errors never leave the Store.
func (s *Store) reportError(err error, fallback string) {
	message := fallback

	var uf userFacing
	if errors.As(err, &uf) && uf.UserMessage() != "" {
		message = uf.UserMessage()
	}

	s.logger.Warn(fallback, zap.Error(err),
		zap.Bool("network", errors.Is(err, ErrNetwork)),
		zap.Bool("validation", errors.Is(err, ErrValidation)),
		zap.Bool("unauthorized", errors.Is(err, ErrUnauthorized)))
	s.notifier.Error(message)
}

// LogNotifier writes notifications to the log. It is the default when no UI
// is attached.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Error(message string) {
	n.Logger.Error("notification", zap.String("message", message))
}

func (n LogNotifier) Success(message string) {
	n.Logger.Info("notification", zap.String("message", message))
}
