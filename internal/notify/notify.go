// Package notify delivers best-effort user notifications. Callers must treat
// every error as non-fatal.
package notify

import (
	"errors"

	"kit-sync/internal/logger"
)

//go:generate mockgen -source=notify.go -destination=../mock/notifier_mock.go -package=mock

type Kind string

const (
	KindMessage Kind = "message"
	KindError   Kind = "error"
)

type Notification struct {
	Kind  Kind
	Title string
	Body  string
}

type Notifier interface {
	Notify(n Notification) error
}

var ErrUnavailable = errors.New("notifications unavailable")

// LogNotifier writes notifications to the log. Used by headless sessions that
// have no desktop to show them on.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(note Notification) error {
	ev := n.log.Info()
	if note.Kind == KindError {
		ev = n.log.Warn()
	}
	ev.Str("kind", string(note.Kind)).Str("title", note.Title).Msg(note.Body)
	return nil
}

// Disabled is a Notifier for environments where permission was denied.
type Disabled struct{}

func (Disabled) Notify(Notification) error { return ErrUnavailable }
