package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

// Sender shows one notification on the desktop.
type Sender func(kind Kind, title, body string) error

// Desktop shows notifications through the OS notification service. A
// missing display or denied permission surfaces as ErrUnavailable.
type Desktop struct {
	send Sender
}

func NewDesktop(appName string) *Desktop {
	if appName != "" {
		beeep.AppName = appName
	}
	return NewDesktopWith(beeepSender)
}

func NewDesktopWith(send Sender) *Desktop {
	return &Desktop{send: send}
}

// Errors use an alert so they also sound.
func beeepSender(kind Kind, title, body string) error {
	if kind == KindError {
		return beeep.Alert(title, body, "")
	}
	return beeep.Notify(title, body, "")
}

func (d *Desktop) Notify(note Notification) error {
	if err := d.send(note.Kind, note.Title, note.Body); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
