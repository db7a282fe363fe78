// Package notify delivers best-effort desktop notifications. Delivery
// failures are logged and swallowed; a missing notification daemon must
// never affect a running session.
package notify

import (
	"github.com/gen2brain/beeep"
	"github.com/sirupsen/logrus"
)

// Notifier sends desktop notifications for session lifecycle events.
type Notifier struct {
	enabled bool
	log     *logrus.Entry
}

// New returns a Notifier. When disabled, Send is a no-op.
func New(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		log:     logrus.WithField("component", "notify"),
	}
}

// Send shows a desktop notification with the given title and body.
func (n *Notifier) Send(title, body string) {
	if !n.enabled {
		return
	}
	if err := beeep.Notify(title, body, ""); err != nil {
		n.log.WithError(err).Warn("desktop notification failed")
	}
}
