package notify

import (
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Type classifies a user-facing notification.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
)

// Notification is a fire-and-forget message for the user; no return value is
// consumed by the engine.
type Notification struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// Notifier is the sink notifications are handed to.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to the application log. It stands in for a
// real toast surface in headless deployments and tests.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (l *LogNotifier) Notify(n Notification) {
	switch n.Type {
	case TypeError:
		fiberlog.Errorf("Notification: %s", n.Message)
	default:
		fiberlog.Infof("Notification: %s", n.Message)
	}
}
