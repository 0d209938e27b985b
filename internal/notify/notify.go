// Package notify delivers short user-facing messages: action outcomes in the
// dashboard, and optional push notifications when a watched job completes.
package notify

import (
	"log/slog"
)

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Notifier is a fire-and-forget message sink.
type Notifier interface {
	Success(message string)
	Error(message string)
	Warning(message string)
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

func (n LogNotifier) Success(message string) {
	n.logger().Info(message, "level", LevelSuccess)
}

func (n LogNotifier) Error(message string) {
	n.logger().Error(message, "level", LevelError)
}

func (n LogNotifier) Warning(message string) {
	n.logger().Warn(message, "level", LevelWarning)
}

// Multi fans a notification out to every non-nil notifier in order.
type Multi []Notifier

func (m Multi) Success(message string) {
	for _, n := range m {
		if n != nil {
			n.Success(message)
		}
	}
}

func (m Multi) Error(message string) {
	for _, n := range m {
		if n != nil {
			n.Error(message)
		}
	}
}

func (m Multi) Warning(message string) {
	for _, n := range m {
		if n != nil {
			n.Warning(message)
		}
	}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Success(string) {}
func (Discard) Error(string)   {}
func (Discard) Warning(string) {}
