package grid

import (
	"errors"
	"fmt"

	"framegrid/internal/dtype"
)

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification is a transient user-facing message.
type Notification struct {
	Level       Level
	Title       string
	Description string
}

// Notifier receives notifications from the controller. Implementations must
// not call back into the controller synchronously.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notification) {}

// Logger is the structured logging surface the controller writes to.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const unreachable = "The dataset service could not be reached."

func loadFailure(err error) Notification {
	n := Notification{Level: LevelError, Title: "Failed to load data"}
	switch KindOf(err) {
	case KindDecode:
		n.Description = "The page returned by the dataset service could not be read."
	case KindValidation:
		n.Description = reasonOr(err, "", "The page request was rejected.")
	default:
		n.Description = unreachable
	}
	return n
}

func coercionFailure(column string, target dtype.Tag, err error) Notification {
	desc := fmt.Sprintf("%s cannot be converted to %s", column, target)
	if KindOf(err) == KindTransport {
		desc += ". " + unreachable
	} else if reason := reasonOr(err, column, ""); reason != "" {
		desc += ": " + reason
	}
	return Notification{Level: LevelError, Title: "Datatype update failed", Description: desc}
}

func mutationFailure(title, field string, err error) Notification {
	desc := unreachable
	if KindOf(err) != KindTransport {
		desc = reasonOr(err, field, "The request was rejected.")
	}
	return Notification{Level: LevelError, Title: title, Description: desc}
}

func reasonOr(err error, field, fallback string) string {
	var re *RemoteError
	if errors.As(err, &re) {
		if r := re.Reason(field); r != "" {
			return r
		}
	}
	return fallback
}
