// Package notify delivers soft, user-visible notifications. REST
// failures and fired alerts surface here instead of propagating into the
// aggregation math.
package notify

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notifier receives soft notifications destined for the user.
type Notifier interface {
	Notify(level Level, message string)
}

// Notifyf formats and delivers one notification.
func Notifyf(n Notifier, level Level, format string, args ...any) {
	if n == nil {
		return
	}
	n.Notify(level, fmt.Sprintf(format, args...))
}

// LogNotifier writes notifications to the structured log. It is the
// default sink when no UI transport is attached.
type LogNotifier struct{}

func (LogNotifier) Notify(level Level, message string) {
	switch level {
	case LevelError:
		log.Error().Str("notification", message).Msg("user notification")
	case LevelWarn:
		log.Warn().Str("notification", message).Msg("user notification")
	default:
		log.Info().Str("notification", message).Msg("user notification")
	}
}
