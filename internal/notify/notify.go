// Package notify delivers user-facing notifications raised by the
// transports. Delivery channels are injected; the default only logs.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/tutormatch/internal/logger"
)

// Event types
const (
	EventNewMatch = "new_match"
)

// Notification is one message addressed to a user
type Notification struct {
	UserID    int64          `json:"user_id"`
	EventType string         `json:"event_type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NewMatch builds the message a tutor receives when a student selects them
func NewMatch(tutorID, studentID int64, studentFirstName string) Notification {
	name := strings.TrimSpace(studentFirstName)
	if name == "" {
		name = "A student"
	}
	return Notification{
		UserID:    tutorID,
		EventType: EventNewMatch,
		Title:     "You got a new match",
		Body:      fmt.Sprintf("%s matched with you.", name),
		Payload:   map[string]any{"student_id": studentID, "tutor_id": tutorID},
	}
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Info("notification",
		"user_id", msg.UserID,
		"event_type", msg.EventType,
		"title", msg.Title,
		"body", msg.Body)
	return nil
}
