package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the task service and the reminder scheduler.
const (
	TaskCreated   = "task.created"
	TaskUpdated   = "task.updated"
	TaskCompleted = "task.completed"
	TaskDeleted   = "task.deleted"
	TaskReminder  = "task.reminder"
)

// Event is an outbound, best-effort notification payload.
type Event struct {
	Type      string    `json:"event_type"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events out-of-band. Implementations must never let a
// delivery failure propagate back into the originating request.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// LogPublisher writes events to the structured log. It stands in for an
// external message broker in development.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	p.logger.Info("event published",
		zap.String("event_type", event.Type),
		zap.String("task_id", event.TaskID),
		zap.String("user_id", event.UserID),
		zap.Time("timestamp", event.Timestamp))
}

// Fanout delivers each event to every wrapped publisher.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) {
	for _, p := range f {
		p.Publish(ctx, event)
	}
}
