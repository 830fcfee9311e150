package storage

import (
	"context"
	"time"

	"github.com/avelasko/taskpilot/internal/models"
)

// TaskFilter narrows ListTasks results. Nil fields are ignored.
type TaskFilter struct {
	Priority  *models.Priority
	Completed *bool
	TagID     string
	DueAfter  *time.Time
	DueBefore *time.Time
}

// Storage is the persistence contract. All task and tag operations are
// scoped by the owning user: a row that exists but belongs to someone else
// behaves exactly like a row that does not exist.
type Storage interface {
	// Users. Written by the auth subsystem at signup; the core reads them.
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Sessions. Read-only from the core; lookup is by token, not row id.
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByToken(ctx context.Context, token string) (*models.Session, error)

	// Tasks.
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, userID, taskID string) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	// CompleteTask sets the completed flag and, when successor is non-nil,
	// inserts it and copies the original task's tag associations, all within
	// a single transaction.
	CompleteTask(ctx context.Context, userID, taskID string, completed bool, successor *models.Task) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]*models.Task, error)
	// DueReminders returns uncompleted tasks whose remind_at is at or before
	// the given instant. ClearReminder drops remind_at after delivery.
	DueReminders(ctx context.Context, before time.Time) ([]*models.Task, error)
	ClearReminder(ctx context.Context, taskID string) error

	// Tags and task-tag associations.
	CreateTag(ctx context.Context, tag *models.Tag) error
	GetTag(ctx context.Context, userID, tagID string) (*models.Tag, error)
	ListTags(ctx context.Context, userID string) ([]*models.Tag, error)
	DeleteTag(ctx context.Context, userID, tagID string) error
	// AttachTag is idempotent; DetachTag on an absent pair is a no-op.
	AttachTag(ctx context.Context, taskID, tagID string) error
	DetachTag(ctx context.Context, taskID, tagID string) error
	ListTaskTags(ctx context.Context, taskID string) ([]*models.Tag, error)

	Ping(ctx context.Context) error
	Close() error
}
