package task

import (
	"context"
	"strings"
	"time"

	"github.com/avelasko/taskpilot/internal/events"
	"github.com/avelasko/taskpilot/internal/models"
	"github.com/avelasko/taskpilot/internal/recurrence"
	"github.com/avelasko/taskpilot/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service owns task entities and enforces their write invariants. Every
// operation is scoped to the acting user; tasks owned by other users are
// reported as not found.
type Service struct {
	store  storage.Storage
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store storage.Storage, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		events: publisher,
		logger: logger,
		now:    time.Now,
	}
}

// CreateInput carries the fields a user may set at creation time.
type CreateInput struct {
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
	RemindAt    *time.Time
	Recurrence  *models.RecurrenceRule
	TagIDs      []string
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &storage.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	priority := models.PriorityMedium
	if in.Priority != "" {
		priority = models.Priority(in.Priority)
		if !priority.Valid() {
			return nil, &storage.ValidationError{Field: "priority", Reason: "must be one of low, medium, high, urgent"}
		}
	}

	if in.Recurrence != nil {
		if err := in.Recurrence.Validate(); err != nil {
			return nil, &storage.ValidationError{Field: "recurrence_rule", Reason: err.Error()}
		}
	}

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if storage.IsNotFound(err) {
			return nil, &storage.ValidationError{Field: "user_id", Reason: "user does not exist"}
		}
		return nil, err
	}

	task := &models.Task{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Description: in.Description,
		Priority:    priority,
		DueDate:     in.DueDate,
		RemindAt:    in.RemindAt,
		Recurrence:  in.Recurrence,
	}

	// Tag ownership is checked before the insert so a bad tag id cannot
	// leave a half-created task behind.
	for _, tagID := range in.TagIDs {
		if _, err := s.store.GetTag(ctx, userID, tagID); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	for _, tagID := range in.TagIDs {
		if err := s.store.AttachTag(ctx, task.ID, tagID); err != nil {
			if derr := s.store.DeleteTask(ctx, userID, task.ID); derr != nil {
				s.logger.Warn("failed to roll back task after attach failure",
					zap.Error(derr),
					zap.String("task_id", task.ID))
			}
			return nil, err
		}
	}

	s.publish(ctx, events.TaskCreated, task)
	return task, nil
}

// UpdateInput is a partial patch: nil fields are left untouched. The Clear
// flags reset the corresponding optional field to empty.
type UpdateInput struct {
	Title           *string
	Description     *string
	Priority        *string
	DueDate         *time.Time
	RemindAt        *time.Time
	Recurrence      *models.RecurrenceRule
	ClearDueDate    bool
	ClearRemindAt   bool
	ClearRecurrence bool
}

// Update patches the mutable fields of a task. ID, owner and creation time
// never change.
func (s *Service) Update(ctx context.Context, userID, taskID string, in UpdateInput) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, &storage.ValidationError{Field: "title", Reason: "must not be empty"}
		}
		task.Title = title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Priority != nil {
		priority := models.Priority(*in.Priority)
		if !priority.Valid() {
			return nil, &storage.ValidationError{Field: "priority", Reason: "must be one of low, medium, high, urgent"}
		}
		task.Priority = priority
	}
	if in.DueDate != nil {
		task.DueDate = in.DueDate
	} else if in.ClearDueDate {
		task.DueDate = nil
	}
	if in.RemindAt != nil {
		task.RemindAt = in.RemindAt
	} else if in.ClearRemindAt {
		task.RemindAt = nil
	}
	if in.Recurrence != nil {
		if err := in.Recurrence.Validate(); err != nil {
			return nil, &storage.ValidationError{Field: "recurrence_rule", Reason: err.Error()}
		}
		task.Recurrence = in.Recurrence
	} else if in.ClearRecurrence {
		task.Recurrence = nil
	}

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TaskUpdated, task)
	return task, nil
}

// ToggleResult reports the outcome of a completion toggle. Spawned is the
// next occurrence of a recurring task, when one was scheduled. Warning is
// set when the recurrence expansion was skipped over a malformed rule; the
// completion itself still committed.
type ToggleResult struct {
	Task    *models.Task
	Spawned *models.Task
	Warning string
}

// ToggleComplete flips the completed flag. Marking a recurring task complete
// leaves it completed as a historical record and spawns a clone due at the
// next computed occurrence, atomically with the flip.
func (s *Service) ToggleComplete(ctx context.Context, userID, taskID string) (*ToggleResult, error) {
	task, err := s.store.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if task.Completed {
		// Re-opening a task never spawns anything.
		if err := s.store.CompleteTask(ctx, userID, taskID, false, nil); err != nil {
			return nil, err
		}
		task.Completed = false
		s.publish(ctx, events.TaskUpdated, task)
		return &ToggleResult{Task: task}, nil
	}

	result := &ToggleResult{Task: task}
	var successor *models.Task
	if task.Recurrence != nil {
		successor, result.Warning = s.nextOccurrence(task)
	}

	if err := s.store.CompleteTask(ctx, userID, taskID, true, successor); err != nil {
		return nil, err
	}
	task.Completed = true
	result.Spawned = successor

	s.publish(ctx, events.TaskCompleted, task)
	if successor != nil {
		s.publish(ctx, events.TaskCreated, successor)
	}
	return result, nil
}

// nextOccurrence builds the successor task for a completed recurring task.
// A malformed rule yields no successor and a warning instead of an error, so
// the completion itself is never blocked.
func (s *Service) nextOccurrence(task *models.Task) (*models.Task, string) {
	from := s.now()
	if task.DueDate != nil {
		from = *task.DueDate
	}

	next, err := recurrence.NextOccurrence(task.Recurrence, from)
	if err != nil {
		s.logger.Warn("recurrence expansion skipped",
			zap.Error(err),
			zap.String("task_id", task.ID))
		return nil, "recurrence rule is invalid; no next occurrence was scheduled"
	}
	if next == nil {
		// Past the rule's end date.
		return nil, ""
	}

	successor := task.Clone()
	successor.ID = uuid.New().String()
	successor.Completed = false
	successor.DueDate = next
	if task.RemindAt != nil && task.DueDate != nil {
		// Keep the reminder the same distance ahead of the new due date.
		remind := next.Add(task.RemindAt.Sub(*task.DueDate))
		successor.RemindAt = &remind
	} else {
		successor.RemindAt = nil
	}
	return successor, ""
}

// Delete removes a task and, by cascade, its tag associations. Deleting an
// absent task is an error, not a no-op.
func (s *Service) Delete(ctx context.Context, userID, taskID string) error {
	task, err := s.store.GetTask(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, userID, taskID); err != nil {
		return err
	}
	s.publish(ctx, events.TaskDeleted, task)
	return nil
}

func (s *Service) Get(ctx context.Context, userID, taskID string) (*models.Task, error) {
	return s.store.GetTask(ctx, userID, taskID)
}

func (s *Service) List(ctx context.Context, userID string, filter storage.TaskFilter) ([]*models.Task, error) {
	return s.store.ListTasks(ctx, userID, filter)
}

func (s *Service) publish(ctx context.Context, eventType string, task *models.Task) {
	s.events.Publish(ctx, events.Event{
		Type:      eventType,
		TaskID:    task.ID,
		UserID:    task.UserID,
		Title:     task.Title,
		Timestamp: s.now(),
	})
}
