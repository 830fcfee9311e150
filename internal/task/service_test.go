package task

import (
	"context"
	"testing"
	"time"

	"github.com/avelasko/taskpilot/internal/events"
	"github.com/avelasko/taskpilot/internal/models"
	"github.com/avelasko/taskpilot/internal/storage"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	svc := NewService(store, noopPublisher{}, zap.NewNop())
	if err := store.CreateUser(context.Background(), &models.User{ID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return svc, store
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, event events.Event) {}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"empty title", CreateInput{Title: "   "}},
		{"bad priority", CreateInput{Title: "x", Priority: "critical"}},
		{"bad recurrence rule", CreateInput{Title: "x", Recurrence: &models.RecurrenceRule{Frequency: "sometimes", Interval: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, "u1", tt.input); !storage.IsValidation(err) {
				t.Errorf("Create() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestCreateDefaultsPriorityToMedium(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(context.Background(), "u1", CreateInput{Title: "buy milk"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Priority != models.PriorityMedium {
		t.Errorf("Priority = %q, want medium", created.Priority)
	}
}

func TestCreateRequiresExistingUser(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Create(context.Background(), "ghost", CreateInput{Title: "x"}); !storage.IsValidation(err) {
		t.Errorf("Create() for unknown user error = %v, want ValidationError", err)
	}
}

func TestCreateWithUnknownTagPersistsNothing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", CreateInput{Title: "tagged", TagIDs: []string{"ghost"}})
	if !storage.IsNotFound(err) {
		t.Fatalf("Create() error = %v, want NotFoundError", err)
	}

	tasks, err := store.ListTasks(ctx, "u1", storage.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("failed create left %d task(s) behind", len(tasks))
	}
}

func TestCreateWithForeignTagPersistsNothing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if err := store.CreateUser(ctx, &models.User{ID: "u2", Email: "u2@example.com"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	theirs := &models.Tag{ID: "g-theirs", UserID: "u2", Name: "private"}
	if err := store.CreateTag(ctx, theirs); err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}

	if _, err := svc.Create(ctx, "u1", CreateInput{Title: "tagged", TagIDs: []string{"g-theirs"}}); !storage.IsNotFound(err) {
		t.Fatalf("Create() error = %v, want NotFoundError", err)
	}

	tasks, err := store.ListTasks(ctx, "u1", storage.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("failed create left %d task(s) behind", len(tasks))
	}
}

func TestUpdateKeepsImmutableFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "u1", CreateInput{Title: "draft slides"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	title := "finish slides"
	priority := "high"
	updated, err := svc.Update(ctx, "u1", created.ID, UpdateInput{Title: &title, Priority: &priority})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.ID != created.ID {
		t.Errorf("ID changed on update: %q -> %q", created.ID, updated.ID)
	}
	if updated.UserID != created.UserID {
		t.Errorf("UserID changed on update: %q -> %q", created.UserID, updated.UserID)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}
	if updated.Title != title || updated.Priority != models.PriorityHigh {
		t.Errorf("mutable fields not applied: %+v", updated)
	}
}

func TestToggleCompleteMonthlySpawnsClampedSuccessor(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	due := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(ctx, "u1", CreateInput{
		Title:      "Pay rent",
		DueDate:    &due,
		Recurrence: &models.RecurrenceRule{Frequency: models.FrequencyMonthly, Interval: 1},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tag, err := svc.CreateTag(ctx, "u1", "bills")
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	if err := svc.AttachTag(ctx, "u1", created.ID, tag.ID); err != nil {
		t.Fatalf("AttachTag() error = %v", err)
	}

	result, err := svc.ToggleComplete(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("ToggleComplete() error = %v", err)
	}

	if !result.Task.Completed {
		t.Error("original task should stay completed as a historical record")
	}
	if result.Spawned == nil {
		t.Fatal("expected a successor task")
	}

	wantDue := time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)
	if result.Spawned.DueDate == nil || !result.Spawned.DueDate.Equal(wantDue) {
		t.Errorf("successor due = %v, want %v", result.Spawned.DueDate, wantDue)
	}
	if result.Spawned.Completed {
		t.Error("successor must start uncompleted")
	}
	if result.Spawned.Title != created.Title || result.Spawned.Priority != created.Priority {
		t.Errorf("successor differs from original: %+v", result.Spawned)
	}
	if result.Spawned.Recurrence == nil {
		t.Error("successor lost its recurrence rule")
	}

	tags, err := store.ListTaskTags(ctx, result.Spawned.ID)
	if err != nil {
		t.Fatalf("ListTaskTags() error = %v", err)
	}
	if len(tags) != 1 || tags[0].ID != tag.ID {
		t.Errorf("successor tags = %v, want the original's tag", tags)
	}
}

func TestToggleCompleteDailySpawnsNextDay(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	due := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(ctx, "u1", CreateInput{
		Title:      "stand-up notes",
		DueDate:    &due,
		Recurrence: &models.RecurrenceRule{Frequency: models.FrequencyDaily, Interval: 1},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := svc.ToggleComplete(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("ToggleComplete() error = %v", err)
	}

	wantDue := due.AddDate(0, 0, 1)
	if result.Spawned == nil || !result.Spawned.DueDate.Equal(wantDue) {
		t.Fatalf("spawned = %+v, want due %v", result.Spawned, wantDue)
	}

	// Exactly one new task.
	all, err := store.ListTasks(ctx, "u1", storage.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("task count after toggle = %d, want 2", len(all))
	}
}

func TestToggleCompleteStopsAtEndDate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	due := time.Date(2025, time.January, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(ctx, "u1", CreateInput{
		Title:   "weekly sync",
		DueDate: &due,
		Recurrence: &models.RecurrenceRule{
			Frequency: models.FrequencyWeekly,
			Interval:  1,
			Days:      []string{"wednesday"},
			EndDate:   &end,
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := svc.ToggleComplete(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("ToggleComplete() error = %v", err)
	}
	if result.Spawned != nil {
		t.Errorf("expected no successor past the end date, got %+v", result.Spawned)
	}
	if result.Warning != "" {
		t.Errorf("running out is not a warning condition, got %q", result.Warning)
	}
	if !result.Task.Completed {
		t.Error("completion should still commit")
	}
}

func TestToggleCompleteMalformedRuleWarnsButCommits(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// A broken rule can only arrive via storage, creation validates it.
	bad := &models.Task{
		ID:         "t-bad",
		UserID:     "u1",
		Title:      "legacy import",
		Priority:   models.PriorityMedium,
		Recurrence: &models.RecurrenceRule{Frequency: "sometimes", Interval: 0},
	}
	if err := store.CreateTask(ctx, bad); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	result, err := svc.ToggleComplete(ctx, "u1", "t-bad")
	if err != nil {
		t.Fatalf("ToggleComplete() error = %v", err)
	}
	if !result.Task.Completed {
		t.Error("completion must commit despite the broken rule")
	}
	if result.Spawned != nil {
		t.Error("no successor should be spawned from a broken rule")
	}
	if result.Warning == "" {
		t.Error("expected a warning about the skipped expansion")
	}
}

func TestToggleReopenDoesNotSpawn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	due := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(ctx, "u1", CreateInput{
		Title:      "journal",
		DueDate:    &due,
		Recurrence: &models.RecurrenceRule{Frequency: models.FrequencyDaily, Interval: 1},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.ToggleComplete(ctx, "u1", created.ID); err != nil {
		t.Fatalf("first toggle error = %v", err)
	}
	result, err := svc.ToggleComplete(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("second toggle error = %v", err)
	}
	if result.Task.Completed {
		t.Error("second toggle should reopen the task")
	}
	if result.Spawned != nil {
		t.Error("reopening must not spawn another occurrence")
	}
}

func TestDeleteAbsentTaskIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.Delete(context.Background(), "u1", "nope"); !storage.IsNotFound(err) {
		t.Errorf("Delete() error = %v, want NotFoundError", err)
	}
}

func TestCrossUserIsolation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if err := store.CreateUser(ctx, &models.User{ID: "u2", Email: "u2@example.com"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	created, err := svc.Create(ctx, "u1", CreateInput{Title: "private"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Get(ctx, "u2", created.ID); !storage.IsNotFound(err) {
		t.Errorf("Get() as other user error = %v, want NotFoundError", err)
	}
	title := "hijack"
	if _, err := svc.Update(ctx, "u2", created.ID, UpdateInput{Title: &title}); !storage.IsNotFound(err) {
		t.Errorf("Update() as other user error = %v, want NotFoundError", err)
	}
	if err := svc.Delete(ctx, "u2", created.ID); !storage.IsNotFound(err) {
		t.Errorf("Delete() as other user error = %v, want NotFoundError", err)
	}
}

func TestAttachTagRequiresOwnershipOfBothEnds(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if err := store.CreateUser(ctx, &models.User{ID: "u2", Email: "u2@example.com"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	mine, err := svc.Create(ctx, "u1", CreateInput{Title: "mine"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	theirs, err := svc.CreateTag(ctx, "u2", "their-label")
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}

	if err := svc.AttachTag(ctx, "u1", mine.ID, theirs.ID); !storage.IsNotFound(err) {
		t.Errorf("AttachTag() with foreign tag error = %v, want NotFoundError", err)
	}
}
