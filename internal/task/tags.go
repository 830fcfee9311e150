package task

import (
	"context"
	"strings"

	"github.com/avelasko/taskpilot/internal/models"
	"github.com/avelasko/taskpilot/internal/storage"
	"github.com/google/uuid"
)

// Tag management and the task-tag association. Attach and Detach are
// idempotent: attaching an existing pair or detaching an absent one is a
// no-op, not an error.

func (s *Service) CreateTag(ctx context.Context, userID, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &storage.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	tag := &models.Tag{
		ID:     uuid.New().String(),
		UserID: userID,
		Name:   name,
	}
	if err := s.store.CreateTag(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *Service) ListTags(ctx context.Context, userID string) ([]*models.Tag, error) {
	return s.store.ListTags(ctx, userID)
}

func (s *Service) DeleteTag(ctx context.Context, userID, tagID string) error {
	return s.store.DeleteTag(ctx, userID, tagID)
}

// AttachTag links a tag to a task. Both ends must belong to the acting user;
// an end owned by someone else looks absent.
func (s *Service) AttachTag(ctx context.Context, userID, taskID, tagID string) error {
	if _, err := s.store.GetTask(ctx, userID, taskID); err != nil {
		return err
	}
	if _, err := s.store.GetTag(ctx, userID, tagID); err != nil {
		return err
	}
	return s.store.AttachTag(ctx, taskID, tagID)
}

// DetachTag unlinks a tag from a task under the same ownership rules.
func (s *Service) DetachTag(ctx context.Context, userID, taskID, tagID string) error {
	if _, err := s.store.GetTask(ctx, userID, taskID); err != nil {
		return err
	}
	if _, err := s.store.GetTag(ctx, userID, tagID); err != nil {
		return err
	}
	return s.store.DetachTag(ctx, taskID, tagID)
}

// TaskTags returns the tags attached to a task the acting user owns.
func (s *Service) TaskTags(ctx context.Context, userID, taskID string) ([]*models.Tag, error) {
	if _, err := s.store.GetTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return s.store.ListTaskTags(ctx, taskID)
}
