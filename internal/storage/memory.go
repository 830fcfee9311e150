package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avelasko/taskpilot/internal/models"
)

// MemoryStorage is an in-process Storage used for development and tests.
type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	sessions map[string]*models.Session // keyed by token
	tasks    map[string]*models.Task
	tags     map[string]*models.Tag
	taskTags map[string]map[string]struct{} // taskID -> set of tagIDs
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]*models.User),
		sessions: make(map[string]*models.Session),
		tasks:    make(map[string]*models.Task),
		tags:     make(map[string]*models.Tag),
		taskTags: make(map[string]map[string]struct{}),
	}
}

// User methods

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return &ConflictError{Entity: "user", Detail: user.ID}
	}
	for _, u := range s.users {
		if u.Email == user.Email {
			return &ConflictError{Entity: "user", Detail: user.Email}
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[id]; exists {
		cp := *user
		return &cp, nil
	}
	return nil, &NotFoundError{Entity: "user", ID: id}
}

// Session methods

func (s *MemoryStorage) CreateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.Token]; exists {
		return &ConflictError{Entity: "session", Detail: session.Token}
	}
	cp := *session
	s.sessions[session.Token] = &cp
	return nil
}

func (s *MemoryStorage) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if session, exists := s.sessions[token]; exists {
		cp := *session
		return &cp, nil
	}
	return nil, &NotFoundError{Entity: "session", ID: token}
}

// Task methods

func (s *MemoryStorage) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[task.UserID]; !exists {
		return &ValidationError{Field: "user_id", Reason: "user does not exist"}
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryStorage) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists || task.UserID != userID {
		return nil, &NotFoundError{Entity: "task", ID: taskID}
	}
	return task.Clone(), nil
}

func (s *MemoryStorage) UpdateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.tasks[task.ID]
	if !exists || existing.UserID != task.UserID {
		return &NotFoundError{Entity: "task", ID: task.ID}
	}
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryStorage) CompleteTask(ctx context.Context, userID, taskID string, completed bool, successor *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists || task.UserID != userID {
		return &NotFoundError{Entity: "task", ID: taskID}
	}
	task.Completed = completed
	task.UpdatedAt = time.Now()

	if successor != nil {
		now := time.Now()
		successor.CreatedAt = now
		successor.UpdatedAt = now
		s.tasks[successor.ID] = successor.Clone()
		// Carry the original's tag associations over to the new occurrence.
		if tagIDs, ok := s.taskTags[taskID]; ok {
			set := make(map[string]struct{}, len(tagIDs))
			for id := range tagIDs {
				set[id] = struct{}{}
			}
			s.taskTags[successor.ID] = set
		}
	}
	return nil
}

func (s *MemoryStorage) DeleteTask(ctx context.Context, userID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists || task.UserID != userID {
		return &NotFoundError{Entity: "task", ID: taskID}
	}
	delete(s.tasks, taskID)
	delete(s.taskTags, taskID)
	return nil
}

func (s *MemoryStorage) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*models.Task
	for _, task := range s.tasks {
		if task.UserID != userID {
			continue
		}
		if !s.matches(task, filter) {
			continue
		}
		tasks = append(tasks, task.Clone())
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *MemoryStorage) matches(task *models.Task, filter TaskFilter) bool {
	if filter.Priority != nil && task.Priority != *filter.Priority {
		return false
	}
	if filter.Completed != nil && task.Completed != *filter.Completed {
		return false
	}
	if filter.TagID != "" {
		tagIDs, ok := s.taskTags[task.ID]
		if !ok {
			return false
		}
		if _, ok := tagIDs[filter.TagID]; !ok {
			return false
		}
	}
	if filter.DueAfter != nil && (task.DueDate == nil || task.DueDate.Before(*filter.DueAfter)) {
		return false
	}
	if filter.DueBefore != nil && (task.DueDate == nil || task.DueDate.After(*filter.DueBefore)) {
		return false
	}
	return true
}

func (s *MemoryStorage) DueReminders(ctx context.Context, before time.Time) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Task
	for _, task := range s.tasks {
		if task.Completed || task.RemindAt == nil {
			continue
		}
		if task.RemindAt.After(before) {
			continue
		}
		due = append(due, task.Clone())
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].RemindAt.Before(*due[j].RemindAt)
	})
	return due, nil
}

func (s *MemoryStorage) ClearReminder(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return &NotFoundError{Entity: "task", ID: taskID}
	}
	task.RemindAt = nil
	return nil
}

// Tag methods

func (s *MemoryStorage) CreateTag(ctx context.Context, tag *models.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[tag.UserID]; !exists {
		return &ValidationError{Field: "user_id", Reason: "user does not exist"}
	}
	for _, t := range s.tags {
		if t.UserID == tag.UserID && t.Name == tag.Name {
			return &ConflictError{Entity: "tag", Detail: tag.Name}
		}
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now()
	}
	cp := *tag
	s.tags[tag.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetTag(ctx context.Context, userID, tagID string) (*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tag, exists := s.tags[tagID]
	if !exists || tag.UserID != userID {
		return nil, &NotFoundError{Entity: "tag", ID: tagID}
	}
	cp := *tag
	return &cp, nil
}

func (s *MemoryStorage) ListTags(ctx context.Context, userID string) ([]*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tags []*models.Tag
	for _, tag := range s.tags {
		if tag.UserID != userID {
			continue
		}
		cp := *tag
		tags = append(tags, &cp)
	}
	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Name < tags[j].Name
	})
	return tags, nil
}

func (s *MemoryStorage) DeleteTag(ctx context.Context, userID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, exists := s.tags[tagID]
	if !exists || tag.UserID != userID {
		return &NotFoundError{Entity: "tag", ID: tagID}
	}
	delete(s.tags, tagID)
	for _, tagIDs := range s.taskTags {
		delete(tagIDs, tagID)
	}
	return nil
}

func (s *MemoryStorage) AttachTag(ctx context.Context, taskID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[taskID]; !exists {
		return &NotFoundError{Entity: "task", ID: taskID}
	}
	if _, exists := s.tags[tagID]; !exists {
		return &NotFoundError{Entity: "tag", ID: tagID}
	}
	set, ok := s.taskTags[taskID]
	if !ok {
		set = make(map[string]struct{})
		s.taskTags[taskID] = set
	}
	set[tagID] = struct{}{}
	return nil
}

func (s *MemoryStorage) DetachTag(ctx context.Context, taskID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.taskTags[taskID]; ok {
		delete(set, tagID)
	}
	return nil
}

func (s *MemoryStorage) ListTaskTags(ctx context.Context, taskID string) ([]*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tags []*models.Tag
	for tagID := range s.taskTags[taskID] {
		if tag, exists := s.tags[tagID]; exists {
			cp := *tag
			tags = append(tags, &cp)
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Name < tags[j].Name
	})
	return tags, nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
