package reminder

import (
	"context"
	"time"

	"github.com/avelasko/taskpilot/internal/events"
	"github.com/avelasko/taskpilot/internal/storage"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Service periodically scans for tasks whose reminder time has arrived and
// publishes a task.reminder event for each. Delivery is best-effort and
// out-of-band; a fired reminder is cleared so it goes out once.
type Service struct {
	store    storage.Storage
	events   events.Publisher
	logger   *zap.Logger
	cron     *cron.Cron
	interval time.Duration
	now      func() time.Time
}

func NewService(store storage.Storage, publisher events.Publisher, interval time.Duration, logger *zap.Logger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		store:    store,
		events:   publisher,
		logger:   logger,
		cron:     cron.New(),
		interval: interval,
		now:      time.Now,
	}
}

func (s *Service) Start() error {
	spec := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(spec, s.scan); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Service) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	due, err := s.store.DueReminders(ctx, s.now())
	if err != nil {
		s.logger.Error("reminder scan failed", zap.Error(err))
		return
	}

	for _, t := range due {
		s.events.Publish(ctx, events.Event{
			Type:      events.TaskReminder,
			TaskID:    t.ID,
			UserID:    t.UserID,
			Title:     t.Title,
			Timestamp: s.now(),
		})
		if err := s.store.ClearReminder(ctx, t.ID); err != nil {
			s.logger.Error("failed to clear reminder",
				zap.Error(err),
				zap.String("task_id", t.ID))
		}
	}
}
