package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avelasko/taskpilot/internal/models"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, &UnavailableError{Err: err}
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

// translateError maps driver errors onto the storage taxonomy.
func translateError(err error, entity, detail string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return &ConflictError{Entity: entity, Detail: detail}
		case "23503": // foreign_key_violation
			return &ValidationError{Field: entity, Reason: "referenced entity does not exist"}
		case "23514": // check_violation
			return &ValidationError{Field: entity, Reason: pqErr.Constraint}
		}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return &UnavailableError{Err: err}
	}
	return err
}

// User methods

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email)
		VALUES ($1, $2)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, user.ID, user.Email).Scan(&user.CreatedAt)
	if err != nil {
		return translateError(err, "user", user.Email)
	}
	return nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "user", ID: id}
	}
	if err != nil {
		return nil, translateError(err, "user", id)
	}
	return user, nil
}

// Session methods

func (s *PostgresStorage) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, token, user_id, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		session.ID,
		session.Token,
		session.UserID,
		session.ExpiresAt,
		session.IPAddress,
		session.UserAgent,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return translateError(err, "session", session.ID)
	}
	return nil
}

// GetSessionByToken looks a session up by its token column. The row id is a
// separate internal key and is never used for lookup.
func (s *PostgresStorage) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT id, token, user_id, expires_at, created_at, updated_at, ip_address, user_agent
		FROM sessions
		WHERE token = $1`

	session := &models.Session{}
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&session.ID,
		&session.Token,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.IPAddress,
		&session.UserAgent,
	)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "session", ID: token}
	}
	if err != nil {
		return nil, translateError(err, "session", token)
	}
	return session, nil
}

// Task methods

func (s *PostgresStorage) CreateTask(ctx context.Context, task *models.Task) error {
	rule, err := marshalRule(task.Recurrence)
	if err != nil {
		return &ValidationError{Field: "recurrence_rule", Reason: err.Error()}
	}

	query := `
		INSERT INTO tasks (id, user_id, title, description, priority, completed, due_date, remind_at, recurrence_rule)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.Priority,
		task.Completed,
		task.DueDate,
		task.RemindAt,
		rule,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return translateError(err, "task", task.ID)
	}
	return nil
}

const taskColumns = `id, user_id, title, description, priority, completed, due_date, remind_at, recurrence_rule, created_at, updated_at`

func (s *PostgresStorage) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND id = $2`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, userID, taskID))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "task", ID: taskID}
	}
	if err != nil {
		return nil, translateError(err, "task", taskID)
	}
	return task, nil
}

func (s *PostgresStorage) UpdateTask(ctx context.Context, task *models.Task) error {
	rule, err := marshalRule(task.Recurrence)
	if err != nil {
		return &ValidationError{Field: "recurrence_rule", Reason: err.Error()}
	}

	// id, user_id and created_at are immutable and deliberately absent from
	// the SET list.
	query := `
		UPDATE tasks
		SET title = $1, description = $2, priority = $3, due_date = $4, remind_at = $5, recurrence_rule = $6, updated_at = now()
		WHERE user_id = $7 AND id = $8
		RETURNING updated_at`

	err = s.db.QueryRowContext(ctx, query,
		task.Title,
		task.Description,
		task.Priority,
		task.DueDate,
		task.RemindAt,
		rule,
		task.UserID,
		task.ID,
	).Scan(&task.UpdatedAt)
	if err == sql.ErrNoRows {
		return &NotFoundError{Entity: "task", ID: task.ID}
	}
	if err != nil {
		return translateError(err, "task", task.ID)
	}
	return nil
}

// CompleteTask flips the completed flag and inserts the successor occurrence
// (when present) in one transaction, so the flip and the spawn are
// all-or-nothing.
func (s *PostgresStorage) CompleteTask(ctx context.Context, userID, taskID string, completed bool, successor *models.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET completed = $1, updated_at = now() WHERE user_id = $2 AND id = $3`,
		completed, userID, taskID)
	if err != nil {
		return translateError(err, "task", taskID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translateError(err, "task", taskID)
	}
	if affected == 0 {
		return &NotFoundError{Entity: "task", ID: taskID}
	}

	if successor != nil {
		rule, err := marshalRule(successor.Recurrence)
		if err != nil {
			return &ValidationError{Field: "recurrence_rule", Reason: err.Error()}
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO tasks (id, user_id, title, description, priority, completed, due_date, remind_at, recurrence_rule)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at`,
			successor.ID,
			successor.UserID,
			successor.Title,
			successor.Description,
			successor.Priority,
			successor.Completed,
			successor.DueDate,
			successor.RemindAt,
			rule,
		).Scan(&successor.CreatedAt, &successor.UpdatedAt)
		if err != nil {
			return translateError(err, "task", successor.ID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_tags (task_id, tag_id)
			SELECT $1, tag_id FROM task_tags WHERE task_id = $2`,
			successor.ID, taskID)
		if err != nil {
			return translateError(err, "task_tag", successor.ID)
		}
	}

	return tx.Commit()
}

// DeleteTask removes the task; task_tags rows go with it via ON DELETE CASCADE.
func (s *PostgresStorage) DeleteTask(ctx context.Context, userID, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE user_id = $1 AND id = $2`, userID, taskID)
	if err != nil {
		return translateError(err, "task", taskID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translateError(err, "task", taskID)
	}
	if affected == 0 {
		return &NotFoundError{Entity: "task", ID: taskID}
	}
	return nil
}

func (s *PostgresStorage) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{userID}

	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		query += fmt.Sprintf(" AND completed = $%d", len(args))
	}
	if filter.TagID != "" {
		args = append(args, filter.TagID)
		query += fmt.Sprintf(" AND id IN (SELECT task_id FROM task_tags WHERE tag_id = $%d)", len(args))
	}
	if filter.DueAfter != nil {
		args = append(args, *filter.DueAfter)
		query += fmt.Sprintf(" AND due_date >= $%d", len(args))
	}
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		query += fmt.Sprintf(" AND due_date <= $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "task", userID)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *PostgresStorage) DueReminders(ctx context.Context, before time.Time) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE completed = FALSE AND remind_at IS NOT NULL AND remind_at <= $1
		ORDER BY remind_at ASC`

	rows, err := s.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, translateError(err, "task", "reminders")
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *PostgresStorage) ClearReminder(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET remind_at = NULL WHERE id = $1`, taskID)
	if err != nil {
		return translateError(err, "task", taskID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translateError(err, "task", taskID)
	}
	if affected == 0 {
		return &NotFoundError{Entity: "task", ID: taskID}
	}
	return nil
}

// Tag methods

func (s *PostgresStorage) CreateTag(ctx context.Context, tag *models.Tag) error {
	query := `
		INSERT INTO tags (id, user_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, tag.ID, tag.UserID, tag.Name).Scan(&tag.CreatedAt)
	if err != nil {
		return translateError(err, "tag", tag.Name)
	}
	return nil
}

func (s *PostgresStorage) GetTag(ctx context.Context, userID, tagID string) (*models.Tag, error) {
	query := `SELECT id, user_id, name, created_at FROM tags WHERE user_id = $1 AND id = $2`

	tag := &models.Tag{}
	err := s.db.QueryRowContext(ctx, query, userID, tagID).Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "tag", ID: tagID}
	}
	if err != nil {
		return nil, translateError(err, "tag", tagID)
	}
	return tag, nil
}

func (s *PostgresStorage) ListTags(ctx context.Context, userID string) ([]*models.Tag, error) {
	query := `SELECT id, user_id, name, created_at FROM tags WHERE user_id = $1 ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, translateError(err, "tag", userID)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag := &models.Tag{}
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *PostgresStorage) DeleteTag(ctx context.Context, userID, tagID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE user_id = $1 AND id = $2`, userID, tagID)
	if err != nil {
		return translateError(err, "tag", tagID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translateError(err, "tag", tagID)
	}
	if affected == 0 {
		return &NotFoundError{Entity: "tag", ID: tagID}
	}
	return nil
}

// AttachTag inserts the association pair; a duplicate insert is swallowed so
// the operation stays idempotent.
func (s *PostgresStorage) AttachTag(ctx context.Context, taskID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_tags (task_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (task_id, tag_id) DO NOTHING`,
		taskID, tagID)
	if err != nil {
		return translateError(err, "task_tag", taskID)
	}
	return nil
}

func (s *PostgresStorage) DetachTag(ctx context.Context, taskID, tagID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_tags WHERE task_id = $1 AND tag_id = $2`, taskID, tagID)
	if err != nil {
		return translateError(err, "task_tag", taskID)
	}
	return nil
}

func (s *PostgresStorage) ListTaskTags(ctx context.Context, taskID string) ([]*models.Tag, error) {
	query := `
		SELECT t.id, t.user_id, t.name, t.created_at
		FROM tags t
		JOIN task_tags tt ON tt.tag_id = t.id
		WHERE tt.task_id = $1
		ORDER BY t.name ASC`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, translateError(err, "task_tag", taskID)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag := &models.Tag{}
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &UnavailableError{Err: err}
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var rule []byte
	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.Priority,
		&task.Completed,
		&task.DueDate,
		&task.RemindAt,
		&rule,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rule) > 0 {
		task.Recurrence = &models.RecurrenceRule{}
		if err := json.Unmarshal(rule, task.Recurrence); err != nil {
			return nil, fmt.Errorf("error decoding recurrence rule: %w", err)
		}
	}
	return task, nil
}

func marshalRule(rule *models.RecurrenceRule) ([]byte, error) {
	if rule == nil {
		return nil, nil
	}
	return json.Marshal(rule)
}
