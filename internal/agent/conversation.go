package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avelasko/taskpilot/internal/models"
	"github.com/avelasko/taskpilot/internal/storage"
	"github.com/avelasko/taskpilot/internal/task"
	"go.uber.org/zap"
)

// State is the conversation's position in the turn state machine. Parsing,
// Executing and Responding happen within a single turn, so only the states
// that survive between turns are represented.
type State int

const (
	StateListening State = iota
	StateAwaitingConfirmation
)

// pendingAction is a destructive intent held back until the user confirms.
// The affected tasks are captured at confirmation time so the user sees
// exactly what will change.
type pendingAction struct {
	intent *Intent
	tasks  []*models.Task
}

// Conversation holds per-conversation agent state: the bounded turn history,
// the confirmation state machine, and the most recently mentioned task used
// to resolve referring expressions.
type Conversation struct {
	mu       sync.Mutex
	userID   string
	state    State
	pending  *pendingAction
	history  []models.Message
	lastTask *models.Task
}

// Agent resolves natural-language turns into task operations. It never
// escalates privilege: every store call runs under the user id the session
// validator produced, and destructive intents require explicit confirmation.
type Agent struct {
	mu       sync.Mutex
	convs    map[string]*Conversation
	parser   Parser
	tasks    *task.Service
	maxTurns int
	logger   *zap.Logger
	now      func() time.Time
}

func New(parser Parser, tasks *task.Service, maxTurns int, logger *zap.Logger) *Agent {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &Agent{
		convs:    make(map[string]*Conversation),
		parser:   parser,
		tasks:    tasks,
		maxTurns: maxTurns,
		logger:   logger,
		now:      time.Now,
	}
}

func (a *Agent) conversation(userID, convID string) *Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := userID + "/" + convID
	conv, ok := a.convs[key]
	if !ok {
		conv = &Conversation{userID: userID}
		a.convs[key] = conv
	}
	return conv
}

// HandleTurn processes one user turn and returns the agent's reply. Turns
// within a conversation are serialized; independent conversations proceed in
// parallel. The conversation always ends the turn in Listening or
// AwaitingConfirmation, never stuck mid-execution.
func (a *Agent) HandleTurn(ctx context.Context, userID, convID, input string) string {
	conv := a.conversation(userID, convID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	a.remember(conv, models.RoleUser, input)

	var reply string
	if conv.state == StateAwaitingConfirmation {
		reply = a.resolveConfirmation(ctx, conv, input)
	} else {
		intent, err := a.parser.Parse(ctx, input, conv.history)
		if err != nil {
			a.logger.Error("intent parsing failed", zap.Error(err))
			intent = &Intent{Kind: IntentUnknown}
		}
		reply = a.dispatch(ctx, conv, intent)
	}

	a.remember(conv, models.RoleAssistant, reply)
	return reply
}

func (a *Agent) remember(conv *Conversation, role models.Role, content string) {
	conv.history = append(conv.history, models.Message{
		Role:      role,
		Content:   content,
		CreatedAt: a.now(),
	})
	if len(conv.history) > a.maxTurns {
		conv.history = conv.history[len(conv.history)-a.maxTurns:]
	}
}

// resolveConfirmation consumes a pending destructive intent. Anything short
// of an explicit affirmative discards it with nothing executed.
func (a *Agent) resolveConfirmation(ctx context.Context, conv *Conversation, input string) string {
	pending := conv.pending
	conv.pending = nil
	conv.state = StateListening

	if pending == nil {
		return "There is nothing waiting for confirmation."
	}
	if !isAffirmative(input) {
		return "Okay, I won't touch anything."
	}
	return a.executePending(ctx, conv, pending)
}

var affirmatives = map[string]bool{
	"yes": true, "y": true, "yep": true, "yeah": true, "sure": true,
	"confirm": true, "confirmed": true, "ok": true, "okay": true,
	"do it": true, "go ahead": true, "please do": true,
}

func isAffirmative(input string) bool {
	return affirmatives[strings.ToLower(strings.TrimSpace(input))]
}

func (a *Agent) dispatch(ctx context.Context, conv *Conversation, intent *Intent) string {
	switch intent.Kind {
	case IntentCreateTask:
		return a.createTask(ctx, conv, intent)
	case IntentUpdateTask:
		return a.updateTask(ctx, conv, intent)
	case IntentCompleteTask:
		return a.completeTask(ctx, conv, intent)
	case IntentDeleteTask:
		return a.confirmDelete(ctx, conv, intent)
	case IntentBulkComplete:
		return a.bulkComplete(ctx, conv, intent)
	case IntentBulkDelete:
		return a.confirmBulkDelete(ctx, conv, intent)
	case IntentListTasks:
		return a.listTasks(ctx, conv, intent)
	case IntentQueryStatus:
		return a.queryStatus(ctx, conv)
	case IntentUnknown:
		return "I didn't catch that. You can ask me to add, complete, delete or list your tasks."
	}
	return "I didn't catch that. You can ask me to add, complete, delete or list your tasks."
}

func (a *Agent) createTask(ctx context.Context, conv *Conversation, intent *Intent) string {
	if intent.Title == "" {
		return "What should the task be called?"
	}
	created, err := a.tasks.Create(ctx, conv.userID, task.CreateInput{
		Title:       intent.Title,
		Description: intent.Description,
		Priority:    intent.Priority,
		DueDate:     intent.DueDate,
	})
	if err != nil {
		return a.describeError(err)
	}
	conv.lastTask = created
	if created.DueDate != nil {
		return fmt.Sprintf("Added %q, due %s.", created.Title, created.DueDate.Format("2006-01-02"))
	}
	return fmt.Sprintf("Added %q.", created.Title)
}

func (a *Agent) updateTask(ctx context.Context, conv *Conversation, intent *Intent) string {
	target, clarification := a.resolveTarget(ctx, conv, intent)
	if target == nil {
		return clarification
	}

	patch := task.UpdateInput{}
	if intent.Priority != "" {
		patch.Priority = &intent.Priority
	}
	if intent.DueDate != nil {
		patch.DueDate = intent.DueDate
	}
	if intent.Title != "" && !strings.EqualFold(intent.Title, target.Title) {
		patch.Title = &intent.Title
	}

	updated, err := a.tasks.Update(ctx, conv.userID, target.ID, patch)
	if err != nil {
		return a.describeError(err)
	}
	conv.lastTask = updated
	return fmt.Sprintf("Updated %q.", updated.Title)
}

func (a *Agent) completeTask(ctx context.Context, conv *Conversation, intent *Intent) string {
	target, clarification := a.resolveTarget(ctx, conv, intent)
	if target == nil {
		return clarification
	}

	result, err := a.tasks.ToggleComplete(ctx, conv.userID, target.ID)
	if err != nil {
		return a.describeError(err)
	}
	conv.lastTask = result.Task

	reply := fmt.Sprintf("Marked %q as done.", result.Task.Title)
	if result.Spawned != nil {
		reply += fmt.Sprintf(" The next occurrence is due %s.", result.Spawned.DueDate.Format("2006-01-02"))
	}
	if result.Warning != "" {
		reply += " Heads up: " + result.Warning
	}
	return reply
}

// confirmDelete stages a single-task delete. Deletion is destructive, so
// even one task goes through the confirmation state.
func (a *Agent) confirmDelete(ctx context.Context, conv *Conversation, intent *Intent) string {
	target, clarification := a.resolveTarget(ctx, conv, intent)
	if target == nil {
		return clarification
	}

	conv.pending = &pendingAction{intent: intent, tasks: []*models.Task{target}}
	conv.state = StateAwaitingConfirmation
	return fmt.Sprintf("This will delete %q. Are you sure?", target.Title)
}

func (a *Agent) confirmBulkDelete(ctx context.Context, conv *Conversation, intent *Intent) string {
	matched, err := a.matchFilter(ctx, conv, intent)
	if err != nil {
		return a.describeError(err)
	}
	if len(matched) == 0 {
		return "No tasks match that."
	}

	conv.pending = &pendingAction{intent: intent, tasks: matched}
	conv.state = StateAwaitingConfirmation
	return fmt.Sprintf("This will delete %d task(s):\n%s\nAre you sure?",
		len(matched), formatTaskList(matched))
}

// bulkComplete over a single match executes immediately; over several it is
// destructive and goes through confirmation.
func (a *Agent) bulkComplete(ctx context.Context, conv *Conversation, intent *Intent) string {
	matched, err := a.matchFilter(ctx, conv, intent)
	if err != nil {
		return a.describeError(err)
	}
	if len(matched) == 0 {
		return "No tasks match that."
	}
	if len(matched) == 1 {
		return a.completeMatched(ctx, conv, matched)
	}

	conv.pending = &pendingAction{intent: intent, tasks: matched}
	conv.state = StateAwaitingConfirmation
	return fmt.Sprintf("This will mark %d task(s) as done:\n%s\nAre you sure?",
		len(matched), formatTaskList(matched))
}

func (a *Agent) executePending(ctx context.Context, conv *Conversation, pending *pendingAction) string {
	switch pending.intent.Kind {
	case IntentDeleteTask, IntentBulkDelete:
		deleted := 0
		for _, t := range pending.tasks {
			if err := a.tasks.Delete(ctx, conv.userID, t.ID); err != nil {
				a.logger.Warn("agent delete failed",
					zap.Error(err),
					zap.String("task_id", t.ID))
				return fmt.Sprintf("Deleted %d task(s), then hit a problem: %s", deleted, a.describeError(err))
			}
			deleted++
		}
		conv.lastTask = nil
		return fmt.Sprintf("Deleted %d task(s).", deleted)
	case IntentBulkComplete:
		return a.completeMatched(ctx, conv, pending.tasks)
	}
	return "There is nothing waiting for confirmation."
}

func (a *Agent) completeMatched(ctx context.Context, conv *Conversation, matched []*models.Task) string {
	completed := 0
	for _, t := range matched {
		result, err := a.tasks.ToggleComplete(ctx, conv.userID, t.ID)
		if err != nil {
			return fmt.Sprintf("Completed %d task(s), then hit a problem: %s", completed, a.describeError(err))
		}
		conv.lastTask = result.Task
		completed++
	}
	return fmt.Sprintf("Marked %d task(s) as done.", completed)
}

func (a *Agent) listTasks(ctx context.Context, conv *Conversation, intent *Intent) string {
	matched, err := a.matchFilter(ctx, conv, intent)
	if err != nil {
		return a.describeError(err)
	}
	if len(matched) == 0 {
		return "You have no matching tasks."
	}
	if len(matched) == 1 {
		conv.lastTask = matched[0]
	}
	return fmt.Sprintf("Here's what I found:\n%s", formatTaskList(matched))
}

func (a *Agent) queryStatus(ctx context.Context, conv *Conversation) string {
	all, err := a.tasks.List(ctx, conv.userID, storage.TaskFilter{})
	if err != nil {
		return a.describeError(err)
	}
	open, done := 0, 0
	for _, t := range all {
		if t.Completed {
			done++
		} else {
			open++
		}
	}
	return fmt.Sprintf("You have %d open task(s) and %d completed.", open, done)
}

// resolveTarget maps an intent onto one existing task. A referential intent
// with no referent in context yields a clarification without touching the
// store.
func (a *Agent) resolveTarget(ctx context.Context, conv *Conversation, intent *Intent) (*models.Task, string) {
	if intent.Referential {
		if conv.lastTask == nil {
			return nil, "I'm not sure which task you mean. Could you name it?"
		}
		fresh, err := a.tasks.Get(ctx, conv.userID, conv.lastTask.ID)
		if err != nil {
			conv.lastTask = nil
			return nil, a.describeError(err)
		}
		return fresh, ""
	}

	ref := intent.TaskRef
	if ref == "" {
		ref = intent.Title
	}
	if ref == "" {
		return nil, "Which task do you mean?"
	}

	all, err := a.tasks.List(ctx, conv.userID, storage.TaskFilter{})
	if err != nil {
		return nil, a.describeError(err)
	}
	lowered := strings.ToLower(ref)
	var partial *models.Task
	for _, t := range all {
		title := strings.ToLower(t.Title)
		if title == lowered {
			return t, ""
		}
		if partial == nil && strings.Contains(title, lowered) {
			partial = t
		}
	}
	if partial != nil {
		return partial, ""
	}
	return nil, fmt.Sprintf("I couldn't find a task matching %q.", ref)
}

// matchFilter gathers the uncompleted tasks a bulk or list intent applies to.
func (a *Agent) matchFilter(ctx context.Context, conv *Conversation, intent *Intent) ([]*models.Task, error) {
	filter := storage.TaskFilter{}
	if intent.Filter.Priority != "" {
		p := models.Priority(intent.Filter.Priority)
		if p.Valid() {
			filter.Priority = &p
		}
	}
	if intent.Filter.Completed != nil {
		filter.Completed = intent.Filter.Completed
	} else {
		open := false
		filter.Completed = &open
	}
	return a.tasks.List(ctx, conv.userID, filter)
}

func formatTaskList(tasks []*models.Task) string {
	var sb strings.Builder
	for i, t := range tasks {
		sb.WriteString(fmt.Sprintf("%d. %s (%s", i+1, t.Title, t.Priority))
		if t.DueDate != nil {
			sb.WriteString(", due " + t.DueDate.Format("2006-01-02"))
		}
		sb.WriteString(")")
		if i < len(tasks)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// describeError converts a store error into a user-facing sentence. Raw
// errors never reach the user.
func (a *Agent) describeError(err error) string {
	switch {
	case storage.IsValidation(err):
		return "That doesn't look quite right: " + validationReason(err)
	case storage.IsNotFound(err):
		return "I couldn't find that task. It may have been deleted already."
	case storage.IsConflict(err):
		return "Something with that name already exists."
	default:
		a.logger.Error("agent operation failed", zap.Error(err))
		return "Something went wrong on my side. Please try again."
	}
}

func validationReason(err error) string {
	var ve *storage.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason + "."
	}
	return "please rephrase."
}
