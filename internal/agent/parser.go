package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avelasko/taskpilot/internal/models"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Parser turns one free-text turn into a structured intent. The recent
// conversation history is provided for context.
type Parser interface {
	Parse(ctx context.Context, input string, history []models.Message) (*Intent, error)
}

type gptIntent struct {
	Intent      string  `json:"intent"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	DueDate     string  `json:"due_date"`
	TaskRef     string  `json:"task_ref"`
	Referential bool    `json:"referential"`
	Filter      struct {
		Priority  string `json:"priority"`
		Completed *bool  `json:"completed"`
	} `json:"filter"`
}

// GPTParser resolves intents with a chat-completion call that returns a
// strict JSON object. On any API or parse failure it falls back to the
// deterministic keyword parser, so a turn always yields an intent.
type GPTParser struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	fallback    *KeywordParser
	logger      *zap.Logger
}

func NewGPTParser(apiKey, model string, maxTokens int, temperature float64, timeout time.Duration, logger *zap.Logger) *GPTParser {
	return &GPTParser{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		fallback:    NewKeywordParser(),
		logger:      logger,
	}
}

const intentPrompt = `You translate a user's message in a todo-list conversation into exactly one intent.

Allowed intents: createTask, updateTask, completeTask, deleteTask, bulkComplete, bulkDelete, listTasks, queryStatus, unknown.

Rules:
- Use bulkComplete/bulkDelete when the message targets several tasks at once ("all my urgent tasks").
- Set "referential" to true when the message points back at a task from earlier in the conversation ("delete that one", "mark it done") without naming it.
- Put a free-text reference to an existing task into "task_ref" ("the rent task").
- Use "filter" to narrow bulk and list intents; priority is one of low, medium, high, urgent.
- When the message fits no intent, answer with intent "unknown".

Return only a JSON object with this structure:
{
  "intent": "...",
  "title": "...",
  "description": "...",
  "priority": "",
  "due_date": "2006-01-02",
  "task_ref": "",
  "referential": false,
  "filter": {"priority": "", "completed": null}
}

Recent conversation:
%s

Message: %s`

func (p *GPTParser) Parse(ctx context.Context, input string, history []models.Message) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: fmt.Sprintf(intentPrompt, formatHistory(history), input),
				},
			},
			MaxTokens:   p.maxTokens,
			Temperature: float32(p.temperature),
		},
	)
	if err != nil {
		p.logger.Error("intent completion failed, using keyword fallback", zap.Error(err))
		return p.fallback.Parse(ctx, input, history)
	}

	var raw gptIntent
	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	response = strings.TrimPrefix(response, "```json")
	response = strings.Trim(response, "`")
	if err := json.Unmarshal([]byte(response), &raw); err != nil {
		p.logger.Error("failed to parse intent response",
			zap.Error(err),
			zap.String("response", response))
		return p.fallback.Parse(ctx, input, history)
	}

	return raw.toIntent(), nil
}

func (r *gptIntent) toIntent() *Intent {
	kind, ok := intentKinds[r.Intent]
	if !ok {
		kind = IntentUnknown
	}

	intent := &Intent{
		Kind:        kind,
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Priority:    strings.ToLower(strings.TrimSpace(r.Priority)),
		TaskRef:     strings.TrimSpace(r.TaskRef),
		Referential: r.Referential,
	}
	intent.Filter.Priority = strings.ToLower(strings.TrimSpace(r.Filter.Priority))
	intent.Filter.Completed = r.Filter.Completed

	if r.DueDate != "" {
		if due, err := time.Parse("2006-01-02", r.DueDate); err == nil {
			intent.DueDate = &due
		}
	}
	return intent
}

func formatHistory(history []models.Message) string {
	if len(history) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, msg := range history {
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// KeywordParser is a deterministic rule-based parser. It backs the GPT
// parser when the API is unreachable and runs alone in offline setups.
type KeywordParser struct{}

func NewKeywordParser() *KeywordParser {
	return &KeywordParser{}
}

var priorityWords = []string{"urgent", "high", "medium", "low"}

func (p *KeywordParser) Parse(ctx context.Context, input string, history []models.Message) (*Intent, error) {
	lower := strings.ToLower(strings.TrimSpace(input))
	words := strings.Fields(lower)
	if len(words) == 0 {
		return &Intent{Kind: IntentUnknown}, nil
	}

	intent := &Intent{Kind: IntentUnknown}
	intent.Referential = hasReferentialPronoun(words)
	bulk := containsWord(words, "all") || containsWord(words, "every") || containsWord(words, "everything")

	for _, w := range priorityWords {
		if strings.Contains(lower, w) {
			intent.Filter.Priority = w
			intent.Priority = w
			break
		}
	}

	switch {
	case hasAnyPrefix(lower, "add ", "create ", "new task", "remind me to "):
		intent.Kind = IntentCreateTask
		intent.Title = titleFrom(input, "add ", "create ", "new task ", "remind me to ")
	case hasAnyWord(words, "delete", "remove", "drop", "clear"):
		intent.Filter.Completed = completionFilter(words)
		if bulk {
			intent.Kind = IntentBulkDelete
		} else {
			intent.Kind = IntentDeleteTask
			intent.TaskRef = titleFrom(input, "delete ", "remove ", "drop ")
		}
	case hasAnyWord(words, "list", "show") && completionFilter(words) != nil:
		intent.Kind = IntentListTasks
		intent.Filter.Completed = completionFilter(words)
	case hasAnyWord(words, "done", "complete", "completed", "finish", "finished", "mark"):
		if bulk {
			intent.Kind = IntentBulkComplete
		} else {
			intent.Kind = IntentCompleteTask
			intent.TaskRef = titleFrom(input, "complete ", "finish ", "mark ")
		}
	case hasAnyWord(words, "list", "show", "tasks", "todo", "todos"):
		intent.Kind = IntentListTasks
	case hasAnyWord(words, "status", "progress", "summary"):
		intent.Kind = IntentQueryStatus
	}

	return intent, nil
}

// completionFilter reads completion words as a filter on already-finished
// tasks. Only meaningful for intents whose verb is not itself a completion
// verb, i.e. delete and list.
func completionFilter(words []string) *bool {
	if hasAnyWord(words, "completed", "finished", "done") {
		done := true
		return &done
	}
	return nil
}

func hasReferentialPronoun(words []string) bool {
	for _, w := range words {
		switch w {
		case "it", "that", "this", "them", "those":
			return true
		}
	}
	return false
}

func containsWord(words []string, target string) bool {
	for _, w := range words {
		if w == target {
			return true
		}
	}
	return false
}

func hasAnyWord(words []string, targets ...string) bool {
	for _, t := range targets {
		if containsWord(words, t) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// titleFrom strips the first matching verb phrase off the original input,
// preserving its casing.
func titleFrom(input string, prefixes ...string) string {
	lower := strings.ToLower(input)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(input[len(p):])
		}
	}
	return strings.TrimSpace(input)
}
