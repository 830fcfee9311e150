package agent

import "time"

// IntentKind is the closed set of operations the agent can resolve free text
// into. Anything the parser cannot place lands on IntentUnknown explicitly;
// there is no open-ended fallthrough.
type IntentKind string

const (
	IntentCreateTask   IntentKind = "createTask"
	IntentUpdateTask   IntentKind = "updateTask"
	IntentCompleteTask IntentKind = "completeTask"
	IntentDeleteTask   IntentKind = "deleteTask"
	IntentBulkComplete IntentKind = "bulkComplete"
	IntentBulkDelete   IntentKind = "bulkDelete"
	IntentListTasks    IntentKind = "listTasks"
	IntentQueryStatus  IntentKind = "queryStatus"
	IntentUnknown      IntentKind = "unknown"
)

var intentKinds = map[string]IntentKind{
	"createTask":   IntentCreateTask,
	"updateTask":   IntentUpdateTask,
	"completeTask": IntentCompleteTask,
	"deleteTask":   IntentDeleteTask,
	"bulkComplete": IntentBulkComplete,
	"bulkDelete":   IntentBulkDelete,
	"listTasks":    IntentListTasks,
	"queryStatus":  IntentQueryStatus,
	"unknown":      IntentUnknown,
}

// Filter narrows which tasks a list or bulk intent applies to.
type Filter struct {
	Priority  string
	Completed *bool
}

// Intent is the structured form of one parsed user turn.
type Intent struct {
	Kind        IntentKind
	Title       string // new title for createTask, or patch for updateTask
	Description string
	Priority    string
	DueDate     *time.Time
	TaskRef     string // free-text reference to an existing task
	Referential bool   // refers back to a previously mentioned task ("it", "that one")
	Filter      Filter
}
