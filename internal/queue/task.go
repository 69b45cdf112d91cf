package queue

import (
	"strconv"
)

type TaskType string

const (
	TaskTypeTriageConversation TaskType = "triage_conversation"
	TaskTypeCrawl              TaskType = "crawl"
)

// Task is a unit of work on the triage stream.
type Task struct {
	TaskType       TaskType
	ConversationID int64
	// Force requests a read-only reanalysis; it is ignored unless the
	// conversation is closed.
	Force   bool
	Status  string // crawl only: conversation status to list
	Source  string // webhook, admin, scheduler
	TraceID *string
	Attempt int
}

// Values encodes the task as stream fields.
func (t Task) Values(attempt int) map[string]any {
	if attempt <= 0 {
		attempt = 1
	}
	values := map[string]any{
		"task_type": string(t.TaskType),
		"attempt":   attempt,
	}
	switch t.TaskType {
	case TaskTypeTriageConversation:
		values["conversation_id"] = t.ConversationID
		values["force"] = strconv.FormatBool(t.Force)
	case TaskTypeCrawl:
		if t.Status != "" {
			values["status"] = t.Status
		}
	}
	if t.Source != "" {
		values["source"] = t.Source
	}
	if t.TraceID != nil && *t.TraceID != "" {
		values["trace_id"] = *t.TraceID
	}
	return values
}
