package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// Tasks implements adapter.TaskAdapter over Microsoft To Do.
type Tasks struct {
	client *client
}

// NewTasks creates the Graph To Do adapter.
func NewTasks() *Tasks {
	return &Tasks{client: newClient()}
}

type graphTask struct {
	ID         string `json:"id,omitempty"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status,omitempty"`
	Importance string `json:"importance,omitempty"`
	Body       *struct {
		Content string `json:"content"`
	} `json:"body,omitempty"`
	DueDateTime       *graphDateTime `json:"dueDateTime,omitempty"`
	CompletedDateTime *graphDateTime `json:"completedDateTime,omitempty"`
	Recurrence        *struct {
		Pattern struct {
			Type string `json:"type"`
		} `json:"pattern"`
	} `json:"recurrence,omitempty"`
	LastModifiedDateTime string `json:"lastModifiedDateTime,omitempty"`
}

// Sync pulls every task in the configured To Do list.
func (t *Tasks) Sync(
	ctx context.Context,
	account model.Account,
	settings adapter.TaskSettings,
) ([]model.ReminderTask, error) {
	listID := settings.ListID
	if listID == "" {
		listID = "tasks"
	}

	endpoint := fmt.Sprintf("%s/me/todo/lists/%s/tasks?$top=200",
		base(settings.Endpoint), url.PathEscape(listID))

	body, err := t.client.do(ctx, account, settings.AccessToken, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Value []graphTask `json:"value"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing To Do tasks: %w", err)
	}

	now := time.Now().UTC()
	tasks := make([]model.ReminderTask, 0, len(payload.Value))
	for _, item := range payload.Value {
		tasks = append(tasks, normalizeGraphTask(account.ID, listID, item, now))
	}
	return tasks, nil
}

// UpsertRemote patches an existing task or creates a new one.
func (t *Tasks) UpsertRemote(
	ctx context.Context,
	account model.Account,
	settings adapter.TaskSettings,
	task model.ReminderTask,
) error {
	listID := settings.ListID
	if listID == "" {
		listID = task.ListID
	}
	if listID == "" {
		listID = "tasks"
	}

	outgoing := map[string]any{
		"title":      task.Title,
		"status":     graphTaskStatus(task.Status),
		"importance": graphImportance(task.Priority),
	}
	if task.Notes != nil {
		outgoing["body"] = map[string]string{
			"contentType": "text",
			"content":     *task.Notes,
		}
	}
	if task.DueAt != nil {
		outgoing["dueDateTime"] = renderGraphTime(*task.DueAt)
	}
	if task.CompletedAt != nil {
		outgoing["completedDateTime"] = renderGraphTime(*task.CompletedAt)
	}
	if task.RepeatRule != nil && *task.RepeatRule != "" {
		outgoing["recurrence"] = map[string]any{
			"pattern": map[string]string{"type": *task.RepeatRule},
		}
	}

	payload, err := json.Marshal(outgoing)
	if err != nil {
		return fmt.Errorf("encoding To Do task: %w", err)
	}

	root := fmt.Sprintf("%s/me/todo/lists/%s/tasks",
		base(settings.Endpoint), url.PathEscape(listID))
	method := "POST"
	endpoint := root
	if task.RemoteID != nil && *task.RemoteID != "" {
		method = "PATCH"
		endpoint = root + "/" + url.PathEscape(*task.RemoteID)
	}

	_, err = t.client.do(ctx, account, settings.AccessToken, method, endpoint, payload)
	return err
}

// normalizeGraphTask converts one API task to the canonical record.
func normalizeGraphTask(
	accountID uuid.UUID,
	listID string,
	item graphTask,
	now time.Time,
) model.ReminderTask {
	title := item.Title
	if title == "" {
		title = "Untitled task"
	}

	task := model.ReminderTask{
		ID:        uuid.New(),
		AccountID: accountID,
		ListID:    listID,
		Title:     title,
		Priority:  priorityFromImportance(item.Importance),
		Status:    statusFromGraph(item.Status),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if item.ID != "" {
		remoteID := item.ID
		task.RemoteID = &remoteID
	}
	if item.Body != nil && item.Body.Content != "" {
		notes := item.Body.Content
		task.Notes = &notes
	}
	task.DueAt = parseGraphTime(item.DueDateTime)
	task.CompletedAt = parseGraphTime(item.CompletedDateTime)
	if item.Recurrence != nil && item.Recurrence.Pattern.Type != "" {
		rule := item.Recurrence.Pattern.Type
		task.RepeatRule = &rule
	}
	if item.LastModifiedDateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, item.LastModifiedDateTime); err == nil {
			task.UpdatedAt = parsed.UTC()
		}
	}

	return task
}

// statusFromGraph maps To Do statuses onto the canonical scale.
func statusFromGraph(status string) model.TaskStatus {
	switch status {
	case "completed":
		return model.TaskCompleted
	case "inProgress", "waitingOnOthers":
		return model.TaskInProgress
	case "deferred":
		return model.TaskCanceled
	default:
		return model.TaskNotStarted
	}
}

// graphTaskStatus maps the canonical scale back onto To Do statuses.
func graphTaskStatus(status model.TaskStatus) string {
	switch status {
	case model.TaskCompleted:
		return "completed"
	case model.TaskInProgress:
		return "inProgress"
	case model.TaskCanceled:
		return "deferred"
	default:
		return "notStarted"
	}
}

// priorityFromImportance maps Graph importance onto the priority scale.
func priorityFromImportance(importance string) model.TaskPriority {
	switch importance {
	case "high":
		return model.PriorityHigh
	case "low":
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}

// graphImportance maps the priority scale back onto Graph importance.
func graphImportance(priority model.TaskPriority) string {
	switch priority {
	case model.PriorityHigh:
		return "high"
	case model.PriorityLow:
		return "low"
	default:
		return "normal"
	}
}
