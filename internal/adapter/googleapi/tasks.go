package googleapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// Tasks implements adapter.TaskAdapter over Google Tasks v1.
type Tasks struct {
	client *client
}

// NewTasks creates the Google Tasks adapter.
func NewTasks() *Tasks {
	return &Tasks{client: newClient()}
}

type gtask struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Status    string `json:"status,omitempty"`
	Due       string `json:"due,omitempty"`
	Completed string `json:"completed,omitempty"`
	Parent    string `json:"parent,omitempty"`
	Updated   string `json:"updated,omitempty"`
}

// Sync pulls every task in the configured list, completed and hidden
// ones included.
func (t *Tasks) Sync(
	ctx context.Context,
	account model.Account,
	settings adapter.TaskSettings,
) ([]model.ReminderTask, error) {
	listID := settings.ListID
	if listID == "" {
		listID = "@default"
	}

	query := url.Values{}
	query.Set("showCompleted", "true")
	query.Set("showHidden", "true")
	query.Set("maxResults", "200")

	endpoint := fmt.Sprintf("%s/lists/%s/tasks?%s",
		t.base(settings), url.PathEscape(listID), query.Encode())

	body, err := t.client.do(ctx, account, settings.AccessToken, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []gtask `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing Tasks list: %w", err)
	}

	now := time.Now().UTC()
	tasks := make([]model.ReminderTask, 0, len(payload.Items))
	for _, item := range payload.Items {
		tasks = append(tasks, normalizeGtask(account.ID, listID, item, now))
	}
	return tasks, nil
}

// UpsertRemote patches an existing task or inserts a new one.
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
		listID = "@default"
	}

	outgoing := gtask{
		Title:  task.Title,
		Status: "needsAction",
	}
	if task.Notes != nil {
		outgoing.Notes = *task.Notes
	}
	if task.DueAt != nil {
		outgoing.Due = task.DueAt.UTC().Format(time.RFC3339)
	}
	if task.Status == model.TaskCompleted {
		outgoing.Status = "completed"
		if task.CompletedAt != nil {
			outgoing.Completed = task.CompletedAt.UTC().Format(time.RFC3339)
		}
	}

	payload, err := json.Marshal(outgoing)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}

	base := fmt.Sprintf("%s/lists/%s/tasks", t.base(settings), url.PathEscape(listID))
	method := "POST"
	endpoint := base
	if task.RemoteID != nil && *task.RemoteID != "" {
		method = "PATCH"
		endpoint = base + "/" + url.PathEscape(*task.RemoteID)
	}

	_, err = t.client.do(ctx, account, settings.AccessToken, method, endpoint, payload)
	return err
}

func (t *Tasks) base(settings adapter.TaskSettings) string {
	if settings.Endpoint != "" {
		return strings.TrimRight(settings.Endpoint, "/")
	}
	return defaultTasksBase
}

// normalizeGtask converts one API task to the canonical record. Google
// Tasks has no priority scale, so tasks come back medium.
func normalizeGtask(
	accountID uuid.UUID,
	listID string,
	item gtask,
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
		Priority:  model.PriorityMedium,
		Status:    taskStatus(item.Status),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if item.ID != "" {
		remoteID := item.ID
		task.RemoteID = &remoteID
	}
	if item.Notes != "" {
		notes := item.Notes
		task.Notes = &notes
	}
	task.DueAt = parseRFC3339(item.Due)
	task.CompletedAt = parseRFC3339(item.Completed)
	if updated := parseRFC3339(item.Updated); updated != nil {
		task.UpdatedAt = *updated
	}

	return task
}

// taskStatus maps the two-state API status onto the canonical scale.
func taskStatus(status string) model.TaskStatus {
	switch status {
	case "completed":
		return model.TaskCompleted
	case "needsAction", "":
		return model.TaskNotStarted
	default:
		return model.TaskInProgress
	}
}

// parseRFC3339 parses an optional API timestamp.
func parseRFC3339(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
