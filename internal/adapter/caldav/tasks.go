package caldav

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/ical"
	"github.com/nhle/syncbox/internal/model"
)

// Tasks implements adapter.TaskAdapter over a CalDAV VTODO collection.
type Tasks struct {
	client *client
}

// NewTasks creates the CalDAV task adapter.
func NewTasks() *Tasks {
	return &Tasks{client: newClient()}
}

// Sync queries the collection for every VTODO.
func (t *Tasks) Sync(
	ctx context.Context,
	account model.Account,
	settings adapter.TaskSettings,
) ([]model.ReminderTask, error) {
	payloads, err := t.client.report(
		ctx, account, settings.Endpoint, settings.AccessToken, "VTODO", "",
	)
	if err != nil {
		return nil, err
	}

	listID := settings.ListID
	if listID == "" {
		listID = settings.Endpoint
	}

	now := time.Now().UTC()
	var tasks []model.ReminderTask
	for _, payload := range payloads {
		for _, parsed := range ical.ParseTodos(payload) {
			tasks = append(tasks, normalizeTodo(account.ID, listID, parsed, now))
		}
	}
	return tasks, nil
}

// UpsertRemote writes the task into the collection as a standalone
// iCalendar object keyed by its uid.
func (t *Tasks) UpsertRemote(
	ctx context.Context,
	account model.Account,
	settings adapter.TaskSettings,
	task model.ReminderTask,
) error {
	uid := task.ID.String()
	if task.RemoteID != nil && *task.RemoteID != "" {
		uid = *task.RemoteID
	}

	outgoing := ical.Todo{
		UID:      uid,
		Summary:  task.Title,
		Status:   todoStatus(task.Status),
		Priority: todoPriority(task.Priority),
	}
	if task.Notes != nil {
		outgoing.Description = *task.Notes
	}
	outgoing.Due = task.DueAt
	outgoing.Completed = task.CompletedAt

	return t.client.put(
		ctx, account, settings.Endpoint, settings.AccessToken, uid,
		ical.RenderTodo(outgoing),
	)
}

// normalizeTodo converts a parsed VTODO to the canonical record.
func normalizeTodo(
	accountID uuid.UUID,
	listID string,
	parsed ical.Todo,
	now time.Time,
) model.ReminderTask {
	task := model.ReminderTask{
		ID:        uuid.New(),
		AccountID: accountID,
		ListID:    listID,
		Title:     parsed.Summary,
		Priority:  priorityFromIcal(parsed.Priority),
		Status:    statusFromIcal(parsed.Status),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parsed.UID != "" {
		remoteID := parsed.UID
		task.RemoteID = &remoteID
	}
	if parsed.Description != "" {
		notes := parsed.Description
		task.Notes = &notes
	}
	if parsed.Due != nil {
		due := parsed.Due.UTC()
		task.DueAt = &due
	}
	if parsed.Completed != nil {
		done := parsed.Completed.UTC()
		task.CompletedAt = &done
	}
	if parsed.UpdatedAt != nil {
		task.UpdatedAt = parsed.UpdatedAt.UTC()
	}

	return task
}

// statusFromIcal maps VTODO STATUS onto the canonical scale.
func statusFromIcal(status string) model.TaskStatus {
	switch status {
	case "COMPLETED":
		return model.TaskCompleted
	case "IN-PROCESS":
		return model.TaskInProgress
	case "CANCELLED":
		return model.TaskCanceled
	default:
		return model.TaskNotStarted
	}
}

// todoStatus maps the canonical scale back onto VTODO STATUS.
func todoStatus(status model.TaskStatus) string {
	switch status {
	case model.TaskCompleted:
		return "COMPLETED"
	case model.TaskInProgress:
		return "IN-PROCESS"
	case model.TaskCanceled:
		return "CANCELLED"
	default:
		return "NEEDS-ACTION"
	}
}

// priorityFromIcal maps the 1..9 iCalendar scale onto three levels.
// 1..4 is high, 5 (or unset 0) is medium, 6..9 is low.
func priorityFromIcal(priority int) model.TaskPriority {
	switch {
	case priority >= 1 && priority <= 4:
		return model.PriorityHigh
	case priority >= 6:
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}

// todoPriority maps the three-level scale back onto 1..9.
func todoPriority(priority model.TaskPriority) int {
	switch priority {
	case model.PriorityHigh:
		return 1
	case model.PriorityLow:
		return 9
	default:
		return 5
	}
}
