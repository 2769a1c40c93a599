package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/syncbox/internal/model"
	"github.com/nhle/syncbox/tests/testutil"
)

func TestUpsertTasksMergesOnRemoteID(t *testing.T) {
	s := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	remoteID := "task-1"
	task := model.ReminderTask{
		AccountID: account.ID,
		ListID:    "@default",
		RemoteID:  &remoteID,
		Title:     "File expenses",
	}
	if err := s.UpsertTasks(ctx, []model.ReminderTask{task}); err != nil {
		t.Fatalf("UpsertTasks: %v", err)
	}

	task.Title = "File expenses for August"
	task.Status = model.TaskCompleted
	if err := s.UpsertTasks(ctx, []model.ReminderTask{task}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	count, err := s.CountTasks(ctx, account.ID)
	if err != nil {
		t.Fatalf("CountTasks: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 task after re-sync, got %d", count)
	}

	tasks, err := s.ListTasks(ctx, account.ID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if tasks[0].Title != "File expenses for August" {
		t.Errorf("expected updated title, got %q", tasks[0].Title)
	}
	if tasks[0].Status != model.TaskCompleted {
		t.Errorf("expected completed status, got %s", tasks[0].Status)
	}
}

func TestUpsertTasksDefaults(t *testing.T) {
	s := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	task := model.ReminderTask{
		AccountID: account.ID,
		Title:     "Bare task",
	}
	if err := s.UpsertTasks(ctx, []model.ReminderTask{task}); err != nil {
		t.Fatalf("UpsertTasks: %v", err)
	}

	tasks, err := s.ListTasks(ctx, account.ID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Priority != model.PriorityMedium {
		t.Errorf("expected default medium priority, got %s", tasks[0].Priority)
	}
	if tasks[0].Status != model.TaskNotStarted {
		t.Errorf("expected default not_started status, got %s", tasks[0].Status)
	}
}

func TestListTasksOrdersUndatedLast(t *testing.T) {
	s := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	soon := time.Now().UTC().Add(time.Hour)
	later := time.Now().UTC().AddDate(0, 0, 7)
	batch := []model.ReminderTask{
		{AccountID: account.ID, Title: "Someday"},
		{AccountID: account.ID, Title: "Next week", DueAt: &later},
		{AccountID: account.ID, Title: "Today", DueAt: &soon},
	}
	if err := s.UpsertTasks(ctx, batch); err != nil {
		t.Fatalf("UpsertTasks: %v", err)
	}

	tasks, err := s.ListTasks(ctx, account.ID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].Title != "Today" || tasks[1].Title != "Next week" || tasks[2].Title != "Someday" {
		t.Errorf("unexpected order: [%s %s %s]", tasks[0].Title, tasks[1].Title, tasks[2].Title)
	}
}
