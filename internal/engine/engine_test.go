package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
	"github.com/nhle/syncbox/tests/testutil"
)

// tracker records peak concurrency per scope while fake adapters run.
type tracker struct {
	mu sync.Mutex

	global    int
	maxGlobal int

	perAccount    map[uuid.UUID]int
	maxPerAccount int

	perPair    map[string]int
	maxPerPair int
}

func newTracker() *tracker {
	return &tracker{
		perAccount: make(map[uuid.UUID]int),
		perPair:    make(map[string]int),
	}
}

func (tr *tracker) enter(accountID uuid.UUID, domain model.SyncDomain) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.global++
	if tr.global > tr.maxGlobal {
		tr.maxGlobal = tr.global
	}
	tr.perAccount[accountID]++
	if tr.perAccount[accountID] > tr.maxPerAccount {
		tr.maxPerAccount = tr.perAccount[accountID]
	}
	key := accountID.String() + "/" + string(domain)
	tr.perPair[key]++
	if tr.perPair[key] > tr.maxPerPair {
		tr.maxPerPair = tr.perPair[key]
	}
}

func (tr *tracker) exit(accountID uuid.UUID, domain model.SyncDomain) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.global--
	tr.perAccount[accountID]--
	tr.perPair[accountID.String()+"/"+string(domain)]--
}

type fakeEmailAdapter struct {
	tr       *tracker
	hold     time.Duration
	fetchErr error
	messages int
	folders  []model.MailFolder

	mu   sync.Mutex
	sent []model.OutgoingMail
}

func (f *fakeEmailAdapter) ListFolders(
	_ context.Context, _ model.Account, _ adapter.ProtocolSettings,
) ([]model.MailFolder, error) {
	return f.folders, nil
}

func (f *fakeEmailAdapter) FetchRecent(
	_ context.Context, account model.Account, _ adapter.ProtocolSettings, _ string, _ int,
) (*adapter.FetchResult, error) {
	if f.tr != nil {
		f.tr.enter(account.ID, model.DomainEmail)
		defer f.tr.exit(account.ID, model.DomainEmail)
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	result := &adapter.FetchResult{}
	now := time.Now().UTC()
	for i := 0; i < f.messages; i++ {
		remoteID := fmt.Sprintf("%s-m%d", account.ID, i)
		result.Messages = append(result.Messages, model.MailMessage{
			AccountID:  account.ID,
			RemoteID:   remoteID,
			ThreadID:   remoteID,
			FolderPath: "Inbox",
			Subject:    fmt.Sprintf("Message %d", i),
			From:       model.MailAddress{Address: "sender@example.com"},
			ReceivedAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	return result, nil
}

func (f *fakeEmailAdapter) Send(
	_ context.Context, _ model.Account, _ adapter.ProtocolSettings, mail model.OutgoingMail,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, mail)
	return nil
}

func (f *fakeEmailAdapter) Watch(
	_ context.Context, _ model.Account, _ adapter.ProtocolSettings, _ string,
) error {
	return nil
}

type fakeCalendarAdapter struct {
	tr     *tracker
	hold   time.Duration
	events int

	mu       sync.Mutex
	upserted []model.CalendarEvent
}

func (f *fakeCalendarAdapter) SyncRange(
	_ context.Context, account model.Account, _ adapter.CalendarSettings, from, _ time.Time,
) ([]model.CalendarEvent, error) {
	if f.tr != nil {
		f.tr.enter(account.ID, model.DomainCalendar)
		defer f.tr.exit(account.ID, model.DomainCalendar)
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	var events []model.CalendarEvent
	for i := 0; i < f.events; i++ {
		remoteID := fmt.Sprintf("%s-e%d", account.ID, i)
		events = append(events, model.CalendarEvent{
			AccountID: account.ID,
			RemoteID:  &remoteID,
			Title:     fmt.Sprintf("Event %d", i),
			StartAt:   from.Add(time.Duration(i) * time.Hour),
			EndAt:     from.Add(time.Duration(i+1) * time.Hour),
		})
	}
	return events, nil
}

func (f *fakeCalendarAdapter) UpsertRemote(
	_ context.Context, _ model.Account, _ adapter.CalendarSettings, event model.CalendarEvent,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, event)
	return nil
}

type fakeTaskAdapter struct {
	tr    *tracker
	hold  time.Duration
	tasks int

	mu       sync.Mutex
	upserted []model.ReminderTask
}

func (f *fakeTaskAdapter) Sync(
	_ context.Context, account model.Account, _ adapter.TaskSettings,
) ([]model.ReminderTask, error) {
	if f.tr != nil {
		f.tr.enter(account.ID, model.DomainTasks)
		defer f.tr.exit(account.ID, model.DomainTasks)
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	var tasks []model.ReminderTask
	for i := 0; i < f.tasks; i++ {
		remoteID := fmt.Sprintf("%s-t%d", account.ID, i)
		tasks = append(tasks, model.ReminderTask{
			AccountID: account.ID,
			RemoteID:  &remoteID,
			Title:     fmt.Sprintf("Task %d", i),
		})
	}
	return tasks, nil
}

func (f *fakeTaskAdapter) UpsertRemote(
	_ context.Context, _ model.Account, _ adapter.TaskSettings, task model.ReminderTask,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, task)
	return nil
}

type fakeRegistry struct {
	email    adapter.EmailAdapter
	calendar adapter.CalendarAdapter
	tasks    adapter.TaskAdapter
}

func (r *fakeRegistry) Email(model.Provider) adapter.EmailAdapter       { return r.email }
func (r *fakeRegistry) Calendar(model.Provider) adapter.CalendarAdapter { return r.calendar }
func (r *fakeRegistry) Tasks(model.Provider) adapter.TaskAdapter        { return r.tasks }

type fakeCreds struct{}

func (fakeCreds) Lookup(_, _ string) (string, error) { return "", nil }

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{9, 30 * 256 * time.Second},
		{20, 30 * 256 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.attempt); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRunDueJobsAdmissionLimits(t *testing.T) {
	s := testutil.NewTestStore(t)
	tr := newTracker()

	registry := &fakeRegistry{
		email:    &fakeEmailAdapter{tr: tr, hold: 25 * time.Millisecond},
		calendar: &fakeCalendarAdapter{tr: tr, hold: 25 * time.Millisecond},
		tasks:    &fakeTaskAdapter{tr: tr, hold: 25 * time.Millisecond},
	}
	eng := New(s, registry, fakeCreds{}, zap.NewNop(), model.SyncConfig{MaxParallelJobs: 4})

	var accounts []model.Account
	for i := 0; i < 3; i++ {
		accounts = append(accounts, testutil.NewTestAccount(t, s, model.ProviderCustom))
	}

	ctx := context.Background()
	if err := eng.ScheduleJobs(ctx); err != nil {
		t.Fatalf("ScheduleJobs: %v", err)
	}

	// A tenth job on an already seeded pair; it has to wait for the
	// first email job of that account to finish.
	extra := model.SyncJob{
		ID:        uuid.New(),
		AccountID: accounts[0].ID,
		Domain:    model.DomainEmail,
	}
	if err := s.EnqueueJob(ctx, extra); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	summary, err := eng.RunDueJobs(ctx)
	if err != nil {
		t.Fatalf("RunDueJobs: %v", err)
	}
	if summary.CompletedJobs != 10 {
		t.Fatalf("expected 10 completed jobs, got %+v", summary)
	}

	if tr.maxGlobal > 4 {
		t.Errorf("global concurrency exceeded ceiling: %d", tr.maxGlobal)
	}
	if tr.maxPerAccount > 2 {
		t.Errorf("per-account concurrency exceeded 2: %d", tr.maxPerAccount)
	}
	if tr.maxPerPair > 1 {
		t.Errorf("per-(account, domain) concurrency exceeded 1: %d", tr.maxPerPair)
	}
}

func TestFailedJobRetriesWithBackoff(t *testing.T) {
	s := testutil.NewTestStore(t)
	registry := &fakeRegistry{
		email: &fakeEmailAdapter{fetchErr: errors.New("connection refused")},
	}
	eng := New(s, registry, fakeCreds{}, zap.NewNop(), model.SyncConfig{MaxParallelJobs: 4})
	account := testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	job := model.SyncJob{
		ID:          uuid.New(),
		AccountID:   account.ID,
		Domain:      model.DomainEmail,
		MaxAttempts: 3,
	}
	if err := s.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	wantDelays := []time.Duration{30 * time.Second, 60 * time.Second}
	for attempt, wantDelay := range wantDelays {
		before := time.Now().UTC()
		summary, err := eng.RunDueJobs(ctx)
		if err != nil {
			t.Fatalf("RunDueJobs: %v", err)
		}
		if summary.RetriedJobs != 1 {
			t.Fatalf("attempt %d: expected 1 retried job, got %+v", attempt+1, summary)
		}

		stored, err := s.GetJobByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetJobByID: %v", err)
		}
		if stored.Status != model.StatusQueued {
			t.Fatalf("expected job requeued, got %s", stored.Status)
		}
		if stored.AttemptCount != attempt+1 {
			t.Errorf("expected attempt_count %d, got %d", attempt+1, stored.AttemptCount)
		}
		if stored.LastError == nil {
			t.Error("expected last_error recorded")
		}

		delay := stored.RunAfter.Sub(before)
		if delay < wantDelay-5*time.Second || delay > wantDelay+5*time.Second {
			t.Errorf("attempt %d: expected ~%v backoff, got %v", attempt+1, wantDelay, delay)
		}

		// Pull the deadline forward so the next drain sees the job.
		stored.RunAfter = time.Now().UTC().Add(-time.Second)
		if err := s.EnqueueJob(ctx, *stored); err != nil {
			t.Fatalf("forcing job due: %v", err)
		}
	}

	// Third attempt exhausts the budget.
	summary, err := eng.RunDueJobs(ctx)
	if err != nil {
		t.Fatalf("RunDueJobs: %v", err)
	}
	if summary.FailedJobs != 1 {
		t.Fatalf("expected terminal failure, got %+v", summary)
	}

	stored, err := s.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if stored.Status != model.StatusFailed {
		t.Errorf("expected status failed, got %s", stored.Status)
	}
	if stored.AttemptCount != 3 {
		t.Errorf("expected attempt_count 3, got %d", stored.AttemptCount)
	}
}

func TestEmailSyncStoresMessagesOnce(t *testing.T) {
	s := testutil.NewTestStore(t)
	registry := &fakeRegistry{
		email: &fakeEmailAdapter{
			messages: 3,
			folders:  []model.MailFolder{{Path: "INBOX", Name: "Inbox"}},
		},
		calendar: &fakeCalendarAdapter{events: 2},
		tasks:    &fakeTaskAdapter{tasks: 1},
	}
	eng := New(s, registry, fakeCreds{}, zap.NewNop(), model.SyncConfig{MaxParallelJobs: 4})
	account := testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	if err := eng.ScheduleJobs(ctx); err != nil {
		t.Fatalf("ScheduleJobs: %v", err)
	}
	summary, err := eng.RunDueJobs(ctx)
	if err != nil {
		t.Fatalf("RunDueJobs: %v", err)
	}
	if summary.CompletedJobs != 3 {
		t.Fatalf("expected 3 completed jobs, got %+v", summary)
	}
	if summary.EmailMessagesSynced != 3 {
		t.Errorf("expected 3 messages synced, got %d", summary.EmailMessagesSynced)
	}
	if summary.CalendarEventsSynced != 2 {
		t.Errorf("expected 2 events synced, got %d", summary.CalendarEventsSynced)
	}
	if summary.TasksSynced != 1 {
		t.Errorf("expected 1 task synced, got %d", summary.TasksSynced)
	}

	// A second sync of the same remote data must not duplicate rows.
	job := model.SyncJob{
		ID:        uuid.New(),
		AccountID: account.ID,
		Domain:    model.DomainEmail,
	}
	if err := s.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := eng.RunDueJobs(ctx); err != nil {
		t.Fatalf("RunDueJobs: %v", err)
	}

	count, err := s.CountMailMessages(ctx, account.ID)
	if err != nil {
		t.Fatalf("CountMailMessages: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 stored messages after re-sync, got %d", count)
	}

	folders, err := s.GetMailFolders(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetMailFolders: %v", err)
	}
	if len(folders) != 1 {
		t.Errorf("expected folder listing stored, got %d", len(folders))
	}
}

func TestScheduleJobsSkipsActiveAndDefersHistory(t *testing.T) {
	s := testutil.NewTestStore(t)
	registry := &fakeRegistry{
		email:    &fakeEmailAdapter{},
		calendar: &fakeCalendarAdapter{},
		tasks:    &fakeTaskAdapter{},
	}
	eng := New(s, registry, fakeCreds{}, zap.NewNop(), model.SyncConfig{MaxParallelJobs: 4})
	testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	if err := eng.ScheduleJobs(ctx); err != nil {
		t.Fatalf("ScheduleJobs: %v", err)
	}
	jobs, err := s.FetchDueJobs(ctx, 40)
	if err != nil {
		t.Fatalf("FetchDueJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected one job per domain, got %d", len(jobs))
	}

	// Re-seeding while jobs are queued adds nothing.
	if err := eng.ScheduleJobs(ctx); err != nil {
		t.Fatalf("ScheduleJobs: %v", err)
	}
	jobs, err = s.FetchDueJobs(ctx, 40)
	if err != nil {
		t.Fatalf("FetchDueJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected no duplicate seeding, got %d jobs", len(jobs))
	}

	// After a completed pass, fresh jobs are deferred by the poll
	// interval and so are not yet due.
	if _, err := eng.RunDueJobs(ctx); err != nil {
		t.Fatalf("RunDueJobs: %v", err)
	}
	if err := eng.ScheduleJobs(ctx); err != nil {
		t.Fatalf("ScheduleJobs: %v", err)
	}
	jobs, err = s.FetchDueJobs(ctx, 40)
	if err != nil {
		t.Fatalf("FetchDueJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected deferred jobs after history, got %d due", len(jobs))
	}
}

func TestRecoverStaleJobs(t *testing.T) {
	s := testutil.NewTestStore(t)
	eng := New(s, &fakeRegistry{}, fakeCreds{}, zap.NewNop(), model.SyncConfig{MaxParallelJobs: 4})
	account := testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	job := model.SyncJob{
		ID:        uuid.New(),
		AccountID: account.ID,
		Domain:    model.DomainEmail,
		Status:    model.StatusRunning,
	}
	if err := s.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	// The job was just touched, so recovery leaves it alone.
	if err := eng.RecoverStaleJobs(ctx); err != nil {
		t.Fatalf("RecoverStaleJobs: %v", err)
	}
	stored, err := s.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if stored.Status != model.StatusRunning {
		t.Errorf("expected fresh running job untouched, got %s", stored.Status)
	}
}
