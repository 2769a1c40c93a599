package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/credential"
	"github.com/nhle/syncbox/internal/metrics"
	"github.com/nhle/syncbox/internal/model"
)

// defaultMailFolder is the folder synced by seeded email jobs.
const defaultMailFolder = "Inbox"

// runOutcome reports how one job attempt ended.
type runOutcome struct {
	completed bool
	retried   bool
	failed    bool

	messagesSynced int
	eventsSynced   int
	tasksSynced    int
}

// runJob executes one due job end to end: Running transition, adapter
// dispatch under the per-host limit, record upserts, and the terminal
// status write. Failures retry with exponential backoff until the
// attempt budget runs out.
func (e *Engine) runJob(ctx context.Context, job model.SyncJob) runOutcome {
	if err := e.store.UpdateJobStatus(ctx, job.ID, model.StatusRunning, nil, nil); err != nil {
		e.logger.Error("marking job running",
			zap.String("job", job.ID.String()), zap.Error(err))
		return e.failOrRetry(ctx, job, err)
	}

	var (
		synced int
		err    error
	)
	switch job.Domain {
	case model.DomainEmail:
		synced, err = e.syncEmail(ctx, job)
	case model.DomainCalendar:
		synced, err = e.syncCalendar(ctx, job)
	case model.DomainTasks:
		synced, err = e.syncTasks(ctx, job)
	default:
		err = fmt.Errorf("unknown sync domain %q", job.Domain)
	}

	if err != nil {
		e.logger.Warn("sync job failed",
			zap.String("job", job.ID.String()),
			zap.String("domain", string(job.Domain)),
			zap.Int("attempt", job.AttemptCount),
			zap.Error(err),
		)
		return e.failOrRetry(ctx, job, err)
	}

	if err := e.store.UpdateJobStatus(ctx, job.ID, model.StatusCompleted, nil, nil); err != nil {
		e.logger.Error("marking job completed",
			zap.String("job", job.ID.String()), zap.Error(err))
	}
	metrics.JobsCompleted.Inc()

	outcome := runOutcome{completed: true}
	switch job.Domain {
	case model.DomainEmail:
		outcome.messagesSynced = synced
		metrics.MailMessagesSynced.Add(float64(synced))
	case model.DomainCalendar:
		outcome.eventsSynced = synced
		metrics.CalendarEventsSynced.Add(float64(synced))
	case model.DomainTasks:
		outcome.tasksSynced = synced
		metrics.TasksSynced.Add(float64(synced))
	}
	return outcome
}

// failOrRetry persists the retry chain: the attempt that exhausts the
// budget goes terminal Failed, anything earlier re-enqueues the same
// job id with a backed-off run_after. The error's kind is deliberately
// not inspected; auth failures burn through the budget like any other.
func (e *Engine) failOrRetry(ctx context.Context, job model.SyncJob, cause error) runOutcome {
	next := job.AttemptCount + 1
	errText := cause.Error()

	if next >= job.MaxAttempts {
		if err := e.store.UpdateJobStatus(ctx, job.ID, model.StatusFailed, &next, &errText); err != nil {
			e.logger.Error("marking job failed",
				zap.String("job", job.ID.String()), zap.Error(err))
		}
		metrics.JobsFailed.Inc()
		return runOutcome{failed: true}
	}

	delay := backoffDelay(next)
	job.Status = model.StatusQueued
	job.AttemptCount = next
	job.RunAfter = time.Now().UTC().Add(delay)
	job.LastError = &errText

	if err := e.store.EnqueueJob(ctx, job); err != nil {
		e.logger.Error("re-enqueueing job",
			zap.String("job", job.ID.String()), zap.Error(err))
		return runOutcome{failed: true}
	}
	metrics.JobsRetried.Inc()
	return runOutcome{retried: true}
}

// backoffDelay doubles a 30-second base per retry, with the exponent
// capped so the delay stops growing after the eighth.
func backoffDelay(attempt int) time.Duration {
	exp := attempt - 1
	if exp < 0 {
		exp = 0
	}
	if exp > 8 {
		exp = 8
	}
	return time.Duration(30*math.Pow(2, float64(exp))) * time.Second
}

// syncEmail refreshes the folder list and pulls recent inbox messages.
func (e *Engine) syncEmail(ctx context.Context, job model.SyncJob) (int, error) {
	account, err := e.store.GetAccountByID(ctx, job.AccountID)
	if err != nil {
		return 0, err
	}

	settings, err := adapter.DecodeSettings[adapter.ProtocolSettings](
		[]byte(account.SettingsJSON), string(model.DomainEmail),
	)
	if err != nil {
		return 0, err
	}
	if err := e.hydrateEmailSecrets(account.ID.String(), &settings); err != nil {
		return 0, err
	}

	release, err := e.limiter.Acquire(ctx, settings.HostKey())
	if err != nil {
		return 0, err
	}
	defer release()

	mailAdapter := e.registry.Email(account.Provider)

	// Folder refresh is best effort; a listing failure should not void
	// the message sync.
	if folders, err := mailAdapter.ListFolders(ctx, *account, settings); err == nil && len(folders) > 0 {
		if err := e.store.UpsertMailFolders(ctx, account.ID, folders); err != nil {
			e.logger.Warn("storing folders",
				zap.String("account", account.EmailAddress), zap.Error(err))
		}
	}

	result, err := mailAdapter.FetchRecent(ctx, *account, settings, defaultMailFolder, 50)
	if err != nil {
		return 0, err
	}

	merged, err := e.store.UpsertMailMessages(ctx, result.Messages)
	if err != nil {
		return 0, err
	}

	e.storeBlobs(ctx, account.ID, result.Blobs)

	return len(merged), nil
}

// storeBlobs persists attachment content fetched alongside messages,
// best effort.
func (e *Engine) storeBlobs(ctx context.Context, accountID uuid.UUID, blobs []adapter.AttachmentBlob) {
	for _, blob := range blobs {
		messageID, err := e.store.ResolveMessageID(ctx, accountID, blob.RemoteMessageID)
		if err != nil {
			continue
		}
		if err := e.store.SaveAttachmentContent(
			ctx, messageID, blob.Filename, blob.MimeType, blob.Content,
		); err != nil {
			e.logger.Warn("storing attachment",
				zap.String("filename", blob.Filename), zap.Error(err))
		}
	}
}

// calendarSyncWindow is the range pulled by seeded calendar jobs:
// thirty days back, ninety days forward.
func calendarSyncWindow(now time.Time) (time.Time, time.Time) {
	return now.AddDate(0, 0, -30), now.AddDate(0, 0, 90)
}

// syncCalendar pulls the account's events inside the sync window.
func (e *Engine) syncCalendar(ctx context.Context, job model.SyncJob) (int, error) {
	account, err := e.store.GetAccountByID(ctx, job.AccountID)
	if err != nil {
		return 0, err
	}

	settings, err := adapter.DecodeSettings[adapter.CalendarSettings](
		[]byte(account.SettingsJSON), string(model.DomainCalendar),
	)
	if err != nil {
		return 0, err
	}
	if settings.AccessToken == "" {
		settings.AccessToken, err = e.creds.Lookup(
			credential.NamespaceAccessToken, account.ID.String())
		if err != nil {
			return 0, err
		}
	}

	release, err := e.limiter.Acquire(ctx, settings.HostKey())
	if err != nil {
		return 0, err
	}
	defer release()

	from, to := calendarSyncWindow(time.Now().UTC())
	events, err := e.registry.Calendar(account.Provider).SyncRange(ctx, *account, settings, from, to)
	if err != nil {
		return 0, err
	}

	if err := e.store.UpsertEvents(ctx, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

// syncTasks pulls the account's task list.
func (e *Engine) syncTasks(ctx context.Context, job model.SyncJob) (int, error) {
	account, err := e.store.GetAccountByID(ctx, job.AccountID)
	if err != nil {
		return 0, err
	}

	settings, err := adapter.DecodeSettings[adapter.TaskSettings](
		[]byte(account.SettingsJSON), string(model.DomainTasks),
	)
	if err != nil {
		return 0, err
	}
	if settings.AccessToken == "" {
		settings.AccessToken, err = e.creds.Lookup(
			credential.NamespaceAccessToken, account.ID.String())
		if err != nil {
			return 0, err
		}
	}

	release, err := e.limiter.Acquire(ctx, settings.HostKey())
	if err != nil {
		return 0, err
	}
	defer release()

	tasks, err := e.registry.Tasks(account.Provider).Sync(ctx, *account, settings)
	if err != nil {
		return 0, err
	}

	if err := e.store.UpsertTasks(ctx, tasks); err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// hydrateEmailSecrets fills credentials absent from the settings blob
// out of the system keyring.
func (e *Engine) hydrateEmailSecrets(accountID string, settings *adapter.ProtocolSettings) error {
	var err error
	if settings.Password == "" {
		settings.Password, err = e.creds.Lookup(credential.NamespacePassword, accountID)
		if err != nil {
			return err
		}
	}
	if settings.AccessToken == "" {
		settings.AccessToken, err = e.creds.Lookup(credential.NamespaceAccessToken, accountID)
		if err != nil {
			return err
		}
	}
	return nil
}
