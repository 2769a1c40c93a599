package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// ScheduleJobs seeds one queued job per enabled (account, domain) pair.
// Pairs with a queued or running job are left alone. A pair with sync
// history is deferred by its domain's poll interval; a pair syncing for
// the first time becomes due immediately.
func (e *Engine) ScheduleJobs(ctx context.Context) error {
	accounts, err := e.store.GetAccounts(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, account := range accounts {
		domains := account.Domains
		if len(domains) == 0 {
			domains = model.Domains
		}

		for _, domain := range domains {
			active, err := e.store.HasActiveJob(ctx, account.ID, domain)
			if err != nil {
				return err
			}
			if active {
				continue
			}

			runAfter := now
			lastCompleted, err := e.store.LastCompletedAt(ctx, account.ID, domain)
			if err != nil {
				return err
			}
			if lastCompleted != nil {
				runAfter = now.Add(e.pollInterval(domain))
			}

			job := model.SyncJob{
				AccountID:   account.ID,
				Domain:      domain,
				Status:      model.StatusQueued,
				PayloadJSON: "{}",
				MaxAttempts: 5,
				RunAfter:    runAfter,
			}
			if err := e.store.EnqueueJob(ctx, job); err != nil {
				return err
			}
		}
	}

	return nil
}

// pollInterval returns the configured cadence for a domain.
func (e *Engine) pollInterval(domain model.SyncDomain) time.Duration {
	secs := 0
	switch domain {
	case model.DomainEmail:
		secs = e.cfg.EmailPollIntervalSecs
	case model.DomainCalendar:
		secs = e.cfg.CalendarPollIntervalSecs
	case model.DomainTasks:
		secs = e.cfg.TaskPollIntervalSecs
	}
	if secs < 1 {
		secs = 120
	}
	return time.Duration(secs) * time.Second
}

// PrimeIdleListeners opens best-effort change listeners on each email
// account's inbox. Listener failures are logged and otherwise ignored;
// polling remains the source of truth.
func (e *Engine) PrimeIdleListeners(ctx context.Context) {
	accounts, err := e.store.GetAccounts(ctx)
	if err != nil {
		e.logger.Warn("listing accounts for idle priming", zap.Error(err))
		return
	}

	for _, account := range accounts {
		if !hasDomain(account, model.DomainEmail) {
			continue
		}

		settings, err := adapter.DecodeSettings[adapter.ProtocolSettings](
			[]byte(account.SettingsJSON), string(model.DomainEmail),
		)
		if err != nil {
			continue
		}
		if err := e.hydrateEmailSecrets(account.ID.String(), &settings); err != nil {
			continue
		}

		if err := e.registry.Email(account.Provider).Watch(
			ctx, account, settings, defaultMailFolder,
		); err != nil {
			e.logger.Debug("idle listener not started",
				zap.String("account", account.EmailAddress), zap.Error(err))
		}
	}
}

// hasDomain reports whether the account syncs the given domain. An
// account with no explicit domain list syncs all of them.
func hasDomain(account model.Account, domain model.SyncDomain) bool {
	if len(account.Domains) == 0 {
		return true
	}
	for _, d := range account.Domains {
		if d == domain {
			return true
		}
	}
	return false
}
