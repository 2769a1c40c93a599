package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/model"
)

// accountDomain keys the per-(account, domain) admission counter.
type accountDomain struct {
	account uuid.UUID
	domain  model.SyncDomain
}

// jobResult pairs a finished job with its outcome.
type jobResult struct {
	job     model.SyncJob
	outcome runOutcome
}

// RunDueJobs drains one batch of due jobs under three stacked limits:
// the configured global ceiling, at most two running jobs per account,
// and at most one running job per (account, domain). Jobs that no slot
// admits stay queued for the next drain; the call never blocks waiting
// for new capacity beyond its own batch finishing.
func (e *Engine) RunDueJobs(ctx context.Context) (model.SyncRunSummary, error) {
	var summary model.SyncRunSummary

	jobs, err := e.store.FetchDueJobs(ctx, fetchLimit)
	if err != nil {
		return summary, err
	}
	if len(jobs) == 0 {
		return summary, nil
	}

	globalLimit := e.cfg.MaxParallelJobs
	if globalLimit < 1 {
		globalLimit = 1
	}

	var (
		pending      = jobs
		running      = 0
		perAccount   = make(map[uuid.UUID]int)
		perDomainKey = make(map[accountDomain]int)
		results      = make(chan jobResult)
	)

	admit := func(job model.SyncJob) bool {
		if running >= globalLimit {
			return false
		}
		if perAccount[job.AccountID] >= perAccountLimit {
			return false
		}
		if perDomainKey[accountDomain{job.AccountID, job.Domain}] >= 1 {
			return false
		}
		return true
	}

	start := func(job model.SyncJob) {
		running++
		perAccount[job.AccountID]++
		perDomainKey[accountDomain{job.AccountID, job.Domain}]++
		go func() {
			results <- jobResult{job: job, outcome: e.runJob(ctx, job)}
		}()
	}

	// Fill the window from the front of the due list, skipping jobs the
	// limits reject; every completion frees slots and admits more.
	launchEligible := func() {
		remaining := pending[:0]
		for _, job := range pending {
			if admit(job) {
				start(job)
			} else {
				remaining = append(remaining, job)
			}
		}
		pending = remaining
	}

	launchEligible()

	for running > 0 {
		result := <-results
		running--
		perAccount[result.job.AccountID]--
		perDomainKey[accountDomain{result.job.AccountID, result.job.Domain}]--

		switch {
		case result.outcome.completed:
			summary.CompletedJobs++
		case result.outcome.retried:
			summary.RetriedJobs++
		case result.outcome.failed:
			summary.FailedJobs++
		}
		summary.EmailMessagesSynced += result.outcome.messagesSynced
		summary.CalendarEventsSynced += result.outcome.eventsSynced
		summary.TasksSynced += result.outcome.tasksSynced

		launchEligible()
	}

	return summary, nil
}
