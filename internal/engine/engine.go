// Package engine drives the sync pipeline: it seeds durable jobs per
// account and domain, drains the due queue under layered admission
// limits, and funnels fetched records into the store.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/syncbox/internal/model"
	"github.com/nhle/syncbox/internal/remote"
	"github.com/nhle/syncbox/internal/store"
)

const (
	// fetchLimit caps how many due jobs one drain pulls from the queue.
	fetchLimit = 40

	// perAccountLimit bounds concurrently running jobs per account.
	perAccountLimit = 2

	// staleRunningAge is how long an untouched Running job is presumed
	// orphaned by a crash before startup requeues it.
	staleRunningAge = 10 * time.Minute
)

// CredentialSource resolves stored secrets by namespace and id. An
// empty string with a nil error means the secret is absent.
type CredentialSource interface {
	Lookup(namespace, id string) (string, error)
}

// Engine owns the sync queue and the adapter dispatch around it.
type Engine struct {
	store    *store.Store
	registry AdapterRegistry
	creds    CredentialSource
	limiter  *remote.HostLimiter
	logger   *zap.Logger
	cfg      model.SyncConfig
}

// New wires an engine over its collaborators.
func New(
	st *store.Store,
	registry AdapterRegistry,
	creds CredentialSource,
	logger *zap.Logger,
	cfg model.SyncConfig,
) *Engine {
	return &Engine{
		store:    st,
		registry: registry,
		creds:    creds,
		limiter:  remote.NewHostLimiter(remote.DefaultPermitsPerHost),
		logger:   logger,
		cfg:      cfg,
	}
}

// RecoverStaleJobs requeues Running jobs left behind by a previous
// process. Call once at startup before the first drain.
func (e *Engine) RecoverStaleJobs(ctx context.Context) error {
	requeued, err := e.store.RequeueStaleRunning(ctx, staleRunningAge)
	if err != nil {
		return err
	}
	if requeued > 0 {
		e.logger.Info("requeued stale running jobs", zap.Int("count", requeued))
	}
	return nil
}
