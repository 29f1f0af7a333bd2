/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package orchestrator

import (
	"context"

	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/service"
)

// NewCacheSweeper creates a worker that periodically removes expired cache entries of o.
// The interval is taken from the cache.cleanupInterval configuration key.
// Expired entries are never served anyway, sweeping only releases the memory they hold.
func NewCacheSweeper(o *Orchestrator, logger log.FieldLogger) *service.PeriodicWorker {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	sweep := service.WorkerFunc(func(ctx context.Context) error {
		if n := o.SweepExpired(); n > 0 {
			logger.Debug("expired cache entries removed", log.Int("count", n))
		}
		return nil
	})
	return service.NewPeriodicWorkerWithOpts(sweep, o.cleanupInterval, logger,
		service.PeriodicWorkerOpts{InitialDelay: o.cleanupInterval})
}
