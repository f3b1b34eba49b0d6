package executor

import (
	"context"

	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/statusstore"
)

// worker is the processing loop of a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *node, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "job", n.job.Name)

		if err := ctx.Err(); err != nil {
			workerLogger.Warn("Context canceled, skipping job.")
			e.skip(ctx, n, err)
			continue
		}

		workerLogger.Info("▶️ Starting job.", "dir", n.job.Dir)
		e.store.Set(n.job.Name, statusstore.Entry{State: statusstore.Running})

		if err := e.runJob(ctx, n.job); err != nil {
			workerLogger.Error("Job failed.", "error", err)
			n.err = err
			e.store.Set(n.job.Name, statusstore.Entry{State: statusstore.Failed, Message: err.Error()})
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		workerLogger.Info("Job finished.")
		e.store.Set(n.job.Name, statusstore.Entry{State: statusstore.Finished})
		for _, dependent := range n.dependents {
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent job.", "dependent", dependent.job.Name)
				readyChan <- dependent
			}
		}
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}
