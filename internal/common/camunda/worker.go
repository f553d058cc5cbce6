package camunda

import (
	"sync"
	"time"

	"catalog-assistant/internal/common/config"
	"catalog-assistant/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// JobHandler is the shape every job handler exposes.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Worker is one open job subscription.
type Worker struct {
	worker    worker.JobWorker
	logger    logger.Logger
	taskType  string
	closeOnce sync.Once
}

// StartWorker opens a subscription for taskType. It returns nil when the
// worker is disabled in config.
func (c *Client) StartWorker(taskType string, wcfg config.WorkerConfig, handler JobHandler) *Worker {
	log := c.logger.With(map[string]interface{}{"taskType": taskType})
	if !wcfg.Enabled {
		log.Info("worker disabled", nil)
		return nil
	}

	jobWorker := c.client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return &Worker{worker: jobWorker, logger: log, taskType: taskType}
}

// Close stops polling and waits for active jobs. Safe on nil and repeat calls.
func (w *Worker) Close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		w.logger.Info("stopping worker", nil)
		w.worker.Close()
		w.worker.AwaitClose()
	})
}
