// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package jobs

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/database"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/piazza"
)

// Worker resolves outstanding jobs by polling the Piazza gateway at a
// fixed interval. It implements suture.Service and is meant to run
// under the supervisor tree.
type Worker struct {
	db       *database.DB
	gateway  piazza.Gateway
	interval time.Duration
	jobTTL   time.Duration
	limiter  *rate.Limiter
	name     string
}

// NewWorker creates a job status worker from configuration.
func NewWorker(db *database.DB, gateway piazza.Gateway, cfg *config.WorkerConfig) *Worker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 2 * time.Hour
	}
	pollsPerSecond := cfg.MaxPollsPerSecond
	if pollsPerSecond <= 0 {
		pollsPerSecond = 10
	}
	return &Worker{
		db:       db,
		gateway:  gateway,
		interval: interval,
		jobTTL:   jobTTL,
		limiter:  rate.NewLimiter(rate.Limit(pollsPerSecond), 1),
		name:     "job-worker",
	}
}

// Serve implements suture.Service. It polls immediately, then on every
// tick, until the context is canceled.
func (w *Worker) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", w.interval).
		Dur("job_ttl", w.jobTTL).
		Msg("Job worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Job worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (w *Worker) String() string {
	return w.name
}

// runCycle resolves every outstanding job once. Per-job failures are
// logged and skipped so one stuck job cannot starve the rest.
func (w *Worker) runCycle(ctx context.Context) {
	metrics.JobWorkerPolls.Inc()

	outstanding, err := w.db.GetOutstandingJobs(ctx)
	if err != nil {
		logging.Err(err).Msg("Job worker cannot list outstanding jobs")
		return
	}
	metrics.JobsOutstanding.Set(float64(len(outstanding)))
	if len(outstanding) == 0 {
		return
	}

	logging.Debug().Int("count", len(outstanding)).Msg("Resolving outstanding jobs")
	for i := range outstanding {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		if err := w.resolveJob(ctx, &outstanding[i]); err != nil {
			logging.Err(err).Str("job_id", outstanding[i].JobID).Msg("Cannot resolve job status")
		}
	}
}

func (w *Worker) resolveJob(ctx context.Context, job *models.Job) error {
	status, err := w.gateway.GetStatus(ctx, job.PiazzaJobID)
	if err != nil {
		// A job the gateway no longer knows about can never resolve;
		// everything else is retried on the next cycle until the TTL
		// runs out.
		if w.expired(job) {
			return w.timeOut(ctx, job)
		}
		return err
	}

	switch status.Status {
	case piazza.StatusSuccess:
		return w.update(ctx, job, models.JobStatusSuccess, status.DataID, "", "")
	case piazza.StatusError:
		return w.update(ctx, job, models.JobStatusError, "", status.ErrorMessage, "execute")
	case piazza.StatusCancelled:
		return w.update(ctx, job, models.JobStatusCancelled, "", "", "")
	case piazza.StatusRunning:
		if w.expired(job) {
			return w.timeOut(ctx, job)
		}
		if job.Status != models.JobStatusRunning {
			return w.update(ctx, job, models.JobStatusRunning, "", "", "")
		}
		return nil
	default:
		// Submitted and Pending leave the row as is until the TTL
		// runs out.
		if w.expired(job) {
			return w.timeOut(ctx, job)
		}
		return nil
	}
}

func (w *Worker) expired(job *models.Job) bool {
	return time.Since(job.CreatedOn) > w.jobTTL
}

func (w *Worker) timeOut(ctx context.Context, job *models.Job) error {
	logging.Warn().
		Str("job_id", job.JobID).
		Time("created_on", job.CreatedOn).
		Msg("Job exceeded TTL and is timing out")
	message := "Job timed out after " + w.jobTTL.String()
	return w.update(ctx, job, models.JobStatusTimedOut, "", message, "runtime")
}

func (w *Worker) update(ctx context.Context, job *models.Job, status, dataID, errorMessage, executionStep string) error {
	if err := w.db.UpdateJobStatus(ctx, job.JobID, status, dataID, errorMessage, executionStep); err != nil {
		return err
	}
	metrics.JobStatusUpdates.WithLabelValues(status).Inc()
	job.Status = status
	event := logging.Info().
		Str("job_id", job.JobID).
		Str("status", status)
	if job.IsTerminal() {
		// The gauge is recomputed each cycle; dropping it now keeps it
		// accurate between polls.
		metrics.JobsOutstanding.Dec()
		event.Msg("Job resolved")
	} else {
		event.Msg("Job status updated")
	}
	return nil
}
