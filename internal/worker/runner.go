package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"outreach/internal/compose"
	"outreach/internal/metrics"
	"outreach/internal/models"
	"outreach/internal/queue"
	"outreach/internal/sendlog"
)

// ComposeFunc builds the message for one job-like request.
type ComposeFunc func(req compose.Request) (*gomail.Message, compose.Meta, error)

// SendFunc transmits one composed message.
type SendFunc func(m *gomail.Message) error

// Runner drains the persisted queue: every tick it loads the document,
// attempts each due pending job once, persists the new status after
// every attempt, and spaces sends with the rate limiter. Compose, send
// and clock are injected so the transition logic tests against fakes.
type Runner struct {
	Store      *queue.Store
	Compose    ComposeFunc
	Send       SendFunc
	Log        *zap.Logger
	SendLog    *sendlog.Logger
	Limiter    *rate.Limiter
	Now        func() time.Time
	MaxRetries int
	RetryDelay time.Duration
	Tick       time.Duration
}

// Run polls until the context is cancelled. Operational failures are
// logged and reflected in job status; they never terminate the loop.
func (r *Runner) Run(ctx context.Context) {
	r.Log.Info("worker started",
		zap.String("queue", r.Store.Path()),
		zap.Duration("tick", r.Tick),
		zap.Int("max_retries", r.MaxRetries))

	ticker := time.NewTicker(r.Tick)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.Log.Error("queue pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.Log.Info("worker shutting down")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single pass over the due jobs.
func (r *Runner) RunOnce(ctx context.Context) error {
	due, err := r.Store.Due(r.Now())
	if err != nil {
		return err
	}

	for _, job := range due {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if job.To == "" {
			r.failNow(job.ID, "missing recipient")
			continue
		}
		if job.ScheduledFor.IsZero() {
			r.failNow(job.ID, "invalid scheduled_for")
			continue
		}

		r.attempt(job)

		// Bound the outbound send rate between consecutive attempts.
		if err := r.Limiter.Wait(ctx); err != nil {
			return nil
		}
	}
	return nil
}

// attempt composes and sends one job and applies the state transition:
// pending -> sent on success, pending -> pending with a bumped attempt
// counter on a transient failure, pending -> failed once the counter
// reaches the retry limit. Sent and failed are terminal.
func (r *Runner) attempt(job models.Job) {
	r.Log.Info("job due",
		zap.String("job_id", job.ID),
		zap.String("to", job.To),
		zap.Int("attempts", job.Attempts))

	m, meta, err := r.Compose(compose.Request{
		Recipient:    job.To,
		Subject:      job.Subject,
		TemplatePath: job.Template,
		ThemeIndex:   job.ThemeIndex,
	})
	if err == nil {
		err = r.Send(m)
	}

	if err != nil {
		r.Log.Error("job attempt failed",
			zap.String("job_id", job.ID),
			zap.String("to", job.To),
			zap.Error(err))
		metrics.EmailFailures.Inc()
		r.SendLog.Record(job.To, job.Subject, false, err.Error())
		r.bumpRetry(job, err)
		return
	}

	now := r.Now()
	if uerr := r.Store.Update(job.ID, func(j *models.Job) {
		j.Status = models.StatusSent
		j.SentAt = &now
		j.LastError = ""
	}); uerr != nil {
		r.Log.Error("cannot mark job sent", zap.String("job_id", job.ID), zap.Error(uerr))
	}

	metrics.EmailsSent.Inc()
	extra := "Sent from worker (queue)"
	if meta.ThemeName != "" {
		extra += " | THEME=" + meta.ThemeName
	}
	if meta.PSLine != "" {
		extra += " | PS=" + meta.PSLine
	}
	r.SendLog.Record(job.To, job.Subject, true, extra)
	r.Log.Info("email sent", zap.String("job_id", job.ID), zap.String("to", job.To))
}

// bumpRetry increments the attempt counter. Once the counter reaches
// the limit the job is terminally failed; otherwise it stays pending,
// pushed back by the retry delay so the next tick does not re-hammer.
func (r *Runner) bumpRetry(job models.Job, cause error) {
	now := r.Now()
	attempts := job.Attempts + 1

	uerr := r.Store.Update(job.ID, func(j *models.Job) {
		j.Attempts = attempts
		j.LastError = cause.Error()
		if attempts >= r.MaxRetries {
			j.Status = models.StatusFailed
			j.FailedAt = &now
		} else {
			j.Status = models.StatusPending
			j.ScheduledFor = now.Add(r.RetryDelay)
		}
	})
	if uerr != nil {
		r.Log.Error("cannot update job after failure",
			zap.String("job_id", job.ID), zap.Error(uerr))
		return
	}

	if attempts >= r.MaxRetries {
		metrics.JobsFailed.Inc()
		r.Log.Warn("job failed permanently",
			zap.String("job_id", job.ID),
			zap.Int("attempts", attempts))
	}
}

// failNow marks a malformed job terminally failed without an attempt.
func (r *Runner) failNow(id, reason string) {
	now := r.Now()
	if err := r.Store.Update(id, func(j *models.Job) {
		j.Status = models.StatusFailed
		j.LastError = reason
		j.FailedAt = &now
	}); err != nil {
		r.Log.Error("cannot fail malformed job", zap.String("job_id", id), zap.Error(err))
		return
	}
	metrics.JobsFailed.Inc()
	r.Log.Warn("malformed job failed", zap.String("job_id", id), zap.String("reason", reason))
}
