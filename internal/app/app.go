package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"outreach/internal/compose"
	"outreach/internal/config"
	"outreach/internal/metrics"
	"outreach/internal/models"
	"outreach/internal/queue"
	"outreach/internal/sendlog"
	"outreach/internal/theme"
)

// SendFunc transmits one composed message, with whatever retry policy
// the caller wired in.
type SendFunc func(ctx context.Context, m *gomail.Message) error

// SendNow composes and transmits one message per configured recipient,
// recording each outcome in the sent log. The first failure is
// returned after all recipients have been tried, so one bad address
// does not starve the rest.
func SendNow(ctx context.Context, cfg *config.Config, logger *zap.Logger,
	composer *compose.Composer, send SendFunc, slog *sendlog.Logger) error {

	var firstErr error

	for _, recipient := range cfg.Email.To {
		m, meta, err := composer.Message(compose.Request{Recipient: recipient})
		if err != nil {
			logger.Error("compose failed", zap.String("to", recipient), zap.Error(err))
			slog.Record(recipient, cfg.Email.Subject, false, err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := send(ctx, m); err != nil {
			logger.Error("send failed", zap.String("to", recipient), zap.Error(err))
			slog.Record(recipient, cfg.Email.Subject, false, err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		extra := "Sent successfully"
		if meta.ThemeName != "" {
			extra += " | THEME=" + meta.ThemeName
		}
		if meta.PSLine != "" {
			extra += " | PS=" + meta.PSLine
		}
		slog.Record(recipient, cfg.Email.Subject, true, extra)
		logger.Info("email sent", zap.String("to", recipient), zap.String("theme", meta.ThemeName))
	}

	return firstErr
}

// ScheduleOnly writes one pending job per recipient and returns without
// any network I/O. The theme is selected here, at enqueue time, and
// frozen into the job so the worker reproduces the rendering the
// caller was promised even after the rotation state advances.
func ScheduleOnly(cfg *config.Config, logger *zap.Logger, store *queue.Store) error {
	when, err := cfg.ScheduledTime()
	if err != nil {
		return err
	}

	now := time.Now().In(cfg.Location())

	for _, recipient := range cfg.Email.To {
		job := models.Job{
			ID:           "job_" + uuid.NewString(),
			To:           recipient,
			Subject:      cfg.Email.Subject,
			Template:     cfg.Email.HTMLTemplate,
			ScheduledFor: when,
			Status:       models.StatusPending,
			CreatedAt:    now,
			Note:         "enqueued from config (schedule mode)",
		}

		if cfg.Templates.Enabled {
			statePath := cfg.Resolve(cfg.Templates.StateFile)
			state := theme.LoadState(statePath)
			sel, err := theme.Select(cfg.Templates.Strategy, recipient, cfg.Templates.Themes, state)
			if err != nil {
				return err
			}
			if err := theme.SaveState(statePath, sel.State); err != nil {
				logger.Warn("cannot persist rotation state", zap.Error(err))
			}
			idx := sel.Index
			job.ThemeIndex = &idx
			job.ThemeName = sel.Theme.Name
		}

		if err := store.Append(job); err != nil {
			return fmt.Errorf("append job for %s: %w", recipient, err)
		}
		metrics.JobsEnqueued.Inc()
		logger.Info("job enqueued",
			zap.String("job_id", job.ID),
			zap.String("to", recipient),
			zap.Time("scheduled_for", when),
			zap.String("theme", job.ThemeName))
	}

	logger.Info("queue updated", zap.String("path", store.Path()))
	return nil
}
