package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func testConfig(t *testing.T, recipients ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.html"),
		[]byte("<html><body>hi</body></html>"), 0o644))

	off := false
	return &config.Config{
		BaseDir: dir,
		SMTP:    config.SMTP{Host: "localhost", Port: 1025},
		Email: config.Email{
			From:         "me@example.com",
			To:           config.StringList(recipients),
			Subject:      "hello",
			HTMLTemplate: "template.html",
			ScheduledFor: "2026-02-12 19:30",
			LogFile:      "sent.log",
		},
		App: config.App{
			Mode:      config.ModeSchedule,
			Timezone:  "UTC",
			QueueFile: "queue.json",
		},
		VCard: config.VCard{Enabled: &off, Filename: "c.vcf"},
	}
}

func themedConfig(t *testing.T, recipients ...string) *config.Config {
	t.Helper()
	cfg := testConfig(t, recipients...)
	cfg.Templates = config.Templates{
		Enabled:   true,
		Strategy:  theme.StrategyRoundRobin,
		StateFile: "state.json",
		Themes: []theme.Theme{
			{Name: "zero"},
			{Name: "one"},
			{Name: "two"},
		},
	}
	return cfg
}

func TestScheduleOnlyWritesOneJobPerRecipient(t *testing.T) {
	cfg := testConfig(t, "a@x.com", "b@x.com")
	store := queue.NewStore(cfg.Resolve(cfg.App.QueueFile))

	require.NoError(t, ScheduleOnly(cfg, zap.NewNop(), store))

	jobs, err := store.Load()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, models.StatusPending, j.Status)
		assert.Equal(t, "hello", j.Subject)
		assert.Equal(t, 2026, j.ScheduledFor.Year())
		assert.NotEmpty(t, j.ID)
	}
	assert.Equal(t, "a@x.com", jobs[0].To)
	assert.Equal(t, "b@x.com", jobs[1].To)
}

func TestScheduleOnlyCountsEnqueuedJobs(t *testing.T) {
	cfg := testConfig(t, "a@x.com", "b@x.com")
	store := queue.NewStore(cfg.Resolve(cfg.App.QueueFile))

	before := testutil.ToFloat64(metrics.JobsEnqueued)
	require.NoError(t, ScheduleOnly(cfg, zap.NewNop(), store))

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.JobsEnqueued))
}

func TestScheduleOnlyFreezesThemeAndAdvancesRotation(t *testing.T) {
	cfg := themedConfig(t, "a@x.com", "b@x.com")
	store := queue.NewStore(cfg.Resolve(cfg.App.QueueFile))

	require.NoError(t, ScheduleOnly(cfg, zap.NewNop(), store))

	jobs, err := store.Load()
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	require.NotNil(t, jobs[0].ThemeIndex)
	require.NotNil(t, jobs[1].ThemeIndex)
	assert.Equal(t, 0, *jobs[0].ThemeIndex)
	assert.Equal(t, 1, *jobs[1].ThemeIndex)
	assert.Equal(t, "zero", jobs[0].ThemeName)
	assert.Equal(t, "one", jobs[1].ThemeName)

	// The rotation cursor was persisted past both selections.
	st := theme.LoadState(cfg.Resolve(cfg.Templates.StateFile))
	assert.Equal(t, 2, st.Cursor)
}

func TestScheduleOnlyNeverSendsAnything(t *testing.T) {
	// Enqueuing goes nowhere near SMTP: there is no sender to call, and
	// the queue on disk is the only side effect.
	cfg := themedConfig(t, "a@x.com")
	store := queue.NewStore(cfg.Resolve(cfg.App.QueueFile))

	require.NoError(t, ScheduleOnly(cfg, zap.NewNop(), store))

	jobs, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestScheduleOnlyRejectsBadScheduledFor(t *testing.T) {
	cfg := testConfig(t, "a@x.com")
	cfg.Email.ScheduledFor = "tomorrow-ish"
	store := queue.NewStore(cfg.Resolve(cfg.App.QueueFile))

	err := ScheduleOnly(cfg, zap.NewNop(), store)
	assert.Error(t, err)

	jobs, lerr := store.Load()
	require.NoError(t, lerr)
	assert.Empty(t, jobs)
}

func TestSendNowDeliversToEveryRecipient(t *testing.T) {
	cfg := testConfig(t, "a@x.com", "b@x.com")
	cfg.App.Mode = config.ModeSendNow

	var sent []string
	send := func(_ context.Context, m *gomail.Message) error {
		sent = append(sent, m.GetHeader("To")...)
		return nil
	}

	composer := compose.New(cfg, zap.NewNop())
	slog := sendlog.New(cfg.Resolve(cfg.Email.LogFile), zap.NewNop())

	require.NoError(t, SendNow(context.Background(), cfg, zap.NewNop(), composer, send, slog))
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, sent)

	raw, err := os.ReadFile(cfg.Resolve(cfg.Email.LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "a@x.com ; hello ; OK")
}

func TestSendNowContinuesPastFailuresButReportsThem(t *testing.T) {
	cfg := testConfig(t, "bad@x.com", "good@x.com")
	cfg.App.Mode = config.ModeSendNow

	var sent []string
	send := func(_ context.Context, m *gomail.Message) error {
		to := m.GetHeader("To")[0]
		if to == "bad@x.com" {
			return errors.New("mailbox unavailable")
		}
		sent = append(sent, to)
		return nil
	}

	composer := compose.New(cfg, zap.NewNop())
	slog := sendlog.New(cfg.Resolve(cfg.Email.LogFile), zap.NewNop())

	err := SendNow(context.Background(), cfg, zap.NewNop(), composer, send, slog)
	assert.Error(t, err)
	assert.Equal(t, []string{"good@x.com"}, sent)

	raw, rerr := os.ReadFile(cfg.Resolve(cfg.Email.LogFile))
	require.NoError(t, rerr)
	assert.Contains(t, string(raw), "bad@x.com ; hello ; ERROR")
	assert.Contains(t, string(raw), "good@x.com ; hello ; OK")
}
