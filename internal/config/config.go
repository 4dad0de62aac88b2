package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"outreach/internal/theme"
)

// Mode decides what the one-shot binary does with a loaded config.
type Mode string

const (
	ModeSendNow  Mode = "send_now"
	ModeSchedule Mode = "schedule"
)

// scheduledForLayout is the human format accepted in email.scheduled_for.
const scheduledForLayout = "2006-01-02 15:04"

type SMTP struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	UseTLS   bool   `json:"use_tls"`
}

type Email struct {
	From         string     `json:"from"`
	To           StringList `json:"to"`
	Subject      string     `json:"subject"`
	BodyText     string     `json:"body_text"`
	HTMLTemplate string     `json:"html_template"`
	Attachments  []string   `json:"attachments"`
	ScheduledFor string     `json:"scheduled_for"`
	LogFile      string     `json:"log_file"`
}

type App struct {
	Mode              Mode   `json:"mode"`
	Timezone          string `json:"timezone"`
	QueueFile         string `json:"queue_file"`
	TickSeconds       int    `json:"tick_seconds"`
	RateLimitSeconds  int    `json:"rate_limit_seconds"`
	MaxRetries        int    `json:"max_retries"`
	RetryDelaySeconds int    `json:"retry_delay_seconds"`
	MetricsPort       string `json:"metrics_port"`
}

type PS struct {
	Enabled   bool     `json:"enabled"`
	Prefix    string   `json:"prefix"`
	Phrases   []string `json:"phrases"`
	AddToText *bool    `json:"add_to_text"`
	AddToHTML *bool    `json:"add_to_html"`
	HTMLStyle string   `json:"html_style"`
}

type VCard struct {
	Enabled   *bool  `json:"enabled"`
	FullName  string `json:"full_name"`
	Title     string `json:"title"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Portfolio string `json:"portfolio"`
	GitHub    string `json:"github"`
	Location  string `json:"location"`
	Filename  string `json:"filename"`
}

type QR struct {
	Enabled   bool   `json:"enabled"`
	URL       string `json:"url"`
	OutputDir string `json:"output_dir"`
	Filename  string `json:"filename"`
	Size      int    `json:"size"`
}

type Templates struct {
	Enabled   bool           `json:"enabled"`
	Strategy  theme.Strategy `json:"strategy"`
	Themes    []theme.Theme  `json:"themes"`
	StateFile string         `json:"state_file"`
}

// Config is the immutable per-invocation snapshot of the whole
// configuration document. Loaded once, never mutated afterwards.
type Config struct {
	SMTP      SMTP      `json:"smtp"`
	Email     Email     `json:"email"`
	App       App       `json:"app"`
	PS        PS        `json:"ps"`
	VCard     VCard     `json:"vcard"`
	QR        QR        `json:"qr"`
	Templates Templates `json:"templates"`

	// BaseDir is the directory of the config file; every relative path
	// in the document is resolved against it.
	BaseDir string `json:"-"`
}

// Overrides are environment values that take precedence over the
// document, so credentials never have to live on disk.
type Overrides struct {
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
}

// StringList accepts either a JSON string or a JSON array of strings.
// The configuration document allows email.to to be written both ways.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = nil
		if v := strings.TrimSpace(one); v != "" {
			*s = StringList{v}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*s = nil
	for _, v := range many {
		if v = strings.TrimSpace(v); v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

// Load reads, overlays and validates the configuration document at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.BaseDir = filepath.Dir(abs)

	var ov Overrides
	if err := envconfig.Process("outreach", &ov); err != nil {
		return nil, fmt.Errorf("process env overrides: %w", err)
	}
	if ov.SMTPUser != "" {
		cfg.SMTP.User = ov.SMTPUser
	}
	if ov.SMTPPassword != "" {
		cfg.SMTP.Password = ov.SMTPPassword
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Mode == "" {
		c.App.Mode = ModeSendNow
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "Europe/Madrid"
	}
	if c.App.QueueFile == "" {
		c.App.QueueFile = "queue.json"
	}
	if c.App.TickSeconds <= 0 {
		c.App.TickSeconds = 5
	}
	if c.App.RateLimitSeconds <= 0 {
		c.App.RateLimitSeconds = 15
	}
	if c.App.MaxRetries <= 0 {
		c.App.MaxRetries = 2
	}
	if c.App.RetryDelaySeconds <= 0 {
		c.App.RetryDelaySeconds = 300
	}
	if c.App.MetricsPort == "" {
		c.App.MetricsPort = "9090"
	}
	if c.Email.LogFile == "" {
		c.Email.LogFile = "sent_emails.log"
	}
	if c.PS.Prefix == "" {
		c.PS.Prefix = "P.D.:"
	}
	if c.QR.OutputDir == "" {
		c.QR.OutputDir = "generated"
	}
	if c.QR.Filename == "" {
		c.QR.Filename = "qr_portfolio.png"
	}
	if c.QR.Size <= 0 {
		c.QR.Size = 256
	}
	if c.Templates.Strategy == "" {
		c.Templates.Strategy = theme.StrategyRoundRobin
	}
	if c.Templates.StateFile == "" {
		c.Templates.StateFile = "templates_state.json"
	}
	if c.VCard.Filename == "" {
		c.VCard.Filename = "contact.vcf"
	}
	if c.VCard.Email == "" {
		c.VCard.Email = c.Email.From
	}
}

// Validate rejects documents the rest of the system cannot act on.
// It runs before any I/O so a broken config never half-executes.
func (c *Config) Validate() error {
	switch c.App.Mode {
	case ModeSendNow, ModeSchedule:
	default:
		return fmt.Errorf("invalid app.mode %q: use %q or %q", c.App.Mode, ModeSendNow, ModeSchedule)
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port %d is out of range", c.SMTP.Port)
	}
	if c.Email.From == "" {
		return fmt.Errorf("email.from is required")
	}
	if len(c.Email.To) == 0 {
		return fmt.Errorf("email.to has no recipients")
	}
	if c.Email.HTMLTemplate == "" {
		return fmt.Errorf("email.html_template is required")
	}
	if c.Templates.Enabled {
		if len(c.Templates.Themes) == 0 {
			return fmt.Errorf("templates.enabled is true but templates.themes is empty")
		}
		switch c.Templates.Strategy {
		case theme.StrategyRoundRobin, theme.StrategyRandom, theme.StrategyByRecipient:
		default:
			return fmt.Errorf("invalid templates.strategy %q", c.Templates.Strategy)
		}
	}
	if c.App.Mode == ModeSchedule && strings.TrimSpace(c.Email.ScheduledFor) == "" {
		return fmt.Errorf("email.scheduled_for is required in schedule mode (e.g. %q)", "2026-02-12 19:30")
	}
	return nil
}

// Resolve turns a document-relative path into an absolute one.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}

// Location returns the configured IANA timezone. An unresolvable zone
// falls back to local time rather than failing the whole run.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ScheduledTime parses email.scheduled_for in the configured zone.
func (c *Config) ScheduledTime() (time.Time, error) {
	raw := strings.TrimSpace(c.Email.ScheduledFor)
	if raw == "" {
		return time.Time{}, fmt.Errorf("email.scheduled_for is empty")
	}
	t, err := time.ParseInLocation(scheduledForLayout, raw, c.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse email.scheduled_for: %w", err)
	}
	return t, nil
}

// Tick is the worker's poll interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.App.TickSeconds) * time.Second
}

// RateLimit is the minimum delay between consecutive send attempts.
func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.App.RateLimitSeconds) * time.Second
}

// RetryDelay is how far a transiently failed job is pushed back.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.App.RetryDelaySeconds) * time.Second
}

// TextEnabled reports whether the postscript also goes into the plain
// text body. Omitting the field means yes.
func (p PS) TextEnabled() bool { return p.AddToText == nil || *p.AddToText }

// HTMLEnabled reports whether the postscript goes into the HTML body.
func (p PS) HTMLEnabled() bool { return p.AddToHTML == nil || *p.AddToHTML }

// On reports whether the vCard attachment is enabled; omitted means yes.
func (v VCard) On() bool { return v.Enabled == nil || *v.Enabled }
