package compose

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"outreach/internal/config"
	"outreach/internal/qr"
	"outreach/internal/theme"
)

// qrPlaceholder is the template marker filled with the QR image source.
const qrPlaceholder = "{{QR_SRC}}"

// psPlaceholder is the template marker for the postscript line.
const psPlaceholder = "{{PS}}"

const defaultPSStyle = "margin:14px 0 0; padding:12px 12px; border-radius:12px; " +
	"background:#f8fafc; border:1px solid #e2e8f0; " +
	"color:#334155; font-size:11px; line-height:16px;"

// Request is the job-like input for one message: a recipient plus
// optional overrides frozen into a queued job. Empty fields fall back
// to the configuration document.
type Request struct {
	Recipient    string
	Subject      string
	TemplatePath string
	// ThemeIndex, when set, pins the theme chosen at enqueue time so a
	// later rotation state never changes the promised rendering.
	ThemeIndex *int
}

// Meta reports what composition actually did, for the sent log.
type Meta struct {
	ThemeIndex *int
	ThemeName  string
	PSLine     string
}

// Composer renders the themed HTML body and assembles the full MIME
// message: inline CID images, regular attachments, vCard and QR. It
// performs no network I/O; the wire belongs to the sender.
type Composer struct {
	Cfg *config.Config
	Log *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) *Composer {
	return &Composer{Cfg: cfg, Log: log}
}

// Message builds the complete email for one recipient.
func (c *Composer) Message(req Request) (*gomail.Message, Meta, error) {
	cfg := c.Cfg
	var meta Meta

	subject := req.Subject
	if subject == "" {
		subject = cfg.Email.Subject
	}
	templatePath := req.TemplatePath
	if templatePath == "" {
		templatePath = cfg.Email.HTMLTemplate
	}
	templatePath = cfg.Resolve(templatePath)
	templateDir := filepath.Dir(templatePath)

	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, meta, fmt.Errorf("compose: read template: %w", err)
	}
	html := string(raw)

	psLine := c.pickPS()
	meta.PSLine = psLine
	if psLine != "" && cfg.PS.HTMLEnabled() {
		html = applyPSToHTML(html, psLine, cfg.PS.HTMLStyle)
	}

	html, qrAttach := c.applyQR(html, templateDir)

	sel, err := c.resolveTheme(req.Recipient, req.ThemeIndex)
	if err != nil {
		return nil, meta, err
	}
	if sel != nil {
		html = theme.Apply(html, sel.Theme)
		meta.ThemeIndex = &sel.Index
		meta.ThemeName = sel.Theme.Name
	}

	m := gomail.NewMessage()
	m.SetHeader("From", cfg.Email.From)
	m.SetHeader("To", req.Recipient)
	m.SetHeader("Subject", subject)
	if meta.ThemeIndex != nil {
		m.SetHeader("X-Theme-Index", fmt.Sprintf("%d", *meta.ThemeIndex))
		if meta.ThemeName != "" {
			m.SetHeader("X-Theme-Name", meta.ThemeName)
		}
	}
	if psLine != "" {
		m.SetHeader("X-PS-Line", psLine)
	}

	textBody := cfg.Email.BodyText
	if textBody == "" {
		textBody = "This email contains HTML content."
	}
	if psLine != "" && cfg.PS.TextEnabled() {
		textBody = strings.TrimRight(textBody, "\n") + "\n\n" + psLine
	}
	m.SetBody("text/plain", textBody)

	html, err = c.embedLocalImages(m, html, templateDir)
	if err != nil {
		return nil, meta, err
	}
	m.AddAlternative("text/html", html)

	for _, att := range cfg.Email.Attachments {
		path := cfg.Resolve(att)
		if _, err := os.Stat(path); err != nil {
			return nil, meta, fmt.Errorf("compose: attachment %s: %w", att, err)
		}
		m.Attach(path)
	}
	if qrAttach != "" {
		m.Attach(qrAttach)
	}

	if cfg.VCard.On() {
		attachVCard(m, cfg)
	}

	return m, meta, nil
}

// resolveTheme picks the theme for this message. A valid frozen index
// wins outright; otherwise the configured strategy runs and the
// advanced rotation state is persisted here, at the caller boundary,
// keeping the selector itself pure.
func (c *Composer) resolveTheme(recipient string, override *int) (*theme.Selection, error) {
	cfg := c.Cfg
	if !cfg.Templates.Enabled {
		return nil, nil
	}
	themes := cfg.Templates.Themes
	if len(themes) == 0 {
		return nil, theme.ErrNoThemes
	}

	if override != nil && *override >= 0 && *override < len(themes) {
		return &theme.Selection{Index: *override, Theme: themes[*override]}, nil
	}

	statePath := cfg.Resolve(cfg.Templates.StateFile)
	state := theme.LoadState(statePath)
	sel, err := theme.Select(cfg.Templates.Strategy, recipient, themes, state)
	if err != nil {
		return nil, err
	}
	if err := theme.SaveState(statePath, sel.State); err != nil {
		c.Log.Warn("compose: cannot persist rotation state",
			zap.String("path", statePath), zap.Error(err))
	}
	return &sel, nil
}

// pickPS returns one random postscript line, or "" when disabled.
func (c *Composer) pickPS() string {
	ps := c.Cfg.PS
	if !ps.Enabled || len(ps.Phrases) == 0 {
		return ""
	}
	phrase := strings.TrimSpace(ps.Phrases[rand.Intn(len(ps.Phrases))])
	if phrase == "" {
		return ""
	}
	return ps.Prefix + " " + phrase
}

// applyPSToHTML fills the {{PS}} marker, or appends a styled paragraph
// before the closing body tag when the template has no marker.
func applyPSToHTML(html, psLine, style string) string {
	if strings.Contains(html, psPlaceholder) {
		return strings.ReplaceAll(html, psPlaceholder, psLine)
	}
	if style == "" {
		style = defaultPSStyle
	}
	p := fmt.Sprintf("<p style=%q>%s</p>", style, psLine)

	lower := strings.ToLower(html)
	if idx := strings.LastIndex(lower, "</body>"); idx >= 0 {
		return html[:idx] + p + html[idx:]
	}
	return html + p
}

// applyQR generates-or-reuses the QR PNG and wires it into the HTML.
// It returns the updated HTML plus a file path to attach plainly when
// the template has no place to show the image inline. Every QR failure
// is soft: the send proceeds, at worst pointing the placeholder at the
// target URL instead of an image.
func (c *Composer) applyQR(html, templateDir string) (string, string) {
	cfg := c.Cfg
	if !cfg.QR.Enabled {
		return html, ""
	}

	url := strings.TrimSpace(cfg.QR.URL)
	if url == "" {
		url = strings.TrimSpace(cfg.VCard.Portfolio)
	}
	if url == "" {
		c.Log.Warn("compose: qr enabled but no url configured")
		return html, ""
	}

	// The image lives next to the template so a relative <img src>
	// resolves during the inline-embed pass.
	outDir := filepath.Join(templateDir, cfg.QR.OutputDir)
	path, err := qr.Ensure(url, outDir, cfg.QR.Filename, cfg.QR.Size)
	if err != nil {
		c.Log.Warn("compose: qr generation failed, continuing without image", zap.Error(err))
		if strings.Contains(html, qrPlaceholder) {
			return strings.ReplaceAll(html, qrPlaceholder, url), ""
		}
		return html, ""
	}

	relSrc := filepath.ToSlash(filepath.Join(cfg.QR.OutputDir, cfg.QR.Filename))
	if strings.Contains(html, qrPlaceholder) {
		return strings.ReplaceAll(html, qrPlaceholder, relSrc), ""
	}
	if strings.Contains(html, relSrc) {
		// Template already references the generated file; the inline
		// pass embeds it.
		return html, ""
	}
	return html, path
}
