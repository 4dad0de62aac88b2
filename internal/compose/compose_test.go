package compose

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"outreach/internal/config"
	"outreach/internal/theme"
)

func testConfig(t *testing.T, html string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.html"), []byte(html), 0o644))

	cfg := &config.Config{
		BaseDir: dir,
		SMTP:    config.SMTP{Host: "localhost", Port: 1025},
		Email: config.Email{
			From:         "sender@example.com",
			To:           config.StringList{"rcpt@example.com"},
			Subject:      "hello",
			BodyText:     "plain text body",
			HTMLTemplate: "template.html",
		},
		App: config.App{Mode: config.ModeSendNow, Timezone: "UTC"},
	}
	cfg.VCard = config.VCard{
		Enabled:  boolPtr(false),
		Filename: "contact.vcf",
	}
	return cfg
}

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }

func render(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestThemeReplacementsApplied(t *testing.T) {
	cfg := testConfig(t, `<html><body style="#1e3a8a">#1e3a8a and #1e3a8a</body></html>`)
	cfg.Templates = config.Templates{
		Enabled:   true,
		Strategy:  theme.StrategyRoundRobin,
		StateFile: "state.json",
		Themes: []theme.Theme{
			{Name: "dark", Replace: theme.ReplaceList{{Old: "#1e3a8a", New: "#0f172a"}}},
		},
	}

	c := New(cfg, zap.NewNop())
	m, meta, err := c.Message(Request{Recipient: "rcpt@example.com"})
	require.NoError(t, err)

	out := render(t, m)
	assert.NotContains(t, out, "#1e3a8a")
	assert.Equal(t, 3, strings.Count(out, "#0f172a"))
	assert.Equal(t, "dark", meta.ThemeName)
}

func TestFrozenThemeIndexOverridesRotation(t *testing.T) {
	cfg := testConfig(t, `<html><body>MARKER</body></html>`)
	cfg.Templates = config.Templates{
		Enabled:   true,
		Strategy:  theme.StrategyRoundRobin,
		StateFile: "state.json",
		Themes: []theme.Theme{
			{Name: "zero", Replace: theme.ReplaceList{{Old: "MARKER", New: "zero"}}},
			{Name: "one", Replace: theme.ReplaceList{{Old: "MARKER", New: "one"}}},
		},
	}

	c := New(cfg, zap.NewNop())

	// Advance the rotation a few times so the cursor is away from 1.
	for i := 0; i < 3; i++ {
		_, _, err := c.Message(Request{Recipient: "rcpt@example.com"})
		require.NoError(t, err)
	}

	m, meta, err := c.Message(Request{Recipient: "rcpt@example.com", ThemeIndex: intPtr(1)})
	require.NoError(t, err)

	require.NotNil(t, meta.ThemeIndex)
	assert.Equal(t, 1, *meta.ThemeIndex)
	assert.Equal(t, "one", meta.ThemeName)
	assert.Contains(t, render(t, m), "one")
}

func TestNamelessThemeStillGetsIndexHeader(t *testing.T) {
	cfg := testConfig(t, `<html><body>MARKER</body></html>`)
	cfg.Templates = config.Templates{
		Enabled:   true,
		Strategy:  theme.StrategyRoundRobin,
		StateFile: "state.json",
		Themes: []theme.Theme{
			{Replace: theme.ReplaceList{{Old: "MARKER", New: "swapped"}}},
		},
	}

	c := New(cfg, zap.NewNop())
	m, meta, err := c.Message(Request{Recipient: "rcpt@example.com"})
	require.NoError(t, err)

	require.NotNil(t, meta.ThemeIndex)
	assert.Equal(t, 0, *meta.ThemeIndex)
	assert.Equal(t, []string{"0"}, m.GetHeader("X-Theme-Index"))
	assert.Contains(t, render(t, m), "swapped")
}

func TestEmptyThemeListFailsComposition(t *testing.T) {
	cfg := testConfig(t, `<html><body>x</body></html>`)
	cfg.Templates = config.Templates{Enabled: true, Strategy: theme.StrategyRoundRobin}

	c := New(cfg, zap.NewNop())
	_, _, err := c.Message(Request{Recipient: "rcpt@example.com"})
	assert.ErrorIs(t, err, theme.ErrNoThemes)
}

func TestPostscriptFillsPlaceholder(t *testing.T) {
	cfg := testConfig(t, `<html><body><p>{{PS}}</p></body></html>`)
	cfg.PS = config.PS{Enabled: true, Prefix: "P.D.:", Phrases: []string{"see you soon"}}

	c := New(cfg, zap.NewNop())
	m, meta, err := c.Message(Request{Recipient: "rcpt@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "P.D.: see you soon", meta.PSLine)
	out := render(t, m)
	assert.Contains(t, out, "see you soon")
	assert.NotContains(t, out, "{{PS}}")
}

func TestPostscriptInsertedBeforeClosingBody(t *testing.T) {
	html := applyPSToHTML("<html><body><h1>hi</h1></body></html>", "P.D.: bye", "")
	idx := strings.Index(html, "P.D.: bye")
	end := strings.Index(html, "</body>")
	require.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, end)
}

func TestLocalImagesBecomeInlineCIDParts(t *testing.T) {
	cfg := testConfig(t, `<html><body><img src="logo.png"><img src="logo.png"></body></html>`)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BaseDir, "logo.png"), []byte("png-bytes"), 0o644))

	c := New(cfg, zap.NewNop())
	m, _, err := c.Message(Request{Recipient: "rcpt@example.com"})
	require.NoError(t, err)

	out := render(t, m)
	assert.Contains(t, out, `src="cid:`)
	assert.NotContains(t, out, `src="logo.png"`)
	// The same image referenced twice is attached once.
	assert.Equal(t, 1, strings.Count(out, "Content-ID"))
}

func TestRemoteImagesAreLeftAlone(t *testing.T) {
	cfg := testConfig(t, `<html><body><img src="https://example.com/x.png"></body></html>`)

	c := New(cfg, zap.NewNop())
	m, _, err := c.Message(Request{Recipient: "rcpt@example.com"})
	require.NoError(t, err)

	out := render(t, m)
	assert.Contains(t, out, "https://example.com/x.png")
	assert.NotContains(t, out, "Content-ID")
}

func TestMissingInlineImageIsNonFatal(t *testing.T) {
	cfg := testConfig(t, `<html><body><img src="ghost.png"></body></html>`)

	c := New(cfg, zap.NewNop())
	m, _, err := c.Message(Request{Recipient: "rcpt@example.com"})
	require.NoError(t, err)

	// The reference stays unresolved rather than aborting the send.
	assert.Contains(t, render(t, m), "ghost.png")
}

func TestMissingAttachmentIsFatal(t *testing.T) {
	cfg := testConfig(t, `<html><body>x</body></html>`)
	cfg.Email.Attachments = []string{"cv.pdf"}

	c := New(cfg, zap.NewNop())
	_, _, err := c.Message(Request{Recipient: "rcpt@example.com"})
	assert.Error(t, err)
}

func TestVCardAttached(t *testing.T) {
	cfg := testConfig(t, `<html><body>x</body></html>`)
	cfg.VCard = config.VCard{
		FullName:  "Ada Lovelace",
		Title:     "Engineer",
		Email:     "ada@example.com",
		Portfolio: "https://example.com",
		Filename:  "ada.vcf",
	}

	c := New(cfg, zap.NewNop())
	m, _, err := c.Message(Request{Recipient: "rcpt@example.com"})
	require.NoError(t, err)

	out := render(t, m)
	assert.Contains(t, out, "ada.vcf")
	assert.Contains(t, out, "text/vcard")
}

func TestBuildVCardFormat(t *testing.T) {
	card := string(buildVCard(config.VCard{
		FullName:  "Ada Lovelace",
		Title:     "Engineer",
		Email:     "ada@example.com",
		Portfolio: "https://example.com",
		GitHub:    "https://github.com/ada",
		Phone:     "  ",
		Location:  "London",
	}))

	lines := strings.Split(card, "\r\n")
	assert.Equal(t, "BEGIN:VCARD", lines[0])
	assert.Equal(t, "VERSION:3.0", lines[1])
	assert.Contains(t, card, "FN:Ada Lovelace")
	assert.Contains(t, card, "EMAIL;TYPE=INTERNET:ada@example.com")
	assert.Contains(t, card, "NOTE:Location - London")
	// Blank phone is omitted entirely.
	assert.NotContains(t, card, "TEL;")
	assert.Equal(t, "", lines[len(lines)-1])
}

func TestSubjectAndTemplateOverrides(t *testing.T) {
	cfg := testConfig(t, `<html><body>default</body></html>`)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BaseDir, "other.html"),
		[]byte(`<html><body>override</body></html>`), 0o644))

	c := New(cfg, zap.NewNop())
	m, _, err := c.Message(Request{
		Recipient:    "rcpt@example.com",
		Subject:      "frozen subject",
		TemplatePath: "other.html",
	})
	require.NoError(t, err)

	out := render(t, m)
	assert.Contains(t, out, "frozen subject")
	assert.Contains(t, out, "override")
}
