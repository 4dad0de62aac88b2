package compose

import (
	"io"
	"strings"

	"gopkg.in/gomail.v2"

	"outreach/internal/config"
)

// buildVCard renders a vCard 3.0 block with CRLF line endings, which is
// what contact importers across mail clients agree on.
func buildVCard(v config.VCard) []byte {
	lines := []string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"FN:" + v.FullName,
	}
	if v.Title != "" {
		lines = append(lines, "TITLE:"+v.Title)
	}
	if v.Email != "" {
		lines = append(lines, "EMAIL;TYPE=INTERNET:"+v.Email)
	}
	if v.Portfolio != "" {
		lines = append(lines, "URL:"+v.Portfolio)
	}
	if v.GitHub != "" {
		lines = append(lines, "X-SOCIALPROFILE;TYPE=github:"+v.GitHub)
	}
	if phone := strings.TrimSpace(v.Phone); phone != "" {
		lines = append(lines, "TEL;TYPE=CELL:"+phone)
	}
	if v.Location != "" {
		lines = append(lines, "NOTE:Location - "+v.Location)
	}
	lines = append(lines, "END:VCARD", "")

	return []byte(strings.Join(lines, "\r\n"))
}

// attachVCard adds the configured contact card as a .vcf attachment.
func attachVCard(m *gomail.Message, cfg *config.Config) {
	data := buildVCard(cfg.VCard)
	m.Attach(cfg.VCard.Filename,
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}),
		gomail.SetHeader(map[string][]string{
			"Content-Type": {`text/vcard; charset="utf-8"; name="` + cfg.VCard.Filename + `"`},
		}),
	)
}
