package compose

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// embedLocalImages rewrites local <img src> references to cid: parts
// and embeds the files as inline attachments, so mail clients render
// them without fetching anything. Remote, data: and cid: sources are
// left alone. A missing file is a warning, never a failed send.
func (c *Composer) embedLocalImages(m *gomail.Message, html, baseDir string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("compose: parse html: %w", err)
	}

	embedded := map[string]string{} // src -> cid, dedup across repeats
	changed := false

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") ||
			strings.HasPrefix(src, "cid:") || strings.HasPrefix(src, "data:") {
			return
		}

		cid, ok := embedded[src]
		if !ok {
			path := src
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, src)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				c.Log.Warn("compose: inline image not found, leaving reference as is",
					zap.String("src", src), zap.Error(err))
				return
			}

			cid = contentID(data, path)
			m.Embed(cid, gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}))
			embedded[src] = cid
		}

		img.SetAttr("src", "cid:"+cid)
		changed = true
	})

	if !changed && len(embedded) == 0 {
		return html, nil
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("compose: render html: %w", err)
	}
	return out, nil
}

// contentID derives a stable part identifier from the image bytes, so
// identical content always maps to the same cid and repeated sends stay
// deduplicated.
func contentID(data []byte, path string) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x%s", sum[:8], filepath.Ext(path))
}
