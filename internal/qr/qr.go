package qr

import (
	"fmt"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"
)

// Ensure returns the path of a PNG encoding url, rendering it only if
// it does not already exist. The file is content-addressed by its
// configured name: while the target URL is unchanged the cached image
// is reused and never regenerated.
func Ensure(url, outputDir, filename string, size int) (string, error) {
	if url == "" {
		return "", fmt.Errorf("qr: no target url")
	}
	if size <= 0 {
		size = 256
	}

	path := filepath.Join(outputDir, filename)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("qr: create output dir: %w", err)
	}
	if err := qrcode.WriteFile(url, qrcode.Medium, size, path); err != nil {
		return "", fmt.Errorf("qr: render %s: %w", url, err)
	}
	return path, nil
}
