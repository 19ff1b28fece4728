// Package evidence builds incident evidence records from analyst input and
// collected files.
package evidence

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/irflow/pkg/incident"
)

// Fields builds an evidence record from key=value pairs.
func Fields(kind, source string, pairs []string) (incident.Evidence, error) {
	ev := incident.Evidence{Kind: kind, Source: source}
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return incident.Evidence{}, fmt.Errorf("evidence field %q is not key=value", kv)
		}
		if ev.Data == nil {
			ev.Data = map[string]any{}
		}
		ev.Data[k] = v
	}
	return ev, nil
}

// Attachment builds an evidence record for a collected file, pinning its
// content with a SHA256 digest so later tampering is detectable.
func Attachment(kind, source, path string) (incident.Evidence, error) {
	hash, size, err := HashFile(path)
	if err != nil {
		return incident.Evidence{}, fmt.Errorf("hash attachment: %w", err)
	}
	return incident.Evidence{
		Kind:   kind,
		Source: source,
		Data: map[string]any{
			"path":   path,
			"name":   filepath.Base(path),
			"sha256": hash,
			"size":   size,
		},
	}, nil
}

// Verify reports whether the file behind an attachment record still
// matches its recorded digest.
func Verify(ev incident.Evidence) (bool, error) {
	path, _ := ev.Data["path"].(string)
	want, _ := ev.Data["sha256"].(string)
	if path == "" || want == "" {
		return false, fmt.Errorf("evidence %q is not an attachment", ev.Kind)
	}
	got, _, err := HashFile(path)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// HashFile computes SHA256 hash and file size.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), size, nil
}
