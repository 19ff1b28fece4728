package playbook

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally decodes a playbook YAML file.
func LoadFile(path string) (*Playbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playbook: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a playbook from r. Unknown fields are rejected.
func Load(r io.Reader) (*Playbook, error) {
	var pb Playbook
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pb); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &pb, nil
}

// LoadBytes is Load over an in-memory document.
func LoadBytes(data []byte) (*Playbook, error) {
	return Load(bytes.NewReader(data))
}

// Files returns the playbook files (*.yaml, *.yml) directly under dir, sorted.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read playbook dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Marshal renders pb as YAML.
func Marshal(pb *Playbook) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(pb); err != nil {
		return nil, fmt.Errorf("encode playbook: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
