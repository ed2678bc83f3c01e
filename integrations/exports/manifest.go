package exports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Artifact describes one exported file inside a bundle.
type Artifact struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
	Size     int    `json:"size"`
}

// Manifest indexes the artifacts of one export run. The manifest itself
// carries a checksum over its canonical encoding so a bundle is verifiable
// end to end.
type Manifest struct {
	GeneratedAt time.Time  `json:"generatedAt"`
	Artifacts   []Artifact `json:"artifacts"`
}

// Add records an artifact.
func (m *Manifest) Add(name string, data []byte, sum string) {
	m.Artifacts = append(m.Artifacts, Artifact{Name: name, Checksum: sum, Size: len(data)})
}

// Encode serialises the manifest and returns its own checksum.
func (m *Manifest) Encode() ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// WriteBundle writes the named artifacts plus a manifest.json into dir,
// creating it if needed.
func WriteBundle(dir string, generatedAt time.Time, artifacts map[string][]byte) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	manifest := &Manifest{GeneratedAt: generatedAt.UTC()}
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data := artifacts[name]
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return nil, fmt.Errorf("exports: write %s: %w", name, err)
		}
		manifest.Add(name, data, checksum(data))
	}
	encoded, _, err := manifest.Encode()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), encoded, 0o644); err != nil {
		return nil, err
	}
	return manifest, nil
}
