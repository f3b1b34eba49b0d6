package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ManifestFile is the name of the manifest inside a validation directory.
const ManifestFile = "jobs.json"

// Manifest records every job generated by one run of the generator.
type Manifest struct {
	RunID         string    `json:"run_id"`
	ConfigName    string    `json:"name"`
	ValidationDir string    `json:"validation_dir"`
	CreatedAt     time.Time `json:"created_at"`
	Jobs          []*Job    `json:"jobs"`
}

// NewManifest stamps a fresh run ID.
func NewManifest(name, validationDir string, jobs []*Job) *Manifest {
	return &Manifest{
		RunID:         uuid.NewString(),
		ConfigName:    name,
		ValidationDir: validationDir,
		CreatedAt:     time.Now().UTC(),
		Jobs:          jobs,
	}
}

// Job returns the job with the given name.
func (m *Manifest) Job(name string) (*Job, bool) {
	for _, j := range m.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// ByMode returns the jobs with the given run mode, in manifest order.
func (m *Manifest) ByMode(mode RunMode) []*Job {
	var out []*Job
	for _, j := range m.Jobs {
		if j.RunMode == mode {
			out = append(out, j)
		}
	}
	return out
}

// WriteManifest stores m as indented JSON in its validation directory.
func WriteManifest(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(m.ValidationDir, 0o755); err != nil {
		return fmt.Errorf("create validation dir: %w", err)
	}
	return os.WriteFile(filepath.Join(m.ValidationDir, ManifestFile), append(data, '\n'), 0o644)
}

// ReadManifest loads the manifest stored in validationDir.
func ReadManifest(validationDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(validationDir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
