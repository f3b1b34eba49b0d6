// Package job defines one unit of batch work and the manifest that records
// every job generated for a validation directory.
package job

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/specialistvlad/tkalgrid/internal/optvalue"
)

// RunMode selects where a job runs.
type RunMode string

const (
	// Condor runs the job as a node of the HTCondor DAG.
	Condor RunMode = "Condor"
	// Local runs the job as a process on this machine.
	Local RunMode = "Local"
	// Crab runs the job on the grid through the crab client.
	Crab RunMode = "Crab"
)

// ParseRunMode interprets s case-insensitively. An empty string is Condor.
func ParseRunMode(s string) (RunMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "condor":
		return Condor, nil
	case "local":
		return Local, nil
	case "crab":
		return Crab, nil
	default:
		return "", fmt.Errorf("unknown run mode %q: must be Condor, Local or Crab", s)
	}
}

// UnmarshalJSON accepts any casing understood by ParseRunMode.
func (m *RunMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRunMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Job is a single worker or merge job.
type Job struct {
	Name string `json:"name"`
	// Dir is the job's private working directory.
	Dir string `json:"dir"`
	Exe string `json:"exe"`
	// FrameworkConfig is the framework configuration the executable is
	// started with. Empty for jobs that read only validation.json.
	FrameworkConfig string           `json:"cms-config,omitempty"`
	RunMode         RunMode          `json:"run-mode"`
	Dependencies    []string         `json:"dependencies"`
	Config          optvalue.Options `json:"config"`
}

// Output returns the job's configured output location.
func (j *Job) Output() string {
	s, _ := optvalue.String(j.Config, "output")
	return s
}
