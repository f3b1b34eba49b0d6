// Package crab prepares grid task configurations and drives the crab
// command line client.
package crab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Mode selects how the task gets its input and executable.
type Mode int

const (
	// ModeDataset runs the framework config directly over the files listed
	// in the job's dataset file.
	ModeDataset Mode = iota
	// ModeScript ships a flattened framework config and runs it through a
	// wrapper script over a single placeholder input file.
	ModeScript
)

func (m Mode) String() string {
	if m == ModeScript {
		return "script"
	}
	return "dataset"
}

// Files written into the job directory for a grid task.
const (
	ConfigFile    = "crabConfig.py"
	ScriptExe     = "runCrab.sh"
	FlatConfig    = "validation.py"
	jobConfigYAML = "validation.yaml"
	jobConfigJSON = "validation.json"
	psetFile      = "validation_cfg.py"
)

// GroupArea is the only storage area grid outputs may be written to.
const GroupArea = "/store/group/alca_trackeralign/"

// ScriptInputFile satisfies the client's requirement for an input file in
// script mode. The job never reads it.
const ScriptInputFile = "/store/data/Run2018A/HLTPhysics/ALCARECO/TkAlMinBias-06Jun2018-v1/40000/92C90299-6D9C-E811-B797-00259029ED0E.root"

// ErrOutputOutsideGroupArea is returned when a job's output is not below
// GroupArea.
var ErrOutputOutsideGroupArea = errors.New("grid output must be below " + GroupArea)

type General struct {
	RequestName     string
	WorkArea        string
	TransferOutputs bool
}

type JobType struct {
	PluginName       string
	PsetName         string
	PyCfgParams      []string
	InputFiles       []string
	ScriptExe        string
	MaxJobRuntimeMin int
	MaxMemoryMB      int
}

type Data struct {
	UserInputFiles       []string
	OutLFNDirBase        string
	UnitsPerJob          int
	Splitting            string
	OutputPrimaryDataset string
}

type Site struct {
	Whitelist   []string
	StorageSite string
}

// Config is the task configuration handed to the crab client.
type Config struct {
	General General
	JobType JobType
	Data    Data
	Site    Site
	Mode    Mode
}

type jobConfig struct {
	Output     string `yaml:"output"`
	Validation struct {
		Dataset string `yaml:"dataset"`
	} `yaml:"validation"`
}

// Prepare builds the task configuration of job name from the
// validation.yaml in dir.
func Prepare(name, dir string, mode Mode) (*Config, error) {
	raw, err := os.ReadFile(filepath.Join(dir, jobConfigYAML))
	if err != nil {
		return nil, fmt.Errorf("read job config: %w", err)
	}
	var jc jobConfig
	if err := yaml.Unmarshal(raw, &jc); err != nil {
		return nil, fmt.Errorf("decode job config: %w", err)
	}

	relDir, err := OutLFNDirBase(jc.Output)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		General: General{RequestName: name, WorkArea: dir, TransferOutputs: true},
		JobType: JobType{
			PluginName:       "Analysis",
			PsetName:         filepath.Join(dir, psetFile),
			MaxJobRuntimeMin: 1440,
			MaxMemoryMB:      2500,
		},
		Data: Data{
			OutLFNDirBase:        relDir,
			Splitting:            "FileBased",
			OutputPrimaryDataset: "Validation",
		},
		Site: Site{Whitelist: []string{"T2_CH_CERN"}, StorageSite: "T2_CH_CERN"},
		Mode: mode,
	}

	switch mode {
	case ModeScript:
		cfg.JobType.InputFiles = []string{filepath.Join(dir, FlatConfig)}
		cfg.JobType.ScriptExe = filepath.Join(dir, ScriptExe)
		cfg.Data.UserInputFiles = []string{ScriptInputFile}
		cfg.Data.UnitsPerJob = 1
	default:
		if jc.Validation.Dataset == "" {
			return nil, fmt.Errorf("job %s: validation.dataset is not set", name)
		}
		files, err := readDataset(jc.Validation.Dataset)
		if err != nil {
			return nil, err
		}
		cfg.JobType.PyCfgParams = []string{"config=" + filepath.Join(dir, jobConfigJSON), "isCrab=1"}
		cfg.Data.UserInputFiles = files
		cfg.Data.UnitsPerJob = len(files)
	}
	return cfg, nil
}

// OutLFNDirBase returns the part of output starting at /store, which must
// lie below GroupArea.
func OutLFNDirBase(output string) (string, error) {
	i := strings.Index(output, "/store")
	if i < 0 || !strings.Contains(output[i:], GroupArea) {
		return "", fmt.Errorf("%w: given %q", ErrOutputOutsideGroupArea, output)
	}
	return output[i:], nil
}

func readDataset(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	defer f.Close()

	var files []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			files = append(files, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("dataset %s lists no files", path)
	}
	return files, nil
}

// RequestDir is the directory the client creates for the task.
func (c *Config) RequestDir() string {
	return filepath.Join(c.General.WorkArea, "crab_"+c.General.RequestName)
}

// Path is where the rendered configuration is written.
func (c *Config) Path() string {
	return filepath.Join(c.General.WorkArea, ConfigFile)
}

var pyConfig = template.Must(template.New(ConfigFile).Funcs(template.FuncMap{
	"py":     pyString,
	"pylist": pyList,
	"pybool": pyBool,
}).Parse(`from CRABClient.UserUtilities import config
config = config()

config.General.requestName = {{py .General.RequestName}}
config.General.workArea = {{py .General.WorkArea}}
config.General.transferOutputs = {{pybool .General.TransferOutputs}}

config.JobType.pluginName = {{py .JobType.PluginName}}
config.JobType.psetName = {{py .JobType.PsetName}}
{{- if .JobType.PyCfgParams}}
config.JobType.pyCfgParams = {{pylist .JobType.PyCfgParams}}
{{- end}}
{{- if .JobType.InputFiles}}
config.JobType.inputFiles = {{pylist .JobType.InputFiles}}
{{- end}}
{{- if .JobType.ScriptExe}}
config.JobType.scriptExe = {{py .JobType.ScriptExe}}
{{- end}}
config.JobType.maxJobRuntimeMin = {{.JobType.MaxJobRuntimeMin}}
config.JobType.maxMemoryMB = {{.JobType.MaxMemoryMB}}

config.Data.userInputFiles = {{pylist .Data.UserInputFiles}}
config.Data.outLFNDirBase = {{py .Data.OutLFNDirBase}}
config.Data.unitsPerJob = {{.Data.UnitsPerJob}}
config.Data.splitting = {{py .Data.Splitting}}
config.Data.outputPrimaryDataset = {{py .Data.OutputPrimaryDataset}}

config.Site.whitelist = {{pylist .Site.Whitelist}}
config.Site.storageSite = {{py .Site.StorageSite}}
`))

// Render writes c as a python configuration file for the client.
func (c *Config) Render(w io.Writer) error {
	return pyConfig.Execute(w, c)
}

func pyString(s string) string {
	return strconv.Quote(s)
}

func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = pyString(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
