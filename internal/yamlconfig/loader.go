// Package yamlconfig implements config.Loader for the YAML (and, since YAML is
// a superset, JSON) form of a validation configuration:
//
//	name: demo
//	LFS: /eos/cms/store/group/alca_trackeralign/demo
//	alignments:
//	  ideal: {globaltag: auto:phase1_2017_design}
//	validations:
//	  MTS:
//	    single:
//	      cosmics: {alignments: [ideal], dataset: /data/cosmics.txt}
//	    merge:
//	      summary: {singles: [cosmics]}
//
// A validation without `single` and `merge` keys lists its single entries
// directly, as in
//
//	validations:
//	  MTS:
//	    cosmics: {alignments: [ideal], dataset: /data/cosmics.txt}
package yamlconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/specialistvlad/tkalgrid/internal/config"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

type document struct {
	Name        string                        `yaml:"name"`
	LFS         string                        `yaml:"LFS"`
	LFSLower    string                        `yaml:"lfs"`
	Alignments  map[string]map[string]any     `yaml:"alignments"`
	Validations map[string]validationDocument `yaml:"validations"`
}

type validationDocument struct {
	Single map[string]map[string]any `yaml:"single"`
	Merge  map[string]map[string]any `yaml:"merge"`
}

// UnmarshalYAML accepts both the sectioned and the flat layout. A sectioned
// validation may not carry any other key.
func (v *validationDocument) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: validation must be a mapping", node.Line)
	}
	var sectioned bool
	for i := 0; i < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "single", "merge":
			sectioned = true
		}
	}
	if !sectioned {
		return node.Decode(&v.Single)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i]
		if key.Value != "single" && key.Value != "merge" {
			return fmt.Errorf("line %d: unexpected key %q next to single/merge", key.Line, key.Value)
		}
	}
	type plain validationDocument
	return node.Decode((*plain)(v))
}

// Loader reads YAML or JSON validation configs.
type Loader struct{}

// NewLoader creates a new YAML configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the file at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	model, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	logger.Debug("YAML loading complete.", "name", model.Name, "alignments", len(model.Alignments), "validations", len(model.Validations))
	return model, nil
}

// Decode parses a single YAML document from r.
func Decode(r io.Reader) (*config.Model, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, err
	}

	model := config.NewModel()
	model.Name = doc.Name
	model.LFS = doc.LFS
	if model.LFS == "" {
		model.LFS = doc.LFSLower
	}
	for name, opts := range doc.Alignments {
		model.Alignments[name] = normalizeOptions(opts)
	}
	for kind, v := range doc.Validations {
		set := model.Validation(kind)
		for name, opts := range v.Single {
			set.Single[name] = normalizeOptions(opts)
		}
		for name, opts := range v.Merge {
			set.Merge[name] = normalizeOptions(opts)
		}
	}
	return model, nil
}

// normalizeOptions makes decoded values match what the HCL loader produces:
// integers are int64 and nested maps are map[string]any.
func normalizeOptions(in map[string]any) config.Options {
	out := make(config.Options, len(in))
	for k, v := range in {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case map[string]any:
		return normalizeOptions(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalize(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = normalize(inner)
		}
		return out
	default:
		return v
	}
}

// Encode writes v as YAML with two-space indentation.
func Encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
