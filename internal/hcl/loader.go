package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/tkalgrid/internal/config"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/fsutil"
	"github.com/specialistvlad/tkalgrid/internal/optvalue"
)

// Extension is the file extension picked up when loading a directory.
const Extension = ".hcl"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses path (a file or a directory of .hcl files) into a model.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	files, err := findFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found at %s", Extension, path)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := config.NewModel()
	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if err := merge(model, &root); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	logger.Debug("HCL loading complete.", "name", model.Name, "alignments", len(model.Alignments), "validations", len(model.Validations))
	return model, nil
}

func findFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	return fsutil.FindFilesByExtension(path, Extension)
}

// merge folds one decoded file into the model. Scalars may be repeated only
// with the same value; named blocks must be unique across all files.
func merge(model *config.Model, root *fileRoot) error {
	if err := mergeScalar(&model.Name, root.Name, "name"); err != nil {
		return err
	}
	if err := mergeScalar(&model.LFS, root.LFS, "lfs"); err != nil {
		return err
	}

	for _, a := range root.Alignments {
		if _, dup := model.Alignments[a.Name]; dup {
			return fmt.Errorf("alignment %q defined more than once", a.Name)
		}
		opts, err := attributes(a.Body)
		if err != nil {
			return fmt.Errorf("alignment %q: %w", a.Name, err)
		}
		model.Alignments[a.Name] = opts
	}

	for _, v := range root.Validations {
		set := model.Validation(v.Kind)
		if err := mergeEntries(set.Single, v.Singles, v.Kind, "single"); err != nil {
			return err
		}
		if err := mergeEntries(set.Merge, v.Merges, v.Kind, "merge"); err != nil {
			return err
		}
	}
	return nil
}

func mergeScalar(dst *string, val, attr string) error {
	if val == "" {
		return nil
	}
	if *dst != "" && *dst != val {
		return fmt.Errorf("conflicting values for %s: %q and %q", attr, *dst, val)
	}
	*dst = val
	return nil
}

func mergeEntries(dst map[string]config.Options, blocks []*namedBlock, kind, section string) error {
	for _, b := range blocks {
		if _, dup := dst[b.Name]; dup {
			return fmt.Errorf("validation %s %s %q defined more than once", kind, section, b.Name)
		}
		opts, err := attributes(b.Body)
		if err != nil {
			return fmt.Errorf("validation %s %s %q: %w", kind, section, b.Name, err)
		}
		dst[b.Name] = opts
	}
	return nil
}

// attributes evaluates every attribute of body as a constant expression.
func attributes(body hcl.Body) (config.Options, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	opts := make(config.Options, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", name, diags)
		}
		conv, err := optvalue.FromCty(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		opts[name] = conv
	}
	return opts, nil
}
