// Package provider loads build targets from a YAML stack file.
package provider

import (
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.TargetProvider = (*StackProvider)(nil)

// Suffixes marking a code dir that already is a packaged artifact. Such
// targets are excluded from building.
var prePackagedSuffixes = []string{".zip", ".jar"}

// StackProvider implements ports.TargetProvider from a parsed stack file.
type StackProvider struct {
	functions []*domain.Function
	layers    []*domain.Layer
	byFnName  map[string]*domain.Function
	byLyName  map[string]*domain.Layer
}

// Load reads a stack file from the given path. Relative code dirs are
// resolved against the file's directory.
func Load(path string) (*StackProvider, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read stack file")
	}

	var stack Stackfile
	if err := yaml.Unmarshal(data, &stack); err != nil {
		return nil, zerr.Wrap(err, "failed to parse stack file")
	}

	return fromStack(&stack, filepath.Dir(path))
}

func fromStack(stack *Stackfile, baseDir string) (*StackProvider, error) {
	p := &StackProvider{
		byFnName: make(map[string]*domain.Function),
		byLyName: make(map[string]*domain.Layer),
	}

	for name, dto := range stack.Functions {
		if dto.CodeDir == "" && dto.PackageType != string(domain.PackageImage) {
			return nil, zerr.With(zerr.New("function is missing codeDir"), "function", name)
		}

		fn := &domain.Function{
			Name:         name,
			FullPath:     name,
			Runtime:      dto.Runtime,
			Handler:      dto.Handler,
			CodeDir:      resolveDir(baseDir, dto.CodeDir),
			PackageType:  packageType(dto.PackageType),
			Architecture: dto.Architecture,
			Metadata:     dto.Metadata,
			Env:          mergeEnv(stack.Globals.Env, dto.Env),
			Layers:       dto.Layers,
			SkipBuild:    dto.SkipBuild || prePackaged(dto.CodeDir),
		}
		p.functions = append(p.functions, fn)
		p.byFnName[name] = fn
	}

	for name, dto := range stack.Layers {
		if dto.CodeDir == "" {
			return nil, zerr.With(zerr.New("layer is missing codeDir"), "layer", name)
		}

		l := &domain.Layer{
			Name:               name,
			FullPath:           name,
			Method:             dto.Method,
			CodeDir:            resolveDir(baseDir, dto.CodeDir),
			PackageType:        packageType(dto.PackageType),
			Architecture:       dto.Architecture,
			Metadata:           dto.Metadata,
			Env:                mergeEnv(stack.Globals.Env, dto.Env),
			CompatibleRuntimes: dto.CompatibleRuntimes,
			SkipBuild:          dto.SkipBuild || prePackaged(dto.CodeDir),
		}
		p.layers = append(p.layers, l)
		p.byLyName[name] = l
	}

	for _, fn := range p.functions {
		for _, ref := range fn.Layers {
			if _, ok := p.byLyName[ref]; !ok {
				err := zerr.With(zerr.New("function references unknown layer"), "function", fn.Name)
				return nil, zerr.With(err, "layer", ref)
			}
		}
	}

	return p, nil
}

// Functions returns all function targets in the stack.
func (p *StackProvider) Functions() []*domain.Function { return p.functions }

// Layers returns all layer targets in the stack.
func (p *StackProvider) Layers() []*domain.Layer { return p.layers }

// Function returns the named function, or nil when absent.
func (p *StackProvider) Function(name string) *domain.Function { return p.byFnName[name] }

// Layer returns the named layer, or nil when absent.
func (p *StackProvider) Layer(name string) *domain.Layer { return p.byLyName[name] }

func resolveDir(baseDir, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(baseDir, dir)
}

func packageType(s string) domain.PackageType {
	if strings.EqualFold(s, string(domain.PackageImage)) {
		return domain.PackageImage
	}
	return domain.PackageArchive
}

func prePackaged(codeDir string) bool {
	lower := strings.ToLower(codeDir)
	for _, suffix := range prePackagedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func mergeEnv(global, local map[string]string) map[string]string {
	if len(global) == 0 {
		return local
	}
	merged := make(map[string]string, len(global)+len(local))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	return merged
}
