// Package template rewrites the stack file after a build so deploy tooling
// picks up built artifact locations instead of raw source dirs.
package template

import (
	"os"
	"path/filepath"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Writer produces the built stack file next to the build output.
type Writer struct{}

func NewWriter() *Writer { return &Writer{} }

// Write copies the stack file at srcPath to dstPath, pointing each built
// target at its artifact. Archive targets get their codeDir replaced with a
// path relative to the output file's directory when possible; image targets
// get an imageUri entry instead. Unbuilt targets pass through untouched.
func (w *Writer) Write(srcPath, dstPath string, artifacts domain.ArtifactMap, targets ports.TargetProvider) error {
	data, err := os.ReadFile(srcPath) //nolint:gosec // path is provided by user
	if err != nil {
		return zerr.Wrap(err, "failed to read stack file")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return zerr.Wrap(err, "failed to parse stack file")
	}

	outDir := filepath.Dir(dstPath)

	rewrite := func(section string, isImage func(string) bool) {
		table := mappingValue(documentRoot(&doc), section)
		if table == nil {
			return
		}
		for i := 0; i+1 < len(table.Content); i += 2 {
			name := table.Content[i].Value
			artifact, ok := artifacts[name]
			if !ok {
				continue
			}
			entry := table.Content[i+1]
			if isImage(name) {
				setScalar(entry, "imageUri", artifact)
				continue
			}
			setScalar(entry, "codeDir", relativize(outDir, artifact))
		}
	}

	rewrite("functions", func(name string) bool {
		fn := targets.Function(name)
		return fn != nil && fn.PackageType == domain.PackageImage
	})
	rewrite("layers", func(name string) bool {
		l := targets.Layer(name)
		return l != nil && l.PackageType == domain.PackageImage
	})

	return writeYAML(dstPath, &doc)
}

// WriteLayerStack emits an auxiliary stack fragment declaring the generated
// dependency layers and their function attachments.
func (w *Writer) WriteLayerStack(dstPath string, layers []domain.GeneratedLayer) error {
	type layerEntry struct {
		CodeDir            string   `yaml:"codeDir"`
		CompatibleRuntimes []string `yaml:"compatibleRuntimes,omitempty"`
		Functions          []string `yaml:"functions,omitempty"`
	}
	type fragment struct {
		Layers map[string]layerEntry `yaml:"layers"`
	}

	outDir := filepath.Dir(dstPath)
	frag := fragment{Layers: make(map[string]layerEntry, len(layers))}
	for _, l := range layers {
		frag.Layers[l.Name] = layerEntry{
			CodeDir:            relativize(outDir, l.ContentDir),
			CompatibleRuntimes: l.CompatibleRuntimes,
			Functions:          l.Functions,
		}
	}

	var doc yaml.Node
	data, err := yaml.Marshal(&frag)
	if err != nil {
		return zerr.Wrap(err, "failed to marshal layer stack")
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return zerr.Wrap(err, "failed to reparse layer stack")
	}
	return writeYAML(dstPath, &doc)
}

func writeYAML(path string, doc *yaml.Node) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return zerr.Wrap(err, "failed to create output directory")
	}

	f, err := os.Create(path) //nolint:gosec // path is derived from the build dir
	if err != nil {
		return zerr.Wrap(err, "failed to create output file")
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		_ = f.Close()
		return zerr.Wrap(err, "failed to write output file")
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return zerr.Wrap(err, "failed to flush output file")
	}
	return f.Close()
}

// relativize prefers paths relative to base; absolute artifacts outside the
// tree stay absolute.
func relativize(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return rel
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return doc
}

// mappingValue returns the value node of the given key within a mapping, or
// nil when missing.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// setScalar updates the named key within a mapping, appending it when absent.
func setScalar(node *yaml.Node, key, value string) {
	if node == nil || node.Kind != yaml.MappingNode {
		return
	}
	if existing := mappingValue(node, key); existing != nil {
		existing.SetString(value)
		return
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	valNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
	node.Content = append(node.Content, keyNode, valNode)
}
