package domain

// Graph owns the full set of build definitions for one run. At most one
// physical build executes per unique definition; every target sharing a
// definition receives identical artifacts.
type Graph struct {
	functions []*FunctionDefinition
	layers    []*LayerDefinition
	byToken   map[string]int // index into functions or layers, disambiguated by kind prefix
}

// NewGraph creates an empty fingerprint graph.
func NewGraph() *Graph {
	return &Graph{byToken: make(map[string]int)}
}

const (
	functionKey = "f:"
	layerKey    = "l:"
)

// PutFunction inserts a function target, merging it into an existing
// definition when an equal fingerprint is already present. Repeated
// identical input is idempotent.
func (g *Graph) PutFunction(f *Function) *FunctionDefinition {
	fp := NewFunctionFingerprint(f)
	key := functionKey + fp.Token()

	if i, ok := g.byToken[key]; ok {
		g.functions[i].Append(f)
		return g.functions[i]
	}

	def := NewFunctionDefinition(f)
	g.byToken[key] = len(g.functions)
	g.functions = append(g.functions, def)
	return def
}

// PutLayer inserts a layer target, merging into an equal definition when one
// exists.
func (g *Graph) PutLayer(l *Layer) *LayerDefinition {
	fp := NewLayerFingerprint(l)
	key := layerKey + fp.Token()

	if i, ok := g.byToken[key]; ok {
		g.layers[i].Append(l)
		return g.layers[i]
	}

	def := NewLayerDefinition(l)
	g.byToken[key] = len(g.layers)
	g.layers = append(g.layers, def)
	return def
}

// Restore seeds the graph with definitions re-hydrated from the persisted
// build manifest. Restored definitions carry no targets; PutFunction and
// PutLayer re-associate them as targets are read from the provider, and
// Compact discards the ones no live target claimed.
func (g *Graph) Restore(functions []*FunctionDefinition, layers []*LayerDefinition) {
	for _, def := range functions {
		key := functionKey + def.Token()
		if _, ok := g.byToken[key]; ok {
			continue
		}
		g.byToken[key] = len(g.functions)
		g.functions = append(g.functions, def)
	}
	for _, def := range layers {
		key := layerKey + def.Token()
		if _, ok := g.byToken[key]; ok {
			continue
		}
		g.byToken[key] = len(g.layers)
		g.layers = append(g.layers, def)
	}
}

// Compact removes definitions with zero live targets, typically stale
// entries from a previous run whose target was deleted or renamed.
func (g *Graph) Compact() {
	g.byToken = make(map[string]int)

	kept := g.functions[:0]
	for _, def := range g.functions {
		if !def.HasTargets() {
			continue
		}
		g.byToken[functionKey+def.Token()] = len(kept)
		kept = append(kept, def)
	}
	g.functions = kept

	keptLayers := g.layers[:0]
	for _, def := range g.layers {
		if !def.HasTargets() {
			continue
		}
		g.byToken[layerKey+def.Token()] = len(keptLayers)
		keptLayers = append(keptLayers, def)
	}
	g.layers = keptLayers
}

// FunctionDefinitions returns the function definitions in insertion order.
func (g *Graph) FunctionDefinitions() []*FunctionDefinition { return g.functions }

// LayerDefinitions returns the layer definitions in insertion order.
func (g *Graph) LayerDefinitions() []*LayerDefinition { return g.layers }

// Tokens returns the identity tokens of all definitions currently in the
// graph, used by the cache to prune directories no definition claims.
func (g *Graph) Tokens() map[string]bool {
	tokens := make(map[string]bool, len(g.functions)+len(g.layers))
	for _, def := range g.functions {
		tokens[def.Token()] = true
	}
	for _, def := range g.layers {
		tokens[def.Token()] = true
	}
	return tokens
}
