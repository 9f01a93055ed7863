package domain_test

import (
	"errors"
	"testing"

	"go.trai.ch/crate/internal/core/domain"
)

func TestGraph_PutDeduplicates(t *testing.T) {
	g := domain.NewGraph()

	d1 := g.PutFunction(sampleFunction("Fn1"))
	d2 := g.PutFunction(sampleFunction("Fn2"))

	if d1 != d2 {
		t.Fatal("identical recipes should resolve to one definition")
	}
	if len(g.FunctionDefinitions()) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(g.FunctionDefinitions()))
	}
	if len(d1.Functions) != 2 {
		t.Errorf("expected 2 member targets, got %d", len(d1.Functions))
	}
}

func TestGraph_PutIdempotent(t *testing.T) {
	g := domain.NewGraph()
	fn := sampleFunction("Fn1")

	g.PutFunction(fn)
	def := g.PutFunction(fn)

	if len(def.Functions) != 1 {
		t.Errorf("repeated identical input must not duplicate members, got %d", len(def.Functions))
	}
}

func TestGraph_CustomCommandsStaySeparate(t *testing.T) {
	g := domain.NewGraph()
	f1 := sampleFunction("Fn1")
	f2 := sampleFunction("Fn2")
	for _, f := range []*domain.Function{f1, f2} {
		f.Metadata = map[string]string{domain.MetadataBuildMethod: "makefile"}
	}

	g.PutFunction(f1)
	g.PutFunction(f2)

	if len(g.FunctionDefinitions()) != 2 {
		t.Errorf("expected 2 definitions for custom commands, got %d", len(g.FunctionDefinitions()))
	}
}

func TestGraph_RestoreAndReassociate(t *testing.T) {
	fn := sampleFunction("Fn1")
	fp := domain.NewFunctionFingerprint(fn)
	stale := domain.RestoreFunctionDefinition(fp, "srchash", "manhash")

	g := domain.NewGraph()
	g.Restore([]*domain.FunctionDefinition{stale}, nil)

	def := g.PutFunction(fn)
	if def != stale {
		t.Fatal("restored definition should be re-associated by token")
	}
	if def.SourceHash != "srchash" || def.ManifestHash != "manhash" {
		t.Error("restored hashes lost during re-association")
	}
}

func TestGraph_CompactDropsStaleDefinitions(t *testing.T) {
	fn := sampleFunction("Fn1")
	renamed := sampleFunction("Fn1")
	renamed.CodeDir = "other-src"

	stale := domain.RestoreFunctionDefinition(domain.NewFunctionFingerprint(renamed), "h", "")

	g := domain.NewGraph()
	g.Restore([]*domain.FunctionDefinition{stale}, nil)
	g.PutFunction(fn)

	g.Compact()

	if len(g.FunctionDefinitions()) != 1 {
		t.Fatalf("expected stale definition to be dropped, got %d", len(g.FunctionDefinitions()))
	}
	if !g.Tokens()[g.FunctionDefinitions()[0].Token()] {
		t.Error("surviving token missing from Tokens()")
	}
}

func TestDefinition_EmptyQueryIsInvalidGraph(t *testing.T) {
	fp := domain.NewFunctionFingerprint(sampleFunction("Fn1"))
	def := domain.RestoreFunctionDefinition(fp, "", "")

	if _, err := def.Handler(); !errors.Is(err, domain.ErrInvalidGraph) {
		t.Errorf("expected ErrInvalidGraph, got %v", err)
	}
}
