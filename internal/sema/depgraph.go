package sema

import (
	"fmt"
	"strings"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/types"
)

// DepNode is one injectable class with its resolved constructor
// dependencies.
type DepNode struct {
	Decl  ast.DeclID
	Scope ast.DepScope
	// Deps lists the resolved provider class for each bracketed dependency,
	// in declaration order. NoDeclID marks a dependency whose binding
	// failed; a diagnostic was already reported for it.
	Deps []ast.DeclID
}

// DepGraph is the compile-time dependency-injection plan: which class
// provides each dependency and the order in which singletons are
// constructed at app startup.
type DepGraph struct {
	Nodes  []DepNode
	ByDecl map[ast.DeclID]int
	// Order lists every injectable class topologically, dependencies before
	// dependents. Empty when resolution found a cycle.
	Order []ast.DeclID
}

// Node returns the dependency node for a class declaration.
func (g *DepGraph) Node(decl ast.DeclID) (*DepNode, bool) {
	idx, ok := g.ByDecl[decl]
	if !ok {
		return nil, false
	}
	return &g.Nodes[idx], true
}

// resolveDependencies builds and orders the injection graph. A dependency
// written as a class type binds to that class; one written as a trait type
// binds to the single class implementing the trait. Zero implementors is a
// missing binding, two or more is ambiguous. A cyclic graph is a
// diagnostic, never an ordering guess.
func (tc *typeChecker) resolveDependencies() *DepGraph {
	g := &DepGraph{ByDecl: make(map[ast.DeclID]int)}

	// Trait implementor index over surviving classes.
	implementors := make(map[types.TypeID][]ast.DeclID)
	for _, declID := range tc.tree.Module.Decls {
		if tc.result.Broken[declID] {
			continue
		}
		decl := tc.tree.Decls.Get(declID)
		if decl == nil || decl.Kind != ast.DeclClass {
			continue
		}
		for _, tr := range decl.Traits {
			if t := tc.resolveTypeRef(tr); t != types.NoTypeID {
				implementors[t] = append(implementors[t], declID)
			}
		}
	}

	// Apps consume dependencies too; they are never providers.
	for _, declID := range tc.tree.Module.Decls {
		if tc.result.Broken[declID] {
			continue
		}
		decl := tc.tree.Decls.Get(declID)
		if decl == nil || (decl.Kind != ast.DeclClass && decl.Kind != ast.DeclApp) {
			continue
		}
		node := DepNode{Decl: declID, Scope: decl.Scope}
		for _, depRef := range decl.Deps {
			node.Deps = append(node.Deps, tc.resolveBinding(depRef, implementors))
		}
		g.ByDecl[declID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, node)
	}

	tc.orderGraph(g)
	return g
}

func (tc *typeChecker) resolveBinding(depRef ast.TypeRefID, implementors map[types.TypeID][]ast.DeclID) ast.DeclID {
	depType := tc.resolveTypeRef(depRef)
	if depType == types.NoTypeID {
		return ast.NoDeclID
	}
	span := tc.tree.TypeRefs.Get(depRef).Span
	tt := tc.types.MustLookup(depType)

	switch tt.Kind {
	case types.KindStruct:
		if tc.isAppDecl(tt.Decl) {
			tc.report(diag.SemaMissingBinding, span,
				fmt.Sprintf("app %s is not injectable", tc.typeLabel(depType)))
			return ast.NoDeclID
		}
		return tt.Decl

	case types.KindTrait:
		impls := implementors[depType]
		switch len(impls) {
		case 0:
			tc.report(diag.SemaMissingBinding, span,
				fmt.Sprintf("no class implements %s", tc.typeLabel(depType)))
			return ast.NoDeclID
		case 1:
			return impls[0]
		default:
			names := make([]string, 0, len(impls))
			for _, impl := range impls {
				names = append(names, tc.name(tc.tree.Decls.Get(impl).Name))
			}
			tc.report(diag.SemaAmbiguousBinding, span,
				fmt.Sprintf("%s is implemented by %s, binding is ambiguous",
					tc.typeLabel(depType), strings.Join(names, " and ")))
			return ast.NoDeclID
		}

	default:
		tc.report(diag.SemaMissingBinding, span,
			fmt.Sprintf("%s is not injectable", tc.typeLabel(depType)))
		return ast.NoDeclID
	}
}

// orderGraph runs Kahn's algorithm over the resolved nodes. Declaration
// order breaks ties so the construction plan is deterministic across runs.
func (tc *typeChecker) orderGraph(g *DepGraph) {
	indegree := make([]int, len(g.Nodes))
	dependents := make([][]int, len(g.Nodes))
	for i, node := range g.Nodes {
		for _, dep := range node.Deps {
			if !dep.IsValid() {
				continue
			}
			j, ok := g.ByDecl[dep]
			if !ok {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	queue := make([]int, 0, len(g.Nodes))
	for i := range g.Nodes {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		g.Order = append(g.Order, g.Nodes[i].Decl)
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(g.Order) == len(g.Nodes) {
		return
	}

	// Whatever Kahn left behind sits on at least one cycle.
	var names []string
	span := tc.tree.Decls.Get(g.Nodes[0].Decl).Span
	for i, node := range g.Nodes {
		if indegree[i] == 0 {
			continue
		}
		if len(names) == 0 {
			span = tc.tree.Decls.Get(node.Decl).Span
		}
		names = append(names, tc.name(tc.tree.Decls.Get(node.Decl).Name))
	}
	tc.report(diag.SemaDependencyCycle, span,
		fmt.Sprintf("dependency cycle through %s", strings.Join(names, ", ")))
	g.Order = nil
}
