// Package driver orchestrates the compilation pipeline: syntax-tree
// artifacts in, checked and lowered modules through, native objects and
// layout manifests out. Units compile in parallel; results keep artifact
// order.
package driver

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"quill/internal/abi"
	"quill/internal/ast"
	"quill/internal/backend"
	"quill/internal/diag"
	"quill/internal/layout"
	"quill/internal/mir"
	"quill/internal/sema"
	"quill/internal/source"
	"quill/internal/types"
)

// Stage names a pipeline phase for progress reporting.
type Stage uint8

const (
	StageDecode Stage = iota
	StageCheck
	StageLower
	StageEmit
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageDecode:
		return "decode"
	case StageCheck:
		return "check"
	case StageLower:
		return "lower"
	case StageEmit:
		return "emit"
	}
	return "done"
}

// Event is one progress notification. Unit is the artifact path.
type Event struct {
	Stage  Stage
	Unit   string
	Cached bool
}

// Options configure a compilation run.
type Options struct {
	// Target is a layout triple ("x86_64-linux-gnu", "aarch64-linux-gnu").
	// Empty selects x86_64.
	Target string
	// Jobs caps parallel unit compilation; 0 means GOMAXPROCS.
	Jobs int
	// MaxDiagnostics caps each unit's bag.
	MaxDiagnostics int
	// CheckOnly stops after semantic analysis.
	CheckOnly bool
	// Cache, when set, short-circuits unchanged artifacts.
	Cache    *DiskCache
	Progress func(Event)
}

// UnitResult is the outcome for one artifact. Object and Manifest are nil
// when diagnostics stopped the unit or CheckOnly was set.
type UnitResult struct {
	Path     string
	Bag      *diag.Bag
	Object   *backend.Object
	Manifest []byte
	Cached   bool
}

// targetFor maps a triple to its layout target and backend architecture.
func targetFor(name string) (layout.Target, backend.Arch, error) {
	switch name {
	case "", "x86_64-linux-gnu", "amd64":
		return layout.X86_64LinuxGNU(), backend.ArchAMD64, nil
	case "aarch64-linux-gnu", "arm64":
		return layout.AArch64LinuxGNU(), backend.ArchARM64, nil
	}
	return layout.Target{}, 0, fmt.Errorf("driver: unknown target %q", name)
}

func (o *Options) notify(stage Stage, unit string, cached bool) {
	if o.Progress != nil {
		o.Progress(Event{Stage: stage, Unit: unit, Cached: cached})
	}
}

func (o *Options) maxDiags() int {
	if o.MaxDiagnostics > 0 {
		return o.MaxDiagnostics
	}
	return 256
}

// ListArtifacts returns every .qast file under dir, sorted for
// deterministic compilation order.
func ListArtifacts(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".qast") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// CompileDir compiles every artifact under dir in parallel. The returned
// slice follows the sorted file order regardless of completion order.
func CompileDir(ctx context.Context, dir string, opts Options) ([]UnitResult, error) {
	files, err := ListArtifacts(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	results := make([]UnitResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))

	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := CompileArtifact(gctx, path, opts)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// CompileArtifact runs the pipeline over one .qast file. User-facing
// problems land in the result's bag; a non-nil error means an I/O failure
// or a compiler defect, never a diagnostic.
func CompileArtifact(ctx context.Context, path string, opts Options) (*UnitResult, error) {
	res := &UnitResult{Path: path, Bag: diag.NewBag(opts.maxDiags())}
	rep := diag.BagReporter{Bag: res.Bag}

	target, arch, err := targetFor(opts.Target)
	if err != nil {
		return nil, err
	}

	opts.notify(StageDecode, path, false)
	data, err := os.ReadFile(path)
	if err != nil {
		res.Bag.Add(diag.Diagnostic{
			Severity: diag.SevError,
			Code:     diag.IOLoadFileError,
			Message:  "failed to load artifact: " + err.Error(),
		})
		return res, nil
	}

	if !opts.CheckOnly && opts.Cache != nil {
		key := ArtifactKey(data, target.Triple)
		var payload cachePayload
		if ok, err := opts.Cache.Get(key, &payload); err == nil && ok {
			res.Object = payload.Object
			res.Manifest = payload.Manifest
			res.Cached = true
			opts.notify(StageDone, path, true)
			return res, nil
		}
	}

	tree, err := ast.DecodeTree(bytes.NewReader(data))
	if err != nil {
		res.Bag.Add(diag.Diagnostic{
			Severity: diag.SevError,
			Code:     diag.IOBadArtifact,
			Message:  err.Error(),
		})
		return res, nil
	}

	opts.notify(StageCheck, path, false)
	sem := sema.Check(tree, sema.Options{Reporter: rep})
	if res.Bag.HasErrors() || opts.CheckOnly {
		opts.notify(StageDone, path, false)
		return res, nil
	}

	opts.notify(StageLower, path, false)
	mod := mir.Lower(tree, sem, mir.Options{Reporter: rep})
	if !mir.Validate(mod, rep) || res.Bag.HasErrors() {
		// Lowering problems are compiler defects, not user errors.
		return res, fmt.Errorf("driver: internal defect lowering %s: %+v", path, res.Bag.Items())
	}

	eng := layout.New(target, sem.Types)
	conv := abi.SysVAMD64()
	if arch == backend.ArchARM64 {
		conv = abi.AAPCS64()
	}
	manifest, err := buildManifest(tree, sem, eng, mod, conv)
	if err != nil {
		return res, fmt.Errorf("driver: layout manifest for %s: %w", path, err)
	}
	res.Manifest = manifest

	opts.notify(StageEmit, path, false)
	obj, err := backend.Emit(mod, backend.Options{
		Arch:     arch,
		Types:    sem.Types,
		Layout:   eng,
		Reporter: rep,
	})
	if err != nil {
		return res, fmt.Errorf("driver: emitting %s: %w (%+v)", path, err, res.Bag.Items())
	}
	res.Object = obj

	if opts.Cache != nil {
		key := ArtifactKey(data, target.Triple)
		payload := cachePayload{
			Schema:   cacheSchemaVersion,
			Target:   target.Triple,
			Object:   obj,
			Manifest: manifest,
		}
		// A failed store costs a rebuild next time, nothing more.
		_ = opts.Cache.Put(key, &payload)
	}

	opts.notify(StageDone, path, false)
	return res, nil
}

// buildManifest records the heap body of every class and error declaration
// and the ABI signature of every lowered function.
func buildManifest(tree *ast.Tree, sem *sema.Result, eng *layout.Engine, mod *mir.Module, conv *abi.Convention) ([]byte, error) {
	m := layout.NewManifest(eng.Target)
	name := func(id source.StringID) string { return tree.Strings.MustLookup(id) }
	for _, declID := range tree.Module.Decls {
		decl := tree.Decls.Get(declID)
		if decl == nil || (decl.Kind != ast.DeclClass && decl.Kind != ast.DeclError) {
			continue
		}
		tid, ok := sem.Types.NominalType(declID)
		if !ok {
			continue
		}
		obj, err := eng.ObjectOf(tid)
		if err != nil {
			return nil, err
		}
		m.AddObject(name(decl.Name), obj, name)
	}
	for i := range mod.Funcs {
		f := &mod.Funcs[i]
		params := make([]abi.Slot, 0, f.ParamCount)
		for _, l := range f.Locals[:f.ParamCount] {
			slot, err := abiSlot(eng, sem.Types, l.Type)
			if err != nil {
				return nil, err
			}
			params = append(params, slot)
		}
		ret, err := abiSlot(eng, sem.Types, f.Result)
		if err != nil {
			return nil, err
		}
		m.AddFunction(f.Name, conv, params, ret)
	}
	return m.Encode()
}

func abiSlot(eng *layout.Engine, tin *types.Interner, t types.TypeID) (abi.Slot, error) {
	if t == types.NoTypeID {
		return abi.Slot{}, nil
	}
	l, err := eng.Of(t)
	if err != nil {
		return abi.Slot{}, err
	}
	tt, ok := tin.Lookup(t)
	return abi.Slot{Size: l.Size, Align: l.Align, Float: ok && tt.Kind == types.KindFloat}, nil
}
