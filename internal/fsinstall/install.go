package fsinstall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/term"
)

// Installer runs the whole pipeline: catalog, probe, decide, build the
// local dependencies in order, compose flags, build the target.
type Installer struct {
	Settings Settings
	Recipes  []Recipe
	Target   TargetRecipe

	// Prober and Fetcher default to the host probe and an HTTP fetcher
	// (behind the bucket mirror when one is configured).
	Prober  *Prober
	Fetcher Fetcher

	Out        io.Writer // operator status lines
	Live       io.Writer // optional live build output
	ReleaseDir string    // where /etc/*-release files live; "/etc" when empty
}

// NewInstaller returns an installer for FlexibleSUSY and its dependencies.
func NewInstaller(s Settings, out io.Writer) *Installer {
	return &Installer{
		Settings: s,
		Recipes:  DefaultRecipes(),
		Target:   FlexibleSUSY(),
		Out:      out,
	}
}

// Request is one invocation.
type Request struct {
	Modules []string
	Jobs    int
	Intent  Intent
	// DryRun stops after composing flags. Nothing is downloaded, built or
	// removed, and installs are projected from the recipes.
	DryRun bool
}

// Report describes what a run did, or would do for a dry run.
type Report struct {
	Plan        *Plan
	Order       []PlanEntry
	Installs    map[string]Install
	Flags       ComposedFlags
	Builds      []*BuildResult
	Target      *BuildResult
	TargetSteps []Step
	Scratch     string
}

func (in *Installer) out() io.Writer {
	if in.Out == nil {
		return io.Discard
	}
	return in.Out
}

// Run executes req. Every failure is terminal; nothing already installed is
// rolled back.
func (in *Installer) Run(ctx context.Context, req Request) (*Report, error) {
	logger := loggerFromContext(ctx)
	if len(req.Modules) == 0 {
		return nil, ErrNoModules
	}

	cat, err := LoadCatalog(in.Settings.CatalogPath)
	if err != nil {
		return nil, err
	}
	names := []string{in.Target.Name}
	for _, r := range in.Recipes {
		names = append(names, r.Name)
	}
	if err := cat.Require(names...); err != nil {
		return nil, err
	}
	descs, err := Bind(in.Recipes, cat)
	if err != nil {
		return nil, err
	}

	if !req.DryRun {
		lock, err := lockRoot(in.Settings.DepsRoot)
		if err != nil {
			return nil, err
		}
		defer lock.release()
	}

	if err := os.MkdirAll(in.Settings.TmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", in.Settings.TmpDir, err)
	}
	scratch, err := os.MkdirTemp(in.Settings.TmpDir, "fsinstall-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	report := &Report{Scratch: scratch, Installs: make(map[string]Install)}
	logger.Debug("scratch directory", "dir", scratch)

	prober := in.Prober
	if prober == nil {
		prober = NewProber(scratch)
	}
	prober.Scratch = scratch
	caps, err := prober.Probe(ctx, descs)
	if err != nil {
		return report, err
	}

	plan, err := Decide(descs, caps, req.Intent, in.Settings.DepsRoot)
	if errors.Is(err, ErrNoCompiler) {
		dir := in.ReleaseDir
		if dir == "" {
			dir = "/etc"
		}
		if hint := compilerHint(dir); hint != "" {
			cFprintf(in.out(), colWarn, "%s\n", hint)
		}
	}
	if err != nil {
		return report, err
	}
	report.Plan = plan
	in.printPlan(plan)

	order, err := BuildOrder(plan)
	if err != nil {
		return report, err
	}
	report.Order = order

	fetcher, err := in.fetcher(ctx)
	if err != nil {
		return report, err
	}
	exe := NewExecutor(ctx)
	exe.ApplyIdlePriority = in.Settings.Nice
	builder := &Builder{
		Exec:     exe,
		Fetcher:  fetcher,
		Scratch:  scratch,
		LogDir:   filepath.Join(in.Settings.DepsRoot, "logs"),
		Jobs:     req.Jobs,
		Compiler: caps.Compiler,
		Live:     in.Live,
	}

	for _, e := range order {
		inst, res, err := in.install(ctx, builder, e, report.Installs, req.DryRun)
		if res != nil {
			report.Builds = append(report.Builds, res)
		}
		if err != nil {
			return report, err
		}
		report.Installs[e.Name()] = inst
	}

	flags, err := Compose(plan, report.Installs)
	if err != nil {
		return report, err
	}
	report.Flags = flags

	driver, err := NewTargetDriver(builder, in.Settings.WorkDir, in.Target, cat)
	if err != nil {
		return report, err
	}
	if req.DryRun {
		report.TargetSteps = driver.Steps(flags, req.Modules, req.Jobs)
		os.RemoveAll(scratch)
		return report, nil
	}

	arrowf(in.out(), "Building %s %s\n", driver.Desc.Name, driver.Desc.Version)
	res, err := driver.BuildTarget(ctx, flags, req.Modules, req.Jobs)
	report.Target = res
	if err != nil {
		return report, err
	}

	if !in.Settings.KeepScratch {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("failed to remove scratch directory", "dir", scratch, "err", err)
		}
	}
	return report, nil
}

// install brings one BuildLocal entry into place and returns its install.
func (in *Installer) install(ctx context.Context, b *Builder, e PlanEntry, done map[string]Install, dryRun bool) (Install, *BuildResult, error) {
	t := e.Target
	if e.Existing == ExistingKeep {
		arrowf(in.out(), "Keeping %s in %s\n", e.Name(), t.Prefix)
		inst, err := b.Adopt(t)
		return inst, nil, err
	}
	if dryRun {
		return projectInstall(e), nil, nil
	}

	if e.Existing == ExistingReinstall {
		arrowf(in.out(), "Removing %s\n", t.Prefix)
		if err := Remove(t); err != nil {
			return Install{}, nil, err
		}
	}

	deps := make(map[string]Install)
	for _, req := range e.Descriptor.Requires {
		if inst, ok := done[req]; ok {
			deps[req] = inst
		}
	}

	arrowf(in.out(), "Installing %s %s into %s\n", e.Name(), e.Descriptor.Version, t.Prefix)
	res, err := b.Build(ctx, t, deps)
	if err != nil {
		return Install{}, res, err
	}
	return res.Install, res, nil
}

// projectInstall is the install a build of e would produce, assuming the
// preferred library directory.
func projectInstall(e PlanEntry) Install {
	d := e.Descriptor
	inst := Install{Name: d.Name, Prefix: e.Target.Prefix}
	if d.IncludeSubdir != "" {
		inst.IncludeDir = filepath.Join(inst.Prefix, d.IncludeSubdir)
	}
	if !d.HeaderOnly() {
		inst.LibDir = filepath.Join(inst.Prefix, d.LibDirs[0])
	}
	return inst
}

func (in *Installer) fetcher(ctx context.Context) (Fetcher, error) {
	if in.Fetcher != nil {
		return in.Fetcher, nil
	}
	var progress io.Writer
	if term.IsTerminal(int(os.Stderr.Fd())) {
		progress = os.Stderr
	}
	origin := NewHTTPFetcher(progress)
	if !in.Settings.Mirror.Enabled() {
		return origin, nil
	}
	mirror, err := NewMirrorFetcher(ctx, in.Settings.Mirror, in.Settings.Debug)
	if err != nil {
		return nil, err
	}
	return fallbackFetcher{mirror: mirror, origin: origin}, nil
}

func (in *Installer) printPlan(p *Plan) {
	w := in.out()
	for _, e := range p.Entries() {
		fmt.Fprint(w, colArrow.Sprint("-> "))
		fmt.Fprintf(w, "%s %s: ", e.Name(), e.Descriptor.Version)
		switch e.Decision {
		case BuildLocal:
			cFprintf(w, colSuccess, "%s", e.Decision)
		case UseSystem:
			cFprintf(w, colInfo, "%s", e.Decision)
		default:
			cFprintf(w, colWarn, "%s", e.Decision)
		}
		fmt.Fprintf(w, " (%s)\n", e.Reason)
	}
}
