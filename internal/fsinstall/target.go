package fsinstall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TargetRecipe describes the package built against the dependencies.
type TargetRecipe struct {
	Name    string
	Dir     string
	Source  string
	Archive string
	// Materialize creates the sources of one model before configuring.
	Materialize func(module string) []string
	Configure   func(modules []string, flags ComposedFlags) []string
	Compile     func(env StepEnv) []string
}

func (r TargetRecipe) bind(version, checksum string) *Descriptor {
	return &Descriptor{
		Recipe: Recipe{
			Name:        r.Name,
			Dir:         r.Dir,
			Source:      r.Source,
			Archive:     r.Archive,
			StripTopDir: true,
		},
		Version:  version,
		Checksum: checksum,
	}
}

// ParseModules splits a comma-separated module list, dropping blanks.
func ParseModules(csv string) []string {
	var modules []string
	for _, m := range strings.Split(csv, ",") {
		if m = strings.TrimSpace(m); m != "" {
			modules = append(modules, m)
		}
	}
	return modules
}

// TargetDriver builds the target package in WorkDir.
type TargetDriver struct {
	Builder *Builder
	WorkDir string
	Recipe  TargetRecipe
	Desc    *Descriptor
}

// NewTargetDriver binds the target recipe to its catalog version.
func NewTargetDriver(b *Builder, workDir string, r TargetRecipe, cat *Catalog) (*TargetDriver, error) {
	v, err := cat.Version(r.Name)
	if err != nil {
		return nil, err
	}
	return &TargetDriver{Builder: b, WorkDir: workDir, Recipe: r, Desc: r.bind(v, cat.Checksum(r.Name))}, nil
}

// SourceDir is where the target sources live: <WorkDir>/<Dir>-<version>.
func (t *TargetDriver) SourceDir() string {
	return filepath.Join(t.WorkDir, t.Desc.DirName())
}

// EnsureSource downloads and unpacks the target unless its source
// directory is already present.
func (t *TargetDriver) EnsureSource(ctx context.Context) (string, error) {
	src := t.SourceDir()
	info, err := os.Stat(src)
	switch {
	case err == nil && info.IsDir():
		loggerFromContext(ctx).Info("using existing sources", "dir", src)
		return src, nil
	case err == nil:
		return "", fmt.Errorf("%s exists but is not a directory", src)
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	b := t.Builder
	if err := os.MkdirAll(b.Scratch, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	archive := filepath.Join(b.Scratch, t.Desc.ArchiveName())
	url := t.Desc.URL()
	loggerFromContext(ctx).Info("fetching", "target", t.Desc.Name, "url", url)
	if err := b.Fetcher.Fetch(ctx, url, archive); err != nil {
		return "", &AcquisitionError{Name: t.Desc.Name, URL: url, Err: err}
	}
	if err := verifyDigest(archive, t.Desc.Checksum); err != nil {
		return "", &AcquisitionError{Name: t.Desc.Name, URL: url, Err: err}
	}
	if err := extractArchive(archive, src, true); err != nil {
		os.RemoveAll(src)
		return "", &AcquisitionError{Name: t.Desc.Name, URL: url, Err: err}
	}
	return src, nil
}

// Steps returns the materialize, configure and compile steps of a target
// build, in that order.
func (t *TargetDriver) Steps(flags ComposedFlags, modules []string, jobs int) []Step {
	var steps []Step
	for _, m := range modules {
		steps = append(steps, Step{Phase: PhaseMaterialize, Argv: t.Recipe.Materialize(m)})
	}
	steps = append(steps, Step{Phase: PhaseConfigure, Argv: t.Recipe.Configure(modules, flags)})
	env := StepEnv{Prefix: t.SourceDir(), Version: t.Desc.Version, Jobs: jobs}
	return append(steps, Step{Phase: PhaseCompile, Argv: t.Recipe.Compile(env)})
}

// BuildTarget materializes every module, configures once with all flags
// and the module list, then compiles with jobs parallel jobs.
func (t *TargetDriver) BuildTarget(ctx context.Context, flags ComposedFlags, modules []string, jobs int) (*BuildResult, error) {
	if len(modules) == 0 {
		return nil, ErrNoModules
	}
	src, err := t.EnsureSource(ctx)
	if err != nil {
		return nil, err
	}

	prog := newProgress(loggerFromContext(ctx).With("target", t.Desc.Name))
	res := &BuildResult{Name: t.Desc.Name, Prefix: src}
	start := time.Now()
	var out bytes.Buffer
	runErr := t.Builder.runSteps(ctx, t.Desc.Name, src, t.Steps(flags, modules, jobs), &out)
	res.Duration = time.Since(start)
	res.Output = out.Bytes()
	res.ExitStatus = exitStatus(runErr)
	res.LogFile = t.Builder.writeLog(ctx, t.Desc.DirName(), res.Output)
	if runErr != nil {
		return res, runErr
	}
	prog.done("target built", "modules", strings.Join(modules, ","))
	return res, nil
}
