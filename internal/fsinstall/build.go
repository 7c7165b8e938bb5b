package fsinstall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// BuildResult is the outcome of one build. Output holds everything the
// build commands wrote, with each command line echoed before its output.
type BuildResult struct {
	Name       string
	Prefix     string
	ExitStatus int
	Output     []byte
	LogFile    string // compressed copy of Output; empty when logging is off
	Install    Install
	Duration   time.Duration
}

// Builder downloads, extracts and builds dependencies into their prefix.
type Builder struct {
	Exec     *Executor
	Fetcher  Fetcher
	Scratch  string    // downloads and source trees
	LogDir   string    // xz-compressed build logs; empty disables them
	Jobs     int       // parallelism handed to the build tools
	Compiler *Compiler // exported to the build as CXX when set
	Live     io.Writer // optional live copy of the build output
}

// Build runs the full recipe of t: fetch, verify, extract, then every build
// step. The first failing step ends the build with a *StepError; the scratch
// directory is left as it is for inspection. The returned result is non-nil
// whenever a step ran, including on failure.
func (b *Builder) Build(ctx context.Context, t InstallTarget, deps map[string]Install) (*BuildResult, error) {
	d := t.Descriptor
	logger := loggerFromContext(ctx).With("dependency", d.Name)
	prog := newProgress(logger)

	src, err := b.acquire(ctx, d)
	if err != nil {
		return nil, err
	}

	env := StepEnv{
		Prefix:  t.Prefix,
		Version: d.Version,
		Jobs:    b.Jobs,
		Deps:    deps,
	}
	if b.Compiler != nil {
		env.Compiler = b.Compiler.Path
	}

	res := &BuildResult{Name: d.Name, Prefix: t.Prefix}
	start := time.Now()
	var out bytes.Buffer
	runErr := b.runSteps(ctx, d.Name, src, d.BuildSteps(env), &out)
	res.Duration = time.Since(start)
	res.Output = out.Bytes()
	res.ExitStatus = exitStatus(runErr)
	res.LogFile = b.writeLog(ctx, d.DirName(), res.Output)
	if runErr != nil {
		return res, runErr
	}

	inst, err := resolveInstall(d, t.Prefix)
	if err != nil {
		return res, err
	}
	res.Install = inst
	prog.done("installed", "prefix", t.Prefix)
	return res, nil
}

// Adopt records a prior install that the operator chose to keep. Its paths
// are resolved exactly as after a fresh build.
func (b *Builder) Adopt(t InstallTarget) (Install, error) {
	return resolveInstall(t.Descriptor, t.Prefix)
}

// acquire downloads and unpacks d, returning the source tree.
func (b *Builder) acquire(ctx context.Context, d *Descriptor) (string, error) {
	logger := loggerFromContext(ctx)
	if err := os.MkdirAll(b.Scratch, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}

	archive := filepath.Join(b.Scratch, d.ArchiveName())
	url := d.URL()
	logger.Info("fetching", "dependency", d.Name, "url", url)
	if err := b.Fetcher.Fetch(ctx, url, archive); err != nil {
		return "", &AcquisitionError{Name: d.Name, URL: url, Err: err}
	}
	if err := verifyDigest(archive, d.Checksum); err != nil {
		return "", &AcquisitionError{Name: d.Name, URL: url, Err: err}
	}

	// A tree left by an earlier failed run would mix old build state in.
	src := filepath.Join(b.Scratch, d.DirName()+"-src")
	if err := os.RemoveAll(src); err != nil {
		return "", fmt.Errorf("failed to clear %s: %w", src, err)
	}
	if err := extractArchive(archive, src, d.StripTopDir); err != nil {
		return "", &AcquisitionError{Name: d.Name, URL: url, Err: err}
	}
	logger.Debug("extracted", "dependency", d.Name, "dir", src)
	return src, nil
}

// runSteps runs steps in order inside srcDir, capturing their output into
// out. It stops at the first failure.
func (b *Builder) runSteps(ctx context.Context, name, srcDir string, steps []Step, out *bytes.Buffer) error {
	logger := loggerFromContext(ctx)
	exe := b.Exec
	if exe == nil {
		exe = NewExecutor(ctx)
	}
	run := *exe
	if b.Compiler != nil {
		run.Env = append(slices.Clone(exe.Env), "CXX="+b.Compiler.Path)
	}

	for _, st := range steps {
		if len(st.Argv) == 0 {
			return fmt.Errorf("%s: empty %s step", name, st.Phase)
		}
		dir := srcDir
		if st.Dir != "" {
			dir = filepath.Join(srcDir, st.Dir)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}

		var w io.Writer = out
		if b.Live != nil {
			w = io.MultiWriter(out, b.Live)
		}
		fmt.Fprintf(w, "$ %s\n", strings.Join(st.Argv, " "))

		cmd := exec.Command(st.Argv[0], st.Argv[1:]...)
		cmd.Dir = dir
		cmd.Stdout = w
		cmd.Stderr = w

		logger.Info("running", "dependency", name, "phase", st.Phase, "cmd", st.Argv[0])
		if err := run.Run(cmd); err != nil {
			return &StepError{
				Name:       name,
				Phase:      st.Phase,
				Argv:       st.Argv,
				ExitStatus: exitStatus(err),
				Output:     bytes.Clone(out.Bytes()),
				Err:        err,
			}
		}
	}
	return nil
}

// writeLog stores output xz-compressed under LogDir. Logging failures are
// reported but never fail the build.
func (b *Builder) writeLog(ctx context.Context, stem string, output []byte) string {
	if b.LogDir == "" {
		return ""
	}
	path := filepath.Join(b.LogDir, fmt.Sprintf("%s-%s.log.xz", stem, time.Now().Format("20060102-150405")))
	if err := writeXZ(path, output); err != nil {
		loggerFromContext(ctx).Warn("failed to write build log", "file", path, "err", err)
		return ""
	}
	return path
}

func writeXZ(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeAtomically(path, func(w io.Writer) error {
		xw, err := xz.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := xw.Write(data); err != nil {
			xw.Close()
			return err
		}
		return xw.Close()
	})
}

// resolveInstall locates the include and library directories of an
// installed prefix.
func resolveInstall(d *Descriptor, prefix string) (Install, error) {
	inst := Install{Name: d.Name, Prefix: prefix}
	if d.IncludeSubdir != "" {
		inst.IncludeDir = filepath.Join(prefix, d.IncludeSubdir)
	}
	if d.HeaderOnly() {
		return inst, nil
	}
	lib, err := resolveLibDir(prefix, d.LibDirs)
	if err != nil {
		return Install{}, fmt.Errorf("%s: %w", d.Name, err)
	}
	inst.LibDir = lib
	return inst, nil
}

// resolveLibDir returns the first candidate directory that exists under
// prefix. Exactly one path is returned, never both lib and lib64.
func resolveLibDir(prefix string, candidates []string) (string, error) {
	for _, c := range candidates {
		p := filepath.Join(prefix, c)
		info, err := os.Stat(p)
		if err == nil && info.IsDir() {
			return p, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to inspect %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("%w: %s (looked for %s)", ErrNoLibDir, prefix, strings.Join(candidates, ", "))
}
