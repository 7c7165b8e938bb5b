package fsinstall

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Compiler is the C++ compiler found on the host.
type Compiler struct {
	Family string // "gcc" or "clang"
	Name   string
	Path   string
}

// compilerCandidates are tried in preference order.
var compilerCandidates = []struct{ name, family string }{
	{"g++", "gcc"},
	{"clang++", "clang"},
}

// Capabilities is the result of probing the host.
type Capabilities struct {
	Compiler *Compiler        // nil when no compiler was found
	Binaries map[string]string // binary name -> path, present binaries only
	Compiles map[string]bool   // dependency name -> compile probe succeeded
}

// Has reports whether binary was found on the search path.
func (c Capabilities) Has(binary string) bool {
	_, ok := c.Binaries[binary]
	return ok
}

// CompileOK reports whether the compile probe for a dependency succeeded.
func (c Capabilities) CompileOK(name string) bool { return c.Compiles[name] }

// Prober tests host capabilities. LookPath and Exec are replaceable for tests.
type Prober struct {
	Scratch  string
	LookPath func(file string) (string, error)
	Exec     func(cmd *exec.Cmd) error
}

// NewProber returns a prober writing its throwaway files under scratch.
func NewProber(scratch string) *Prober {
	return &Prober{
		Scratch:  scratch,
		LookPath: exec.LookPath,
		Exec:     func(cmd *exec.Cmd) error { return cmd.Run() },
	}
}

// Probe locates the compiler, looks up detectable binaries and runs the
// compile probes of descs. A missing compiler is reported, not returned as an
// error; the decision gate treats it as fatal.
func (p *Prober) Probe(ctx context.Context, descs []*Descriptor) (Capabilities, error) {
	logger := loggerFromContext(ctx)
	caps := Capabilities{
		Binaries: make(map[string]string),
		Compiles: make(map[string]bool),
	}

	for _, c := range compilerCandidates {
		if path, err := p.LookPath(c.name); err == nil {
			caps.Compiler = &Compiler{Family: c.family, Name: c.name, Path: path}
			break
		}
	}
	if caps.Compiler == nil {
		logger.Warn("no C++ compiler found")
	} else {
		logger.Info("found C++ compiler", "name", caps.Compiler.Name, "path", caps.Compiler.Path)
	}

	for _, d := range descs {
		if d.Class != ClassDetectable || d.Binary == "" {
			continue
		}
		if path, err := p.LookPath(d.Binary); err == nil {
			caps.Binaries[d.Binary] = path
			logger.Info("found on search path", "binary", d.Binary, "path", path)
		} else {
			logger.Info("not found on search path", "binary", d.Binary)
		}
	}

	if caps.Compiler == nil {
		return caps, nil
	}
	for _, d := range descs {
		if d.Class != ClassCompileProbe || d.ProbeHeader == "" {
			continue
		}
		ok, err := p.compileProbe(ctx, caps.Compiler, d)
		if err != nil {
			return caps, err
		}
		caps.Compiles[d.Name] = ok
		logger.Info("compile probe", "dependency", d.Name, "header", d.ProbeHeader, "ok", ok)
	}
	return caps, nil
}

// compileProbe compiles a translation unit including the dependency's header.
// Only a failure to set up the probe is an error; a failed compile is false.
func (p *Prober) compileProbe(ctx context.Context, cxx *Compiler, d *Descriptor) (bool, error) {
	if err := os.MkdirAll(p.Scratch, 0o755); err != nil {
		return false, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	src := filepath.Join(p.Scratch, "probe-"+d.Name+".cpp")
	out := filepath.Join(p.Scratch, "probe-"+d.Name)
	tu := fmt.Sprintf("#include <%s>\nint main() { return 0; }\n", d.ProbeHeader)
	if err := os.WriteFile(src, []byte(tu), 0o644); err != nil {
		return false, fmt.Errorf("failed to write compile probe: %w", err)
	}

	cmd := exec.CommandContext(ctx, cxx.Path, "-o", out, src)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := p.Exec(cmd); err != nil {
		loggerFromContext(ctx).Debug("compile probe failed", "dependency", d.Name, "output", buf.String())
		return false, nil
	}
	return true, nil
}
