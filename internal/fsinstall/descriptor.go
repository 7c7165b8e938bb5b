package fsinstall

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Class decides how the decision gate treats a dependency.
type Class int

const (
	// ClassBundled dependencies are always built into the dependency root.
	ClassBundled Class = iota
	// ClassDetectable dependencies are found on the host by a binary lookup.
	ClassDetectable
	// ClassCompileProbe dependencies are usable when a test compile succeeds.
	ClassCompileProbe
	// ClassOptional dependencies are opt-in features, disabled by default.
	ClassOptional
)

func (c Class) String() string {
	switch c {
	case ClassBundled:
		return "bundled"
	case ClassDetectable:
		return "detectable"
	case ClassCompileProbe:
		return "compile-probe"
	case ClassOptional:
		return "optional"
	}
	return "class(" + strconv.Itoa(int(c)) + ")"
}

// Phase names a stage of a build recipe.
type Phase string

const (
	PhaseFetch       Phase = "fetch"
	PhaseConfigure   Phase = "configure"
	PhaseCompile     Phase = "compile"
	PhaseInstall     Phase = "install"
	PhaseMaterialize Phase = "materialize"
)

// Step is one external command of a recipe. Dir is relative to the
// extracted source tree and is created if missing.
type Step struct {
	Phase Phase
	Dir   string
	Argv  []string
}

// StepEnv parameterises a recipe's build steps.
type StepEnv struct {
	Prefix   string
	Version  string
	Jobs     int
	Compiler string
	// Deps holds the resolved installs of locally built prerequisites.
	// Prerequisites taken from the system are absent.
	Deps map[string]Install
}

// Dep returns the local install of a prerequisite, if it was built locally.
func (e StepEnv) Dep(name string) (Install, bool) {
	inst, ok := e.Deps[name]
	return inst, ok
}

// JobsArg renders the job count for -j style flags.
func (e StepEnv) JobsArg() string {
	if e.Jobs < 1 {
		return "1"
	}
	return strconv.Itoa(e.Jobs)
}

// FlagRule describes the configure arguments a dependency contributes to the
// target build. Keys are flag names without the leading dashes.
type FlagRule struct {
	Include  string // include-path flag emitted when built locally
	Lib      string // library-path flag emitted when built locally
	Hint     string // path-hint flag emitted when built locally
	HintPath string // hint target, relative to the install prefix
	Disable  string // feature-disable flag emitted when disabled
}

// Recipe is the version-independent description of a dependency.
type Recipe struct {
	Name string
	// Dir is the install directory stem; the prefix is <root>/<Dir>-<version>.
	// Defaults to Name.
	Dir string
	// Source and Archive are templates over {version} and {version_}, the
	// latter with dots replaced by underscores.
	Source  string
	Archive string
	// StripTopDir drops the single top-level directory of the archive.
	StripTopDir bool

	Class       Class
	Binary      string // ClassDetectable: looked up on the search path
	ProbeHeader string // ClassCompileProbe: header included by the test compile

	// Requires lists dependencies whose install paths the build steps use.
	Requires []string
	// RequiredByTarget marks dependencies the target cannot build without.
	RequiredByTarget bool

	// IncludeSubdir is the include directory relative to the prefix;
	// empty for dependencies that install no headers.
	IncludeSubdir string
	// LibDirs are the candidate library directories, in preference order.
	// Empty for header-only and tool dependencies.
	LibDirs []string

	Flags FlagRule
	Steps func(env StepEnv) []Step
}

// Descriptor is a recipe bound to the catalog version. Immutable.
type Descriptor struct {
	Recipe
	Version  string
	Checksum string
}

func expandTemplate(tmpl, version string) string {
	return strings.NewReplacer(
		"{version_}", strings.ReplaceAll(version, ".", "_"),
		"{version}", version,
	).Replace(tmpl)
}

// URL returns the archive download location.
func (d *Descriptor) URL() string { return expandTemplate(d.Source, d.Version) }

// ArchiveName returns the file name the archive is stored under.
func (d *Descriptor) ArchiveName() string {
	if d.Archive != "" {
		return expandTemplate(d.Archive, d.Version)
	}
	u := d.URL()
	return u[strings.LastIndex(u, "/")+1:]
}

// DirName returns "<Dir>-<version>".
func (d *Descriptor) DirName() string {
	stem := d.Dir
	if stem == "" {
		stem = d.Name
	}
	return stem + "-" + d.Version
}

// HeaderOnly reports whether the dependency installs no libraries.
func (d *Descriptor) HeaderOnly() bool { return len(d.LibDirs) == 0 }

// BuildSteps returns the recipe steps for env.
func (d *Descriptor) BuildSteps(env StepEnv) []Step {
	if d.Steps == nil {
		return nil
	}
	return d.Steps(env)
}

// Bind resolves every recipe against the catalog. All recipe names must be
// present in the catalog; the check happens before any URL is built.
// Descriptors are returned in catalog order.
func Bind(recipes []Recipe, cat *Catalog) ([]*Descriptor, error) {
	names := make([]string, 0, len(recipes))
	for _, r := range recipes {
		names = append(names, r.Name)
	}
	if err := cat.Require(names...); err != nil {
		return nil, err
	}

	descs := make([]*Descriptor, 0, len(recipes))
	for _, r := range recipes {
		v, _ := cat.Version(r.Name)
		descs = append(descs, &Descriptor{Recipe: r, Version: v, Checksum: cat.Checksum(r.Name)})
	}
	sort.SliceStable(descs, func(i, j int) bool {
		return cat.Index(descs[i].Name) < cat.Index(descs[j].Name)
	})

	known := make(map[string]bool, len(descs))
	for _, d := range descs {
		known[d.Name] = true
	}
	for _, d := range descs {
		for _, req := range d.Requires {
			if !known[req] {
				return nil, fmt.Errorf("%w: %s requires %s", ErrUnknownDependency, d.Name, req)
			}
		}
	}
	return descs, nil
}

// InstallTarget is a descriptor bound to its prefix under the dependency root.
type InstallTarget struct {
	Descriptor *Descriptor
	Root       string
	Prefix     string
}

// NewInstallTarget returns the deterministic target of d under root.
func NewInstallTarget(d *Descriptor, root string) InstallTarget {
	return InstallTarget{Descriptor: d, Root: root, Prefix: filepath.Join(root, d.DirName())}
}

// Install records where a dependency's files ended up.
type Install struct {
	Name       string
	Prefix     string
	IncludeDir string // empty when the dependency installs no headers
	LibDir     string // resolved lib or lib64; empty for header-only
}

// Path joins rel onto the install prefix.
func (i Install) Path(rel string) string { return filepath.Join(i.Prefix, rel) }
