package fsinstall

import (
	"fmt"
	"slices"
	"strings"
)

// Decision is the per-dependency outcome of the decision gate.
type Decision int

const (
	Disabled Decision = iota
	UseSystem
	BuildLocal
)

func (d Decision) String() string {
	switch d {
	case Disabled:
		return "disabled"
	case UseSystem:
		return "system"
	case BuildLocal:
		return "build-local"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Existing says what to do with a prior install of a BuildLocal dependency.
type Existing int

const (
	// ExistingNone means no prior install was found.
	ExistingNone Existing = iota
	// ExistingReinstall removes the prior install and rebuilds.
	ExistingReinstall
	// ExistingKeep treats the prior install as satisfying the dependency.
	ExistingKeep
)

// PlanEntry is the frozen decision for one dependency.
type PlanEntry struct {
	Descriptor *Descriptor
	Target     InstallTarget
	Decision   Decision
	Existing   Existing
	Reason     string
}

// Name returns the dependency name.
func (e PlanEntry) Name() string { return e.Descriptor.Name }

// Plan is the execution plan for one run. It is built once by Decide and
// only read afterwards.
type Plan struct {
	entries []PlanEntry
	index   map[string]int
}

// Entries returns the plan entries in catalog order.
func (p *Plan) Entries() []PlanEntry { return slices.Clone(p.entries) }

// Entry returns the entry for name.
func (p *Plan) Entry(name string) (PlanEntry, bool) {
	i, ok := p.index[name]
	if !ok {
		return PlanEntry{}, false
	}
	return p.entries[i], true
}

// Decision returns the decision for name; unknown names are Disabled.
func (p *Plan) Decision(name string) Decision {
	e, _ := p.Entry(name)
	return e.Decision
}

// Intent carries the operator's answers. Maps are keyed by dependency name.
// Questions without an answer go to Prompter; when Prompter is nil,
// AssumeYes answers them with yes, otherwise defaults apply: optional
// features stay disabled, missing libraries are not built, and an existing
// install is an error because it must never be reused or overwritten
// silently.
type Intent struct {
	BuildLocal map[string]bool // "X is missing, build it from source?"
	Enable     map[string]bool // "Install optional X?"
	Reinstall  map[string]bool // "X is already installed, reinstall it?"
	AssumeYes  bool
	Prompter   Prompter
}

// unanswered says what an open question resolves to without a prompter.
type unanswered int

const (
	defaultNo unanswered = iota
	mustAnswer
)

func (in Intent) ask(answers map[string]bool, name, question string, def unanswered) (bool, error) {
	if v, ok := answers[name]; ok {
		return v, nil
	}
	if in.Prompter != nil {
		return in.Prompter.Confirm(question)
	}
	if in.AssumeYes {
		return true, nil
	}
	if def == mustAnswer {
		return false, fmt.Errorf("%w: %s", ErrUndecided, question)
	}
	return false, nil
}

// Decide turns probe results and operator intent into an execution plan.
// Nothing is downloaded or deleted here; a missing compiler or a disabled
// dependency the build cannot do without fails the whole plan.
func Decide(descs []*Descriptor, caps Capabilities, intent Intent, root string) (*Plan, error) {
	if caps.Compiler == nil {
		return nil, ErrNoCompiler
	}

	plan := &Plan{index: make(map[string]int, len(descs))}
	for _, d := range descs {
		entry := PlanEntry{Descriptor: d, Target: NewInstallTarget(d, root)}

		switch d.Class {
		case ClassBundled:
			entry.Decision = BuildLocal
			entry.Reason = "always built locally"

		case ClassDetectable:
			if caps.Has(d.Binary) {
				entry.Decision = UseSystem
				entry.Reason = d.Binary + " found at " + caps.Binaries[d.Binary]
				break
			}
			build, err := intent.ask(intent.BuildLocal, d.Name,
				fmt.Sprintf("%s (%s) was not found on this system. Install %s from source?", d.Name, d.Binary, d.Name), defaultNo)
			if err != nil {
				return nil, err
			}
			entry.Decision, entry.Reason = chosen(build, d.Binary+" not found")

		case ClassCompileProbe:
			if caps.CompileOK(d.Name) {
				entry.Decision = UseSystem
				entry.Reason = "compile probe succeeded"
				break
			}
			build, err := intent.ask(intent.BuildLocal, d.Name,
				fmt.Sprintf("%s doesn't seem to be usable on this system. Install %s from source?", d.Name, d.Name), defaultNo)
			if err != nil {
				return nil, err
			}
			entry.Decision, entry.Reason = chosen(build, "compile probe failed")

		case ClassOptional:
			enable, err := intent.ask(intent.Enable, d.Name, fmt.Sprintf("Install %s?", d.Name), defaultNo)
			if err != nil {
				return nil, err
			}
			entry.Decision, entry.Reason = chosen(enable, "optional")

		default:
			return nil, fmt.Errorf("%s: unknown dependency class %v", d.Name, d.Class)
		}

		if entry.Decision == BuildLocal {
			exists, err := Exists(entry.Target)
			if err != nil {
				return nil, err
			}
			if exists {
				reinstall, err := intent.ask(intent.Reinstall, d.Name,
					fmt.Sprintf("%s seems to be already installed locally in %s. Do you want to reinstall it?", d.Name, entry.Target.Prefix), mustAnswer)
				if err != nil {
					return nil, err
				}
				entry.Existing = ExistingKeep
				if reinstall {
					entry.Existing = ExistingReinstall
				}
			}
		}

		plan.index[d.Name] = len(plan.entries)
		plan.entries = append(plan.entries, entry)
	}

	if err := plan.validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func chosen(build bool, why string) (Decision, string) {
	if build {
		return BuildLocal, why + "; building locally"
	}
	return Disabled, why + "; disabled"
}

// validate rejects plans that cannot lead to a working target build.
func (p *Plan) validate() error {
	var problems []string
	for _, e := range p.entries {
		if e.Decision == Disabled && e.Descriptor.RequiredByTarget {
			problems = append(problems, e.Name()+" is needed by the target build")
		}
		// A kept install is never built, so its build prerequisites do not matter.
		if e.Decision != BuildLocal || e.Existing == ExistingKeep {
			continue
		}
		for _, req := range e.Descriptor.Requires {
			if p.Decision(req) == Disabled {
				problems = append(problems, fmt.Sprintf("%s is needed to build %s", req, e.Name()))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrRequiredDisabled, strings.Join(problems, "; "))
	}
	return nil
}

// BuildOrder returns the BuildLocal entries so that every entry comes after
// the locally built dependencies it requires. Ties keep catalog order.
func BuildOrder(p *Plan) ([]PlanEntry, error) {
	var local []PlanEntry
	pos := make(map[string]int)
	for _, e := range p.entries {
		if e.Decision == BuildLocal {
			pos[e.Name()] = len(local)
			local = append(local, e)
		}
	}

	indegree := make([]int, len(local))
	dependents := make([][]int, len(local))
	for i, e := range local {
		for _, req := range e.Descriptor.Requires {
			j, ok := pos[req]
			if !ok {
				continue // not built locally, nothing to wait for
			}
			if j == i {
				return nil, fmt.Errorf("%w: %s requires itself", ErrDependencyCycle, e.Name())
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]PlanEntry, 0, len(local))
	done := make([]bool, len(local))
	for len(order) < len(local) {
		next := -1
		for i := range local {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, e := range local {
				if !done[i] {
					stuck = append(stuck, e.Name())
				}
			}
			return nil, fmt.Errorf("%w among %s", ErrDependencyCycle, strings.Join(stuck, ", "))
		}
		done[next] = true
		order = append(order, local[next])
		for _, k := range dependents[next] {
			indegree[k]--
		}
	}
	return order, nil
}
