package fsinstall

import (
	"fmt"
)

// Flag is one configure argument contributed by a dependency.
type Flag struct {
	Dependency string
	Key        string
	Value      string // empty for switches such as --disable-x
}

func (f Flag) String() string {
	if f.Value == "" {
		return "--" + f.Key
	}
	return "--" + f.Key + "=" + f.Value
}

// ComposedFlags is the ordered flag set handed to the target's configure.
type ComposedFlags []Flag

// Args renders the flags as command-line arguments.
func (c ComposedFlags) Args() []string {
	args := make([]string, 0, len(c))
	for _, f := range c {
		args = append(args, f.String())
	}
	return args
}

// For returns the flags contributed by dep.
func (c ComposedFlags) For(dep string) ComposedFlags {
	var out ComposedFlags
	for _, f := range c {
		if f.Dependency == dep {
			out = append(out, f)
		}
	}
	return out
}

// Compose turns the plan and the resolved installs of BuildLocal entries
// into configure flags, in catalog order. BuildLocal entries contribute
// their path flags, Disabled entries their disable switch, and UseSystem
// entries nothing: the target finds system libraries on its own.
func Compose(plan *Plan, installs map[string]Install) (ComposedFlags, error) {
	var flags ComposedFlags
	for _, e := range plan.Entries() {
		rule := e.Descriptor.Flags
		switch e.Decision {
		case Disabled:
			if rule.Disable != "" {
				flags = append(flags, Flag{Dependency: e.Name(), Key: rule.Disable})
			}

		case BuildLocal:
			inst, ok := installs[e.Name()]
			if !ok {
				return nil, fmt.Errorf("%s is planned for a local build but has no install", e.Name())
			}
			if rule.Include != "" {
				if inst.IncludeDir == "" {
					return nil, fmt.Errorf("%s: no include directory for --%s", e.Name(), rule.Include)
				}
				flags = append(flags, Flag{Dependency: e.Name(), Key: rule.Include, Value: inst.IncludeDir})
			}
			if rule.Lib != "" {
				if inst.LibDir == "" {
					return nil, fmt.Errorf("%s: %w", e.Name(), ErrNoLibDir)
				}
				flags = append(flags, Flag{Dependency: e.Name(), Key: rule.Lib, Value: inst.LibDir})
			}
			if rule.Hint != "" {
				flags = append(flags, Flag{Dependency: e.Name(), Key: rule.Hint, Value: inst.Path(rule.HintPath)})
			}
		}
	}
	return flags, nil
}
