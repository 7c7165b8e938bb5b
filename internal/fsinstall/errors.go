package fsinstall

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	// ErrNoCompiler is the precondition failure raised before any download
	// when neither g++ nor clang++ is on the search path.
	ErrNoCompiler        = errors.New("no C++ compiler found (tried g++ and clang++)")
	ErrMissingVersion    = errors.New("missing version in catalog")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrUndecided         = errors.New("no decision given")
	ErrRequiredDisabled  = errors.New("required dependency is disabled")
	ErrNoLibDir          = errors.New("no library directory found in install prefix")
	ErrChecksumMismatch  = errors.New("archive checksum mismatch")
	ErrDependencyCycle   = errors.New("dependency cycle")
	ErrNoModules         = errors.New("no modules selected")
	ErrLocked            = errors.New("dependency root is in use by another run")
)

// StepError reports an external build command that exited non-zero.
// Output holds everything the command wrote to stdout and stderr.
type StepError struct {
	Name       string
	Phase      Phase
	Argv       []string
	ExitStatus int
	Output     []byte
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s step `%s` failed with exit status %d",
		e.Name, e.Phase, strings.Join(e.Argv, " "), e.ExitStatus)
}

func (e *StepError) Unwrap() error { return e.Err }

// AcquisitionError wraps a download or archive failure for one dependency.
type AcquisitionError struct {
	Name string
	URL  string
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s: failed to acquire %s: %v", e.Name, e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// exitStatus extracts the process exit code from err, or -1 when the
// process never ran or was killed by a signal.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
