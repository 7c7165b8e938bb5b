package fsinstall

import (
	"os"
	"path/filepath"
	"strings"
)

// compilerHint suggests how to install a C++ compiler on the distribution
// described by the /etc/*-release files under etc. Empty when unknown.
func compilerHint(etc string) string {
	files, _ := filepath.Glob(filepath.Join(etc, "*-release"))
	var sb strings.Builder
	for _, f := range files {
		if data, err := os.ReadFile(f); err == nil {
			sb.Write(data)
		}
	}
	release := strings.ToLower(sb.String())
	switch {
	case strings.Contains(release, "ubuntu"):
		return "You seem to be on Ubuntu. You can try running sudo apt install g++"
	case strings.Contains(release, "opensuse"):
		return "You seem to be on openSUSE. You can try running sudo zypper in gcc-c++"
	}
	return ""
}
