package fsinstall

import (
	"archive/tar"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
)

// writeTarGz writes a gzip tarball holding files under a single top-level
// directory top (no top directory when top is empty).
func writeTarGz(t *testing.T, path, top string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	if top != "" {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
	}
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		name := n
		if top != "" {
			name = top + "/" + n
		}
		body := files[n]
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

// archiveServer serves the files in dir and counts every request.
type archiveServer struct {
	*httptest.Server
	dir  string
	hits atomic.Int64
}

func newArchiveServer(t *testing.T) *archiveServer {
	t.Helper()
	s := &archiveServer{dir: t.TempDir()}
	fileServer := http.FileServer(http.Dir(s.dir))
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		fileServer.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *archiveServer) add(t *testing.T, name, top string, files map[string]string) {
	t.Helper()
	writeTarGz(t, filepath.Join(s.dir, name), top, files)
}

// shell wraps a script as a step argv. Extra args are $1, $2, ...
func shell(script string, args ...string) []string {
	return append([]string{"sh", "-c", script, "sh"}, args...)
}

// fakeProber reports a g++ compiler plus the given binaries, and compile
// probes that succeed for the given dependencies.
func fakeProber(binaries []string, compiles map[string]bool) *Prober {
	found := map[string]bool{"g++": true}
	for _, b := range binaries {
		found[b] = true
	}
	return &Prober{
		LookPath: func(file string) (string, error) {
			if found[file] {
				return "/usr/bin/" + file, nil
			}
			return "", exec.ErrNotFound
		},
		Exec: func(cmd *exec.Cmd) error {
			for name, ok := range compiles {
				if ok && filepath.Base(cmd.Args[len(cmd.Args)-1]) == "probe-"+name+".cpp" {
					return nil
				}
			}
			return errors.New("exit status 1")
		},
	}
}

// scriptedPrompter answers from a fixed list and records the questions.
type scriptedPrompter struct {
	answers   []bool
	questions []string
}

func (p *scriptedPrompter) Confirm(question string) (bool, error) {
	p.questions = append(p.questions, question)
	if len(p.answers) == 0 {
		return false, errors.New("unexpected question: " + question)
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func mustCatalog(t *testing.T, entries ...CatalogEntry) *Catalog {
	t.Helper()
	c, err := NewCatalog(entries)
	require.NoError(t, err)
	return c
}

// chdir changes the working directory to dir for the duration of the test,
// restoring the previous directory (and PWD) on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Setenv("PWD", dir)
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
