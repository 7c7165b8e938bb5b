package fsinstall

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
)

func TestExtractArchive_StripsTopDir(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "eigen-3.4.0.tar.gz")
	writeTarGz(t, archive, "eigen-3.4.0", map[string]string{
		"CMakeLists.txt":      "project(Eigen3)",
		"Eigen/src/Core/Core": "// core",
	})

	dest := filepath.Join(dir, "src")
	require.NoError(t, extractArchive(archive, dest, true))

	data, err := os.ReadFile(filepath.Join(dest, "CMakeLists.txt"))
	require.NoError(t, err)
	require.Equal(t, "project(Eigen3)", string(data))
	require.FileExists(t, filepath.Join(dest, "Eigen", "src", "Core", "Core"))
	require.NoDirExists(t, filepath.Join(dest, "eigen-3.4.0"))
}

func TestExtractArchive_KeepsTopDirWithoutStrip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "gsl-2.7.1.tar.gz")
	writeTarGz(t, archive, "gsl-2.7.1", map[string]string{"configure": "#!/bin/sh\n"})

	dest := filepath.Join(dir, "src")
	require.NoError(t, extractArchive(archive, dest, false))
	require.FileExists(t, filepath.Join(dest, "gsl-2.7.1", "configure"))
}

func TestExtractArchive_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")

	f, err := os.Create(archive)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	body := "pwned"
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
	_, err = tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "src")
	err = extractArchive(archive, dest, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "illegal file path")
	require.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestExtractArchive_Zip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "GM2Calc-2.3.0.zip")

	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("GM2Calc-2.3.0/")
	require.NoError(t, err)
	w, err := zw.Create("GM2Calc-2.3.0/CMakeLists.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("project(GM2Calc)"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "src")
	require.NoError(t, extractArchive(archive, dest, true))
	data, err := os.ReadFile(filepath.Join(dest, "CMakeLists.txt"))
	require.NoError(t, err)
	require.Equal(t, "project(GM2Calc)", string(data))
}

func TestExtractArchive_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "boost.7z")
	require.NoError(t, os.WriteFile(archive, []byte("x"), 0o644))
	require.Error(t, extractArchive(archive, filepath.Join(dir, "src"), true))
}

func TestStripper(t *testing.T) {
	s := stripper{enabled: true}
	require.Equal(t, "", s.name("boost_1_85_0/", true))
	require.Equal(t, "bootstrap.sh", s.name("boost_1_85_0/bootstrap.sh", false))
	require.Equal(t, "libs/config", s.name("./boost_1_85_0/libs/config", true))
	require.Equal(t, "other/file", s.name("other/file", false))

	off := stripper{}
	require.Equal(t, "boost_1_85_0/b2", off.name("boost_1_85_0/b2", false))
}

// tarEntry is one member of a hand-built tarball.
type tarEntry struct {
	name, link, body string
	typ              byte
}

func writeTarEntries(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typ, Mode: 0o755, Linkname: e.link}
		if e.typ == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typ == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestExtractArchive_RejectsWritesThroughEscapingSymlink(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	outside := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarEntries(t, archive, []tarEntry{
		{name: "top/", typ: tar.TypeDir},
		{name: "top/esc", link: outside, typ: tar.TypeSymlink},
		{name: "top/esc/owned.txt", body: "pwned", typ: tar.TypeReg},
	})

	// --- Act ---
	err := extractArchive(archive, filepath.Join(dir, "src"), true)

	// --- Assert ---
	require.Error(t, err)
	require.NoFileExists(t, filepath.Join(outside, "owned.txt"))
}

func TestExtractArchive_RejectsRelativeSymlinkLeavingDest(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarEntries(t, archive, []tarEntry{
		{name: "top/", typ: tar.TypeDir},
		{name: "top/lib/up", link: "../../..", typ: tar.TypeSymlink},
	})

	err := extractArchive(archive, filepath.Join(dir, "src"), true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "illegal symlink")
}

func TestExtractArchive_RefusesExistingSymlinkedParent(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	dest := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(dest, "include")))

	archive := filepath.Join(dir, "a.tar.gz")
	writeTarGz(t, archive, "a-1.0", map[string]string{"include/a.h": "// a"})

	err := extractArchive(archive, dest, true)
	require.Error(t, err)
	require.NoFileExists(t, filepath.Join(outside, "a.h"))
}

func TestExtractArchive_KeepsInternalSymlinks(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "gsl-2.7.1.tar.gz")
	writeTarEntries(t, archive, []tarEntry{
		{name: "gsl-2.7.1/", typ: tar.TypeDir},
		{name: "gsl-2.7.1/doc/README", body: "gsl", typ: tar.TypeReg},
		{name: "gsl-2.7.1/README", link: "doc/README", typ: tar.TypeSymlink},
	})

	dest := filepath.Join(dir, "src")
	require.NoError(t, extractArchive(archive, dest, true))
	data, err := os.ReadFile(filepath.Join(dest, "README"))
	require.NoError(t, err)
	require.Equal(t, "gsl", string(data))
}
