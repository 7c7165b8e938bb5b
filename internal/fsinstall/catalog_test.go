package fsinstall

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCatalog_YAMLKeepsFileOrder(t *testing.T) {
	data := []byte(`
versions:
  Eigen: 3.4.0
  cmake: 3.29.3
  Boost: 1.85.0
  GSL: 2.7
checksums:
  Boost: ABCDEF
`)
	c, err := ParseCatalog(data, "yml")
	require.NoError(t, err)

	require.Equal(t, []string{"Eigen", "cmake", "Boost", "GSL"}, c.Names())
	v, err := c.Version("GSL")
	require.NoError(t, err)
	require.Equal(t, "2.7", v)
	require.Equal(t, "abcdef", c.Checksum("Boost"))
	require.Empty(t, c.Checksum("Eigen"))
	require.Equal(t, 2, c.Index("Boost"))
	require.Equal(t, -1, c.Index("GM2Calc"))
}

func TestParseCatalog_TOMLKeepsFileOrder(t *testing.T) {
	data := []byte(`
[versions]
GSL = "2.7.1"
Boost = "1.85.0"
Eigen = "3.4.0"

[checksums]
GSL = "00ff"
`)
	c, err := ParseCatalog(data, "toml")
	require.NoError(t, err)

	require.Equal(t, []string{"GSL", "Boost", "Eigen"}, c.Names())
	require.Equal(t, "00ff", c.Checksum("GSL"))
}

func TestParseCatalog_Rejects(t *testing.T) {
	cases := map[string]struct {
		data   string
		format string
	}{
		"no versions":        {"other:\n  a: 1\n", "yaml"},
		"versions not a map": {"versions: [1, 2]\n", "yaml"},
		"nested version":     {"versions:\n  A:\n    x: 1\n", "yaml"},
		"empty version":      {"versions:\n  A: \"\"\n", "yaml"},
		"duplicate":          {"versions:\n  A: 1\n  A: 2\n", "yaml"},
		"toml no table":      {"A = \"1\"\n", "toml"},
		"unknown format":     {"{}", "json"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tc.data), tc.format)
			require.Error(t, err)
		})
	}
}

func TestCatalog_RequireReportsEveryMissingName(t *testing.T) {
	c := mustCatalog(t, CatalogEntry{Name: "A", Version: "1.0"})

	require.NoError(t, c.Require("A"))

	err := c.Require("A", "B", "C")
	require.True(t, errors.Is(err, ErrMissingVersion))
	require.Contains(t, err.Error(), "B, C")

	_, err = c.Version("B")
	require.ErrorIs(t, err, ErrMissingVersion)
}

func TestCatalog_NamesIsACopy(t *testing.T) {
	c := mustCatalog(t, CatalogEntry{Name: "A", Version: "1.0"}, CatalogEntry{Name: "B", Version: "2.0"})
	names := c.Names()
	names[0] = "Z"
	require.Equal(t, []string{"A", "B"}, c.Names())
}

func TestLoadCatalog_ByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "versions.toml")
	require.NoError(t, os.WriteFile(path, []byte("[versions]\nA = \"1.0\"\n"), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, c.Names())

	_, err = LoadCatalog(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)
}
