package fsinstall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func recipeA() Recipe {
	return Recipe{
		Name:          "A",
		Class:         ClassDetectable,
		Binary:        "a-config",
		IncludeSubdir: "include",
		LibDirs:       []string{"lib", "lib64"},
		Flags:         FlagRule{Include: "with-A-incdir", Lib: "with-A-libdir", Disable: "disable-A"},
	}
}

func planFor(t *testing.T, recipes []Recipe, caps Capabilities, intent Intent, root string, entries ...CatalogEntry) *Plan {
	t.Helper()
	descs, err := Bind(recipes, mustCatalog(t, entries...))
	require.NoError(t, err)
	plan, err := Decide(descs, caps, intent, root)
	require.NoError(t, err)
	return plan
}

func TestCompose_LocalBuildEmitsIncludeAndLib(t *testing.T) {
	root := t.TempDir()
	caps := Capabilities{Compiler: &Compiler{Name: "g++"}}
	plan := planFor(t, []Recipe{recipeA()}, caps, Intent{BuildLocal: map[string]bool{"A": true}}, root,
		CatalogEntry{Name: "A", Version: "1.0"})
	require.Equal(t, BuildLocal, plan.Decision("A"))

	prefix := filepath.Join(root, "A-1.0")
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "include"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "lib"), 0o755))
	inst, err := resolveInstall(mustEntry(t, plan, "A").Descriptor, prefix)
	require.NoError(t, err)

	flags, err := Compose(plan, map[string]Install{"A": inst})
	require.NoError(t, err)
	require.Equal(t, []string{
		"--with-A-incdir=" + filepath.Join(root, "A-1.0", "include"),
		"--with-A-libdir=" + filepath.Join(root, "A-1.0", "lib"),
	}, flags.Args())
}

func TestCompose_Lib64OnlyIsReferenced(t *testing.T) {
	root := t.TempDir()
	prefix := filepath.Join(root, "A-1.0")
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "include"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "lib64"), 0o755))

	caps := Capabilities{Compiler: &Compiler{Name: "g++"}}
	plan := planFor(t, []Recipe{recipeA()}, caps,
		Intent{BuildLocal: map[string]bool{"A": true}, Reinstall: map[string]bool{"A": false}}, root,
		CatalogEntry{Name: "A", Version: "1.0"})
	inst, err := (&Builder{}).Adopt(mustEntry(t, plan, "A").Target)
	require.NoError(t, err)

	flags, err := Compose(plan, map[string]Install{"A": inst})
	require.NoError(t, err)
	require.Equal(t, []string{
		"--with-A-incdir=" + filepath.Join(prefix, "include"),
		"--with-A-libdir=" + filepath.Join(prefix, "lib64"),
	}, flags.For("A").Args())
}

func TestResolveLibDir_PrefersLib(t *testing.T) {
	prefix := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "lib"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "lib64"), 0o755))

	got, err := resolveLibDir(prefix, []string{"lib", "lib64"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(prefix, "lib"), got)

	_, err = resolveLibDir(t.TempDir(), []string{"lib", "lib64"})
	require.ErrorIs(t, err, ErrNoLibDir)
}

func TestCompose_SystemEmitsNothing(t *testing.T) {
	caps := Capabilities{Compiler: &Compiler{Name: "g++"}, Binaries: map[string]string{"a-config": "/usr/bin/a-config"}}
	plan := planFor(t, []Recipe{recipeA()}, caps, Intent{}, t.TempDir(), CatalogEntry{Name: "A", Version: "1.0"})
	require.Equal(t, UseSystem, plan.Decision("A"))

	flags, err := Compose(plan, nil)
	require.NoError(t, err)
	require.Empty(t, flags)
}

func TestCompose_DisabledEmitsOnlyTheDisableSwitch(t *testing.T) {
	caps := Capabilities{Compiler: &Compiler{Name: "g++"}}
	plan := planFor(t, []Recipe{recipeA()}, caps, Intent{}, t.TempDir(), CatalogEntry{Name: "A", Version: "1.0"})
	require.Equal(t, Disabled, plan.Decision("A"))

	flags, err := Compose(plan, map[string]Install{"A": {Name: "A", Prefix: "/stale", IncludeDir: "/stale/include"}})
	require.NoError(t, err)
	require.Equal(t, []string{"--disable-A"}, flags.Args())
}

func TestCompose_MissingInstallIsAnError(t *testing.T) {
	caps := Capabilities{Compiler: &Compiler{Name: "g++"}}
	plan := planFor(t, []Recipe{recipeA()}, caps, Intent{BuildLocal: map[string]bool{"A": true}}, t.TempDir(),
		CatalogEntry{Name: "A", Version: "1.0"})
	_, err := Compose(plan, map[string]Install{})
	require.Error(t, err)
}

func TestCompose_FlexibleSUSYGolden(t *testing.T) {
	root := "/deps"
	caps := Capabilities{Compiler: &Compiler{Name: "g++"}}
	plan := planFor(t, DefaultRecipes(), caps, Intent{AssumeYes: true}, t.TempDir(),
		CatalogEntry{Name: "Eigen", Version: "3.4.0"},
		CatalogEntry{Name: "cmake", Version: "3.29.3"},
		CatalogEntry{Name: "Boost", Version: "1.85.0"},
		CatalogEntry{Name: "GSL", Version: "2.7.1"},
		CatalogEntry{Name: "GM2Calc", Version: "2.3.0"},
	)
	installs := map[string]Install{
		"Eigen":   {Name: "Eigen", Prefix: root + "/eigen-3.4.0", IncludeDir: root + "/eigen-3.4.0/include/eigen3"},
		"cmake":   {Name: "cmake", Prefix: root + "/cmake-3.29.3"},
		"Boost":   {Name: "Boost", Prefix: root + "/boost-1.85.0", IncludeDir: root + "/boost-1.85.0/include", LibDir: root + "/boost-1.85.0/lib"},
		"GSL":     {Name: "GSL", Prefix: root + "/gsl-2.7.1", IncludeDir: root + "/gsl-2.7.1/include", LibDir: root + "/gsl-2.7.1/lib64"},
		"GM2Calc": {Name: "GM2Calc", Prefix: root + "/GM2Calc-2.3.0", IncludeDir: root + "/GM2Calc-2.3.0/include", LibDir: root + "/GM2Calc-2.3.0/lib"},
	}

	flags, err := Compose(plan, installs)
	require.NoError(t, err)
	require.Equal(t, []string{
		"--with-eigen-incdir=/deps/eigen-3.4.0/include/eigen3",
		"--with-boost-incdir=/deps/boost-1.85.0/include",
		"--with-boost-libdir=/deps/boost-1.85.0/lib",
		"--with-gsl-config=/deps/gsl-2.7.1/bin/gsl-config",
		"--with-gm2calc-incdir=/deps/GM2Calc-2.3.0/include",
		"--with-gm2calc-libdir=/deps/GM2Calc-2.3.0/lib",
	}, flags.Args())

	// Same plan, same flags.
	again, err := Compose(plan, installs)
	require.NoError(t, err)
	require.Equal(t, flags, again)
}

func TestCompose_GM2CalcDisabled(t *testing.T) {
	caps := Capabilities{
		Compiler: &Compiler{Name: "g++"},
		Binaries: map[string]string{"cmake": "/usr/bin/cmake", "gsl-config": "/usr/bin/gsl-config"},
		Compiles: map[string]bool{"Boost": true},
	}
	plan := planFor(t, DefaultRecipes(), caps, Intent{}, t.TempDir(),
		CatalogEntry{Name: "Eigen", Version: "3.4.0"},
		CatalogEntry{Name: "cmake", Version: "3.29.3"},
		CatalogEntry{Name: "Boost", Version: "1.85.0"},
		CatalogEntry{Name: "GSL", Version: "2.7.1"},
		CatalogEntry{Name: "GM2Calc", Version: "2.3.0"},
	)
	flags, err := Compose(plan, map[string]Install{
		"Eigen": {Name: "Eigen", Prefix: "/deps/eigen-3.4.0", IncludeDir: "/deps/eigen-3.4.0/include/eigen3"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"--with-eigen-incdir=/deps/eigen-3.4.0/include/eigen3",
		"--disable-gm2calc",
	}, flags.Args())
}

func mustEntry(t *testing.T, p *Plan, name string) PlanEntry {
	t.Helper()
	e, ok := p.Entry(name)
	require.True(t, ok, name)
	return e
}
