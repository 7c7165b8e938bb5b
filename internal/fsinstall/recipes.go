package fsinstall

import (
	"strings"
)

// DefaultRecipes returns the dependencies of FlexibleSUSY.
func DefaultRecipes() []Recipe {
	return []Recipe{
		cmakeRecipe(),
		eigenRecipe(),
		boostRecipe(),
		gslRecipe(),
		gm2calcRecipe(),
	}
}

// cmakeBinary is the locally built cmake when there is one, else the
// cmake found on the search path.
func cmakeBinary(env StepEnv) string {
	if inst, ok := env.Dep("cmake"); ok {
		return inst.Path("bin/cmake")
	}
	return "cmake"
}

// autotools is the configure/make/make install sequence.
func autotools(configure ...string) func(StepEnv) []Step {
	return func(env StepEnv) []Step {
		return []Step{
			{Phase: PhaseConfigure, Argv: append(append([]string{}, configure...), "--prefix="+env.Prefix)},
			{Phase: PhaseCompile, Argv: []string{"make", "-j" + env.JobsArg()}},
			{Phase: PhaseInstall, Argv: []string{"make", "install"}},
		}
	}
}

func cmakeRecipe() Recipe {
	return Recipe{
		Name:        "cmake",
		Dir:         "cmake",
		Source:      "https://github.com/Kitware/CMake/releases/download/v{version}/cmake-{version}.tar.gz",
		StripTopDir: true,
		Class:       ClassDetectable,
		Binary:      "cmake",
		Steps: func(env StepEnv) []Step {
			return []Step{
				{Phase: PhaseConfigure, Argv: []string{"./bootstrap", "--prefix=" + env.Prefix, "--parallel=" + env.JobsArg(), "--", "-DCMAKE_USE_OPENSSL=OFF"}},
				{Phase: PhaseCompile, Argv: []string{"make", "-j" + env.JobsArg()}},
				{Phase: PhaseInstall, Argv: []string{"make", "install"}},
			}
		},
	}
}

func eigenRecipe() Recipe {
	return Recipe{
		Name:             "Eigen",
		Dir:              "eigen",
		Source:           "https://gitlab.com/libeigen/eigen/-/archive/{version}/eigen-{version}.tar.gz",
		StripTopDir:      true,
		Class:            ClassBundled,
		Requires:         []string{"cmake"},
		RequiredByTarget: true,
		IncludeSubdir:    "include/eigen3",
		Flags:            FlagRule{Include: "with-eigen-incdir"},
		Steps: func(env StepEnv) []Step {
			return []Step{
				{Phase: PhaseConfigure, Dir: "build", Argv: []string{cmakeBinary(env), "..", "-DCMAKE_INSTALL_PREFIX=" + env.Prefix}},
				{Phase: PhaseCompile, Dir: "build", Argv: []string{"make", "-j" + env.JobsArg()}},
				{Phase: PhaseInstall, Dir: "build", Argv: []string{"make", "install"}},
			}
		},
	}
}

func boostRecipe() Recipe {
	return Recipe{
		Name:             "Boost",
		Dir:              "boost",
		Source:           "https://archives.boost.io/release/{version}/source/boost_{version_}.tar.gz",
		StripTopDir:      true,
		Class:            ClassCompileProbe,
		ProbeHeader:      "boost/version.hpp",
		RequiredByTarget: true,
		IncludeSubdir:    "include",
		LibDirs:          []string{"lib", "lib64"},
		Flags:            FlagRule{Include: "with-boost-incdir", Lib: "with-boost-libdir"},
		Steps: func(env StepEnv) []Step {
			return []Step{
				{Phase: PhaseConfigure, Argv: []string{"./bootstrap.sh", "--prefix=" + env.Prefix}},
				{Phase: PhaseCompile, Argv: []string{"./b2", "-j" + env.JobsArg()}},
				{Phase: PhaseInstall, Argv: []string{"./b2", "-j" + env.JobsArg(), "install", "--prefix=" + env.Prefix}},
			}
		},
	}
}

func gslRecipe() Recipe {
	return Recipe{
		Name:             "GSL",
		Dir:              "gsl",
		Source:           "https://mirror.ibcp.fr/pub/gnu/gsl/gsl-{version}.tar.gz",
		StripTopDir:      true,
		Class:            ClassDetectable,
		Binary:           "gsl-config",
		RequiredByTarget: true,
		IncludeSubdir:    "include",
		LibDirs:          []string{"lib", "lib64"},
		// FlexibleSUSY discovers GSL through gsl-config alone.
		Flags: FlagRule{Hint: "with-gsl-config", HintPath: "bin/gsl-config"},
		Steps: autotools("./configure"),
	}
}

func gm2calcRecipe() Recipe {
	return Recipe{
		Name:          "GM2Calc",
		Dir:           "GM2Calc",
		Source:        "https://github.com/GM2Calc/GM2Calc/archive/refs/tags/v{version}.tar.gz",
		Archive:       "GM2Calc-{version}.tar.gz",
		StripTopDir:   true,
		Class:         ClassOptional,
		Requires:      []string{"cmake", "Eigen", "Boost"},
		IncludeSubdir: "include",
		LibDirs:       []string{"lib", "lib64"},
		Flags: FlagRule{
			Include: "with-gm2calc-incdir",
			Lib:     "with-gm2calc-libdir",
			Disable: "disable-gm2calc",
		},
		Steps: func(env StepEnv) []Step {
			configure := []string{
				cmakeBinary(env), "..",
				"-DCMAKE_INSTALL_PREFIX=" + env.Prefix,
				"-DCMAKE_POSITION_INDEPENDENT_CODE=On",
			}
			if eigen, ok := env.Dep("Eigen"); ok {
				configure = append(configure, "-DEigen3_DIR="+eigen.IncludeDir)
			}
			if boost, ok := env.Dep("Boost"); ok {
				configure = append(configure, "-DBOOST_ROOT="+boost.Prefix)
			}
			return []Step{
				{Phase: PhaseConfigure, Dir: "build", Argv: configure},
				{Phase: PhaseCompile, Dir: "build", Argv: []string{"make", "-j" + env.JobsArg()}},
				{Phase: PhaseInstall, Dir: "build", Argv: []string{"make", "install"}},
			}
		},
	}
}

// FlexibleSUSY is the target package built against the dependencies.
func FlexibleSUSY() TargetRecipe {
	return TargetRecipe{
		Name:    "FlexibleSUSY",
		Dir:     "FlexibleSUSY",
		Source:  "https://github.com/FlexibleSUSY/FlexibleSUSY/archive/refs/tags/v{version}.tar.gz",
		Archive: "FlexibleSUSY-{version}.tar.gz",
		Materialize: func(module string) []string {
			return []string{"./createmodel", "-f", "--name=" + module}
		},
		Configure: func(modules []string, flags ComposedFlags) []string {
			argv := []string{"./configure", "--with-models=" + strings.Join(modules, ",")}
			return append(argv, flags.Args()...)
		},
		Compile: func(env StepEnv) []string {
			return []string{"make", "-j" + env.JobsArg()}
		},
	}
}
