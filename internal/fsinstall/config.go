package fsinstall

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultConfFile = "fsinstall.conf"
	defaultDepsDir  = "FlexibleSUSY-deps"
	defaultCatalog  = "config.yml"
	envPrefix       = "FSINSTALL_"
)

// Config holds raw KEY=VALUE settings.
type Config struct {
	Values map[string]string
}

// loadConfig reads a KEY=VALUE file and applies overrides from .env in
// dir and from FSINSTALL_* environment variables, in that order. A missing
// file is not an error unless required is set.
func loadConfig(path, dir string, required bool) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			cfg.Values[key] = strings.Trim(val, `"'`)
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, err
	}

	if err := mergeDotEnv(cfg, filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}
	mergeEnvOverrides(cfg)
	return cfg, nil
}

// mergeDotEnv applies the FSINSTALL_* and TMPDIR entries of a .env file.
func mergeDotEnv(cfg *Config, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	for k, v := range env {
		if strings.HasPrefix(k, envPrefix) || k == "TMPDIR" {
			cfg.Values[k] = v
		}
	}
	return nil
}

// Merge FSINSTALL_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, envPrefix) {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}

	if tmp := os.Getenv("TMPDIR"); tmp != "" {
		if _, exists := cfg.Values["TMPDIR"]; !exists {
			cfg.Values["TMPDIR"] = tmp
		}
	}
}

// Settings are the resolved settings of one run.
type Settings struct {
	WorkDir     string
	DepsRoot    string
	CatalogPath string
	TmpDir      string
	// KeepScratch leaves the download and build directory in place after a
	// successful run. It is never removed after a failure.
	KeepScratch bool
	Nice        bool
	Debug       bool
	Mirror      MirrorSettings
}

func newSettings(cfg *Config, workDir string) Settings {
	v := cfg.Values
	s := Settings{
		WorkDir:     workDir,
		DepsRoot:    resolvePath(workDir, v["FSINSTALL_DEPS_ROOT"], defaultDepsDir),
		CatalogPath: resolvePath(workDir, v["FSINSTALL_CATALOG"], defaultCatalog),
		TmpDir:      v["TMPDIR"],
		KeepScratch: v["FSINSTALL_KEEP_SCRATCH"] != "0",
		Nice:        v["FSINSTALL_NICE"] == "1",
		Debug:       v["FSINSTALL_DEBUG"] == "1",
		Mirror: MirrorSettings{
			Endpoint:  v["FSINSTALL_MIRROR_ENDPOINT"],
			Bucket:    v["FSINSTALL_MIRROR_BUCKET"],
			Prefix:    v["FSINSTALL_MIRROR_PREFIX"],
			Region:    v["FSINSTALL_MIRROR_REGION"],
			AccessKey: v["FSINSTALL_MIRROR_ACCESS_KEY_ID"],
			SecretKey: v["FSINSTALL_MIRROR_SECRET_ACCESS_KEY"],
		},
	}
	if s.TmpDir == "" {
		s.TmpDir = os.TempDir()
	}
	return s
}

func resolvePath(base, p, def string) string {
	if p == "" {
		p = def
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
