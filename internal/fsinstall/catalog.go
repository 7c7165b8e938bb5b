package fsinstall

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// CatalogEntry is one pinned dependency version.
type CatalogEntry struct {
	Name     string
	Version  string
	Checksum string // optional blake3 hex digest of the source archive
}

// Catalog maps dependency names to exact versions. Iteration order is the
// order of the source file and is used wherever output must be stable.
type Catalog struct {
	names     []string
	versions  map[string]string
	checksums map[string]string
}

// NewCatalog builds a catalog from entries, rejecting empty or duplicate names.
func NewCatalog(entries []CatalogEntry) (*Catalog, error) {
	c := &Catalog{
		versions:  make(map[string]string, len(entries)),
		checksums: make(map[string]string),
	}
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog entry with empty name")
		}
		if _, dup := c.versions[e.Name]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %q", e.Name)
		}
		if strings.TrimSpace(e.Version) == "" {
			return nil, fmt.Errorf("catalog entry %q has an empty version", e.Name)
		}
		c.names = append(c.names, e.Name)
		c.versions[e.Name] = e.Version
		if e.Checksum != "" {
			c.checksums[e.Name] = strings.ToLower(e.Checksum)
		}
	}
	return c, nil
}

// LoadCatalog reads a YAML or TOML catalog file, chosen by extension.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	c, err := ParseCatalog(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes catalog data. format is "yaml", "yml" or "toml".
func ParseCatalog(data []byte, format string) (*Catalog, error) {
	switch format {
	case "yaml", "yml":
		return parseYAMLCatalog(data)
	case "toml":
		return parseTOMLCatalog(data)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
}

func parseYAMLCatalog(data []byte) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("catalog must be a mapping with a 'versions' section")
	}
	root := doc.Content[0]

	versions, err := yamlSection(root, "versions")
	if err != nil {
		return nil, err
	}
	if versions == nil {
		return nil, fmt.Errorf("catalog has no 'versions' section")
	}
	checksums, err := yamlSection(root, "checksums")
	if err != nil {
		return nil, err
	}

	sums := make(map[string]string)
	if checksums != nil {
		for i := 0; i+1 < len(checksums.Content); i += 2 {
			sums[checksums.Content[i].Value] = checksums.Content[i+1].Value
		}
	}

	var entries []CatalogEntry
	for i := 0; i+1 < len(versions.Content); i += 2 {
		key, val := versions.Content[i], versions.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("version of %q must be a scalar (line %d)", key.Value, val.Line)
		}
		entries = append(entries, CatalogEntry{Name: key.Value, Version: val.Value, Checksum: sums[key.Value]})
	}
	return NewCatalog(entries)
}

// yamlSection returns the mapping stored under key in a mapping node, or nil.
func yamlSection(m *yaml.Node, key string) (*yaml.Node, error) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != key {
			continue
		}
		section := m.Content[i+1]
		if section.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("'%s' must be a mapping (line %d)", key, section.Line)
		}
		return section, nil
	}
	return nil, nil
}

func parseTOMLCatalog(data []byte) (*Catalog, error) {
	var raw struct {
		Versions  map[string]string `toml:"versions"`
		Checksums map[string]string `toml:"checksums"`
	}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("invalid TOML: %w", err)
	}
	if raw.Versions == nil {
		return nil, fmt.Errorf("catalog has no [versions] table")
	}

	// MetaData.Keys reports keys in file order, which a Go map loses.
	var entries []CatalogEntry
	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != "versions" {
			continue
		}
		name := key[1]
		entries = append(entries, CatalogEntry{Name: name, Version: raw.Versions[name], Checksum: raw.Checksums[name]})
	}
	return NewCatalog(entries)
}

// Names returns dependency names in catalog order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.names)
}

// Version returns the pinned version of name.
func (c *Catalog) Version(name string) (string, error) {
	v, ok := c.versions[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingVersion, name)
	}
	return v, nil
}

// Checksum returns the pinned archive digest of name, or "".
func (c *Catalog) Checksum(name string) string {
	return c.checksums[name]
}

// Index returns the catalog position of name, or -1.
func (c *Catalog) Index(name string) int {
	return slices.Index(c.names, name)
}

// Require checks that every name has a version, reporting all missing ones.
func (c *Catalog) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := c.versions[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingVersion, strings.Join(missing, ", "))
	}
	return nil
}
