// Package manifest holds the ordered log configuration: which label, color and
// line format apply to which log paths.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/modoterra/ptail/pkg/core"
)

// DefaultFile is the configuration read when none is named.
const DefaultFile = "ptail.yaml"

// Manifest represents a ptail.yaml file. Entry order is significant: the
// first entry whose pattern matches a path wins.
type Manifest struct {
	FilePath string
	Entries  []Entry
}

// Entry styles the logs whose path matches Pattern.
type Entry struct {
	Pattern string `yaml:"-"`
	Label   string `yaml:"label,omitempty"`
	Color   string `yaml:"color,omitempty"`
	Format  string `yaml:"format,omitempty"`

	path   *regexp.Regexp
	format *regexp.Regexp
}

// FormatRegexp returns the compiled line format, or nil when the entry has
// none or its format failed to compile.
func (e *Entry) FormatRegexp() *regexp.Regexp { return e.format }

var entryKeys = map[string]bool{"label": true, "color": true, "format": true}

// Parse decodes a configuration document. Patterns are not compiled; call
// Validate and Compile before matching.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedConfig, err)
	}
	if len(doc.Content) == 0 {
		return m, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: top level must be a mapping of path patterns", core.ErrMalformedConfig, root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: pattern must be a string", core.ErrMalformedConfig, key.Line)
		}
		e := Entry{Pattern: key.Value}
		switch {
		case val.Kind == yaml.ScalarNode && val.Tag == "!!null":
		case val.Kind == yaml.MappingNode:
			for j := 0; j+1 < len(val.Content); j += 2 {
				if k := val.Content[j]; !entryKeys[k.Value] {
					return nil, fmt.Errorf("%w: line %d: unknown key %q in %q", core.ErrMalformedConfig, k.Line, k.Value, e.Pattern)
				}
			}
			if err := val.Decode(&e); err != nil {
				return nil, fmt.Errorf("%w: %q: %v", core.ErrMalformedConfig, e.Pattern, err)
			}
		default:
			return nil, fmt.Errorf("%w: line %d: %q must map to label, color and format", core.ErrMalformedConfig, val.Line, e.Pattern)
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

// Load reads a configuration file. When explicit is false a missing file
// yields an empty manifest.
func Load(path string, explicit bool) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &Manifest{FilePath: path}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.FilePath = path
	return m, nil
}

// Compile prepares the entries for matching. Entries whose path pattern does
// not compile never match. A format that does not compile is disabled for
// its entry and reported with core.ErrBadFormatPattern; the entry still
// supplies label and color.
func (m *Manifest) Compile() []error {
	var errs []error
	for i := range m.Entries {
		e := &m.Entries[i]
		e.path, _ = regexp.Compile(e.Pattern)
		e.format = nil
		if e.Format == "" {
			continue
		}
		re, err := regexp.Compile(e.Format)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %q: %w: %v", e.Pattern, core.ErrBadFormatPattern, err))
			continue
		}
		e.format = re
	}
	return errs
}

// Match returns the first entry whose pattern matches path.
func (m *Manifest) Match(path string) (*Entry, bool) {
	if m == nil {
		return nil, false
	}
	for i := range m.Entries {
		e := &m.Entries[i]
		if e.path != nil && e.path.MatchString(path) {
			return e, true
		}
	}
	return nil, false
}

// Marshal encodes the manifest, keeping entry order.
func Marshal(m *Manifest) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range m.Entries {
		var val yaml.Node
		if err := val.Encode(e); err != nil {
			return nil, fmt.Errorf("encode %q: %w", e.Pattern, err)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Pattern},
			&val,
		)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the manifest to path.
func Save(m *Manifest, path string) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
