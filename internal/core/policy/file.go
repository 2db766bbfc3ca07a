package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solatis/policyrouter/internal/types"
)

/*
 * File-based policy source.
 *
 * Accepted documents:
 *   - JSON object {"items": [...]} (the policies.json layout)
 *   - JSON array [...]
 *   - YAML mapping with an items: sequence, or a bare YAML sequence
 *
 * The format follows the file extension (.json, .yaml, .yml). When Path is a
 * directory, every policy file directly inside it is loaded in file name order
 * and the definitions are concatenated, so file order is load order.
 *
 * JSON numbers decode as json.Number so integer rule values keep their exact
 * digits through canonicalisation.
 */

// Extensions recognised as policy files.
var Extensions = []string{".json", ".yaml", ".yml"}

// FileSource reads policy definitions from a file or directory.
type FileSource struct {
	Path string
}

// NewFileSource creates a file source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and decodes the policy file(s).
// Returns *types.ConfigError wrapping ErrSourceUnreadable or ErrSourceMalformed.
func (s *FileSource) Load(ctx context.Context) ([]types.PolicyDefinition, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var defs []types.PolicyDefinition
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileDefs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}

// Describe names the source in logs.
func (s *FileSource) Describe() string {
	return "file:" + s.Path
}

// files resolves Path into the ordered list of files to read.
func (s *FileSource) files() ([]string, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, types.NewConfigError(s.Path, "cannot access policy path",
			fmt.Errorf("%w: %v", types.ErrSourceUnreadable, err))
	}
	if !info.IsDir() {
		return []string{s.Path}, nil
	}

	entries, err := os.ReadDir(s.Path)
	if err != nil {
		return nil, types.NewConfigError(s.Path, "cannot list policy directory",
			fmt.Errorf("%w: %v", types.ErrSourceUnreadable, err))
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !IsPolicyFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(s.Path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// IsPolicyFile reports whether name has a recognised policy file extension.
func IsPolicyFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, valid := range Extensions {
		if ext == valid {
			return true
		}
	}
	return false
}

// LoadFile reads and decodes one policy file.
func LoadFile(path string) ([]types.PolicyDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewConfigError(path, "cannot read policy file",
			fmt.Errorf("%w: %v", types.ErrSourceUnreadable, err))
	}

	var defs []types.PolicyDefinition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defs, err = DecodeYAML(data)
	default:
		defs, err = DecodeJSON(data)
	}
	if err != nil {
		return nil, types.NewConfigError(path, "cannot parse policy file", err)
	}
	return defs, nil
}

// DecodeJSON decodes a JSON policy document.
// Errors wrap types.ErrSourceMalformed.
func DecodeJSON(data []byte) ([]types.PolicyDefinition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", types.ErrSourceMalformed)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	switch trimmed[0] {
	case '[':
		var defs []types.PolicyDefinition
		if err := dec.Decode(&defs); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrSourceMalformed, err)
		}
		return defs, nil
	case '{':
		var doc types.PolicyCollection
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrSourceMalformed, err)
		}
		return doc.Items, nil
	default:
		return nil, fmt.Errorf("%w: expected object with items or array of policies", types.ErrSourceMalformed)
	}
}

// DecodeYAML decodes a YAML policy document.
// Errors wrap types.ErrSourceMalformed.
func DecodeYAML(data []byte) ([]types.PolicyDefinition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSourceMalformed, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", types.ErrSourceMalformed)
	}

	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var defs []types.PolicyDefinition
		if err := doc.Decode(&defs); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrSourceMalformed, err)
		}
		return defs, nil
	case yaml.MappingNode:
		var coll types.PolicyCollection
		if err := doc.Decode(&coll); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrSourceMalformed, err)
		}
		return coll.Items, nil
	default:
		return nil, fmt.Errorf("%w: expected mapping with items or sequence of policies", types.ErrSourceMalformed)
	}
}
