package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/qri-io/jsonpointer"
	"gopkg.in/yaml.v3"
)

// maxRefDepth bounds $ref chains so recursive schemas terminate.
const maxRefDepth = 32

// Load reads an OpenRPC document from a .json, .yaml or .yml file and
// resolves its local $refs.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var format string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		format = "json"
	case ".yaml", ".yml":
		format = "yaml"
	default:
		return nil, fmt.Errorf("unsupported catalog extension: %s", ext)
	}

	c, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return c, nil
}

// LoadSet loads one catalog per surface from a surface-to-path mapping.
func LoadSet(paths map[string]string) (Set, error) {
	set := make(Set, len(paths))
	for surface, path := range paths {
		c, err := Load(path)
		if err != nil {
			return nil, err
		}
		set[strings.ToLower(surface)] = c
	}
	return set, nil
}

// Decode reads a document in the given format ("json" or "yaml").
func Decode(r io.Reader, format string) (*Catalog, error) {
	var raw any
	switch format {
	case "json":
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case "yaml":
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}

	resolved, err := dereference(raw, raw, 0)
	if err != nil {
		return nil, err
	}

	// Round-trip through JSON so YAML and JSON documents land in the same
	// generic shapes.
	b, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("re-encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return New(&doc), nil
}

// dereference replaces every local {"$ref": "#/..."} with its target.
func dereference(node, root any, depth int) (any, error) {
	if depth > maxRefDepth {
		return nil, fmt.Errorf("$ref chain deeper than %d", maxRefDepth)
	}

	switch v := node.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok && strings.HasPrefix(ref, "#") {
			ptr, err := jsonpointer.Parse(strings.TrimPrefix(ref, "#"))
			if err != nil {
				return nil, fmt.Errorf("invalid $ref %q: %w", ref, err)
			}
			target, err := ptr.Eval(root)
			if err != nil || target == nil {
				return nil, fmt.Errorf("unresolvable $ref %q", ref)
			}
			return dereference(target, root, depth+1)
		}
		out := make(map[string]any, len(v))
		for k, child := range v {
			r, err := dereference(child, root, depth)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			r, err := dereference(child, root, depth)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil

	default:
		return v, nil
	}
}
