package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON returns the raw config bytes as JSON. Files named .yaml/.yml
// are decoded and re-marshalled, so both formats funnel through the
// single strict decoder in Parse (DisallowUnknownFields catches a
// misspelled "missed_policy" the same way in either format).
func toJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml config %s: %w", path, err)
	}

	j, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml config %s: %w", path, err)
	}
	return j, nil
}

// stringifyKeys rewrites YAML's map[any]any nodes into map[string]any
// so the document can be JSON-marshalled.
func stringifyKeys(in any) any {
	switch node := in.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, v := range node {
			out[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return out
	case map[string]any:
		for k, v := range node {
			node[k] = stringifyKeys(v)
		}
		return node
	case []any:
		for i := range node {
			node[i] = stringifyKeys(node[i])
		}
		return node
	default:
		return in
	}
}
