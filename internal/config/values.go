package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"
)

// ToMap converts cfg to its nested JSON object form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns cfg as dot-separated keys, with secrets masked when
// mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value stored in the file at path for a
// dot-separated key. The file is created with defaults if missing.
// Environment overrides are not applied.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	data, err := readStandard(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dot-separated key in the existing file at
// path. value is parsed as JSON when it is valid JSON and stored as a
// string otherwise. Comments in the file are preserved.
func SetValue(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	root, err := hujson.Parse(data)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	std, err := hujson.Standardize(append([]byte(nil), data...))
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	var current map[string]any
	if err := json.Unmarshal(std, &current); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	encoded := []byte(value)
	if !json.Valid(encoded) {
		encoded, _ = json.Marshal(value)
	}

	patch, err := buildPatch(current, strings.Split(key, "."), encoded)
	if err != nil {
		return err
	}
	if err := root.Patch(patch); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	root.Format()
	return writeAtomic(path, root.Pack())
}

// buildPatch returns an RFC 6902 patch that adds any missing parent objects
// along parts and then sets the leaf to value.
func buildPatch(tree map[string]any, parts []string, value json.RawMessage) ([]byte, error) {
	type op struct {
		Op    string          `json:"op"`
		Path  string          `json:"path"`
		Value json.RawMessage `json:"value"`
	}
	var ops []op
	pointer := ""
	node := tree
	for i, part := range parts {
		pointer += "/" + escapePointer(part)
		if i == len(parts)-1 {
			ops = append(ops, op{Op: "add", Path: pointer, Value: value})
			break
		}
		child, exists := node[part]
		next, isObject := child.(map[string]any)
		switch {
		case !exists:
			ops = append(ops, op{Op: "add", Path: pointer, Value: json.RawMessage(`{}`)})
			next = map[string]any{}
		case !isObject:
			return nil, fmt.Errorf("config key %s is not an object", strings.Join(parts[:i+1], "."))
		}
		node = next
	}
	return json.Marshal(ops)
}

func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}
