// Package payuconfig edits a payu config.yaml in place, keeping the order of its keys.
package payuconfig

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const FileName = "config.yaml"

type Config struct {
	path string
	doc  yaml.MapSlice
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrapf(err, "error parsing %s", path)
	}
	return &Config{path: path, doc: doc}, nil
}

func (c *Config) Path() string {
	return c.path
}

// Get returns the value at the given key path, e.g. Get("calendar", "runtime").
func (c *Config) Get(keys ...string) (interface{}, bool) {
	var current interface{} = c.doc
	for _, key := range keys {
		ms, ok := asMapSlice(current)
		if !ok {
			return nil, false
		}
		found := false
		for _, item := range ms {
			if k, ok := item.Key.(string); ok && k == key {
				current = item.Value
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return current, true
}

// GetString returns the value at the key path if it is a string.
func (c *Config) GetString(keys ...string) string {
	v, ok := c.Get(keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set replaces the value at the key path, creating intermediate mappings as needed.
// New keys are appended after existing ones.
func (c *Config) Set(value interface{}, keys ...string) {
	if len(keys) == 0 {
		return
	}
	c.doc = set(c.doc, value, keys)
}

func set(ms yaml.MapSlice, value interface{}, keys []string) yaml.MapSlice {
	key := keys[0]
	for i, item := range ms {
		if k, ok := item.Key.(string); ok && k == key {
			if len(keys) == 1 {
				ms[i].Value = value
			} else {
				child, _ := asMapSlice(item.Value)
				ms[i].Value = set(child, value, keys[1:])
			}
			return ms
		}
	}
	if len(keys) == 1 {
		return append(ms, yaml.MapItem{Key: key, Value: value})
	}
	return append(ms, yaml.MapItem{Key: key, Value: set(nil, value, keys[1:])})
}

func asMapSlice(v interface{}) (yaml.MapSlice, bool) {
	switch m := v.(type) {
	case yaml.MapSlice:
		return m, true
	case map[interface{}]interface{}:
		ms := make(yaml.MapSlice, 0, len(m))
		for k, v := range m {
			ms = append(ms, yaml.MapItem{Key: k, Value: v})
		}
		return ms, true
	default:
		return nil, false
	}
}

// Save writes the config back to the file it was loaded from.
func (c *Config) Save() error {
	b, err := yaml.Marshal(c.doc)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(c.path, b, 0o644))
}
