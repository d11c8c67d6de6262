// Package ciconfig picks the settings a CI workflow should use for a test type and git reference.
//
// The configuration file is JSON, keyed by test type and then by reference, with defaults at
// both levels:
//
//	{
//	  "reproducibility": {
//	    "release-1deg_jra55_ryf": {"markers": "repro or repro_slow"},
//	    "dev-*": {"payu-version": "dev"},
//	    "default": {"markers": "default-repro"}
//	  },
//	  "default": {"python-version": "3.10", "payu-version": "2.0.0"}
//	}
package ciconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const Default = "default"

// Keys resolved for every lookup, in output order.
var Keys = []string{"model-config-tests-version", "python-version", "markers", "payu-version"}

// Result holds the resolved settings. A nil value was not configured anywhere.
type Result struct {
	ModelConfigTestsVersion interface{} `json:"model-config-tests-version"`
	PythonVersion           interface{} `json:"python-version"`
	Markers                 interface{} `json:"markers"`
	PayuVersion             interface{} `json:"payu-version"`
}

// Config is a parsed CI configuration file. Mappings keep the order they were written in,
// which decides between reference patterns that match equally well.
type Config struct {
	doc yaml.MapSlice
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	v, err := decodeOrdered(dec)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing %s", path)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Errorf("error parsing %s: unexpected data after the top level object", path)
	}
	doc, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, errors.Errorf("error parsing %s: expected a JSON object", path)
	}
	return &Config{doc: doc}, nil
}

// decodeOrdered reads the next JSON value from dec. Objects become yaml.MapSlice so that key
// order is kept; arrays become []interface{}.
func decodeOrdered(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	switch tok {
	case json.Delim('{'):
		doc := yaml.MapSlice{}
		for dec.More() {
			key, err := dec.Token()
			if err != nil {
				return nil, errors.WithStack(err)
			}
			value, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			doc = append(doc, yaml.MapItem{Key: key, Value: value})
		}
		if _, err := dec.Token(); err != nil {
			return nil, errors.WithStack(err)
		}
		return doc, nil
	case json.Delim('['):
		list := []interface{}{}
		for dec.More() {
			value, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		if _, err := dec.Token(); err != nil {
			return nil, errors.WithStack(err)
		}
		return list, nil
	}
	return tok, nil
}

// Parse loads path and resolves every key for testType and reference.
func Parse(testType string, reference string, path string) (Result, error) {
	c, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	return c.Resolve(testType, reference), nil
}

func (c *Config) Resolve(testType string, reference string) Result {
	return Result{
		ModelConfigTestsVersion: c.Value(testType, reference, Keys[0]),
		PythonVersion:           c.Value(testType, reference, Keys[1]),
		Markers:                 c.Value(testType, reference, Keys[2]),
		PayuVersion:             c.Value(testType, reference, Keys[3]),
	}
}

// Value looks key up in order:
//  1. the entry for reference under testType;
//  2. the entry under testType whose pattern matches the longest prefix of reference, the
//     first written winning a tie, among entries that set key;
//  3. the testType default;
//  4. the top level default.
func (c *Config) Value(testType string, reference string, key string) interface{} {
	byReference := get(c.doc, testType)

	if v := get(get(byReference, reference), key); isSet(v) {
		return v
	}

	var best interface{}
	bestLength := -1
	for _, item := range asMapSlice(byReference) {
		pattern, ok := item.Key.(string)
		if !ok {
			continue
		}
		v := get(item.Value, key)
		if !isSet(v) {
			continue
		}
		if n := matchLength(pattern, reference); n > bestLength {
			best, bestLength = v, n
		}
	}
	if bestLength >= 0 {
		return best
	}

	if v := get(get(byReference, Default), key); isSet(v) {
		return v
	}
	if v := get(get(c.doc, Default), key); isSet(v) {
		return v
	}
	return nil
}

// matchLength returns how much of the start of reference pattern matches, or -1.
func matchLength(pattern string, reference string) int {
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return -1
	}
	loc := re.FindStringIndex(reference)
	if loc == nil {
		return -1
	}
	return loc[1]
}

// get returns the value of key if v is a mapping.
func get(v interface{}, key string) interface{} {
	for _, item := range asMapSlice(v) {
		if k, ok := item.Key.(string); ok && k == key {
			return item.Value
		}
	}
	return nil
}

func asMapSlice(v interface{}) yaml.MapSlice {
	ms, _ := v.(yaml.MapSlice)
	return ms
}

// isSet reports whether v counts as configured. Empty strings and false don't.
func isSet(v interface{}) bool {
	switch v := v.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	default:
		return true
	}
}

// JSON renders the result as an indented JSON object.
func (r Result) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "    ")
	return b, errors.WithStack(err)
}

// Lines renders the result as "key: value" lines.
func (r Result) Lines() string {
	values := []interface{}{r.ModelConfigTestsVersion, r.PythonVersion, r.Markers, r.PayuVersion}
	var sb strings.Builder
	for i, key := range Keys {
		v := values[i]
		if v == nil {
			v = ""
		}
		fmt.Fprintf(&sb, "%s: %v\n", key, v)
	}
	return sb.String()
}
