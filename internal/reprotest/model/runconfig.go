package model

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// runconfig is a NUOPC run configuration, made of sections such as
//
//	CLOCK_attributes::
//	     stop_n = 1
//	     stop_option = nyears
//	::
type runconfig struct {
	path  string
	lines []string
}

func loadRunconfig(path string) (*runconfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &runconfig{path: path, lines: strings.Split(string(b), "\n")}, nil
}

// find returns the line index of key in section, and the index of the section's closing "::".
func (r *runconfig) find(section, key string) (int, int) {
	inSection := false
	for i, line := range r.lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inSection && trimmed == section+"::":
			inSection = true
		case inSection && trimmed == "::":
			return -1, i
		case inSection:
			k, _, found := strings.Cut(trimmed, "=")
			if found && strings.TrimSpace(k) == key {
				return i, -1
			}
		}
	}
	return -1, -1
}

func (r *runconfig) Get(section, key string) (string, bool) {
	i, _ := r.find(section, key)
	if i < 0 {
		return "", false
	}
	_, v, _ := strings.Cut(r.lines[i], "=")
	return strings.TrimSpace(v), true
}

func (r *runconfig) Set(section, key, value string) error {
	i, end := r.find(section, key)
	entry := "     " + key + " = " + value
	switch {
	case i >= 0:
		r.lines[i] = entry
	case end >= 0:
		r.lines = append(r.lines[:end], append([]string{entry}, r.lines[end:]...)...)
	default:
		return errors.Errorf("section %s not found in %s", section, r.path)
	}
	return nil
}

func (r *runconfig) Write() error {
	return errors.WithStack(os.WriteFile(r.path, []byte(strings.Join(r.lines, "\n")), 0o644))
}
