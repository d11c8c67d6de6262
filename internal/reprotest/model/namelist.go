package model

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// setNamelistValue sets key to value inside the Fortran namelist group &group ... /.
// An existing assignment is replaced on its own line; otherwise the assignment is added at the
// end of the group. The rest of the file, comments included, is left untouched.
func setNamelistValue(text, group, key, value string) (string, error) {
	lines := strings.Split(text, "\n")
	groupStart := regexp.MustCompile(`(?i)^\s*&` + regexp.QuoteMeta(group) + `\s*$`)
	assignment := regexp.MustCompile(`(?i)^(\s*)` + regexp.QuoteMeta(key) + `\s*=`)

	inGroup := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inGroup && groupStart.MatchString(line):
			inGroup = true
		case inGroup && trimmed == "/":
			lines = append(lines[:i], append([]string{"    " + key + " = " + value}, lines[i:]...)...)
			return strings.Join(lines, "\n"), nil
		case inGroup:
			if m := assignment.FindStringSubmatch(line); m != nil {
				lines[i] = m[1] + key + " = " + value
				return strings.Join(lines, "\n"), nil
			}
		}
	}
	return "", errors.Errorf("namelist group &%s not found", group)
}

func setNamelistFileValue(path, group, key, value string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}
	updated, err := setNamelistValue(string(b), group, key, value)
	if err != nil {
		return errors.WithMessagef(err, "error updating %s", path)
	}
	return errors.WithStack(os.WriteFile(path, []byte(updated), 0o644))
}
