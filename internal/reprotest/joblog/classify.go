// Package joblog extracts job ids, chained submissions and exit statuses from PBS job output.
//
// Every line of a log is classified exactly once (see Classify); the parsers in this package
// then operate on the classified stream rather than matching patterns of their own.
package joblog

import (
	"regexp"
	"strconv"
	"strings"
)

// JobId is a scheduler job id such as "137650670.gadi-pbs". Identity is the full string.
type JobId string

// Number is the leading numeric component, which is the part used in output file names.
func (id JobId) Number() string {
	n, _, _ := strings.Cut(string(id), ".")
	return n
}

func (id JobId) String() string {
	return string(id)
}

// JobRole tells a run job apart from the collate job it submits.
type JobRole int

const (
	UnknownJob JobRole = iota
	RunJob
	CollateJob
)

func (r JobRole) String() string {
	switch r {
	case RunJob:
		return "run"
	case CollateJob:
		return "collate"
	default:
		return "unknown"
	}
}

type LineClass int

const (
	Other LineClass = iota
	// JobIdLine is a line holding nothing but a job id, as printed by qsub.
	JobIdLine
	// SubmitMarker is a command line submitting payu-run or payu-collate.
	SubmitMarker
	// ExitStatusLine is the "Exit Status:" entry of the PBS resource usage footer.
	ExitStatusLine
)

// Line is a classified log line.
type Line struct {
	Class LineClass
	Text  string
	// Role is set for SubmitMarker lines.
	Role JobRole
	// ExitStatus is set for ExitStatusLine lines.
	ExitStatus int
}

var (
	jobIdPattern      = regexp.MustCompile(`^[0-9]+\.\S+$`)
	submitPattern     = regexp.MustCompile(`(?:^|[\s/])payu-(run|collate)(?:\s|$)`)
	exitStatusPattern = regexp.MustCompile(`^Exit Status:\s*(-?[0-9]+)\s*$`)
)

// Classify assigns a single line to its lexical class.
func Classify(text string) Line {
	trimmed := strings.TrimSpace(text)
	if jobIdPattern.MatchString(trimmed) {
		return Line{Class: JobIdLine, Text: trimmed}
	}
	if m := exitStatusPattern.FindStringSubmatch(trimmed); m != nil {
		status, err := strconv.Atoi(m[1])
		if err == nil {
			return Line{Class: ExitStatusLine, Text: trimmed, ExitStatus: status}
		}
	}
	if m := submitPattern.FindStringSubmatch(trimmed); m != nil {
		role := RunJob
		if m[1] == "collate" {
			role = CollateJob
		}
		return Line{Class: SubmitMarker, Text: trimmed, Role: role}
	}
	return Line{Class: Other, Text: trimmed}
}

// Scan classifies every line of text in order.
func Scan(text string) []Line {
	raw := strings.Split(text, "\n")
	lines := make([]Line, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, Classify(l))
	}
	return lines
}
