package junitreport

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/jstemmer/go-junit-report/v2/junit"
	"github.com/pkg/errors"
)

// Summary holds test case names by result, in report order.
type Summary struct {
	Passed   []string
	Errors   []string
	Failures []string
	Skipped  []string
}

// Summarise reads a JUnit XML file. A test case counts as an error before a failure,
// and as a failure before being skipped.
func Summarise(path string) (Summary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, errors.WithStack(err)
	}
	suites, err := parse(b)
	if err != nil {
		return Summary{}, errors.Wrapf(err, "error parsing %s", path)
	}

	var s Summary
	for _, suite := range suites {
		for _, tc := range suite.Testcases {
			switch {
			case tc.Error != nil:
				s.Errors = append(s.Errors, tc.Name)
			case tc.Failure != nil:
				s.Failures = append(s.Failures, tc.Name)
			case tc.Skipped != nil:
				s.Skipped = append(s.Skipped, tc.Name)
			default:
				s.Passed = append(s.Passed, tc.Name)
			}
		}
	}
	return s, nil
}

// parse accepts either a <testsuites> document or a single <testsuite>.
func parse(b []byte) ([]junit.Testsuite, error) {
	var suites junit.Testsuites
	err := xml.Unmarshal(b, &suites)
	if err == nil {
		return suites.Suites, nil
	}
	var suite junit.Testsuite
	if err2 := xml.Unmarshal(b, &suite); err2 != nil {
		return nil, errors.WithStack(err)
	}
	return []junit.Testsuite{suite}, nil
}

// Format renders the summary one test per line, errors first, then failures, then passes.
// Skipped tests are left out.
func (s Summary) Format() string {
	var lines []string
	for _, name := range s.Errors {
		lines = append(lines, fmt.Sprintf(":fire: `%s`", name))
	}
	for _, name := range s.Failures {
		lines = append(lines, fmt.Sprintf(":x: `%s`", name))
	}
	for _, name := range s.Passed {
		lines = append(lines, fmt.Sprintf(":white_check_mark: `%s`", name))
	}
	return strings.Join(lines, "\n")
}

// WriteSummary saves a formatted summary for use as a multiline CI output, which must end with a newline.
func WriteSummary(path string, formatted string) error {
	return errors.WithStack(os.WriteFile(path, []byte(strings.TrimRight(formatted, " \t\r\n")+"\n"), 0o644))
}
