// Package junitreport writes test case results as JUnit XML and summarises existing JUnit reports.
package junitreport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jstemmer/go-junit-report/v2/junit"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

type Outcome int

const (
	Passed Outcome = iota
	Failed
	Errored
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Errored:
		return "error"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Case is the result of one test case.
type Case struct {
	Name      string
	Classname string
	Duration  time.Duration
	Outcome   Outcome
	// Message is a one line description of a failure, error or skip.
	Message string
	// Detail is longer output attached to the result, e.g. every mismatched checksum.
	Detail string
}

// Builder collects test cases into a single suite. It is safe for concurrent use.
type Builder struct {
	mu    sync.Mutex
	suite junit.Testsuite
}

// NewBuilder starts a suite. The run id is recorded as a suite property so reports from one
// invocation can be matched with its logs.
func NewBuilder(name string, runId string, c clock.PassiveClock) *Builder {
	suite := junit.Testsuite{Name: name}
	suite.SetTimestamp(c.Now())
	if hostname, err := os.Hostname(); err == nil {
		suite.Hostname = hostname
	}
	suite.AddProperty("run_id", runId)
	return &Builder{suite: suite}
}

func (b *Builder) Add(c Case) {
	tc := junit.Testcase{
		Name:      c.Name,
		Classname: c.Classname,
		Time:      formatDuration(c.Duration),
	}
	result := &junit.Result{Message: c.Message, Data: c.Detail}
	switch c.Outcome {
	case Failed:
		tc.Failure = result
	case Errored:
		tc.Error = result
	case Skipped:
		tc.Skipped = result
	default:
		if c.Detail != "" {
			tc.SystemOut = &junit.Output{Data: c.Detail}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.suite.AddTestcase(tc)
}

// Testsuites returns everything added so far.
func (b *Builder) Testsuites() junit.Testsuites {
	b.mu.Lock()
	defer b.mu.Unlock()
	suite := b.suite
	suite.Testcases = append([]junit.Testcase(nil), b.suite.Testcases...)
	var total time.Duration
	for _, tc := range suite.Testcases {
		if d, err := time.ParseDuration(tc.Time + "s"); err == nil {
			total += d
		}
	}
	suite.Time = formatDuration(total)

	var suites junit.Testsuites
	suites.AddSuite(suite)
	return suites
}

// WriteFile writes the report to path, creating parent directories as needed.
func (b *Builder) WriteFile(path string) error {
	suites := b.Testsuites()
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	if err := suites.WriteXML(&buf); err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, buf.Bytes(), 0o644))
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
