// Package reproerrors contains the error kinds returned while tracking scheduler jobs
// and comparing experiment output. Callers look for these types with errors.As
// (or KindFromError) rather than matching on message text.
//
// If several independent failures occur in one operation (e.g., multiple checksum fields
// differ), that operation should return an error of type multierror.Error from package
// github.com/hashicorp/go-multierror that encapsulates the individual errors.
package reproerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error categories below.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInsufficientJobIds
	KindAmbiguousOutput
	KindJobFailed
	KindConflictingRuntime
	KindInvalidArgument
	KindUnsupportedSchema
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInsufficientJobIds:
		return "InsufficientJobIds"
	case KindAmbiguousOutput:
		return "AmbiguousOutput"
	case KindJobFailed:
		return "JobFailed"
	case KindConflictingRuntime:
		return "ConflictingRuntime"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindUnsupportedSchema:
		return "UnsupportedSchema"
	default:
		return "Unknown"
	}
}

// ErrNotFound is returned when an expected pattern is absent from some text or directory.
// Where is optional and is omitted from the error message if not provided.
type ErrNotFound struct {
	What  string // What was looked for, e.g., "job id"
	Where string // Where it was looked for, e.g., "payu run output"
}

func (err *ErrNotFound) Error() string {
	if err.Where == "" {
		return fmt.Sprintf("%s not found", err.What)
	}
	return fmt.Sprintf("%s not found in %s", err.What, err.Where)
}

// ErrInsufficientJobIds is returned when a scheduler log names more submissions than it has job id lines.
type ErrInsufficientJobIds struct {
	Expected int
	Found    int
}

func (err *ErrInsufficientJobIds) Error() string {
	return fmt.Sprintf("Expected %d job IDs in stdout file, but found %d", err.Expected, err.Found)
}

// ErrAmbiguousOutput is returned when the number of stdout files for a job isn't exactly one.
type ErrAmbiguousOutput struct {
	JobId string
	Found int
}

func (err *ErrAmbiguousOutput) Error() string {
	return fmt.Sprintf("Expected 1 stdout file for job ID %s, but found %d", err.JobId, err.Found)
}

// ErrJobFailed is returned when a job's stdout carries a nonzero exit status.
type ErrJobFailed struct {
	JobId      string
	ExitStatus int
}

func (err *ErrJobFailed) Error() string {
	return fmt.Sprintf("Payu run job failed with exit status %d", err.ExitStatus)
}

// ErrConflictingRuntime is returned when the same experiment is requested with two different model runtimes.
type ErrConflictingRuntime struct {
	Experiment string
	Runtime    int
	Other      int
}

func (err *ErrConflictingRuntime) Error() string {
	return fmt.Sprintf("Experiment %s has conflicting model runtimes: %d and %d", err.Experiment, err.Runtime, err.Other)
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the argument, e.g., "dirs"
	Value   interface{} // The invalid value that was provided
	Message string      // Explains why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for %s", err.Value, err.Name)
	}
	return err.Message
}

// ErrUnsupportedSchema is returned for checksum files written with an unknown schema version.
type ErrUnsupportedSchema struct {
	Version string
}

func (err *ErrUnsupportedSchema) Error() string {
	return fmt.Sprintf("Unsupported checksum schema version: %s", err.Version)
}

// KindFromError maps error types to kinds.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func KindFromError(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return KindNotFound
		}
	}
	{
		var e *ErrInsufficientJobIds
		if errors.As(err, &e) {
			return KindInsufficientJobIds
		}
	}
	{
		var e *ErrAmbiguousOutput
		if errors.As(err, &e) {
			return KindAmbiguousOutput
		}
	}
	{
		var e *ErrJobFailed
		if errors.As(err, &e) {
			return KindJobFailed
		}
	}
	{
		var e *ErrConflictingRuntime
		if errors.As(err, &e) {
			return KindConflictingRuntime
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return KindInvalidArgument
		}
	}
	{
		var e *ErrUnsupportedSchema
		if errors.As(err, &e) {
			return KindUnsupportedSchema
		}
	}
	return KindUnknown
}
