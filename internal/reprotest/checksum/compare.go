package checksum

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/exp/slices"
)

// EqualFunc decides whether two checksums for the same field are equal.
type EqualFunc func(a, b string) bool

func Exact(a, b string) bool {
	return a == b
}

// SignBitTolerant treats hex checksums whose leading digit differs by 8 as equal. MOM6 checksums
// of fields holding signed zeros differ only in that bit between otherwise identical runs.
func SignBitTolerant(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) != len(b) || len(a) == 0 || a[1:] != b[1:] {
		return false
	}
	da, errA := strconv.ParseUint(a[:1], 16, 8)
	db, errB := strconv.ParseUint(b[:1], 16, 8)
	if errA != nil || errB != nil {
		return false
	}
	return da^db == 8
}

type Options struct {
	// Strict requires both sides to have the same schema version and the same set of fields.
	// Otherwise only fields present on both sides are compared.
	Strict bool
	// Equal compares single checksums. Defaults to Exact.
	Equal EqualFunc
}

// FieldMismatch describes a field whose checksums differ.
type FieldMismatch struct {
	Field string
	Got   []string
	Want  []string
}

func (m *FieldMismatch) Error() string {
	switch {
	case m.Want == nil:
		return fmt.Sprintf("%s: not in reference checksums, got %s", m.Field, formatValues(m.Got))
	case m.Got == nil:
		return fmt.Sprintf("%s: missing from output, want %s", m.Field, formatValues(m.Want))
	default:
		return fmt.Sprintf("%s: got %s, want %s", m.Field, formatValues(m.Got), formatValues(m.Want))
	}
}

func formatValues(values []string) string {
	return "[" + strings.Join(values, ", ") + "]"
}

// Comparison is the outcome of comparing two sets of checksums.
type Comparison struct {
	// Compared is the number of fields compared.
	Compared   int
	Mismatches []*FieldMismatch
}

func (c Comparison) Match() bool {
	return len(c.Mismatches) == 0
}

// Err returns every mismatch as a single error, or nil if the checksums match.
func (c Comparison) Err() error {
	var result *multierror.Error
	for _, m := range c.Mismatches {
		result = multierror.Append(result, m)
	}
	return result.ErrorOrNil()
}

// Diff compares got against want, field by field in sorted order.
func Diff(got, want *Checksums, opts Options) Comparison {
	equal := opts.Equal
	if equal == nil {
		equal = Exact
	}

	var c Comparison
	if opts.Strict && got.SchemaVersion != want.SchemaVersion {
		c.Mismatches = append(c.Mismatches, &FieldMismatch{
			Field: "schema_version",
			Got:   []string{got.SchemaVersion},
			Want:  []string{want.SchemaVersion},
		})
	}

	fields := got.Fields()
	for _, f := range want.Fields() {
		if _, ok := got.Output[f]; !ok {
			fields = append(fields, f)
		}
	}
	slices.Sort(fields)

	for _, field := range fields {
		g, inGot := got.Output[field]
		w, inWant := want.Output[field]
		if !inGot || !inWant {
			if opts.Strict {
				c.Compared++
				c.Mismatches = append(c.Mismatches, &FieldMismatch{Field: field, Got: g, Want: w})
			}
			continue
		}
		c.Compared++
		if !valuesEqual(g, w, equal) {
			c.Mismatches = append(c.Mismatches, &FieldMismatch{Field: field, Got: g, Want: w})
		}
	}
	return c
}

// Compare returns nil if got matches want, otherwise a multierror with one FieldMismatch per field.
func Compare(got, want *Checksums, opts Options) error {
	return Diff(got, want, opts).Err()
}

func valuesEqual(a, b []string, equal EqualFunc) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// RestartComparison is the outcome of comparing a long run with two consecutive short runs.
type RestartComparison struct {
	// Fields is the number of fields of the long run.
	Fields int
	// MismatchedFields lists, in sorted order, the fields with at least one unmatched checksum.
	MismatchedFields []string
	// Unequal has a line for every long run checksum found in neither short run.
	Unequal []string
}

func (c RestartComparison) Match() bool {
	return len(c.Unequal) == 0
}

// DiffOverRestarts checks that a run of twice the length reproduces the two halves run
// separately: every checksum of the long run must appear among the short runs' checksums for
// the same field.
func DiffOverRestarts(long, short0, short1 *Checksums, equal EqualFunc) RestartComparison {
	if equal == nil {
		equal = Exact
	}
	fields := long.Fields()
	result := RestartComparison{Fields: len(fields)}
	for _, field := range fields {
		candidates := append(append([]string{}, short0.Output[field]...), short1.Output[field]...)
		mismatched := false
		for _, value := range long.Output[field] {
			found := slices.IndexFunc(candidates, func(c string) bool { return equal(value, c) }) >= 0
			if !found {
				mismatched = true
				result.Unequal = append(result.Unequal, fmt.Sprintf("Unequal checksum: %s: %s", field, value))
			}
		}
		if mismatched {
			result.MismatchedFields = append(result.MismatchedFields, field)
		}
	}
	return result
}
