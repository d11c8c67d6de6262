// Package checksum reads, writes and compares the checksum files produced from model output.
//
// A checksum file maps each output field to the list of checksums the model wrote for it, in order:
//
//	{"schema_version": "1-0-0", "output": {"ht": ["-2390360641069121536"], ...}}
package checksum

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/reprotest/internal/common/reproerrors"
)

const (
	SchemaVersion1_0_0   = "1-0-0"
	DefaultSchemaVersion = SchemaVersion1_0_0
)

var supportedSchemaVersions = []string{SchemaVersion1_0_0}

type Checksums struct {
	SchemaVersion string              `json:"schema_version"`
	Output        map[string][]string `json:"output"`
}

// New returns empty checksums for schemaVersion, or the default version if empty.
func New(schemaVersion string) (*Checksums, error) {
	if schemaVersion == "" {
		schemaVersion = DefaultSchemaVersion
	}
	if !slices.Contains(supportedSchemaVersions, schemaVersion) {
		return nil, errors.WithStack(&reproerrors.ErrUnsupportedSchema{Version: schemaVersion})
	}
	return &Checksums{SchemaVersion: schemaVersion, Output: make(map[string][]string)}, nil
}

func (c *Checksums) Add(field string, value string) {
	c.Output[field] = append(c.Output[field], value)
}

// Fields returns the field names in sorted order.
func (c *Checksums) Fields() []string {
	fields := maps.Keys(c.Output)
	slices.Sort(fields)
	return fields
}

func Read(path string) (*Checksums, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var c Checksums
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrapf(err, "error parsing checksum file %s", path)
	}
	if c.Output == nil {
		c.Output = make(map[string][]string)
	}
	return &c, nil
}

// Write saves c to path as indented JSON, creating parent directories as needed.
func Write(path string, c *Checksums) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, append(b, '\n'), 0o644))
}
