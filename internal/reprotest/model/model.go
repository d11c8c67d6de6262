// Package model knows how each supported model configuration is shortened for a test run
// and where its output checksums come from.
package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"

	"github.com/armadaproject/reprotest/internal/common/reproerrors"
	"github.com/armadaproject/reprotest/internal/reprotest/checksum"
	"github.com/armadaproject/reprotest/internal/reprotest/payuconfig"
)

const (
	Access      = "access"
	AccessEsm16 = "access-esm1.6"
	AccessOm2   = "access-om2"
	AccessOm3   = "access-om3"

	secondsPerDay = 86400
)

// Model describes one model family. Functions that need the experiment's configuration are
// given its control directory.
type Model struct {
	Name string
	// DefaultRuntime is the run length, in seconds, used when a test doesn't ask for one.
	DefaultRuntime int
	// Equal decides whether two checksums of this model are the same.
	Equal checksum.EqualFunc

	outputFile func(controlPath string) (string, Extractor, error)
	setRuntime func(controlPath string, seconds int) error
	validate   func(controlPath string) error
}

var models = map[string]*Model{
	Access: {
		Name:           Access,
		DefaultRuntime: secondsPerDay,
		Equal:          checksum.Exact,
		outputFile:     fixedOutputFile("access.out", ExtractMom5),
		setRuntime:     setCalendarRuntime,
	},
	AccessEsm16: {
		Name:           AccessEsm16,
		DefaultRuntime: secondsPerDay,
		Equal:          checksum.Exact,
		outputFile:     esm16OutputFile,
		setRuntime:     setCalendarRuntime,
	},
	AccessOm2: {
		Name:           AccessOm2,
		DefaultRuntime: 10800,
		Equal:          checksum.Exact,
		outputFile:     fixedOutputFile("access-om2.out", ExtractMom5),
		setRuntime:     setOm2Runtime,
	},
	AccessOm3: {
		Name:           AccessOm3,
		DefaultRuntime: 10800,
		Equal:          checksum.SignBitTolerant,
		outputFile:     fixedOutputFile("ocean.stats", ExtractOceanStats),
		setRuntime:     setOm3Runtime,
		validate:       validateOm3,
	},
}

// Get returns the model with the given name, as written in the model field of config.yaml.
func Get(name string) (*Model, error) {
	m, ok := models[name]
	if !ok {
		return nil, errors.WithStack(&reproerrors.ErrInvalidArgument{
			Name:    "model",
			Value:   name,
			Message: fmt.Sprintf("Unrecognised model: %s, expected one of %s", name, strings.Join(Names(), ", ")),
		})
	}
	return m, nil
}

// Names returns the supported model names in sorted order.
func Names() []string {
	names := maps.Keys(models)
	slices.Sort(names)
	return names
}

// RuntimeOrDefault returns seconds, or the model's default runtime if seconds is zero.
func (m *Model) RuntimeOrDefault(seconds int) int {
	if seconds <= 0 {
		return m.DefaultRuntime
	}
	return seconds
}

// SetRuntime edits the configuration in controlPath so that a single run lasts the given number of seconds.
func (m *Model) SetRuntime(controlPath string, seconds int) error {
	seconds = m.RuntimeOrDefault(seconds)
	if err := m.setRuntime(controlPath, seconds); err != nil {
		return errors.WithMessagef(err, "error setting %s runtime to %d seconds", m.Name, seconds)
	}
	return nil
}

// Validate checks that the configuration in controlPath can be tested with this model's checksums.
func (m *Model) Validate(controlPath string) error {
	if m.validate == nil {
		return nil
	}
	return m.validate(controlPath)
}

// OutputExists reports whether outputDir contains the model's output file.
func (m *Model) OutputExists(controlPath string, outputDir string) bool {
	name, _, err := m.outputFile(controlPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(outputDir, name))
	return err == nil
}

// ExtractChecksums reads the checksums the model wrote to outputDir.
func (m *Model) ExtractChecksums(controlPath string, outputDir string, schemaVersion string) (*checksum.Checksums, error) {
	c, err := checksum.New(schemaVersion)
	if err != nil {
		return nil, err
	}
	name, extract, err := m.outputFile(controlPath)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(outputDir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	if err := extract(f, c); err != nil {
		return nil, errors.WithMessagef(err, "error extracting checksums from %s", path)
	}
	return c, nil
}

func fixedOutputFile(name string, extract Extractor) func(string) (string, Extractor, error) {
	return func(string) (string, Extractor, error) {
		return name, extract, nil
	}
}

// ESM1.6 configurations without an ocean only have the UM's own output to go on,
// which is written to the atmosphere submodel's output directory.
func esm16OutputFile(controlPath string) (string, Extractor, error) {
	cfg, err := payuconfig.Load(filepath.Join(controlPath, payuconfig.FileName))
	if err != nil {
		return "", nil, err
	}
	submodels := submodelDirs(cfg)
	if _, ok := submodels["mom"]; ok {
		return "access-esm1.6.out", ExtractMom5, nil
	}
	if dir, ok := submodels["um"]; ok {
		return filepath.Join(dir, "atm.fort6.pe0"), ExtractUm7, nil
	}
	return "", nil, errors.WithStack(&reproerrors.ErrNotFound{
		What:  "mom or um submodel",
		Where: cfg.Path(),
	})
}

// submodelDirs maps submodel model types to their names, which are also their output directories.
func submodelDirs(cfg *payuconfig.Config) map[string]string {
	dirs := make(map[string]string)
	v, ok := cfg.Get("submodels")
	if !ok {
		return dirs
	}
	list, ok := v.([]interface{})
	if !ok {
		return dirs
	}
	for _, item := range list {
		var name, model string
		switch sm := item.(type) {
		case yaml.MapSlice:
			for _, kv := range sm {
				switch kv.Key {
				case "name":
					name, _ = kv.Value.(string)
				case "model":
					model, _ = kv.Value.(string)
				}
			}
		case map[interface{}]interface{}:
			name, _ = sm["name"].(string)
			model, _ = sm["model"].(string)
		}
		if model != "" {
			dirs[model] = name
		}
	}
	return dirs
}

func setCalendarRuntime(controlPath string, seconds int) error {
	cfg, err := payuconfig.Load(filepath.Join(controlPath, payuconfig.FileName))
	if err != nil {
		return err
	}
	cfg.Set(yaml.MapSlice{
		{Key: "years", Value: 0},
		{Key: "months", Value: 0},
		{Key: "days", Value: seconds / secondsPerDay},
		{Key: "seconds", Value: seconds % secondsPerDay},
	}, "calendar", "runtime")
	return cfg.Save()
}

func setOm2Runtime(controlPath string, seconds int) error {
	return setNamelistFileValue(
		filepath.Join(controlPath, "accessom2.nml"),
		"date_manager_nml",
		"restart_period",
		fmt.Sprintf("0, 0, %d", seconds),
	)
}

func setOm3Runtime(controlPath string, seconds int) error {
	rc, err := loadRunconfig(filepath.Join(controlPath, "nuopc.runconfig"))
	if err != nil {
		return err
	}
	n := strconv.Itoa(seconds)
	for _, kv := range [][2]string{
		{"restart_n", n},
		{"restart_option", "nseconds"},
		{"stop_n", n},
		{"stop_option", "nseconds"},
	} {
		if err := rc.Set("CLOCK_attributes", kv[0], kv[1]); err != nil {
			return err
		}
	}
	if err := rc.Write(); err != nil {
		return err
	}

	// The wave model keeps its own restart frequency.
	wavIn := filepath.Join(controlPath, "wav_in")
	if _, err := os.Stat(wavIn); err == nil {
		return setNamelistFileValue(wavIn, "output_date_nml", "date%restart%stride", n)
	}
	return nil
}

func validateOm3(controlPath string) error {
	rc, err := loadRunconfig(filepath.Join(controlPath, "nuopc.runconfig"))
	if err != nil {
		return err
	}
	if ocn, _ := rc.Get("ALLCOMP_attributes", "OCN_model"); ocn != "mom" {
		return errors.WithStack(&reproerrors.ErrInvalidArgument{
			Name:  "OCN_model",
			Value: ocn,
			Message: fmt.Sprintf(
				"ACCESS-OM3 reproducibility checks utilize checksums written by MOM6, "+
					"but the ocean model in nuopc.runconfig is %q", ocn),
		})
	}
	return nil
}
