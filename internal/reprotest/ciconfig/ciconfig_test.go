package ciconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ci.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func load(t *testing.T, content string) *Config {
	t.Helper()
	c, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	return c
}

func TestValue(t *testing.T) {
	tests := map[string]struct {
		config    string
		testType  string
		reference string
		key       string
		want      interface{}
	}{
		"set for reference": {
			config: `{
				"reproducibility": {
					"branch_name_1": {"payu-version": "1.1.3"},
					"default": {"payu-version": "1.1.5"}
				},
				"default": {"payu-version": "1.1.6"}
			}`,
			testType:  "reproducibility",
			reference: "branch_name_1",
			key:       "payu-version",
			want:      "1.1.3",
		},
		"test type default": {
			config: `{
				"reproducibility": {"default": {"payu-version": "1.1.5"}},
				"default": {"payu-version": "1.1.6"}
			}`,
			testType:  "reproducibility",
			reference: "branch_name_1",
			key:       "payu-version",
			want:      "1.1.5",
		},
		"top level default": {
			config: `{
				"reproducibility": {"default": {"markers": "default-repro"}},
				"default": {"payu-version": "1.1.6"}
			}`,
			testType:  "reproducibility",
			reference: "branch_name_1",
			key:       "payu-version",
			want:      "1.1.6",
		},
		"pattern match": {
			config: `{
				"qa": {
					"dev-*": {"markers": "dev_config"},
					"default": {"markers": "config or dev_config"}
				}
			}`,
			testType:  "qa",
			reference: "dev_branch1",
			key:       "markers",
			want:      "dev_config",
		},
		"exact match before pattern": {
			config: `{
				"qa": {
					"dev-*": {"markers": "dev_config"},
					"dev_branch1": {"markers": "another_marker"},
					"default": {"markers": "config or dev_config"}
				}
			}`,
			testType:  "qa",
			reference: "dev_branch1",
			key:       "markers",
			want:      "another_marker",
		},
		"longest pattern match": {
			config: `{
				"qa": {
					"dev-*": {"markers": "dev_config"},
					"dev_branch*": {"markers": "another_marker"},
					"default": {"markers": "config or dev_config"}
				}
			}`,
			testType:  "qa",
			reference: "dev_branch1",
			key:       "markers",
			want:      "another_marker",
		},
		"pattern without key": {
			config: `{
				"qa": {
					"dev-*": {"markers": "dev_config"},
					"dev_branch*": {"markers": "another_marker"},
					"default": {"markers": "config or dev_config"}
				},
				"default": {"payu-version": "1.0.0"}
			}`,
			testType:  "qa",
			reference: "dev_branch1",
			key:       "payu-version",
			want:      "1.0.0",
		},
		"first pattern wins a tie": {
			config: `{
				"scheduled": {
					"release-.*": {"markers": "first"},
					"release-[a-z0-9]+": {"markers": "second"}
				}
			}`,
			testType:  "scheduled",
			reference: "release-1deg",
			key:       "markers",
			want:      "first",
		},
		"unknown test type": {
			config:    `{"default": {"python-version": "3.10"}}`,
			testType:  "nightly",
			reference: "main",
			key:       "python-version",
			want:      "3.10",
		},
		"not configured": {
			config:    `{"default": {"python-version": "3.10"}}`,
			testType:  "qa",
			reference: "main",
			key:       "markers",
			want:      nil,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := load(t, tc.config)
			assert.Equal(t, tc.want, c.Value(tc.testType, tc.reference, tc.key))
		})
	}
}

const sampleConfig = `{
	"reproducibility": {
		"release-1deg_jra55_ryf": {"markers": "repro or repro_slow"},
		"dev-*": {"payu-version": "dev"},
		"dev-branch-*": {"payu-version": "2.0.0"},
		"dev-branch-1": {"payu-version": "3.0.0"},
		"default": {"markers": "default-repro"}
	},
	"qa": {
		"dev-*": {"markers": "config_dev"},
		"default": {"markers": "config or config_dev"}
	},
	"default": {
		"model-config-tests-version": "1.2.0",
		"python-version": "3.10",
		"payu-version": "2.0.0"
	}
}`

func TestParse(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	tests := map[string]struct {
		testType  string
		reference string
		want      Result
	}{
		"release": {
			testType:  "reproducibility",
			reference: "release-1deg_jra55_ryf",
			want: Result{
				ModelConfigTestsVersion: "1.2.0",
				PythonVersion:           "3.10",
				Markers:                 "repro or repro_slow",
				PayuVersion:             "2.0.0",
			},
		},
		"dev branch": {
			testType:  "reproducibility",
			reference: "dev-something",
			want: Result{
				ModelConfigTestsVersion: "1.2.0",
				PythonVersion:           "3.10",
				Markers:                 "default-repro",
				PayuVersion:             "dev",
			},
		},
		"exact dev branch": {
			testType:  "reproducibility",
			reference: "dev-branch-1",
			want: Result{
				ModelConfigTestsVersion: "1.2.0",
				PythonVersion:           "3.10",
				Markers:                 "default-repro",
				PayuVersion:             "3.0.0",
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Parse(tc.testType, tc.reference, path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("qa", "main", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Parse("qa", "main", writeConfig(t, `{"qa": [`))
	assert.Error(t, err)

	_, err = Parse("qa", "main", writeConfig(t, `["qa"]`))
	assert.ErrorContains(t, err, "expected a JSON object")

	_, err = Parse("qa", "main", writeConfig(t, `{"qa": {}} {}`))
	assert.Error(t, err)
}

func TestLoad_JSONEscapes(t *testing.T) {
	tests := map[string]struct {
		config string
		want   interface{}
	}{
		"escaped slash":  {`{"default": {"markers": "a\/b"}}`, "a/b"},
		"unicode escape": {`{"default": {"markers": "checksum \u0026 slow"}}`, "checksum & slow"},
		"escaped quote":  {`{"default": {"markers": "\"quoted\""}}`, `"quoted"`},
		"tab escape":     {`{"default": {"markers": "a\tb"}}`, "a\tb"},
		"no whitespace":  {`{"default":{"markers":"x"}}`, "x"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := load(t, tc.config)
			assert.Equal(t, tc.want, c.Value("qa", "main", "markers"))
		})
	}
}

func TestLoad_NumbersKeepTheirText(t *testing.T) {
	c := load(t, `{"default": {"python-version": 3.10}}`)
	r := c.Resolve("qa", "main")
	assert.Equal(t, "model-config-tests-version: \npython-version: 3.10\nmarkers: \npayu-version: \n", r.Lines())
}

func TestResultOutput(t *testing.T) {
	r := Result{
		ModelConfigTestsVersion: "1.2.0",
		PythonVersion:           "3.10",
		Markers:                 "config or config_dev",
	}

	b, err := r.JSON()
	require.NoError(t, err)
	assert.Equal(t, `{
    "model-config-tests-version": "1.2.0",
    "python-version": "3.10",
    "markers": "config or config_dev",
    "payu-version": null
}`, string(b))

	assert.Equal(t, "model-config-tests-version: 1.2.0\npython-version: 3.10\nmarkers: config or config_dev\npayu-version: \n", r.Lines())
}
