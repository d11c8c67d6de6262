package payuconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

const testConfig = `# PBS configuration
queue: normal
project: tm70
model: access
submodels:
  - name: atmosphere
    model: um
calendar:
  start:
    year: 101
  runtime:
    years: 1
    months: 0
    days: 0
runlog: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGet(t *testing.T) {
	c, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "access", c.GetString("model"))
	v, ok := c.Get("calendar", "start", "year")
	assert.True(t, ok)
	assert.Equal(t, 101, v)
	_, ok = c.Get("calendar", "end")
	assert.False(t, ok)
	_, ok = c.Get("model", "name")
	assert.False(t, ok)
	assert.Equal(t, "", c.GetString("runlog"))
}

func TestSetAndSave(t *testing.T) {
	path := writeConfig(t, testConfig)
	c, err := Load(path)
	require.NoError(t, err)

	c.Set("exp_default_runtime", "experiment")
	c.Set(false, "runlog")
	c.Set(false, "metadata", "enable")
	c.Set(yaml.MapSlice{{Key: "years", Value: 0}, {Key: "days", Value: 1}}, "calendar", "runtime")
	require.NoError(t, c.Save())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `queue: normal
project: tm70
model: access
submodels:
- name: atmosphere
  model: um
calendar:
  start:
    year: 101
  runtime:
    years: 0
    days: 1
runlog: false
experiment: exp_default_runtime
metadata:
  enable: false
`, string(b))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "model: [unterminated"))
	assert.Error(t, err)
}
