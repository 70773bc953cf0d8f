package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	dir, err := ioutil.TempDir("", "tinyolap-config")
	require.Nil(t, err)
	path := filepath.Join(dir, "config.toml")
	require.Nil(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.Nil(t, NewDefaultConfig().Validate())
	assert.Nil(t, NewTestConfig().Validate())
}

func TestValidate(t *testing.T) {
	conf := NewDefaultConfig()
	conf.StatusAddr = ""
	assert.NotNil(t, conf.Validate())

	conf = NewDefaultConfig()
	conf.CheckpointAllInterval = Duration{}
	assert.NotNil(t, conf.Validate())
	conf.Checkpoint = false
	assert.Nil(t, conf.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
status-addr = "0.0.0.0:8040"
db-path = "/data/tinyolap"
checkpoint-all-interval = "30s"

[log]
level = "warn"

[log.file]
filename = "/var/log/tinyolap.log"
`)
	defer os.RemoveAll(filepath.Dir(path))

	conf := NewDefaultConfig()
	require.Nil(t, conf.LoadFile(path))
	assert.Equal(t, "0.0.0.0:8040", conf.StatusAddr)
	assert.Equal(t, "/data/tinyolap", conf.DBPath)
	assert.True(t, conf.Checkpoint)
	assert.Equal(t, 30*time.Second, conf.CheckpointAllInterval.Duration)
	assert.Equal(t, "warn", conf.Log.Level)
	assert.Equal(t, "/var/log/tinyolap.log", conf.Log.File.Filename)
	// Unset values keep their defaults.
	assert.Equal(t, 300, conf.Log.File.MaxSize)
}

func TestLoadFileUnknownItem(t *testing.T) {
	path := writeConfig(t, `status-adr = "0.0.0.0:8040"`)
	defer os.RemoveAll(filepath.Dir(path))

	assert.NotNil(t, NewDefaultConfig().LoadFile(path))
}

func TestSetupLogger(t *testing.T) {
	conf := NewTestConfig()
	require.Nil(t, conf.SetupLogger())
	assert.NotNil(t, conf.GetZapLogger())
	assert.NotNil(t, conf.GetZapLogProperties())
}
