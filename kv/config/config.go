package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	// Address of the HTTP status server.
	StatusAddr string `toml:"status-addr"`

	// Directory tablet checkpoints are stored in. Should exist and be writable. When empty, checkpoints are kept in
	// memory and are lost on restart.
	DBPath string `toml:"db-path"`

	// Whether published tablet histories are saved to the meta store.
	Checkpoint bool `toml:"checkpoint"`
	// Interval to save every tablet, which also removes the checkpoints of dropped tablets.
	CheckpointAllInterval Duration `toml:"checkpoint-all-interval"`

	Log log.Config `toml:"log"`

	logger   *zap.Logger
	logProps *log.ZapProperties
}

// Duration is a time.Duration which decodes from a TOML string such as "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.WithStack(err)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (c *Config) Validate() error {
	if c.StatusAddr == "" {
		return errors.New("status-addr must be set")
	}
	if c.Checkpoint && c.CheckpointAllInterval.Duration <= 0 {
		return errors.Errorf("checkpoint-all-interval must be greater than 0, got %v", c.CheckpointAllInterval)
	}
	return nil
}

// LoadFile overrides c with the values set in the TOML file at path.
func (c *Config) LoadFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Annotatef(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("config %s contains unknown items %v", path, undecoded)
	}
	return nil
}

// SetupLogger builds the zap logger described by c.Log.
func (c *Config) SetupLogger() error {
	lg, p, err := log.InitLogger(&c.Log, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return errors.Trace(err)
	}
	c.logger = lg
	c.logProps = p
	return nil
}

func (c *Config) GetZapLogger() *zap.Logger {
	return c.logger
}

func (c *Config) GetZapLogProperties() *log.ZapProperties {
	return c.logProps
}

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		StatusAddr:            "127.0.0.1:20180",
		DBPath:                "/tmp/tinyolap",
		Checkpoint:            true,
		CheckpointAllInterval: Duration{10 * time.Minute},
		Log: log.Config{
			Level: getLogLevel(),
			File: log.FileLogConfig{
				MaxSize: 300,
			},
		},
	}
}

func NewTestConfig() *Config {
	return &Config{
		StatusAddr:            "127.0.0.1:0",
		Checkpoint:            true,
		CheckpointAllInterval: Duration{100 * time.Millisecond},
		Log: log.Config{
			Level: getLogLevel(),
		},
	}
}
