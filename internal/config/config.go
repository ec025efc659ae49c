package config

import (
	"errors"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config controls which paths are checked and how violations are enforced.
// It is read from ifchanged.toml at the repository root.
type Config struct {
	Ignore      []string     `toml:"ignore"`
	Enforcement *Enforcement `toml:"enforcement"`
}

type Enforcement struct {
	FailCheck bool `toml:"fail_check"`
}

// FileReader abstracts where the config file is read from, so PR checks can
// read it from the base revision instead of the working copy.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
	PathExists(path string) bool
}

type osFileReader struct{}

func (osFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (osFileReader) PathExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func defaultConfig() *Config {
	return &Config{
		Ignore:      []string{},
		Enforcement: &Enforcement{FailCheck: true},
	}
}

// ReadConfig loads ifchanged.toml from the directory at path through the
// given reader, or from the filesystem when reader is nil. A missing file
// yields the defaults with no error; an unreadable or malformed file yields
// the defaults and the error so callers can warn without aborting.
func ReadConfig(path string, reader FileReader) (*Config, error) {
	if reader == nil {
		reader = osFileReader{}
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	fileName := path + "ifchanged.toml"
	if !reader.PathExists(fileName) {
		return defaultConfig(), nil
	}
	file, err := reader.ReadFile(fileName)
	if err != nil {
		return defaultConfig(), err
	}
	config := defaultConfig()
	if err = toml.Unmarshal(file, config); err != nil {
		return defaultConfig(), err
	}
	if config.Enforcement == nil {
		config.Enforcement = &Enforcement{FailCheck: true}
	}
	return config, nil
}
