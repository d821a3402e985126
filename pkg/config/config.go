package config

import (
	"errors"
	"fmt"

	"github.com/macropower/prodmatch/api/v1beta1/configs"
)

var (
	// ErrRead is returned by [Load] when the configuration file cannot be read.
	ErrRead = errors.New("read config")

	// ErrInvalid is returned when the configuration fails to parse or validate.
	ErrInvalid = errors.New("invalid config")
)

// Load validates and loads the configuration file at path. When path does
// not exist and create is set, the default configuration is written to
// path first.
func Load(path string, create bool) (*configs.Config, error) {
	if create {
		err := configs.WriteDefault(path, false)
		if err != nil {
			return nil, fmt.Errorf("init config: %w", err)
		}
	}

	l, err := NewLoaderFromFile(path, configs.New, configs.DefaultValidator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	return load(l)
}

// LoadBytes validates and loads configuration data.
func LoadBytes(data []byte) (*configs.Config, error) {
	return load(NewLoaderFromBytes(data, configs.New, configs.DefaultValidator))
}

func load(l *Loader[*configs.Config]) (*configs.Config, error) {
	err := l.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	cfg, err := l.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, l.Wrap(err))
	}

	return cfg, nil
}
