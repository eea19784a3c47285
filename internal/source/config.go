package source

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Type           string   `yaml:"type"`
	Endpoint       string   `yaml:"endpoint"`
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Fixtures       string   `yaml:"fixtures"`
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func New(cfg Config) (Source, error) {
	switch strings.ToLower(cfg.Type) {
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("http endpoint required")
		}
		return NewRPCSource(&HTTPTransport{Endpoint: cfg.Endpoint, Timeout: cfg.timeout()}), nil
	case "stdio":
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio command required")
		}
		return NewRPCSource(&StdioTransport{Command: cfg.Command, Args: cfg.Args, Timeout: cfg.timeout()}), nil
	case "static":
		if cfg.Fixtures == "" {
			return nil, fmt.Errorf("static source needs a fixtures file")
		}
		fixtures, err := LoadFixtures(cfg.Fixtures)
		if err != nil {
			return nil, err
		}
		return NewStaticSource(fixtures), nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.Type)
	}
}
