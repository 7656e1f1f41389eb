// Package config loads the client configuration: which transport reaches
// the management service and how. It belongs to the surrounding tooling,
// not the protocol core — library users construct a transport directly.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/quarry/transport"
)

// Transport kinds.
const (
	// TransportSocket dials the service's local unix socket.
	TransportSocket = "socket"
	// TransportExec spawns the remote-call helper binary per call.
	TransportExec = "exec"
)

// DefaultPath is where the CLI looks when no --config flag is given.
const DefaultPath = "/etc/quarry/config.yaml"

// Config selects and parameterizes the transport.
type Config struct {
	// Transport is "socket" or "exec". Defaults to "socket".
	Transport string `yaml:"transport,omitempty"`
	// SocketPath overrides the service socket path (socket transport).
	SocketPath string `yaml:"socket_path,omitempty"`
	// Program overrides the helper binary (exec transport).
	Program string `yaml:"program,omitempty"`
	// TimeoutSeconds bounds dialing the service socket.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

// Default returns the configuration used when no file exists: the local
// socket transport with its built-in defaults.
func Default() *Config {
	return &Config{Transport: TransportSocket}
}

// Normalize fills defaulted fields before validation.
func (c *Config) Normalize() {
	if c.Transport == "" {
		c.Transport = TransportSocket
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSocket, TransportExec:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q",
			TransportSocket, TransportExec, c.Transport)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be >= 0, got %d", c.TimeoutSeconds)
	}
	if c.Transport == TransportSocket && c.Program != "" {
		return fmt.Errorf("program is only valid with the exec transport")
	}
	if c.Transport == TransportExec && c.SocketPath != "" {
		return fmt.Errorf("socket_path is only valid with the socket transport")
	}
	return nil
}

// NewTransport builds the configured transport.
func (c *Config) NewTransport() (transport.Transport, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Transport {
	case TransportExec:
		return transport.NewExec(c.Program), nil
	default:
		return transport.NewSocket(c.SocketPath,
			time.Duration(c.TimeoutSeconds)*time.Second), nil
	}
}

// LoadFromFile loads the configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// LoadOrDefault loads path if it exists and falls back to Default when it
// does not. A file that exists but fails to parse is still an error.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFromFile(path)
}
