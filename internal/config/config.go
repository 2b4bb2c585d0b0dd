// Package config loads the YAML file describing a syncbridge node: where its
// database and key live, how it is named on the network, and which roles
// identities hold.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/project"
)

// Version is the only supported config version.
const Version = 1

// Config is the root of a syncbridge.yaml file.
type Config struct {
	Version  int    `yaml:"version"`
	Database string `yaml:"database,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	Node     Node   `yaml:"node"`
	Listen   string `yaml:"listen,omitempty"`
	// TokenTTL is a Go duration such as "30s".
	TokenTTL    string            `yaml:"token_ttl,omitempty"`
	DefaultRole string            `yaml:"default_role,omitempty"`
	Roles       map[string]string `yaml:"roles,omitempty"`
}

// Node names this node to its peers.
type Node struct {
	Name  string `yaml:"name,omitempty"`
	ID    string `yaml:"id,omitempty"`
	Route string `yaml:"route,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Version:     Version,
		Listen:      ":8080",
		DefaultRole: project.RoleGuest.String(),
	}
}

// Load reads and validates a syncbridge.yaml configuration file. Fields the
// file leaves empty keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if errs := Validate(cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	return cfg, nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.Version != Version {
		errs = append(errs, fmt.Sprintf("unsupported version %d: only version %d is supported", cfg.Version, Version))
	}

	if cfg.Node.Route != "" {
		u, err := url.Parse(cfg.Node.Route)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("node: invalid route %q: %v", cfg.Node.Route, err))
		case u.Scheme != "ws" && u.Scheme != "wss":
			errs = append(errs, fmt.Sprintf("node: route %q must use ws or wss", cfg.Node.Route))
		case u.Host == "":
			errs = append(errs, fmt.Sprintf("node: route %q has no host", cfg.Node.Route))
		}
	}

	if cfg.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("listen: invalid address %q: %v", cfg.Listen, err))
		}
	}

	if cfg.TokenTTL != "" {
		ttl, err := time.ParseDuration(cfg.TokenTTL)
		if err != nil {
			errs = append(errs, fmt.Sprintf("token_ttl: %v", err))
		} else if ttl <= 0 {
			errs = append(errs, fmt.Sprintf("token_ttl: must be positive, got %s", cfg.TokenTTL))
		}
	}

	if cfg.DefaultRole != "" {
		if _, err := project.ParseRole(cfg.DefaultRole); err != nil {
			errs = append(errs, fmt.Sprintf("default_role: %v", err))
		}
	}

	// Sorted so the error list is stable across runs.
	keys := make([]string, 0, len(cfg.Roles))
	for k := range cfg.Roles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := ir.ParseIdentity(k); err != nil {
			errs = append(errs, fmt.Sprintf("roles: key %q is not a verify key: %v", k, err))
		}
		if _, err := project.ParseRole(cfg.Roles[k]); err != nil {
			errs = append(errs, fmt.Sprintf("roles: %s: %v", k, err))
		}
	}

	return errs
}

// StaticRoles converts the roles section into a project.Roles source.
func (c *Config) StaticRoles() (project.StaticRoles, error) {
	roles := project.StaticRoles{Default: project.RoleNone, Assigned: make(map[ir.Identity]project.Role, len(c.Roles))}
	if c.DefaultRole != "" {
		def, err := project.ParseRole(c.DefaultRole)
		if err != nil {
			return roles, fmt.Errorf("default_role: %w", err)
		}
		roles.Default = def
	}
	for k, v := range c.Roles {
		id, err := ir.ParseIdentity(k)
		if err != nil {
			return roles, fmt.Errorf("roles: %w", err)
		}
		role, err := project.ParseRole(v)
		if err != nil {
			return roles, fmt.Errorf("roles: %s: %w", k, err)
		}
		roles.Assigned[id] = role
	}
	return roles, nil
}

// TTL returns the parsed token lifetime, or zero when unset.
func (c *Config) TTL() time.Duration {
	ttl, err := time.ParseDuration(c.TokenTTL)
	if err != nil {
		return 0
	}
	return ttl
}
