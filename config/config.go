// Package config loads the YAML configuration of the kms-identity tools:
// the key-service backend, the identities built on it and the sidecar
// server settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend types.
const (
	BackendAWS    = "aws"
	BackendVault  = "vault"
	BackendSimple = "simple"
)

// Identity types.
const (
	IdentityKMS       = "kms"
	IdentitySecp256k1 = "secp256k1"
	IdentityP256      = "p256"
	IdentityAnonymous = "anonymous"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Backend struct {
		Type string `yaml:"type"`

		AWS struct {
			Region    string `yaml:"region"`
			Endpoint  string `yaml:"endpoint"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
			Profile   string `yaml:"profile"`
		} `yaml:"aws"`

		Vault struct {
			Address string        `yaml:"address"`
			Token   string        `yaml:"token"`
			Mount   string        `yaml:"mount"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"vault"`

		// Simple derives keys from a hex master key. Development only.
		Simple struct {
			MasterKey string `yaml:"master_key"`
			Curve     string `yaml:"curve"`
		} `yaml:"simple"`
	} `yaml:"backend"`

	Server struct {
		ListenAddr   string        `yaml:"listen_addr"`
		MetricsAddr  string        `yaml:"metrics_addr"`
		EnablePprof  bool          `yaml:"enable_pprof"`
		DrainTimeout time.Duration `yaml:"drain_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Identities []IdentityConfig `yaml:"identities"`
}

// IdentityConfig describes one identity. Type defaults to "kms".
type IdentityConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// kms identities
	KeyID             string `yaml:"key_id"`
	SigningMode       string `yaml:"signing_mode"`
	PrincipalEncoding string `yaml:"principal_encoding"`
	NormalizeLowS     bool   `yaml:"normalize_low_s"`

	// local identities: hex secp256k1 key or path to a P-256 PEM file
	PrivateKey     string `yaml:"private_key"`
	PrivateKeyFile string `yaml:"private_key_file"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. An empty path is a
// no-op.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at path, expands ${VAR} references from the
// environment (a bare $VAR is not expanded), applies defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// sane defaults
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:8080"
	}
	if c.Server.DrainTimeout == 0 {
		c.Server.DrainTimeout = 10 * time.Second
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Backend.Vault.Mount == "" {
		c.Backend.Vault.Mount = "transit"
	}
	for i := range c.Identities {
		if c.Identities[i].Type == "" {
			c.Identities[i].Type = IdentityKMS
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references with the environment value. A bare
// $ is left as is so that secrets containing it survive.
func expandEnv(doc string) string {
	return envRef.ReplaceAllStringFunc(doc, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}

// Validate checks the structure of the configuration. Signing modes and
// principal encodings are validated when identities are built.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend.Type {
	case BackendAWS, BackendSimple:
	case BackendVault:
		if c.Backend.Vault.Address == "" {
			errs = append(errs, errors.New("backend.vault.address is required"))
		}
	case "":
		if c.usesKMS() {
			errs = append(errs, errors.New("backend.type is required for kms identities"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend type %q", c.Backend.Type))
	}

	if len(c.Identities) == 0 {
		errs = append(errs, errors.New("at least one identity is required"))
	}

	seen := make(map[string]bool)
	for i, id := range c.Identities {
		if id.Name == "" {
			errs = append(errs, fmt.Errorf("identities[%d]: name is required", i))
		} else if seen[id.Name] {
			errs = append(errs, fmt.Errorf("identities[%d]: duplicate name %q", i, id.Name))
		}
		seen[id.Name] = true

		switch id.Type {
		case IdentityKMS:
			if id.KeyID == "" {
				errs = append(errs, fmt.Errorf("identity %q: key_id is required", id.Name))
			}
		case IdentitySecp256k1:
			if id.PrivateKey == "" {
				errs = append(errs, fmt.Errorf("identity %q: private_key is required", id.Name))
			}
		case IdentityP256:
			if id.PrivateKeyFile == "" {
				errs = append(errs, fmt.Errorf("identity %q: private_key_file is required", id.Name))
			}
		case IdentityAnonymous:
		default:
			errs = append(errs, fmt.Errorf("identity %q: unknown type %q", id.Name, id.Type))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) usesKMS() bool {
	for _, id := range c.Identities {
		if id.Type == IdentityKMS {
			return true
		}
	}
	return false
}

// Identity returns the identity configuration named name.
func (c *Config) Identity(name string) (IdentityConfig, bool) {
	for _, id := range c.Identities {
		if id.Name == name {
			return id, true
		}
	}
	return IdentityConfig{}, false
}
