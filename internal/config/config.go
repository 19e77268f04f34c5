// Package config loads flnode configuration from YAML.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ChainFL/internal/artifact"
	"ChainFL/internal/coordinator"
	"ChainFL/internal/retry"
)

// Aggregator kinds.
const (
	AggregatorFedAvg  = "fedavg"
	AggregatorProcess = "process"
	AggregatorWASM    = "wasm"
)

// Config is the whole flnode configuration.
type Config struct {
	Coordinator Coordinator `yaml:"coordinator"`
	Ledger      Ledger      `yaml:"ledger"`
	Artifacts   Artifacts   `yaml:"artifacts"`
	Aggregator  Aggregator  `yaml:"aggregator"`
	Journal     Journal     `yaml:"journal"`
	Node        Node        `yaml:"node"`
	Log         Log         `yaml:"log"`
}

// Coordinator configures the round loop and its HTTP front door.
type Coordinator struct {
	Listen         string        `yaml:"listen"`         // Listen is the HTTP address
	CollectTimeout time.Duration `yaml:"collectTimeout"` // CollectTimeout is the collection window
	RoundDelay     time.Duration `yaml:"roundDelay"`     // RoundDelay is the pause after publishing
	RetryDelay     time.Duration `yaml:"retryDelay"`     // RetryDelay is the wait after a failed step
	StrictHashes   bool          `yaml:"strictHashes"`   // StrictHashes drops mismatched artifacts
	AdminToken     string        `yaml:"adminToken"`     // AdminToken guards /close-round; empty allows loopback callers only
}

// Ledger configures the coordinator's ledger connection.
type Ledger struct {
	Addr           string        `yaml:"addr"`
	KeyPath        string        `yaml:"keyPath"`        // KeyPath holds the coordinator account key
	NodeKey        string        `yaml:"nodeKey"`        // NodeKey pins the node identity (hex), optional
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	Retry          Retry         `yaml:"retry"`
}

// Retry configures retries of transient ledger failures.
type Retry struct {
	Attempts int           `yaml:"attempts"`
	Initial  time.Duration `yaml:"initial"`
	Max      time.Duration `yaml:"max"`
}

// Artifacts configures model storage.
type Artifacts struct {
	Dir             string             `yaml:"dir"`             // Dir is the local artifact root
	S3              *artifact.S3Config `yaml:"s3"`              // S3 makes a bucket the primary backend when set
	PublishAttempts int                `yaml:"publishAttempts"`
	PublishBackoff  time.Duration      `yaml:"publishBackoff"`
}

// Aggregator selects the aggregation implementation.
type Aggregator struct {
	Kind    string        `yaml:"kind"`    // Kind is fedavg, process or wasm
	Command []string      `yaml:"command"` // Command is the process aggregator's program
	Program string        `yaml:"program"` // Program is the WASI module path
	WorkDir string        `yaml:"workDir"`
	Timeout time.Duration `yaml:"timeout"`
}

// Journal configures the SQLite journal. An empty path disables it.
type Journal struct {
	Path string `yaml:"path"`
}

// Node configures the development ledger node.
type Node struct {
	DataDir   string        `yaml:"dataDir"`
	Listen    string        `yaml:"listen"`
	KeyPath   string        `yaml:"keyPath"`
	OwnerKey  string        `yaml:"ownerKey"` // OwnerKey is the coordinator account (hex ed25519)
	ReplayTTL time.Duration `yaml:"replayTTL"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
}

// Default returns a configuration that runs everything on localhost.
func Default() *Config {
	def := coordinator.DefaultConfig()
	pol := retry.Default()

	return &Config{
		Coordinator: Coordinator{
			Listen:         ":8080",
			CollectTimeout: def.CollectTimeout,
			RoundDelay:     def.RoundDelay,
			RetryDelay:     def.RetryDelay,
			StrictHashes:   def.StrictHashes,
		},
		Ledger: Ledger{
			Addr:           "127.0.0.1:9000",
			KeyPath:        "./data/coordinator.key",
			RequestTimeout: 10 * time.Second,
			Retry: Retry{
				Attempts: pol.Attempts,
				Initial:  pol.Initial,
				Max:      pol.Max,
			},
		},
		Artifacts: Artifacts{
			Dir:             "./data/artifacts",
			PublishAttempts: 5,
			PublishBackoff:  200 * time.Millisecond,
		},
		Aggregator: Aggregator{
			Kind:    AggregatorFedAvg,
			Timeout: 5 * time.Minute,
		},
		Journal: Journal{
			Path: "./data/journal.db",
		},
		Node: Node{
			DataDir:   "./data/ledger",
			Listen:    ":9000",
			KeyPath:   "./data/node.key",
			ReplayTTL: 30 * time.Second,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config:\n%w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s:\n%w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the node cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Coordinator.CollectTimeout <= 0 {
		errs = append(errs, errors.New("coordinator.collectTimeout must be positive"))
	}
	if c.Coordinator.RoundDelay < 0 {
		errs = append(errs, errors.New("coordinator.roundDelay must not be negative"))
	}
	if c.Coordinator.RetryDelay <= 0 {
		errs = append(errs, errors.New("coordinator.retryDelay must be positive"))
	}

	if c.Ledger.Retry.Attempts < 1 {
		errs = append(errs, errors.New("ledger.retry.attempts must be at least 1"))
	}
	if c.Ledger.NodeKey != "" {
		if _, err := DecodeKey(c.Ledger.NodeKey); err != nil {
			errs = append(errs, fmt.Errorf("ledger.nodeKey: %w", err))
		}
	}

	if c.Artifacts.S3 == nil && c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir is required without artifacts.s3"))
	}
	if c.Artifacts.S3 != nil && c.Artifacts.S3.Bucket == "" {
		errs = append(errs, errors.New("artifacts.s3.bucket is required"))
	}

	switch c.Aggregator.Kind {
	case AggregatorFedAvg:
	case AggregatorProcess:
		if len(c.Aggregator.Command) == 0 {
			errs = append(errs, errors.New("aggregator.command is required for the process aggregator"))
		}
	case AggregatorWASM:
		if c.Aggregator.Program == "" {
			errs = append(errs, errors.New("aggregator.program is required for the wasm aggregator"))
		}
	default:
		errs = append(errs, fmt.Errorf("aggregator.kind %q is not one of fedavg, process, wasm", c.Aggregator.Kind))
	}

	if c.Node.OwnerKey != "" {
		if _, err := DecodeKey(c.Node.OwnerKey); err != nil {
			errs = append(errs, fmt.Errorf("node.ownerKey: %w", err))
		}
	}

	return errors.Join(errs...)
}

// CoordinatorConfig returns the round loop settings.
func (c *Config) CoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		CollectTimeout: c.Coordinator.CollectTimeout,
		RoundDelay:     c.Coordinator.RoundDelay,
		RetryDelay:     c.Coordinator.RetryDelay,
		StrictHashes:   c.Coordinator.StrictHashes,
	}
}

// RetryPolicy returns the ledger retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.Default()
	p.Attempts = c.Ledger.Retry.Attempts
	if c.Ledger.Retry.Initial > 0 {
		p.Initial = c.Ledger.Retry.Initial
	}
	if c.Ledger.Retry.Max > 0 {
		p.Max = c.Ledger.Retry.Max
	}

	return p
}

// StoreOptions returns the artifact store settings.
func (c *Config) StoreOptions() artifact.Options {
	return artifact.Options{
		PublishAttempts: c.Artifacts.PublishAttempts,
		PublishBackoff:  c.Artifacts.PublishBackoff,
	}
}

// DecodeKey parses a hex ed25519 public key.
func DecodeKey(s string) (ed25519.PublicKey, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}

	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key is %d bytes, want %d", len(key), ed25519.PublicKeySize)
	}

	return ed25519.PublicKey(key), nil
}
