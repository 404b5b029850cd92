package coordinator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config carries the coordinator's cluster topology and tunables. Values can
// come from flags or from a YAML file; the file overlays the defaults and
// explicitly-set flags overlay the file.
type Config struct {
	// Port the coordinator's own HTTP server listens on.
	Port int `yaml:"port"`

	// Followers is the number of follower slots created at bootstrap.
	Followers int `yaml:"followers"`

	// WriteQuorum (W) and ReadQuorum (R). Both must fit in 1..Followers.
	WriteQuorum int `yaml:"write_quorum"`
	ReadQuorum  int `yaml:"read_quorum"`

	// BasePort anchors the port layout: leader at BasePort+1, follower-N at
	// BasePort+1+N.
	BasePort int `yaml:"base_port"`

	RegistryURL string `yaml:"registry_url"`

	// NodeBinary is the node executable handed to the launcher.
	NodeBinary string `yaml:"node_binary"`

	// Cosmetic replication delays passed through to spawned nodes.
	SyncDelay  time.Duration `yaml:"-"`
	AsyncDelay time.Duration `yaml:"-"`

	// HealthInterval is the health-check loop tick. Defaults to 2s.
	HealthInterval time.Duration `yaml:"-"`

	// RegisterDelay is how long a freshly spawned follower gets to bind
	// before the deferred register-follower call reaches the leader.
	RegisterDelay time.Duration `yaml:"-"`

	// CatchupAttempts and CatchupBackoff bound the snapshot-delivery retry
	// loop that absorbs a follower's startup window.
	CatchupAttempts int           `yaml:"catchup_attempts"`
	CatchupBackoff  time.Duration `yaml:"-"`
}

// DefaultConfig returns the standard three-follower topology.
func DefaultConfig() Config {
	return Config{
		Port:            7000,
		Followers:       3,
		WriteQuorum:     2,
		ReadQuorum:      2,
		BasePort:        7000,
		RegistryURL:     "http://localhost:9000",
		NodeBinary:      "node",
		HealthInterval:  2 * time.Second,
		RegisterDelay:   2 * time.Second,
		CatchupAttempts: 3,
		CatchupBackoff:  2 * time.Second,
	}
}

// Validate rejects quorum parameters the cluster can never satisfy. A
// coordinator started with W greater than the follower count would accept
// writes that cannot reach quorum, so startup fails instead.
func (c Config) Validate() error {
	if c.Followers < 1 {
		return fmt.Errorf("followers must be at least 1, got %d", c.Followers)
	}
	if c.WriteQuorum < 1 || c.WriteQuorum > c.Followers {
		return fmt.Errorf("write quorum %d outside 1..%d", c.WriteQuorum, c.Followers)
	}
	if c.ReadQuorum < 1 || c.ReadQuorum > c.Followers {
		return fmt.Errorf("read quorum %d outside 1..%d", c.ReadQuorum, c.Followers)
	}
	return nil
}

// LoadFile overlays the YAML file at path onto base and returns the result.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
