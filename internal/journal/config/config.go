// Package config defines and validates the journal's sizing and policy
// configuration.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

// CheckpointPolicy selects whether the releaser drives checkpoints
// automatically as groups fill or only when explicitly triggered.
type CheckpointPolicy string

const (
	PolicyAuto   CheckpointPolicy = "auto"
	PolicyManual CheckpointPolicy = "manual"
)

// Config holds the journal's sizing and policy knobs.
type Config struct {
	JournalEnabled       bool              `yaml:"journal_enabled"`
	LogBufferSize        datasize.ByteSize `yaml:"log_buffer_size"`
	MetaPageSize         datasize.ByteSize `yaml:"meta_page_size"`
	NumLogGroups         int               `yaml:"num_log_groups"`
	CheckpointPolicy     CheckpointPolicy  `yaml:"checkpoint_policy"`
	CheckpointMaxRetries int               `yaml:"checkpoint_max_retries"`
}

// DefaultConfig returns conservative defaults suitable for a small test
// array: a 64 MiB log buffer split into 4 groups of 4 KiB meta pages.
func DefaultConfig() *Config {
	return &Config{
		JournalEnabled:       true,
		LogBufferSize:        64 * datasize.MB,
		MetaPageSize:         4 * datasize.KB,
		NumLogGroups:         4,
		CheckpointPolicy:     PolicyAuto,
		CheckpointMaxRetries: 3,
	}
}

// Load reads and validates a Config from a YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the §6 sizing constraints: log_buffer_size must divide
// evenly into num_log_groups, and each group's size must be a multiple of
// meta_page_size (and large enough to hold at least a footer).
func (c *Config) Validate() error {
	if c.NumLogGroups <= 0 {
		return fmt.Errorf("config: num_log_groups must be positive, got %d", c.NumLogGroups)
	}
	if c.MetaPageSize == 0 {
		return fmt.Errorf("config: meta_page_size must be positive")
	}

	bufSize := uint64(c.LogBufferSize)
	numGroups := uint64(c.NumLogGroups)
	if bufSize%numGroups != 0 {
		return fmt.Errorf("config: log_buffer_size (%s) must be a multiple of num_log_groups (%d)",
			c.LogBufferSize, c.NumLogGroups)
	}

	groupSize := bufSize / numGroups
	metaPageSize := uint64(c.MetaPageSize)
	if groupSize%metaPageSize != 0 {
		return fmt.Errorf("config: log_group_size (%d) must be a multiple of meta_page_size (%s)",
			groupSize, c.MetaPageSize)
	}
	if groupSize <= uint64(record.FooterSize) {
		return fmt.Errorf("config: log_group_size (%d) must exceed the footer size (%d)",
			groupSize, record.FooterSize)
	}

	switch c.CheckpointPolicy {
	case PolicyAuto, PolicyManual, "":
	default:
		return fmt.Errorf("config: unknown checkpoint_policy %q", c.CheckpointPolicy)
	}

	return nil
}

// GroupSize returns the fixed size in bytes of each log group.
func (c *Config) GroupSize() int {
	return int(uint64(c.LogBufferSize) / uint64(c.NumLogGroups))
}

// Builder constructs a Config fluently, mirroring the array's own
// configuration builders.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder seeded with DefaultConfig.
func NewBuilder() *Builder {
	return &Builder{cfg: *DefaultConfig()}
}

func (b *Builder) SetJournalEnable(enabled bool) *Builder {
	b.cfg.JournalEnabled = enabled
	return b
}

func (b *Builder) SetLogBufferSize(size datasize.ByteSize) *Builder {
	b.cfg.LogBufferSize = size
	return b
}

func (b *Builder) SetMetaPageSize(size datasize.ByteSize) *Builder {
	b.cfg.MetaPageSize = size
	return b
}

func (b *Builder) SetNumLogGroups(n int) *Builder {
	b.cfg.NumLogGroups = n
	return b
}

func (b *Builder) SetCheckpointPolicy(policy CheckpointPolicy) *Builder {
	b.cfg.CheckpointPolicy = policy
	return b
}

func (b *Builder) SetCheckpointMaxRetries(n int) *Builder {
	b.cfg.CheckpointMaxRetries = n
	return b
}

// Build validates and returns the configured Config.
func (b *Builder) Build() (*Config, error) {
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
