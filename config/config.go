package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/datafs/internal/util"
	"gopkg.in/yaml.v3"
)

// CLI/config verbosity values. Verbosity is what users set; it maps onto the
// internal util.LogLevel scale which runs in the opposite direction.
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName = "datafs"
	DefaultName   = "datafs"

	DefaultLogLvl = util.InfoLevel

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	// DefaultRemoteTimeout bounds a single HTTP connector round trip in seconds
	DefaultRemoteTimeout = 60

	DefaultS3Region = "us-east-1"
)

// DefaultConnectors are the connector name prefixes accepted at the mount root
// besides the fixed data directory. Generic filesystem clients probe the root
// for all kinds of names (.Trash, .hidden, autorun.inf ...) and each miss would
// otherwise cost a remote round trip.
var DefaultConnectors = []string{"dropbox", "s3"}

// Config contains runtime configuration values for the filesystem.
type Config struct {
	MountOptions
	LogLvl util.LogLevel

	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)

	// Connector name prefixes whitelisted for lookup at the mount root (Default dropbox, s3)
	Connectors []string

	// Owner reported for every node (Default current process uid/gid)
	UID uint32
	GID uint32

	API API
	S3  S3

	// MetricsAddr is the listen address of the prometheus endpoint; empty disables it
	MetricsAddr string
}

// API configures the HTTP data API connector. It serves every connector
// that has no dedicated adapter.
type API struct {
	Address string // Base URL i.e. https://api.example.com; empty disables the connector
	Key     string
	Timeout int // seconds
}

// S3 configures the native S3 connector serving s3:// URIs
type S3 struct {
	Enabled      bool
	Endpoint     string // Custom endpoint for S3 compatible stores (MinIO etc.)
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	FsName       *string  `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name         *string  `yaml:"name,omitempty" json:"name,omitempty"`
	Debug        *bool    `yaml:"debug,omitempty" json:"debug,omitempty"`
	AllowOther   *bool    `yaml:"allow_other,omitempty" json:"allow_other,omitempty"`
	LogLvl       *int     `yaml:"verbose,omitempty" json:"verbose,omitempty"` // verbosity 1 (error) - 5 (trace)
	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	Connectors   []string `yaml:"connectors,omitempty" json:"connectors,omitempty"`
	UID          *uint32  `yaml:"uid,omitempty" json:"uid,omitempty"`
	GID          *uint32  `yaml:"gid,omitempty" json:"gid,omitempty"`
	MetricsAddr  *string  `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`

	API *APIOverride `yaml:"api,omitempty" json:"api,omitempty"`
	S3  *S3Override  `yaml:"s3,omitempty" json:"s3,omitempty"`
}

type APIOverride struct {
	Address *string `yaml:"address,omitempty" json:"address,omitempty"`
	Key     *string `yaml:"key,omitempty" json:"key,omitempty"`
	Timeout *int    `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type S3Override struct {
	Enabled      *bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Endpoint     *string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Region       *string `yaml:"region,omitempty" json:"region,omitempty"`
	AccessKey    *string `yaml:"access_key,omitempty" json:"access_key,omitempty"`
	SecretKey    *string `yaml:"secret_key,omitempty" json:"secret_key,omitempty"`
	UsePathStyle *bool   `yaml:"use_path_style,omitempty" json:"use_path_style,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:       DefaultLogLvl,
		AttrTimeout:  DefaultAttrTimeout,
		EntryTimeout: DefaultEntryTimeout,
		Connectors:   append([]string(nil), DefaultConnectors...),
		UID:          uint32(os.Getuid()),
		GID:          uint32(os.Getgid()),
		API: API{
			Timeout: DefaultRemoteTimeout,
		},
		S3: S3{
			Region: DefaultS3Region,
		},
	}
}

// NewConfig creates a Config from defaults with override applied on top.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.AllowOther != nil {
		c.AllowOther = *override.AllowOther
	}
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLevel(*override.LogLvl)
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.Connectors != nil {
		c.Connectors = append([]string(nil), override.Connectors...)
	}
	if override.UID != nil {
		c.UID = *override.UID
	}
	if override.GID != nil {
		c.GID = *override.GID
	}
	if override.MetricsAddr != nil {
		c.MetricsAddr = *override.MetricsAddr
	}
	if o := override.API; o != nil {
		if o.Address != nil {
			c.API.Address = *o.Address
		}
		if o.Key != nil {
			c.API.Key = *o.Key
		}
		if o.Timeout != nil {
			c.API.Timeout = *o.Timeout
		}
	}
	if o := override.S3; o != nil {
		if o.Enabled != nil {
			c.S3.Enabled = *o.Enabled
		}
		if o.Endpoint != nil {
			c.S3.Endpoint = *o.Endpoint
		}
		if o.Region != nil {
			c.S3.Region = *o.Region
		}
		if o.AccessKey != nil {
			c.S3.AccessKey = *o.AccessKey
		}
		if o.SecretKey != nil {
			c.S3.SecretKey = *o.SecretKey
		}
		if o.UsePathStyle != nil {
			c.S3.UsePathStyle = *o.UsePathStyle
		}
	}
}

// VerboseToLogLevel converts CLI verbosity (1 error - 5 trace) to a util.LogLevel.
// Out of range values are clamped.
func VerboseToLogLevel(verbose int) util.LogLevel {
	verbose = max(ErrorVerbose, min(TraceVerbose, verbose))
	lvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[verbose-1]
}

// IsConnector reports whether name starts with one of the whitelisted connector prefixes
func (c *Config) IsConnector(name string) bool {
	for _, prefix := range c.Connectors {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
