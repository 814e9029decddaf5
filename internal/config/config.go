// Package config loads and validates the daemon's TOML configuration
// file into the typed surface the rest of the daemon is wired from: an
// `nhdp` table, one or more `[[domain]]` tables, an `olsrv2` table
// (including its routable ACL and locally-attached networks), and a
// `plugins` table of per-plug-in parameters.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the fully parsed, not-yet-validated configuration file.
type Config struct {
	NHDP    NHDPConfig              `toml:"nhdp"`
	Domains []DomainConfig          `toml:"domain"`
	OLSRv2  OLSRv2Config            `toml:"olsrv2"`
	Plugins map[string]PluginConfig `toml:"plugins"`
}

// NHDPConfig is the `nhdp` table: HELLO timing and this node's own MPR
// willingness.
type NHDPConfig struct {
	// Interfaces lists the network interface names NHDP runs on.
	Interfaces []string `toml:"interfaces"`

	HelloInterval   Duration `toml:"hello_interval"`
	HelloValidity   Duration `toml:"hello_validity"`   // H_HOLD
	LinkValidity    Duration `toml:"link_validity"`    // L_HOLD
	NeighborHold    Duration `toml:"neighbor_hold"`    // N_HOLD
	LocalAddrHold   Duration `toml:"local_addr_hold"`  // I_HOLD
	Willingness     uint8    `toml:"willingness"`
	MaxNeighbors    int      `toml:"max_neighbors"`
}

// DomainConfig is one `[[domain]]` table, indexed by its Ext extension
// id (0-255): which metric and MPR plug-ins compute routing cost and
// selection for that domain.
type DomainConfig struct {
	Ext    uint8  `toml:"ext"`
	Metric string `toml:"metric"` // plug-in name, e.g. "etx"
}

// LANConfig is one locally-attached-network line:
// `<prefix> [metric=N] [domain=N] [dist=N]`.
type LANConfig struct {
	Prefix string `toml:"prefix"`
	Metric *uint32 `toml:"metric,omitempty"`
	Domain *uint8  `toml:"domain,omitempty"`
	Dist   *uint8  `toml:"dist,omitempty"`
}

// OLSRv2Config is the `olsrv2` table: TC timing, the routable ACL, and
// locally-attached networks.
type OLSRv2Config struct {
	TCInterval         Duration    `toml:"tc_interval"`
	TCValidity         Duration    `toml:"tc_validity"`
	ForwardHoldTime    Duration    `toml:"forward_hold_time"`
	ProcessingHoldTime Duration    `toml:"processing_hold_time"`
	RoutableACL        []string    `toml:"routable_acl"`
	LANs               []LANConfig `toml:"lan"`
}

// PluginConfig is one per-plug-in parameter table (ETX/ETT style).
type PluginConfig struct {
	Window      int      `toml:"window"`
	StartWindow int      `toml:"start_window"`
	Interval    Duration `toml:"interval"`
}

// Duration is a TOML-friendly wrapper over time.Duration: config files
// spell durations the usual Go way ("2s", "500ms") rather than as bare
// integers of an implicit unit.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// defaultRoutableACL excludes link-local, loopback, multicast, and
// their IPv6 equivalents from the routable address space by default.
var defaultRoutableACL = []string{
	"169.254.0.0/16",
	"127.0.0.0/8",
	"224.0.0.0/4",
	"fe80::/10",
	"::1/128",
	"ff00::/8",
}

// Load reads and parses a TOML file at path, fills in defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, &ValidationError{Field: "file", Value: path, Message: err.Error()}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.NHDP.HelloInterval == 0 {
		c.NHDP.HelloInterval = Duration(2 * time.Second)
	}
	if c.NHDP.HelloValidity == 0 {
		c.NHDP.HelloValidity = Duration(6 * time.Second)
	}
	if c.NHDP.LinkValidity == 0 {
		c.NHDP.LinkValidity = c.NHDP.HelloValidity
	}
	if c.NHDP.NeighborHold == 0 {
		c.NHDP.NeighborHold = Duration(30 * time.Second)
	}
	if c.NHDP.LocalAddrHold == 0 {
		c.NHDP.LocalAddrHold = Duration(1 * time.Second)
	}
	if c.NHDP.Willingness == 0 {
		c.NHDP.Willingness = 3 // nhdp.WillingnessDefault
	}
	if c.OLSRv2.TCInterval == 0 {
		c.OLSRv2.TCInterval = Duration(5 * time.Second)
	}
	if c.OLSRv2.TCValidity == 0 {
		c.OLSRv2.TCValidity = Duration(15 * time.Second)
	}
	if len(c.OLSRv2.RoutableACL) == 0 {
		c.OLSRv2.RoutableACL = defaultRoutableACL
	}
	for i := range c.Domains {
		if c.Domains[i].Metric == "" {
			c.Domains[i].Metric = "etx"
		}
	}
	if len(c.Domains) == 0 {
		c.Domains = []DomainConfig{{Ext: 0, Metric: "etx"}}
	}
}

// ValidationError reports a configuration validation failure: the field
// that failed, the offending value, and why.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("config: invalid %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Message)
}

// Validate checks the loaded configuration for the constraints the rest
// of the daemon assumes hold before any runtime state is built.
func (c *Config) Validate() error {
	if len(c.NHDP.Interfaces) == 0 {
		return &ValidationError{Field: "nhdp.interfaces", Message: "at least one interface is required"}
	}
	if c.NHDP.HelloInterval <= 0 {
		return &ValidationError{Field: "nhdp.hello_interval", Value: c.NHDP.HelloInterval, Message: "must be positive"}
	}
	if c.NHDP.HelloValidity <= 0 {
		return &ValidationError{Field: "nhdp.hello_validity", Value: c.NHDP.HelloValidity, Message: "must be positive"}
	}
	if c.NHDP.MaxNeighbors < 0 {
		return &ValidationError{Field: "nhdp.max_neighbors", Value: c.NHDP.MaxNeighbors, Message: "must not be negative"}
	}

	seenExt := map[uint8]bool{}
	for _, d := range c.Domains {
		if seenExt[d.Ext] {
			return &ValidationError{Field: "domain.ext", Value: d.Ext, Message: "duplicate domain extension id"}
		}
		seenExt[d.Ext] = true
		if d.Metric == "" {
			return &ValidationError{Field: "domain.metric", Value: d.Ext, Message: "metric plug-in name is required"}
		}
	}

	if c.OLSRv2.TCInterval <= 0 {
		return &ValidationError{Field: "olsrv2.tc_interval", Value: c.OLSRv2.TCInterval, Message: "must be positive"}
	}
	if c.OLSRv2.TCValidity <= 0 {
		return &ValidationError{Field: "olsrv2.tc_validity", Value: c.OLSRv2.TCValidity, Message: "must be positive"}
	}
	for _, cidr := range c.OLSRv2.RoutableACL {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return &ValidationError{Field: "olsrv2.routable_acl", Value: cidr, Message: "not a valid CIDR"}
		}
	}
	for _, lan := range c.OLSRv2.LANs {
		if _, _, err := net.ParseCIDR(lan.Prefix); err != nil {
			return &ValidationError{Field: "olsrv2.lan.prefix", Value: lan.Prefix, Message: "not a valid CIDR"}
		}
		if lan.Domain != nil && !seenExt[*lan.Domain] && *lan.Domain != 0 {
			return &ValidationError{Field: "olsrv2.lan.domain", Value: *lan.Domain, Message: "references an undeclared domain"}
		}
	}

	for name, p := range c.Plugins {
		if p.Window < 0 || p.StartWindow < 0 {
			return &ValidationError{Field: "plugins." + name, Value: p, Message: "window and start_window must not be negative"}
		}
	}

	return nil
}
