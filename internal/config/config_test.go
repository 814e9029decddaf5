package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/benpicco/olsrv2d/internal/addr"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "olsrv2d.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[nhdp]
interfaces = ["wlan0"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OLSRv2.TCInterval <= 0 {
		t.Fatal("tc_interval default must be positive")
	}
	if len(cfg.OLSRv2.RoutableACL) != len(defaultRoutableACL) {
		t.Fatalf("want default routable ACL, got %v", cfg.OLSRv2.RoutableACL)
	}
	if len(cfg.Domains) != 1 || cfg.Domains[0].Metric != "etx" {
		t.Fatalf("want one default etx domain, got %+v", cfg.Domains)
	}
}

func TestLoadRejectsMissingInterfaces(t *testing.T) {
	path := writeTempConfig(t, `
[nhdp]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("want an error when no interfaces are configured")
	}
}

func TestLoadRejectsDuplicateDomainExt(t *testing.T) {
	path := writeTempConfig(t, `
[nhdp]
interfaces = ["wlan0"]

[[domain]]
ext = 0
metric = "etx"

[[domain]]
ext = 0
metric = "etx"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("want an error for a duplicate domain ext")
	}
}

func TestLoadRejectsInvalidLANPrefix(t *testing.T) {
	path := writeTempConfig(t, `
[nhdp]
interfaces = ["wlan0"]

[[olsrv2.lan]]
prefix = "not-a-cidr"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("want an error for an unparseable LAN prefix")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := writeTempConfig(t, `
[nhdp]
interfaces = ["wlan0"]
hello_interval = "not-a-duration"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("want an error for an unparseable duration")
	}
}

func TestRoutableACLExcludesDefaults(t *testing.T) {
	acl, err := NewRoutableACL(defaultRoutableACL)
	if err != nil {
		t.Fatal(err)
	}
	linkLocal, err := addr.FromIP(net.ParseIP("169.254.1.1"))
	if err != nil {
		t.Fatal(err)
	}
	if acl.IsRoutable(linkLocal) {
		t.Fatal("169.254.0.0/16 must not be routable")
	}

	global, err := addr.FromIP(net.ParseIP("10.0.0.1"))
	if err != nil {
		t.Fatal(err)
	}
	if !acl.IsRoutable(global) {
		t.Fatal("an ordinary address outside every excluded range must be routable")
	}
}
