// Package sysctl saves and restores the handful of process-wide Linux
// network sysctls an OLSRv2 node needs relaxed to forward and accept
// multi-hop traffic: reverse-path filtering and ICMP redirects, for
// "all" plus every configured NHDP interface. Acquisition is scoped:
// Acquire snapshots the previous values and applies the required ones;
// Release puts every value it touched back exactly as found, on every
// exit path, the same open/acquire-then-guaranteed-release contract
// kernelroute.Netlink uses for its own socket.
package sysctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// baseDir is /proc/sys/net/ipv4/conf in production; tests override it
// with a temp directory so Acquire/Release can run without real
// sysctls or root.
const baseDir = "/proc/sys/net/ipv4/conf"

// required is the set of files relaxed while a Guard is held, and the
// value each is forced to.
var required = map[string]string{
	"rp_filter":      "0",
	"send_redirects": "0",
}

// Guard holds the previous value of every sysctl file it changed, keyed
// by its full path, so Release can restore each one independently of
// the others.
type Guard struct {
	saved map[string]string
}

// Acquire relaxes rp_filter/send_redirects for "all" and every interface
// in ifaces, returning a Guard that restores the previous values. On any
// failure it rolls back whatever it already changed before returning the
// error, so a caller that ignores a non-nil error is not left with a
// half-applied sysctl state.
func Acquire(ifaces []string) (*Guard, error) {
	return acquireAt(baseDir, ifaces)
}

func acquireAt(dir string, ifaces []string) (*Guard, error) {
	g := &Guard{saved: map[string]string{}}

	scopes := append([]string{"all"}, ifaces...)
	for _, scope := range scopes {
		for name, want := range required {
			path := filepath.Join(dir, scope, name)
			prev, err := readSysctl(path)
			if err != nil {
				g.Release()
				return nil, fmt.Errorf("sysctl: read %s: %w", path, err)
			}
			if err := writeSysctl(path, want); err != nil {
				g.Release()
				return nil, fmt.Errorf("sysctl: write %s: %w", path, err)
			}
			g.saved[path] = prev
		}
	}
	return g, nil
}

// Release restores every sysctl this Guard changed. It is safe to call
// more than once and safe to call on a partially-populated Guard (as
// Acquire does internally on its own failure path); every restore is
// attempted even if an earlier one fails, and the first error
// encountered is returned.
func (g *Guard) Release() error {
	var firstErr error
	for path, prev := range g.saved {
		if err := writeSysctl(path, prev); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sysctl: restore %s: %w", path, err)
		}
		delete(g.saved, path)
	}
	return firstErr
}

func readSysctl(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func writeSysctl(path, value string) error {
	return os.WriteFile(path, []byte(value+"\n"), 0o644)
}
