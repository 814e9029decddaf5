package config

import (
	"net"

	"github.com/benpicco/olsrv2d/internal/addr"
)

// RoutableACL caches the parsed routable-address exclusion list so
// addresses can be checked without reparsing CIDR strings. The daemon
// applies it when choosing its originator address; TC neighbor and
// endpoint addresses are not filtered through it.
type RoutableACL struct {
	excluded []*net.IPNet
}

// NewRoutableACL parses cidrs (typically OLSRv2Config.RoutableACL) into
// a ready-to-query ACL. Load has already validated every entry parses,
// so a parse failure here would only occur for an ACL built by hand.
func NewRoutableACL(cidrs []string) (*RoutableACL, error) {
	acl := &RoutableACL{}
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, &ValidationError{Field: "routable_acl", Value: c, Message: "not a valid CIDR"}
		}
		acl.excluded = append(acl.excluded, n)
	}
	return acl, nil
}

// IsRoutable reports whether a falls outside every excluded range.
// Addresses in the excluded ranges are never treated as routable
// originators or endpoints.
func (a *RoutableACL) IsRoutable(target addr.Address) bool {
	ip := target.IP()
	for _, n := range a.excluded {
		if n.Contains(ip) {
			return false
		}
	}
	return true
}
