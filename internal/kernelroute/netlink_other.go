//go:build !linux

package kernelroute

import (
	"fmt"

	"github.com/benpicco/olsrv2d/internal/addr"
)

// NewNetlink is only available on Linux (the only platform with an
// AF_NETLINK/NETLINK_ROUTE routing socket). Callers on other platforms
// fall back to Mock, which is also what every test in this repo uses.
func NewNetlink() (*Netlink, error) {
	return nil, fmt.Errorf("kernelroute: netlink route channel is only available on linux")
}

// Netlink is declared here too so code that type-references
// *kernelroute.Netlink compiles on every platform even though it can
// never be constructed off Linux.
type Netlink struct{}

func (nl *Netlink) Set(req *Request, set bool) error {
	return fmt.Errorf("kernelroute: unsupported platform")
}
func (nl *Netlink) Query(family addr.Family) (<-chan *Request, error) {
	return nil, fmt.Errorf("kernelroute: unsupported platform")
}
func (nl *Netlink) Close() error { return nil }
