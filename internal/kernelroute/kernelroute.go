// Package kernelroute is the abstract kernel route channel: a
// single-writer request/ack interface the RIB reconciler drives, backed
// by a real netlink implementation on Linux and an in-process mock
// everywhere else (tests, other platforms).
package kernelroute

import (
	"fmt"

	"github.com/benpicco/olsrv2d/internal/addr"
)

// Request describes one route the RIB wants installed or removed.
type Request struct {
	// ID lets log lines and completion callbacks correlate a request
	// across the asynchronous round trip without comparing pointers
	// across goroutines.
	ID string

	Family   addr.Family
	Dst      addr.Address // destination prefix
	Src      addr.Address // preferred source address, zero value if unset
	Gateway  addr.Address // next hop, zero value for a directly-attached route
	IfIndex  int
	Metric   int
	Table    uint8
	Protocol uint8
	Scope    uint8
	Type     uint8

	// Done is invoked when the kernel acks or nacks this request; there
	// is no timeout. err is nil on success, and is the sentinel
	// ErrCancelled when the Netlink channel is closed while the request
	// is still pending.
	Done func(req *Request, err error)
}

func (r *Request) String() string {
	return fmt.Sprintf("%s dst=%s gw=%s if=%d metric=%d", r.ID, r.Dst, r.Gateway, r.IfIndex, r.Metric)
}

// ErrCancelled is passed to a Request's Done callback when the channel
// is closed before the kernel replied. The RIB reconciler does not
// report it as an error.
var ErrCancelled = fmt.Errorf("kernelroute: request cancelled by a later reconciliation")

// Well-known route protocol/table/scope/type values (RTPROT_*, RT_TABLE_*,
// RT_SCOPE_*, RTN_* from linux/rtnetlink.h), named here so callers outside
// internal/kernelroute/netlink_linux.go don't need the raw numbers.
const (
	ProtoOLSRv2 uint8 = 20 // RTPROT_STATIC-adjacent private range; any unused value owned by this daemon works
	TableMain   uint8 = 254
	ScopeUnivr  uint8 = 0
	ScopeLink   uint8 = 253
	TypeUnicast uint8 = 1
)

// Channel is what the RIB reconciler depends on; Netlink (Linux) and Mock
// satisfy it identically so tests never need a real kernel.
type Channel interface {
	// Set schedules an add/replace (set=true) or delete (set=false) for
	// req. The result, including cancellation, arrives via req.Done.
	Set(req *Request, set bool) error

	// Query asynchronously yields every route matching family over the
	// returned channel, which is closed once the dump completes.
	Query(family addr.Family) (<-chan *Request, error)

	// Close releases the underlying socket or, for Mock, simply drops
	// all pending callbacks without invoking them.
	Close() error
}
