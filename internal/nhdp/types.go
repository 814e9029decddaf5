// Package nhdp implements the RFC 6130 neighborhood discovery state
// machine: interfaces, links, neighbors and their address sets, and the
// 2-hop entries reachable through symmetric links.
package nhdp

import (
	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/hysteresis"
	"github.com/benpicco/olsrv2d/internal/metric"
)

// Domain identifies one metric topology by its TLV extension value.
type Domain uint8

// MaxDomains bounds how many domains a link/neighbor/2-hop entry tracks
// metric slots for (the data model: "typical: 4").
const MaxDomains = 4

// LinkStatus is the deterministic function of hysteresis and timer state
// described in the data model.
type LinkStatus int

const (
	StatusLost LinkStatus = iota
	StatusPending
	StatusHeard
	StatusSymmetric
)

func (s LinkStatus) String() string {
	switch s {
	case StatusLost:
		return "LOST"
	case StatusPending:
		return "PENDING"
	case StatusHeard:
		return "HEARD"
	case StatusSymmetric:
		return "SYMMETRIC"
	default:
		return "UNKNOWN"
	}
}

// ComputeStatus implements the data model's link-status function.
func ComputeStatus(hystPending, hystLost, symActive, heardActive bool) LinkStatus {
	switch {
	case hystPending:
		return StatusPending
	case hystLost:
		return StatusLost
	case symActive:
		return StatusSymmetric
	case heardActive:
		return StatusHeard
	default:
		return StatusLost
	}
}

// MetricPair is the incoming/outgoing cost slot one domain occupies on a
// link, neighbor, or 2-hop entry.
type MetricPair struct {
	In, Out metric.Cost
}

// MPRFlags records what we selected a link/neighbor as, per domain plus
// the domain-independent flooding role.
type MPRFlags struct {
	Flooding bool
	Routing  [MaxDomains]bool
}

// TwoHopEntry is one remote address reachable via one symmetric link
// (the data model: "created/refreshed from peer HELLOs that advertise the
// address as SYMMETRIC or OTHER-NEIGHB-SYMMETRIC").
type TwoHopEntry struct {
	Address addr.Address
	VTimer  *clock.Timer
	Metric  [MaxDomains]MetricPair
}

// Link is one directional relationship through one local interface to
// one remote interface (the data model).
type Link struct {
	db       *Database
	Iface    *Interface
	Neighbor *Neighbor

	Addresses []addr.Address
	TwoHop    map[addr.Address]*TwoHopEntry

	VTimer         *clock.Timer
	HeardTimer     *clock.Timer
	SymTimer       *clock.Timer
	HelloLostTimer *clock.Timer

	HystPending bool
	HystLost    bool
	HystState   hysteresis.LinkState

	RecvVTime clock.Duration
	RecvITime clock.Duration

	Metric      [MaxDomains]MetricPair
	MetricState [MaxDomains]metric.LinkState

	MPR MPRFlags

	lastStatus LinkStatus
}

// Status computes the link's current status per the data model.
func (l *Link) Status() LinkStatus {
	sym := l.SymTimer != nil && l.SymTimer.Active()
	heard := l.HeardTimer != nil && l.HeardTimer.Active()
	return ComputeStatus(l.HystPending, l.HystLost, sym, heard)
}

// HasAddress reports whether addr is one of this link's remote
// interface addresses.
func (l *Link) HasAddress(a addr.Address) bool {
	for _, la := range l.Addresses {
		if la == a {
			return true
		}
	}
	return false
}

// NeighborAddress is one address in a neighbor's full address set,
// tracked separately from link addresses so it survives individual
// links coming and going (the data model: "neighbor owns its address set").
type NeighborAddress struct {
	Address addr.Address
	Lost    bool
	VTimer  *clock.Timer
}

// Neighbor is the collection of links to one remote node (the data model).
type Neighbor struct {
	db *Database

	Links     []*Link
	Addresses map[addr.Address]*NeighborAddress

	Originator    addr.Address
	HasOriginator bool

	Symmetric int

	Metric [MaxDomains]MetricPair

	// Willingness is the RFC 7181 §18.3 MPR_WILLING value the neighbor
	// last advertised (WillingnessDefault until a HELLO says otherwise).
	Willingness uint8

	// MPRFlooding/MPRRouting record whether this neighbor has selected
	// *us* as its flooding/per-domain routing MPR, learned from the MPR
	// TLV it attaches to our own address in its HELLOs. This is what the
	// forwarding selector checks, not what we selected.
	MPRFlooding bool
	MPRRouting  [MaxDomains]bool
}

// RFC 7181 §18.3 willingness values.
const (
	WillingnessNever   uint8 = 0
	WillingnessLow     uint8 = 1
	WillingnessDefault uint8 = 3
	WillingnessHigh    uint8 = 6
	WillingnessAlways  uint8 = 7
)

// ifaceAddress is one entry in an Interface's current-or-recently-
// removed address set (the data model).
type ifaceAddress struct {
	Address addr.Address
	Removed bool
	VTimer  *clock.Timer
}

// Interface is one mesh-participating local interface (the data model).
type Interface struct {
	db *Database

	Index int
	Name  string

	RefreshInterval            clock.Duration
	HHold, LHold, NHold, IHold clock.Duration

	// Accept restricts which peer-advertised addresses this interface
	// will bind links to; nil accepts everything.
	Accept func(addr.Address) bool

	addresses map[addr.Address]*ifaceAddress
	links     []*Link

	linkAddrIndex       map[addr.Address]*Link
	linkOriginatorIndex map[addr.Address]*Link

	FloodIPv4 bool
	FloodIPv6 bool
}

// Addresses returns the interface's currently active (non-removed) local
// addresses.
func (i *Interface) Addresses() []addr.Address {
	out := make([]addr.Address, 0, len(i.addresses))
	for a, e := range i.addresses {
		if !e.Removed {
			out = append(out, a)
		}
	}
	return out
}

// Links returns the interface's current links.
func (i *Interface) Links() []*Link { return i.links }

// IsLocalAddress reports whether a belongs to this interface, whether or
// not it has since been removed (the data model: removed addresses are kept
// around under their own validity timer).
func (i *Interface) IsLocalAddress(a addr.Address) bool {
	_, ok := i.addresses[a]
	return ok
}
