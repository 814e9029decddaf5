// Package olsrv2 implements the RFC 7181 topology-control (TC) layer:
// the link-state database built from flooded TC messages, the reader
// that ingests them with the controlled-flooding forwarding selector,
// and the writer that composes this node's own TC.
package olsrv2

import (
	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
)

// Node is one router's advertised topology vertex, keyed by its
// originator address (the data model's "TC node").
type Node struct {
	Originator addr.Address

	// Advertised is true once this node's own TC has been accepted at
	// least once; false for a placeholder that exists only because
	// some other node's TC named it as a neighbor, pending its own TC
	// arriving (the data model: "it will be populated when that
	// originator's own TC arrives").
	Advertised bool

	ANSN   uint16
	VTimer *clock.Timer

	Edges     []*Edge
	Endpoints []*Endpoint
}

// Edge is one directed adjacency Src -> Dst with a per-domain cost.
// Every edge has a non-nil Inverse: the Dst -> Src half of the same
// logical link, created as a virtual placeholder the moment either
// direction is learned, so the reciprocity invariant E.Inverse.Inverse
// == E always holds.
type Edge struct {
	Src, Dst *Node
	Cost     [nhdp.MaxDomains]metric.Cost

	// Virtual is true when Src has not (or no longer) advertised Dst
	// as a neighbor; a virtual edge exists only to anchor Inverse and
	// is never used for path computation (the data model).
	Virtual bool
	Inverse *Edge
}

// Endpoint is a prefix attached to a TC node: a locally-attached
// network the node advertises with a GATEWAY TLV (a LAN).
type Endpoint struct {
	Node   *Node
	Prefix addr.Address
	Domain uint8
	Dist   uint8
	Cost   metric.Cost
}

// LAN is one network this node injects into its own TC messages (the
// configuration surface's `<prefix> [metric=N] [domain=N] [dist=N]`
// line), resolved to RFC 7181 semantics: domain=0, dist=2, metric=0
// when the line omits them.
type LAN struct {
	Prefix addr.Address
	Domain uint8
	Dist   uint8
	Metric metric.Cost
}

// DefaultLANDomain/DefaultLANDist/DefaultLANMetric are the Open
// Question's resolved defaults for a LAN config line that omits them.
const (
	DefaultLANDomain uint8       = 0
	DefaultLANDist   uint8       = 2
	DefaultLANMetric metric.Cost = 0
)

// NeighborAdvert is one NBR_ADDR_TYPE-tagged address parsed out of an
// incoming TC: a neighbor of the advertising originator, with whatever
// per-domain LINK_METRIC values accompanied it.
type NeighborAdvert struct {
	Addr    addr.Address
	Cost    [nhdp.MaxDomains]metric.Cost
	HasCost [nhdp.MaxDomains]bool
}

// EndpointAdvert is one GATEWAY-tagged address parsed out of an incoming
// TC: an attached network the originator can route to.
type EndpointAdvert struct {
	Prefix addr.Address
	Domain uint8
	Dist   uint8
	Cost   metric.Cost
}
