package olsrv2

import (
	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
)

// Database is this node's RFC 7181 topology-control graph: every known
// originator's Node, the Edge pairs between them, and the endpoints
// (attached networks) they advertise.
type Database struct {
	Wheel *clock.Wheel
	Clk   clock.Clock

	Originator    addr.Address
	HasOriginator bool

	Nodes map[addr.Address]*Node

	// LANs are the networks this node itself injects into its own TC
	// messages (the configuration surface's LAN lines).
	LANs []LAN

	// formerOriginators holds this node's own previously-used
	// originator addresses, each valid until O-HOLD after a rotation,
	// per the data model ("each node caches the O-HOLD-bounded set of
	// its own former originators ... incoming TCs from former-
	// originators are ignored"). A peer node's own originator changes
	// are not tracked: TC's wire format carries no signal that would
	// let this database learn of one.
	formerOriginators map[addr.Address]clock.Time

	ownAdvertised map[addr.Address]bool
	ownANSN       uint16
	haveOwnANSN   bool

	nodeVTimeClass    *clock.Class
	formerOrigClass   *clock.Class
}

// NewDatabase creates an empty TC database driven by wheel/clk.
func NewDatabase(wheel *clock.Wheel, clk clock.Clock) *Database {
	db := &Database{
		Wheel:             wheel,
		Clk:               clk,
		Nodes:             map[addr.Address]*Node{},
		formerOriginators: map[addr.Address]clock.Time{},
		ownAdvertised:     map[addr.Address]bool{},
	}
	db.nodeVTimeClass = clock.NewClass("olsrv2-node-vtime", db.onNodeVTimeExpired)
	db.formerOrigClass = clock.NewClass("olsrv2-former-originator", db.onFormerOriginatorExpired)
	return db
}

// SetOriginator installs the node's current originator address. If this
// changes an already-set originator, the old one is remembered as a
// former originator for oHold so a stray TC still using it is ignored
// rather than silently reviving the old identity.
func (db *Database) SetOriginator(a addr.Address, oHold clock.Duration) {
	if db.HasOriginator && db.Originator != a {
		old := db.Originator
		db.formerOriginators[old] = db.Clk.Now()
		if oHold > 0 {
			db.Wheel.NewOneShot(db.formerOrigClass, old, oHold, 0)
		}
	}
	db.Originator = a
	db.HasOriginator = true
}

func (db *Database) onFormerOriginatorExpired(ctx interface{}) {
	delete(db.formerOriginators, ctx.(addr.Address))
}

// IsFormerOriginator reports whether a is one of this node's own
// recently-retired originator addresses.
func (db *Database) IsFormerOriginator(a addr.Address) bool {
	_, ok := db.formerOriginators[a]
	return ok
}

// nodeFor returns the Node for a, creating an unadvertised placeholder if
// none exists yet (the data model: "the destination vertex is created
// with ANSN=0 and no validity timer").
func (db *Database) nodeFor(a addr.Address) *Node {
	if n, ok := db.Nodes[a]; ok {
		return n
	}
	n := &Node{Originator: a}
	db.Nodes[a] = n
	return n
}

// NodeByAddress looks up an existing node without creating a placeholder.
func (db *Database) NodeByAddress(a addr.Address) (*Node, bool) {
	n, ok := db.Nodes[a]
	return n, ok
}

// ApplyTC applies one accepted TC's content to the database: the ANSN
// freshness gate (New/Newest vs Older/Duplicate) is the caller's job
// (the reader's dedicated ANSN DuplicateSet); by the time ApplyTC runs,
// the caller has already decided this TC is newer than anything on
// record for orig.
func (db *Database) ApplyTC(orig addr.Address, ansn uint16, vtime clock.Duration, neighbors []NeighborAdvert, endpoints []EndpointAdvert) {
	node := db.nodeFor(orig)
	wasAdvertised := node.Advertised
	node.Advertised = true
	node.ANSN = ansn

	if node.VTimer != nil {
		node.VTimer.Stop()
	}
	if vtime > 0 {
		node.VTimer = db.Wheel.NewOneShot(db.nodeVTimeClass, node, vtime, 0)
	}

	previousReal := map[*Node]*Edge{}
	for _, e := range node.Edges {
		if e.Src == node && !e.Virtual {
			previousReal[e.Dst] = e
		}
	}

	for _, na := range neighbors {
		dst := db.nodeFor(na.Addr)
		e := db.ensureEdge(node, dst)
		e.Virtual = false
		for d := 0; d < nhdp.MaxDomains; d++ {
			if na.HasCost[d] {
				e.Cost[d] = na.Cost[d]
			}
		}
		delete(previousReal, dst)
	}
	for _, stale := range previousReal {
		db.retireEdge(stale)
	}

	node.Endpoints = node.Endpoints[:0]
	for _, ea := range endpoints {
		node.Endpoints = append(node.Endpoints, &Endpoint{
			Node: node, Prefix: ea.Prefix, Domain: ea.Domain, Dist: ea.Dist, Cost: ea.Cost,
		})
	}

	_ = wasAdvertised
}

func (db *Database) onNodeVTimeExpired(ctx interface{}) {
	node := ctx.(*Node)
	for _, e := range append([]*Edge(nil), node.Edges...) {
		if e.Src == node && !e.Virtual {
			db.retireEdge(e)
		}
	}
	node.Advertised = false
	node.Endpoints = nil
	db.maybeRemoveNode(node)
}

// ensureEdge returns the Src->Dst edge, creating the reciprocal virtual
// pair if neither direction exists yet. The returned edge and its
// Inverse always satisfy Inverse.Inverse == the edge itself.
func (db *Database) ensureEdge(src, dst *Node) *Edge {
	for _, e := range src.Edges {
		if e.Src == src && e.Dst == dst {
			return e
		}
	}
	fwd := &Edge{Src: src, Dst: dst, Virtual: true}
	rev := &Edge{Src: dst, Dst: src, Virtual: true}
	for d := 0; d < nhdp.MaxDomains; d++ {
		fwd.Cost[d] = metric.Infinite
		rev.Cost[d] = metric.Infinite
	}
	fwd.Inverse = rev
	rev.Inverse = fwd
	src.Edges = append(src.Edges, fwd)
	dst.Edges = append(dst.Edges, rev)
	return fwd
}

// retireEdge marks e no longer really advertised. If its inverse is also
// virtual, the whole pair is dropped and both endpoint nodes are
// garbage-collected if nothing else references them (the data model:
// "removing the real half demotes the pair to purely virtual ... or
// garbage-collected when the real edge is removed").
func (db *Database) retireEdge(e *Edge) {
	e.Virtual = true
	for d := 0; d < nhdp.MaxDomains; d++ {
		e.Cost[d] = metric.Infinite
	}
	if e.Inverse.Virtual {
		e.Src.Edges = removeEdge(e.Src.Edges, e)
		e.Dst.Edges = removeEdge(e.Dst.Edges, e.Inverse)
		db.maybeRemoveNode(e.Src)
		db.maybeRemoveNode(e.Dst)
	}
}

func removeEdge(edges []*Edge, target *Edge) []*Edge {
	out := edges[:0]
	for _, e := range edges {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// maybeRemoveNode drops n once it carries no real advertisement of its
// own and nothing references it as the destination of a real edge.
func (db *Database) maybeRemoveNode(n *Node) {
	if n.Advertised {
		return
	}
	for _, e := range n.Edges {
		// n.Edges holds n's outgoing halves; e.Inverse is the edge into n.
		if !e.Inverse.Virtual {
			return
		}
	}
	delete(db.Nodes, n.Originator)
}

// AdvertiseNeighborSet recomputes this node's own ANSN against the
// neighbor address set it is about to advertise: the ANSN only
// increments when the set actually changed (RFC 7181 §5.3: "ANSN is
// incremented whenever the neighbor set changes"), never on every TC
// emission.
func (db *Database) AdvertiseNeighborSet(addrs []addr.Address) uint16 {
	next := make(map[addr.Address]bool, len(addrs))
	for _, a := range addrs {
		next[a] = true
	}
	changed := !db.haveOwnANSN || len(next) != len(db.ownAdvertised)
	if !changed {
		for a := range next {
			if !db.ownAdvertised[a] {
				changed = true
				break
			}
		}
	}
	if changed {
		if db.haveOwnANSN {
			db.ownANSN++
		}
		db.ownAdvertised = next
		db.haveOwnANSN = true
	}
	return db.ownANSN
}
