package nhdp

import (
	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/hysteresis"
	"github.com/benpicco/olsrv2d/internal/metric"
)

// Database owns every NHDP interface, link, neighbor, and 2-hop entry
// for this node, plus the timer classes that drive their hold times
// (the data model's ownership summary).
type Database struct {
	Wheel *clock.Wheel
	Clk   clock.Clock

	Hysteresis hysteresis.Plugin
	Metrics    [MaxDomains]metric.Plugin

	// Willingness is this node's own MPR willingness, advertised in every
	// HELLO (RFC 7181 §18.3).
	Willingness uint8

	// MaxNeighbors bounds how many distinct neighbors this node will
	// track; 0 means unlimited. A HELLO that would create a neighbor
	// beyond this bound is dropped whole rather than partially applied.
	MaxNeighbors int

	Interfaces map[int]*Interface
	Neighbors  []*Neighbor

	neighborAddrIndex map[addr.Address]*Neighbor

	vtimeClass     *clock.Class
	linkTimerClass *clock.Class
	ifaceAddrClass *clock.Class
	neighAddrClass *clock.Class
	twoHopClass    *clock.Class
	helloLostClass *clock.Class
}

// NewDatabase creates an empty NHDP database driven by wheel/clk, using
// hyst for link-status hysteresis and metrics[d] for domain d's outbound
// cost plug-in (a nil entry disables that domain).
func NewDatabase(wheel *clock.Wheel, clk clock.Clock, hyst hysteresis.Plugin, metrics [MaxDomains]metric.Plugin) *Database {
	db := &Database{
		Wheel:             wheel,
		Clk:               clk,
		Hysteresis:        hyst,
		Metrics:           metrics,
		Willingness:       WillingnessDefault,
		Interfaces:        map[int]*Interface{},
		neighborAddrIndex: map[addr.Address]*Neighbor{},
	}
	db.vtimeClass = clock.NewClass("nhdp-link-vtime", db.onLinkVTimeExpired)
	db.linkTimerClass = clock.NewClass("nhdp-link-timer", db.onLinkTimerFired)
	db.ifaceAddrClass = clock.NewClass("nhdp-iface-addr", db.onIfaceAddrExpired)
	db.neighAddrClass = clock.NewClass("nhdp-neigh-addr", db.onNeighAddrExpired)
	db.twoHopClass = clock.NewClass("nhdp-two-hop", db.onTwoHopExpired)
	db.helloLostClass = clock.NewClass("nhdp-hello-lost", db.onHelloLostTimerFired)
	return db
}

// AddInterface registers a new NHDP interface.
func (db *Database) AddInterface(index int, name string, refresh, hHold, lHold, nHold, iHold clock.Duration) *Interface {
	ifc := &Interface{
		db:                  db,
		Index:               index,
		Name:                name,
		RefreshInterval:     refresh,
		HHold:               hHold,
		LHold:               lHold,
		NHold:               nHold,
		IHold:               iHold,
		addresses:           map[addr.Address]*ifaceAddress{},
		linkAddrIndex:       map[addr.Address]*Link{},
		linkOriginatorIndex: map[addr.Address]*Link{},
	}
	db.Interfaces[index] = ifc
	return ifc
}

// AddLocalAddress adds (or un-removes) a on ifc.
func (i *Interface) AddLocalAddress(a addr.Address) {
	if e, ok := i.addresses[a]; ok {
		if e.VTimer != nil {
			e.VTimer.Stop()
			e.VTimer = nil
		}
		e.Removed = false
		return
	}
	i.addresses[a] = &ifaceAddress{Address: a}
}

// RemoveLocalAddress retires a local address, keeping it around (marked
// removed) under I_HOLD so recently-withdrawn addresses are still
// recognized for a grace period, unless I_HOLD is 0 (the invariants below:
// "Hold time 0 on an address removes it immediately").
func (i *Interface) RemoveLocalAddress(a addr.Address) {
	e, ok := i.addresses[a]
	if !ok {
		return
	}
	if i.IHold <= 0 {
		delete(i.addresses, a)
		return
	}
	e.Removed = true
	if e.VTimer != nil {
		e.VTimer.Stop()
	}
	e.VTimer = i.db.Wheel.NewOneShot(i.db.ifaceAddrClass, ifaceAddrCtx{i, e}, i.IHold, 0)
}

type ifaceAddrCtx struct {
	iface *Interface
	entry *ifaceAddress
}

func (db *Database) onIfaceAddrExpired(ctx interface{}) {
	c := ctx.(ifaceAddrCtx)
	delete(c.iface.addresses, c.entry.Address)
}

// NewNeighbor creates an empty neighbor not yet bound to any link.
func (db *Database) NewNeighbor() *Neighbor {
	n := &Neighbor{db: db, Addresses: map[addr.Address]*NeighborAddress{}, Willingness: WillingnessDefault}
	db.Neighbors = append(db.Neighbors, n)
	return n
}

// NeighborByAddress looks up the neighbor that currently owns a, across
// every interface.
func (db *Database) NeighborByAddress(a addr.Address) (*Neighbor, bool) {
	n, ok := db.neighborAddrIndex[a]
	return n, ok
}

// LinkByAddress looks up the link on ifc whose remote addresses include
// a.
func (i *Interface) LinkByAddress(a addr.Address) (*Link, bool) {
	l, ok := i.linkAddrIndex[a]
	return l, ok
}

// CreateLink creates a new link from ifc to n.
func (db *Database) CreateLink(ifc *Interface, n *Neighbor) *Link {
	l := &Link{db: db, Iface: ifc, Neighbor: n, TwoHop: map[addr.Address]*TwoHopEntry{}, lastStatus: StatusLost}
	if db.Hysteresis != nil {
		l.HystState = db.Hysteresis.NewLinkState()
	}
	for d := 0; d < MaxDomains; d++ {
		if db.Metrics[d] != nil {
			l.MetricState[d] = db.Metrics[d].NewLinkState()
			l.Metric[d] = MetricPair{In: db.Metrics[d].StartCost(), Out: db.Metrics[d].StartCost()}
		}
	}
	ifc.links = append(ifc.links, l)
	n.Links = append(n.Links, l)
	return l
}

// RemoveLink tears down l: stops its timers, clears its 2-hop entries,
// unlinks it from its interface/neighbor, and folds the symmetric-count
// bookkeeping of the data model as if the link had just gone LOST.
func (db *Database) RemoveLink(l *Link) {
	wasSymmetric := l.lastStatus == StatusSymmetric
	if l.VTimer != nil {
		l.VTimer.Stop()
	}
	if l.HeardTimer != nil {
		l.HeardTimer.Stop()
	}
	if l.SymTimer != nil {
		l.SymTimer.Stop()
	}
	if l.HelloLostTimer != nil {
		l.HelloLostTimer.Stop()
	}
	db.clearTwoHop(l)

	for _, a := range l.Addresses {
		if cur, ok := l.Iface.linkAddrIndex[a]; ok && cur == l {
			delete(l.Iface.linkAddrIndex, a)
		}
	}
	l.Iface.links = removeLink(l.Iface.links, l)
	l.Neighbor.Links = removeLink(l.Neighbor.Links, l)

	if wasSymmetric {
		db.onNeighborLinkLeftSymmetric(l.Neighbor)
	}
	db.maybeRemoveNeighbor(l.Neighbor)
}

func removeLink(links []*Link, target *Link) []*Link {
	out := links[:0]
	for _, l := range links {
		if l != target {
			out = append(out, l)
		}
	}
	return out
}

func (db *Database) maybeRemoveNeighbor(n *Neighbor) {
	if len(n.Links) > 0 || len(n.Addresses) > 0 {
		return
	}
	for idx, cand := range db.Neighbors {
		if cand == n {
			db.Neighbors = append(db.Neighbors[:idx], db.Neighbors[idx+1:]...)
			return
		}
	}
}

// AddLinkAddress binds remote address a to link l, indexing it on the
// owning interface and folding it into the neighbor's address set
// (the data model: a link address sits in three indices but is owned by the
// link).
func (db *Database) AddLinkAddress(l *Link, a addr.Address) {
	if l.HasAddress(a) {
		return
	}
	l.Addresses = append(l.Addresses, a)
	l.Iface.linkAddrIndex[a] = l
	db.AddNeighborAddress(l.Neighbor, a)
}

// RemoveLinkAddress unbinds a from l without touching the neighbor's
// address set (that address may still be reachable via a sibling link).
func (db *Database) RemoveLinkAddress(l *Link, a addr.Address) {
	out := l.Addresses[:0]
	for _, la := range l.Addresses {
		if la != a {
			out = append(out, la)
		}
	}
	l.Addresses = out
	if cur, ok := l.Iface.linkAddrIndex[a]; ok && cur == l {
		delete(l.Iface.linkAddrIndex, a)
	}
}

// AddNeighborAddress adds a to n's address set, or un-marks it lost and
// cancels its hold timer if it is already present.
func (db *Database) AddNeighborAddress(n *Neighbor, a addr.Address) *NeighborAddress {
	if na, ok := n.Addresses[a]; ok {
		na.Lost = false
		if na.VTimer != nil {
			na.VTimer.Stop()
			na.VTimer = nil
		}
		db.neighborAddrIndex[a] = n
		return na
	}
	na := &NeighborAddress{Address: a}
	n.Addresses[a] = na
	db.neighborAddrIndex[a] = n
	return na
}

type neighAddrCtx struct {
	neighbor *Neighbor
	entry    *NeighborAddress
}

func (db *Database) onNeighAddrExpired(ctx interface{}) {
	c := ctx.(neighAddrCtx)
	delete(c.neighbor.Addresses, c.entry.Address)
	if db.neighborAddrIndex[c.entry.Address] == c.neighbor {
		delete(db.neighborAddrIndex, c.entry.Address)
	}
	db.maybeRemoveNeighbor(c.neighbor)
}

// onNeighborLinkLeftSymmetric implements the data model: "when [symmetric]
// drops to 0, all 2-hop entries behind those links are removed and
// addresses are marked LOST with N_HOLD validity." Two-hop clearing for
// the link that just left SYMMETRIC already happened in the caller;
// this only handles the neighbor-wide consequence of the count hitting 0.
func (db *Database) onNeighborLinkLeftSymmetric(n *Neighbor) {
	if n.Symmetric > 0 {
		n.Symmetric--
	}
	if n.Symmetric != 0 {
		return
	}
	for _, l := range n.Links {
		db.clearTwoHop(l)
	}
	for _, na := range n.Addresses {
		na.Lost = true
		if na.VTimer != nil {
			na.VTimer.Stop()
		}
		if n.db.effectiveNHold(n) <= 0 {
			delete(n.Addresses, na.Address)
			continue
		}
		na.VTimer = db.Wheel.NewOneShot(db.neighAddrClass, neighAddrCtx{n, na}, n.db.effectiveNHold(n), 0)
	}
}

// effectiveNHold returns the N_HOLD of (any of) the neighbor's
// interfaces; neighbors with no remaining links fall back to the first
// configured interface's hold time.
func (db *Database) effectiveNHold(n *Neighbor) clock.Duration {
	if len(n.Links) > 0 {
		return n.Links[0].Iface.NHold
	}
	for _, ifc := range db.Interfaces {
		return ifc.NHold
	}
	return 0
}

func (db *Database) onNeighborLinkBecameSymmetric(n *Neighbor) {
	n.Symmetric++
	if n.Symmetric != 1 {
		return
	}
	for _, na := range n.Addresses {
		na.Lost = false
		if na.VTimer != nil {
			na.VTimer.Stop()
			na.VTimer = nil
		}
	}
}

// UpdateLinkStatus re-evaluates l's status and folds any SYMMETRIC
// transition into the owning neighbor's bookkeeping. Every code path
// that can change hysteresis flags or timer state must call this.
func (db *Database) UpdateLinkStatus(l *Link) {
	newStatus := l.Status()
	old := l.lastStatus
	if newStatus == old {
		return
	}
	if old == StatusSymmetric && newStatus != StatusSymmetric {
		db.clearTwoHop(l)
		db.onNeighborLinkLeftSymmetric(l.Neighbor)
	} else if old != StatusSymmetric && newStatus == StatusSymmetric {
		db.onNeighborLinkBecameSymmetric(l.Neighbor)
	}
	l.lastStatus = newStatus
}

func (db *Database) onLinkTimerFired(ctx interface{}) {
	l := ctx.(*Link)
	db.UpdateLinkStatus(l)
}

func (db *Database) onLinkVTimeExpired(ctx interface{}) {
	l := ctx.(*Link)
	db.RemoveLink(l)
}

// ArmHeardTimer (re)arms l's heard-time (demote from heard to lost).
func (db *Database) ArmHeardTimer(l *Link, d clock.Duration) {
	if l.HeardTimer != nil {
		l.HeardTimer.Stop()
	}
	l.HeardTimer = db.Wheel.NewOneShot(db.linkTimerClass, l, d, 0)
}

// ArmSymTimer (re)arms l's sym-time (demote from symmetric to heard).
func (db *Database) ArmSymTimer(l *Link, d clock.Duration) {
	if l.SymTimer != nil {
		l.SymTimer.Stop()
	}
	l.SymTimer = db.Wheel.NewOneShot(db.linkTimerClass, l, d, 0)
}

// ArmVTimer (re)arms l's remove timer.
func (db *Database) ArmVTimer(l *Link, d clock.Duration) {
	if l.VTimer != nil {
		l.VTimer.Stop()
	}
	l.VTimer = db.Wheel.NewOneShot(db.vtimeClass, l, d, 0)
}

type twoHopCtx struct {
	link  *Link
	entry *TwoHopEntry
}

func (db *Database) onTwoHopExpired(ctx interface{}) {
	c := ctx.(twoHopCtx)
	if cur, ok := c.link.TwoHop[c.entry.Address]; ok && cur == c.entry {
		delete(c.link.TwoHop, c.entry.Address)
	}
}

// AddTwoHop creates or refreshes a 2-hop entry for a, reachable through
// l, with validity vtime.
func (db *Database) AddTwoHop(l *Link, a addr.Address, vtime clock.Duration) *TwoHopEntry {
	if e, ok := l.TwoHop[a]; ok {
		if e.VTimer != nil {
			e.VTimer.Stop()
		}
		if vtime <= 0 {
			delete(l.TwoHop, a)
			return nil
		}
		e.VTimer = db.Wheel.NewOneShot(db.twoHopClass, twoHopCtx{l, e}, vtime, 0)
		return e
	}
	if vtime <= 0 {
		return nil
	}
	e := &TwoHopEntry{Address: a}
	e.VTimer = db.Wheel.NewOneShot(db.twoHopClass, twoHopCtx{l, e}, vtime, 0)
	l.TwoHop[a] = e
	return e
}

func (db *Database) clearTwoHop(l *Link) {
	for _, e := range l.TwoHop {
		if e.VTimer != nil {
			e.VTimer.Stop()
		}
	}
	l.TwoHop = map[addr.Address]*TwoHopEntry{}
}

// ArmHelloLostTimer (re)arms l's hello-lost timer: if no HELLO refreshes
// it within d, the configured metric and hysteresis plug-ins are told the
// link went quiet so they can elevate cost / flag loss without waiting for
// vtime to expire outright.
func (db *Database) ArmHelloLostTimer(l *Link, d clock.Duration) {
	if l.HelloLostTimer != nil {
		l.HelloLostTimer.Stop()
	}
	l.HelloLostTimer = db.Wheel.NewOneShot(db.helloLostClass, l, d, 0)
}

func (db *Database) onHelloLostTimerFired(ctx interface{}) {
	l := ctx.(*Link)
	for d := 0; d < MaxDomains; d++ {
		if db.Metrics[d] == nil {
			continue
		}
		l.Metric[d].In = db.Metrics[d].OnHelloLost(l.MetricState[d])
	}
	if db.Hysteresis != nil {
		l.HystPending, l.HystLost = db.Hysteresis.OnHelloLost(l.HystState)
	}
	db.UpdateLinkStatus(l)
}

// SampleMetrics runs every configured metric plug-in's periodic sampler
// over every symmetric link, refreshing the incoming cost this node
// reports to its peers. It runs only when called; nothing in the daemon
// calls it.
func (db *Database) SampleMetrics() {
	for _, ifc := range db.Interfaces {
		for _, l := range ifc.links {
			if l.Status() != StatusSymmetric {
				continue
			}
			for d := 0; d < MaxDomains; d++ {
				if db.Metrics[d] == nil {
					continue
				}
				l.Metric[d].In = db.Metrics[d].Sample(l.MetricState[d])
			}
		}
	}
}

// RecomputeNeighborMetric sets n's per-domain metric to the minimum over
// n's symmetric links' metric for that domain (RFC 6130: "recompute
// per-domain neighbor metric as the minimum over the neighbor's links").
func (db *Database) RecomputeNeighborMetric(n *Neighbor) {
	for d := 0; d < MaxDomains; d++ {
		var best MetricPair
		set := false
		for _, l := range n.Links {
			if l.Status() != StatusSymmetric {
				continue
			}
			m := l.Metric[d]
			if !set || m.In+m.Out < best.In+best.Out {
				best = m
				set = true
			}
		}
		n.Metric[d] = best
	}
}
