// Package rib implements RFC 7181 §17's routing set calculation: the
// Dijkstra engine that recomputes all shortest paths per domain
// whenever the topology changes, and the reconciler that diffs the
// result against the kernel's routing table over an asynchronous
// single-writer channel.
package rib

import (
	"fmt"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/kernelroute"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
	"github.com/benpicco/olsrv2d/internal/olsrv2"
)

// Key identifies one routing entry: a domain and a destination prefix.
type Key struct {
	Domain uint8
	Dest   addr.Address
}

// Entry is one routing entry: the best known route for one
// (domain, destination), plus a snapshot of the previously successful
// kernel install so Reconcile can diff cheaply.
type Entry struct {
	Key

	Set       bool // desired: should be in the routing table
	FirstHop  *nhdp.Neighbor
	Gateway   addr.Address
	IfIndex   int
	Cost      metric.Cost
	Distance  uint8
	SingleHop bool

	// InKernel is true once the kernel has acknowledged this entry's
	// current (Set, IfIndex, Gateway) as installed.
	InKernel bool
	// inProcessing is true while a Set/Del round trip for this entry is
	// outstanding; a later Reconcile may cancel and replace it.
	inProcessing bool
	req          *kernelroute.Request

	oldSet      bool
	oldIfIndex  int
	oldGateway  addr.Address
	oldDistance uint8
}

// RIB owns the per-(domain,dest) routing table and drives the kernel
// channel. It is not safe for concurrent use: like the rest of the
// daemon it is driven from the single-threaded event loop.
type RIB struct {
	nh    *nhdp.Database
	tc    *olsrv2.Database
	kern  kernelroute.Channel
	wheel *clock.Wheel
	clk   clock.Clock

	Domains []uint8

	entries map[Key]*Entry

	minInterval clock.Duration
	lastRun     clock.Time
	haveRun     bool
	pending     bool
	rateClass   *clock.Class

	nextReqID int

	// Log, when set, receives one line per scheduled kernel action; tests
	// leave it nil.
	Log func(format string, args ...interface{})

	// InstanceID, when set, prefixes every kernel request ID so a
	// crash-restarted daemon's requests never collide with a netlink
	// dump reply still in flight from the previous process. Tests leave
	// it empty.
	InstanceID string
}

// New creates a RIB reconciler for the given domains, backed by kern for
// kernel route install/remove and minInterval as the rate limit on
// recomputation (throttled to at most one run per ~250ms).
func New(nh *nhdp.Database, tc *olsrv2.Database, kern kernelroute.Channel, wheel *clock.Wheel, clk clock.Clock, domains []uint8, minInterval clock.Duration) *RIB {
	r := &RIB{
		nh: nh, tc: tc, kern: kern, wheel: wheel, clk: clk,
		Domains: domains, entries: map[Key]*Entry{}, minInterval: minInterval,
	}
	r.rateClass = clock.NewClass("rib-recompute", func(interface{}) { r.runNow() })
	return r
}

// Schedule requests a recomputation. If the minimum interval since the
// last run has already elapsed, it runs immediately; otherwise it is
// deferred to fire exactly minInterval after the last run. Concurrent
// triggers collapse into a single pending flag. force bypasses the
// limiter entirely.
func (r *RIB) Schedule(force bool) {
	if force {
		r.runNow()
		return
	}
	if !r.haveRun {
		r.runNow()
		return
	}
	elapsed := r.clk.Now().Sub(r.lastRun)
	if elapsed >= r.minInterval {
		r.runNow()
		return
	}
	if r.pending {
		return
	}
	r.pending = true
	r.wheel.NewOneShot(r.rateClass, nil, r.minInterval-elapsed, 0)
}

func (r *RIB) runNow() {
	r.pending = false
	r.lastRun = r.clk.Now()
	r.haveRun = true
	r.Recompute()
}

// Recompute runs the full shortest-path-then-reconcile pass for every
// configured domain and issues the resulting kernel diff. It never
// yields mid-computation: Dijkstra runs atomically with respect to all
// other protocol work.
func (r *RIB) Recompute() {
	for _, domain := range r.Domains {
		computed := dijkstra(domain, r.nh, r.tc, r.originator())
		perHopOverride(domain, r.nh, computed)
		r.reconcileDomain(domain, computed)
	}
}

func (r *RIB) originator() addr.Address {
	if r.tc.HasOriginator {
		return r.tc.Originator
	}
	return addr.Address{}
}

// reconcileDomain snapshots every existing entry as unset, merges in the
// newly computed result, then diffs against the snapshot, ordering
// installs single-hop-first and removals multi-hop-first.
func (r *RIB) reconcileDomain(domain uint8, computed map[addr.Address]*computed) {
	// Snapshot every existing entry in this domain, mark unset.
	seen := map[Key]bool{}
	for key, e := range r.entries {
		if key.Domain != domain {
			continue
		}
		e.oldSet = e.Set
		e.oldIfIndex = e.IfIndex
		e.oldGateway = e.Gateway
		e.oldDistance = e.Distance
		e.Set = false
		seen[key] = true
	}

	// Merge in this run's result.
	for dest, c := range computed {
		key := Key{Domain: domain, Dest: dest}
		e, ok := r.entries[key]
		if !ok {
			e = &Entry{Key: key}
			r.entries[key] = e
		}
		if !seen[key] {
			e.oldSet = e.Set
			e.oldIfIndex = e.IfIndex
			e.oldGateway = e.Gateway
			e.oldDistance = e.Distance
		}
		gw, ifIndex, ok := resolveGateway(c.firstHop, dest.Family())
		if !ok {
			continue
		}
		e.Set = true
		e.FirstHop = c.firstHop
		e.Gateway = gw
		e.IfIndex = ifIndex
		e.Cost = c.cost
		e.Distance = c.distance
		e.SingleHop = c.singleHop
	}

	var installs, removals []*Entry
	for key, e := range r.entries {
		if key.Domain != domain {
			continue
		}
		changed := e.Set != e.oldSet || e.IfIndex != e.oldIfIndex || e.Gateway != e.oldGateway || e.Distance != e.oldDistance
		if !changed {
			continue
		}
		if e.Set {
			installs = append(installs, e)
		} else {
			removals = append(removals, e)
		}
	}

	orderBySingleHop(installs, true)  // installs: single-hop first
	orderBySingleHop(removals, false) // removals: multi-hop first

	for _, e := range removals {
		r.issue(e, false)
	}
	for _, e := range installs {
		r.issue(e, true)
	}
}

// orderBySingleHop stable-sorts in place by SingleHop, ascending when
// singleFirst (installs) or descending when !singleFirst (removals).
func orderBySingleHop(entries []*Entry, singleFirst bool) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0; j-- {
			a, b := entries[j-1], entries[j]
			swap := false
			if singleFirst {
				swap = !a.SingleHop && b.SingleHop
			} else {
				swap = a.SingleHop && !b.SingleHop
			}
			if !swap {
				break
			}
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func resolveGateway(n *nhdp.Neighbor, family addr.Family) (gateway addr.Address, ifIndex int, ok bool) {
	if n == nil {
		return addr.Address{}, 0, false
	}
	for _, l := range n.Links {
		if l.Status() != nhdp.StatusSymmetric {
			continue
		}
		for _, a := range l.Addresses {
			if a.Family() == family {
				return a, l.Iface.Index, true
			}
		}
	}
	return addr.Address{}, 0, false
}

// issue sends one kernel Set request for e, superseding any request
// already in flight for the same entry: the earlier request is not
// withdrawn from the kernel, but its Done callback is replaced with a
// no-op so only the newest request updates e.
func (r *RIB) issue(e *Entry, set bool) {
	if e.inProcessing && e.req != nil {
		e.req.Done = func(*kernelroute.Request, error) {} // silence the superseded callback
	}

	r.nextReqID++
	id := fmt.Sprintf("rib-%d", r.nextReqID)
	if r.InstanceID != "" {
		id = fmt.Sprintf("rib-%s-%d", r.InstanceID, r.nextReqID)
	}
	req := &kernelroute.Request{
		ID:       id,
		Family:   e.Dest.Family(),
		Dst:      e.Dest,
		Gateway:  e.Gateway,
		IfIndex:  e.IfIndex,
		Metric:   int(e.Cost),
		Table:    kernelroute.TableMain,
		Protocol: kernelroute.ProtoOLSRv2,
		Scope:    kernelroute.ScopeUnivr,
		Type:     kernelroute.TypeUnicast,
	}
	req.Done = func(_ *kernelroute.Request, err error) { r.onKernelDone(e, set, err) }
	e.inProcessing = true
	e.req = req

	if r.Log != nil {
		action := "remove"
		if set {
			action = "install"
		}
		r.Log("rib: %s %s via %s if=%d cost=%d", action, e.Dest, e.Gateway, e.IfIndex, e.Cost)
	}

	if err := r.kern.Set(req, set); err != nil {
		r.onKernelDone(e, set, err)
	}
}

// KernelError reports a non-cancel route install/remove failure: the
// attempted flag transition is reverted and the next Dijkstra run
// retries.
type KernelError struct {
	Dest addr.Address
	Set  bool
	Err  error
}

func (e *KernelError) Error() string {
	action := "remove"
	if e.Set {
		action = "install"
	}
	return fmt.Sprintf("rib: kernel %s of %s rejected: %v", action, e.Dest, e.Err)
}

func (e *KernelError) Unwrap() error { return e.Err }

// onKernelDone is a Request.Done callback: cancellation is swallowed,
// success marks the entry authoritative (or removes it outright for a
// deletion), and any other error reverts the attempted transition and
// waits for the next Dijkstra run to retry.
func (r *RIB) onKernelDone(e *Entry, wasSet bool, err error) {
	e.inProcessing = false
	e.req = nil

	if err == kernelroute.ErrCancelled {
		return
	}
	if err != nil {
		kerr := &KernelError{Dest: e.Dest, Set: wasSet, Err: err}
		if r.Log != nil {
			r.Log("rib: %v", kerr)
		}
		if wasSet {
			e.Set = false
		} else {
			e.Set = true
		}
		return
	}

	if !wasSet {
		delete(r.entries, e.Key)
		return
	}
	e.InKernel = true
}
