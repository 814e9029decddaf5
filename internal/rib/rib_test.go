package rib

import (
	"net"
	"testing"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/hysteresis"
	"github.com/benpicco/olsrv2d/internal/kernelroute"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
	"github.com/benpicco/olsrv2d/internal/olsrv2"
)

func mustAddr(t *testing.T, s string) addr.Address {
	t.Helper()
	a, err := addr.FromIPPrefix(net.ParseIP(s), 32)
	if err != nil {
		t.Fatalf("FromIPPrefix(%s): %v", s, err)
	}
	return a
}

// fixture wires up a local node A with a minimal NHDP + OLSRv2 database, a
// fake clock, and a Mock kernel channel so Recompute can be driven
// directly without going through the wire codec.
type fixture struct {
	t    *testing.T
	clk  *clock.Fake
	wh   *clock.Wheel
	nh   *nhdp.Database
	tc   *olsrv2.Database
	kern *kernelroute.Mock
	rib  *RIB
	ifc  *nhdp.Interface
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(0)
	wh := clock.NewWheel(clk)
	nh := nhdp.NewDatabase(wh, clk, hysteresis.NewEWMA(), [nhdp.MaxDomains]metric.Plugin{})
	tc := olsrv2.NewDatabase(wh, clk)
	tc.SetOriginator(mustAddr(t, "10.0.0.1"), 0)
	kern := kernelroute.NewMock()
	r := New(nh, tc, kern, wh, clk, []uint8{0}, clock.Duration(250))
	ifc := nh.AddInterface(1, "mesh0", 2000, 6000, 6000, 30000, 6000)
	return &fixture{t: t, clk: clk, wh: wh, nh: nh, tc: tc, kern: kern, rib: r, ifc: ifc}
}

// addSymmetricNeighbor creates a neighbor reachable at peerAddr through a
// symmetric link with outbound domain-0 cost outCost, and registers its
// originator as a TC node so Dijkstra can seed from it.
func (f *fixture) addSymmetricNeighbor(peerAddr string, outCost metric.Cost) *nhdp.Neighbor {
	f.t.Helper()
	a := mustAddr(f.t, peerAddr)
	n := f.nh.NewNeighbor()
	n.HasOriginator = true
	n.Originator = a
	f.nh.AddNeighborAddress(n, a)
	l := f.nh.CreateLink(f.ifc, n)
	f.nh.AddLinkAddress(l, a)
	l.Metric[0].Out = outCost
	f.nh.ArmSymTimer(l, 6000)
	f.nh.UpdateLinkStatus(l)
	f.nh.RecomputeNeighborMetric(n)
	f.tc.ApplyTC(a, 1, 30000, nil, nil)
	return n
}

func (f *fixture) setEdge(from, to string, cost metric.Cost) {
	f.t.Helper()
	fromAddr := mustAddr(f.t, from)
	toAddr := mustAddr(f.t, to)
	var c [nhdp.MaxDomains]metric.Cost
	var has [nhdp.MaxDomains]bool
	c[0], has[0] = cost, true
	node, ok := f.tc.NodeByAddress(fromAddr)
	if !ok {
		f.t.Fatalf("no TC node for %s", from)
	}
	f.tc.ApplyTC(fromAddr, node.ANSN+1, 30000, []olsrv2.NeighborAdvert{{Addr: toAddr, Cost: c, HasCost: has}}, nil)
}

func TestRIB_RouteConvergence_S5(t *testing.T) {
	f := newFixture(t)
	f.addSymmetricNeighbor("10.0.0.2", 10) // A-B cost 10
	f.setEdge("10.0.0.2", "10.0.0.3", 10)  // B-C cost 10

	f.rib.Recompute()

	b := Key{Domain: 0, Dest: mustAddr(t, "10.0.0.2")}
	c := Key{Domain: 0, Dest: mustAddr(t, "10.0.0.3")}

	eb, ok := f.rib.entries[b]
	if !ok || !eb.Set || eb.Cost != 10 || !eb.SingleHop {
		t.Fatalf("entry(B) = %+v, ok=%v, want cost=10 singleHop=true", eb, ok)
	}
	ec, ok := f.rib.entries[c]
	if !ok || !ec.Set || ec.Cost != 20 || ec.SingleHop {
		t.Fatalf("entry(C) = %+v, ok=%v, want cost=20 singleHop=false", ec, ok)
	}
}

func TestRIB_DijkstraWinsOverCostlierDirectLink(t *testing.T) {
	f := newFixture(t)
	f.addSymmetricNeighbor("10.0.0.2", 10) // A-B cost 10
	f.setEdge("10.0.0.2", "10.0.0.3", 10)  // B-C cost 10
	f.addSymmetricNeighbor("10.0.0.3", 25) // A-C direct, cost 25

	f.rib.Recompute()

	c := Key{Domain: 0, Dest: mustAddr(t, "10.0.0.3")}
	ec, ok := f.rib.entries[c]
	if !ok || ec.Cost != 20 {
		t.Fatalf("entry(C) = %+v, ok=%v, want cost=20 (via B, cheaper than the direct 25 link)", ec, ok)
	}
	gw := mustAddr(t, "10.0.0.2")
	if ec.Gateway != gw {
		t.Fatalf("entry(C).Gateway = %s, want %s", ec.Gateway, gw)
	}
}

func TestRIB_LinkLossRetractsMultiHopFirst_S6(t *testing.T) {
	f := newFixture(t)
	nb := f.addSymmetricNeighbor("10.0.0.2", 10)
	f.setEdge("10.0.0.2", "10.0.0.3", 10)
	f.rib.Recompute()

	// Link A-B goes LOST: stop its sym timer and re-evaluate status.
	link := nb.Links[0]
	link.SymTimer.Stop()
	f.nh.UpdateLinkStatus(link)
	if nb.Symmetric != 0 {
		t.Fatalf("neighbor.Symmetric = %d, want 0 after sym-timer stop", nb.Symmetric)
	}

	before := len(f.kern.Calls())
	f.rib.Recompute()
	calls := f.kern.Calls()[before:]

	var removedOrder []string
	for _, c := range calls {
		if !c.Set {
			removedOrder = append(removedOrder, c.Req.Dst.String())
		}
	}
	if len(removedOrder) != 2 {
		t.Fatalf("removedOrder = %v, want 2 removals", removedOrder)
	}
	if removedOrder[0] != "10.0.0.3" || removedOrder[1] != "10.0.0.2" {
		t.Fatalf("removedOrder = %v, want [10.0.0.3 10.0.0.2] (multi-hop before single-hop)", removedOrder)
	}

	bKey := Key{Domain: 0, Dest: mustAddr(t, "10.0.0.2")}
	cKey := Key{Domain: 0, Dest: mustAddr(t, "10.0.0.3")}
	if e, ok := f.rib.entries[bKey]; ok && e.Set {
		t.Fatalf("entry(B) still set after link loss: %+v", e)
	}
	if _, ok := f.rib.entries[cKey]; ok {
		if f.rib.entries[cKey].Set {
			t.Fatalf("entry(C) still set after link loss")
		}
	}
}

func TestRIB_NoChangeProducesEmptyDiff(t *testing.T) {
	f := newFixture(t)
	f.addSymmetricNeighbor("10.0.0.2", 10)
	f.setEdge("10.0.0.2", "10.0.0.3", 10)
	f.rib.Recompute()

	before := len(f.kern.Calls())
	f.rib.Recompute()
	after := f.kern.Calls()[before:]
	if len(after) != 0 {
		t.Fatalf("second identical Recompute issued %d kernel calls, want 0", len(after))
	}
}

func TestRIB_ScheduleCollapsesConcurrentTriggers(t *testing.T) {
	f := newFixture(t)
	f.rib.haveRun = true
	f.rib.lastRun = f.clk.Now()

	f.rib.Schedule(false)
	f.rib.Schedule(false) // must not arm a second timer
	if !f.rib.pending {
		t.Fatal("Schedule(false) before minInterval elapsed should set pending")
	}

	f.clk.Advance(300)
	f.wh.Walk()
	if f.rib.pending {
		t.Fatal("pending flag should clear once the deferred run fires")
	}
}
