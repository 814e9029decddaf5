package mpr

import (
	"net"
	"testing"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/hysteresis"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
)

func testAddr(t *testing.T, s string) addr.Address {
	t.Helper()
	a, err := addr.FromIP(net.ParseIP(s))
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// symNeighbor creates a neighbor with one symmetric link on ifc, carrying
// the given willingness and 2-hop addresses.
func symNeighbor(t *testing.T, db *nhdp.Database, ifc *nhdp.Interface, willingness uint8, twoHop ...string) *nhdp.Neighbor {
	t.Helper()
	n := db.NewNeighbor()
	n.Willingness = willingness
	l := db.CreateLink(ifc, n)
	db.ArmSymTimer(l, 6000)
	db.UpdateLinkStatus(l)
	for _, s := range twoHop {
		db.AddTwoHop(l, testAddr(t, s), 6000)
	}
	return n
}

func newTestDB(t *testing.T) *nhdp.Database {
	t.Helper()
	fc := clock.NewFake(0)
	w := clock.NewWheel(fc)
	return nhdp.NewDatabase(w, fc, hysteresis.NewEWMA(), [nhdp.MaxDomains]metric.Plugin{})
}

func TestRecomputeFloodingSelectsSoleCoverer(t *testing.T) {
	db := newTestDB(t)
	ifc := db.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)

	// n1 is the only neighbor reaching 10.0.0.100; it must be selected
	// even though n2 has higher willingness but covers nothing unique.
	n1 := symNeighbor(t, db, ifc, nhdp.WillingnessDefault, "10.0.0.100")
	n2 := symNeighbor(t, db, ifc, nhdp.WillingnessHigh)

	NewSelector(db).RecomputeFlooding()

	if !n1.Links[0].MPR.Flooding {
		t.Fatal("sole coverer of a 2-hop address must be selected as flooding MPR")
	}
	if n2.Links[0].MPR.Flooding {
		t.Fatal("neighbor covering nothing unique must not be selected")
	}
}

func TestRecomputeFloodingPrefersHigherWillingnessOnTie(t *testing.T) {
	db := newTestDB(t)
	ifc := db.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)

	// Both neighbors can cover the same 2-hop address; the willing one
	// should win the greedy pick even though both "could" cover it.
	low := symNeighbor(t, db, ifc, nhdp.WillingnessLow, "10.0.0.50")
	high := symNeighbor(t, db, ifc, nhdp.WillingnessHigh, "10.0.0.50")

	NewSelector(db).RecomputeFlooding()

	if low.Links[0].MPR.Flooding {
		t.Fatal("lower-willingness neighbor should not be picked over a redundant higher-willingness one")
	}
	if !high.Links[0].MPR.Flooding {
		t.Fatal("higher-willingness neighbor should be selected")
	}
}

func TestRecomputeFloodingNeverSelectsWillingnessNever(t *testing.T) {
	db := newTestDB(t)
	ifc := db.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)

	never := symNeighbor(t, db, ifc, nhdp.WillingnessNever, "10.0.0.200")

	NewSelector(db).RecomputeFlooding()

	if never.Links[0].MPR.Flooding {
		t.Fatal("a WILLINGNESS_NEVER neighbor must never be selected as MPR")
	}
}

func TestRecomputeRoutingIsPerDomain(t *testing.T) {
	db := newTestDB(t)
	ifc := db.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)

	n := symNeighbor(t, db, ifc, nhdp.WillingnessDefault, "10.0.0.9")

	NewSelector(db).RecomputeRouting(1)

	if n.Links[0].MPR.Routing[1] != true {
		t.Fatal("sole coverer must be selected for the recomputed domain")
	}
	if n.Links[0].MPR.Routing[0] {
		t.Fatal("recomputing domain 1 must not touch domain 0's routing flag")
	}
}

func TestRecomputeFloodingSkipsOneHopCoverage(t *testing.T) {
	db := newTestDB(t)
	ifc := db.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)

	// n2's address is directly reachable as a 1-hop neighbor, so n1
	// "covering" it via a 2-hop entry must not force n1's selection.
	n2 := symNeighbor(t, db, ifc, nhdp.WillingnessDefault)
	db.AddLinkAddress(n2.Links[0], testAddr(t, "10.0.0.2"))
	n1 := symNeighbor(t, db, ifc, nhdp.WillingnessDefault, "10.0.0.2")

	NewSelector(db).RecomputeFlooding()

	if n1.Links[0].MPR.Flooding {
		t.Fatal("a 2-hop address that is already a direct neighbor must not force MPR selection")
	}
}
