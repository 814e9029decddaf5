package olsrv2

import (
	"net"
	"testing"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
)

func testAddr(t *testing.T, s string) addr.Address {
	t.Helper()
	a, err := addr.FromIP(net.ParseIP(s))
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func newTestDB(t *testing.T) (*Database, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(0)
	w := clock.NewWheel(fc)
	return NewDatabase(w, fc), fc
}

func TestApplyTCCreatesRealEdgeAndVirtualInverse(t *testing.T) {
	db, _ := newTestDB(t)
	a := testAddr(t, "10.0.0.1")
	b := testAddr(t, "10.0.0.2")

	db.ApplyTC(a, 1, 30000, []NeighborAdvert{{Addr: b}}, nil)

	na, ok := db.NodeByAddress(a)
	if !ok || !na.Advertised {
		t.Fatal("originator node must exist and be marked advertised")
	}
	nb, ok := db.NodeByAddress(b)
	if !ok {
		t.Fatal("neighbor placeholder node must exist")
	}
	if nb.Advertised {
		t.Fatal("a node only ever named as a neighbor must not be marked advertised")
	}

	var fwd *Edge
	for _, e := range na.Edges {
		if e.Src == na && e.Dst == nb {
			fwd = e
		}
	}
	if fwd == nil {
		t.Fatal("expected a->b edge")
	}
	if fwd.Virtual {
		t.Fatal("a->b edge was advertised, must not be virtual")
	}
	if !fwd.Inverse.Virtual {
		t.Fatal("b->a edge was never advertised, must be virtual")
	}
	if fwd.Inverse.Inverse != fwd {
		t.Fatal("edge pairs must be mutually reciprocal")
	}
}

func TestApplyTCOlderANSNIsCallerResponsibilityNotDBs(t *testing.T) {
	// ApplyTC itself has no freshness gate (the reader's ANSN
	// DuplicateSet owns that); verify calling it twice just replaces the
	// edge set outright, independent of ANSN ordering.
	db, _ := newTestDB(t)
	a := testAddr(t, "10.0.0.1")
	b := testAddr(t, "10.0.0.2")
	c := testAddr(t, "10.0.0.3")

	db.ApplyTC(a, 5, 30000, []NeighborAdvert{{Addr: b}}, nil)
	db.ApplyTC(a, 6, 30000, []NeighborAdvert{{Addr: c}}, nil)

	na, _ := db.NodeByAddress(a)
	var sawB, sawC bool
	for _, e := range na.Edges {
		if e.Src != na || e.Virtual {
			continue
		}
		if e.Dst.Originator == b {
			sawB = true
		}
		if e.Dst.Originator == c {
			sawC = true
		}
	}
	if sawB {
		t.Fatal("edge to b should have been retired once it dropped out of the advertised set")
	}
	if !sawC {
		t.Fatal("edge to c should be real after the second TC")
	}
}

func TestRetiredEdgeGarbageCollectsUnreferencedPlaceholder(t *testing.T) {
	db, _ := newTestDB(t)
	a := testAddr(t, "10.0.0.1")
	b := testAddr(t, "10.0.0.2")

	db.ApplyTC(a, 1, 30000, []NeighborAdvert{{Addr: b}}, nil)
	db.ApplyTC(a, 2, 30000, nil, nil) // b dropped from the neighbor set

	if _, ok := db.NodeByAddress(b); ok {
		t.Fatal("b was only a virtual placeholder; it should be garbage-collected once its sole edge is retired")
	}
}

func TestNodeVTimerExpiryRetiresOutgoingEdges(t *testing.T) {
	db, fc := newTestDB(t)
	a := testAddr(t, "10.0.0.1")
	b := testAddr(t, "10.0.0.2")

	db.ApplyTC(a, 1, 1000, []NeighborAdvert{{Addr: b}}, nil)
	fc.Advance(1100)
	db.Wheel.Walk()

	na, ok := db.NodeByAddress(a)
	if ok && na.Advertised {
		t.Fatal("node a should no longer be advertised after its vtime expired")
	}
	if _, ok := db.NodeByAddress(b); ok {
		t.Fatal("a->b edge should be retired on expiry, leaving b's placeholder unreferenced and removed")
	}
}

func TestAdvertiseNeighborSetIncrementsOnlyOnChange(t *testing.T) {
	db, _ := newTestDB(t)
	a := testAddr(t, "10.0.0.1")
	b := testAddr(t, "10.0.0.2")

	first := db.AdvertiseNeighborSet([]addr.Address{a, b})
	second := db.AdvertiseNeighborSet([]addr.Address{a, b})
	if second != first {
		t.Fatalf("ANSN must not change when the neighbor set is identical: %d -> %d", first, second)
	}

	third := db.AdvertiseNeighborSet([]addr.Address{a})
	if third != first+1 {
		t.Fatalf("ANSN must increment exactly once when the neighbor set changes: got %d, want %d", third, first+1)
	}
}

func TestSetOriginatorTracksFormerIdentity(t *testing.T) {
	db, _ := newTestDB(t)
	a := testAddr(t, "10.0.0.1")
	b := testAddr(t, "10.0.0.2")

	db.SetOriginator(a, 5000)
	if db.IsFormerOriginator(a) {
		t.Fatal("current originator must not be its own former identity")
	}
	db.SetOriginator(b, 5000)
	if !db.IsFormerOriginator(a) {
		t.Fatal("a must be tracked as a former originator once replaced by b")
	}
}
