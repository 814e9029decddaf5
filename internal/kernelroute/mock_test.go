package kernelroute

import (
	"errors"
	"net"
	"testing"

	"github.com/benpicco/olsrv2d/internal/addr"
)

var errEEXIST = errors.New("file exists")

func mustAddr(t *testing.T, s string, plen int) addr.Address {
	t.Helper()
	a, err := addr.FromIPPrefix(net.ParseIP(s), plen)
	if err != nil {
		t.Fatalf("FromIPPrefix(%s): %v", s, err)
	}
	return a
}

func TestMock_SetInvokesDone(t *testing.T) {
	m := NewMock()
	var gotErr error
	called := false
	req := &Request{
		ID:  "r1",
		Dst: mustAddr(t, "10.0.0.3", 32),
		Done: func(r *Request, err error) {
			called = true
			gotErr = err
		},
	}

	if err := m.Set(req, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !called {
		t.Fatal("Done callback was not invoked")
	}
	if gotErr != nil {
		t.Fatalf("Done err = %v, want nil", gotErr)
	}

	calls := m.Calls()
	if len(calls) != 1 || !calls[0].Set || calls[0].Req.ID != "r1" {
		t.Fatalf("Calls() = %+v, want one Set(r1)", calls)
	}
}

func TestMock_FailArmsOneShotError(t *testing.T) {
	m := NewMock()
	wantErr := errEEXIST
	m.Fail("r2", wantErr)

	var gotErr error
	req := &Request{ID: "r2", Done: func(r *Request, err error) { gotErr = err }}
	m.Set(req, true)
	if gotErr != wantErr {
		t.Fatalf("Done err = %v, want %v", gotErr, wantErr)
	}

	// Second Set with the same ID is not armed anymore.
	gotErr = nil
	m.Set(req, true)
	if gotErr != nil {
		t.Fatalf("Done err on second Set = %v, want nil", gotErr)
	}
}

func TestMock_QueryReplaysInstalledRoutes(t *testing.T) {
	m := NewMock()
	dst := mustAddr(t, "10.0.0.0", 24)
	req := &Request{ID: "r3", Family: addr.IPv4, Dst: dst}
	m.Set(req, true)

	ch, err := m.Query(addr.IPv4)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	var got []*Request
	for r := range ch {
		got = append(got, r)
	}
	if len(got) != 1 || got[0].ID != "r3" {
		t.Fatalf("Query replay = %+v, want [r3]", got)
	}

	// Deleting removes it from the next dump.
	m.Set(req, false)
	ch2, _ := m.Query(addr.IPv4)
	count := 0
	for range ch2 {
		count++
	}
	if count != 0 {
		t.Fatalf("after delete, Query replayed %d routes, want 0", count)
	}
}
