package nhdp

import (
	"net"
	"testing"
	"time"
)

func findMulticastInterface(t *testing.T) *net.Interface {
	t.Helper()
	ifaces, err := net.Interfaces()
	if err != nil {
		t.Skipf("net.Interfaces: %v", err)
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
			ifc := ifi
			return &ifc
		}
	}
	t.Skip("no multicast-capable interface available in this sandbox")
	return nil
}

func TestSocketSendReceiveRoundTripsOnJoinedInterface(t *testing.T) {
	ifi := findMulticastInterface(t)

	s, err := newSocket(false, 0)
	if err != nil {
		t.Fatalf("newSocket: %v", err)
	}
	defer s.Close()

	if err := s.Join(ifi); err != nil {
		t.Skipf("Join: %v (sandbox likely lacks multicast group permissions)", err)
	}
	defer s.Leave(ifi)

	payload := []byte("hello-nhdp")
	if err := s.SendTo(ifi.Index, payload); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	if err := s.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	dg, err := s.ReadFrom()
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if string(dg.Payload) != string(payload) {
		t.Fatalf("payload = %q, want %q", dg.Payload, payload)
	}
	if dg.IfIndex != ifi.Index {
		t.Fatalf("IfIndex = %d, want %d", dg.IfIndex, ifi.Index)
	}
}

func TestSocketCloseReleasesUnderlyingConn(t *testing.T) {
	s, err := newSocket(false, 0)
	if err != nil {
		t.Fatalf("newSocket: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.SendTo(1, []byte("x")); err == nil {
		t.Fatal("SendTo after Close: want error, got nil")
	}
}
