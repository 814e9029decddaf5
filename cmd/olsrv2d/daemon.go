// Command olsrv2d runs a mesh routing node speaking NHDP (RFC 6130) for
// neighbor/link discovery and OLSRv2 (RFC 7181) for topology
// advertisement and shortest-path route computation, installing the
// result into the kernel routing table.
package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/config"
	"github.com/benpicco/olsrv2d/internal/daemonlog"
	"github.com/benpicco/olsrv2d/internal/kernelroute"
	"github.com/benpicco/olsrv2d/internal/mpr"
	"github.com/benpicco/olsrv2d/internal/nhdp"
	"github.com/benpicco/olsrv2d/internal/olsrv2"
	"github.com/benpicco/olsrv2d/internal/rfc5444"
	"github.com/benpicco/olsrv2d/internal/rib"
	"github.com/benpicco/olsrv2d/internal/sysctl"
)

// recomputeMinInterval is the rate limit on Dijkstra reruns.
const recomputeMinInterval = clock.Duration(250)

// ackQueueSize bounds how many in-flight kernel acks the serializing
// channel can buffer before a Set call blocks its caller.
const ackQueueSize = 64

// iface pairs a configured NHDP interface with the live *net.Interface
// and nhdp database handle the main loop drives it through.
type iface struct {
	nhdp *nhdp.Interface
	sys  *net.Interface
	hw   *rfc5444.Writer // per-interface HELLO composer
	seq  uint16          // outgoing packet PKT_SEQ_NUM for this interface
}

// Daemon owns every long-lived resource one running node needs: the
// NHDP/OLSRv2 databases, the multicast socket, the kernel route channel,
// and the timers that drive HELLO/TC emission and route recomputation.
type Daemon struct {
	log *zap.SugaredLogger

	cfg *config.Config
	acl *config.RoutableACL

	clk   clock.Clock
	wheel *clock.Wheel

	nh  *nhdp.Database
	tc  *olsrv2.Database
	rib *rib.RIB
	mpr *mpr.Selector

	ifaces []*iface

	v6     bool
	sock   *nhdp.Socket
	decode *rfc5444.Decoder
	nhRead *nhdp.Reader
	tcRead *olsrv2.Reader

	tcWriter *rfc5444.Writer
	tcSeq    uint16

	guard *sysctl.Guard
	kern  *serializingChannel

	domains []uint8

	instanceID string
}

// New builds a Daemon from a loaded, validated configuration. It opens
// no sockets and acquires no sysctls yet; call Run to start it.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Daemon, error) {
	acl, err := config.NewRoutableACL(cfg.OLSRv2.RoutableACL)
	if err != nil {
		return nil, err
	}

	sysIfaces := make([]*net.Interface, 0, len(cfg.NHDP.Interfaces))
	for _, name := range cfg.NHDP.Interfaces {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("olsrv2d: interface %q: %w", name, err)
		}
		sysIfaces = append(sysIfaces, ifi)
	}

	v6, err := chooseFamily(sysIfaces)
	if err != nil {
		return nil, err
	}

	originator, err := chooseOriginator(sysIfaces, v6, acl)
	if err != nil {
		return nil, err
	}

	metrics, domainIDs, err := buildMetrics(cfg.Domains)
	if err != nil {
		return nil, err
	}

	lans, err := buildLANs(cfg.OLSRv2.LANs)
	if err != nil {
		return nil, err
	}

	clk := clock.NewReal()
	wheel := clock.NewWheel(clk)

	nh := nhdp.NewDatabase(wheel, clk, hysteresisPlugin(), metrics)
	nh.Willingness = cfg.NHDP.Willingness
	nh.MaxNeighbors = cfg.NHDP.MaxNeighbors

	tc := olsrv2.NewDatabase(wheel, clk)
	tc.LANs = lans
	tc.SetOriginator(originator, toClockDuration(cfg.OLSRv2.TCValidity)*3)

	kern, err := kernelroute.NewNetlink()
	var kch kernelroute.Channel = kern
	if err != nil {
		logger.Infow("falling back to in-process mock kernel route channel", "reason", err)
		kch = kernelroute.NewMock()
	}
	sch := newSerializingChannel(kch, ackQueueSize)

	instanceID := uuid.NewString()

	r := rib.New(nh, tc, sch, wheel, clk, domainIDs, recomputeMinInterval)
	r.Log = daemonlog.Printf(logger)
	r.InstanceID = instanceID

	d := &Daemon{
		log:        logger,
		cfg:        cfg,
		acl:        acl,
		clk:        clk,
		wheel:      wheel,
		nh:         nh,
		tc:         tc,
		rib:        r,
		mpr:        mpr.NewSelector(nh),
		v6:         v6,
		domains:    domainIDs,
		guard:      nil,
		kern:       sch,
		instanceID: instanceID,
	}

	for _, ifi := range sysIfaces {
		nhIfc := nh.AddInterface(ifi.Index, ifi.Name,
			toClockDuration(cfg.NHDP.HelloInterval),
			toClockDuration(cfg.NHDP.HelloValidity),
			toClockDuration(cfg.NHDP.LinkValidity),
			toClockDuration(cfg.NHDP.NeighborHold),
			toClockDuration(cfg.NHDP.LocalAddrHold),
		)
		nhIfc.FloodIPv4 = !v6
		nhIfc.FloodIPv6 = v6

		v4addrs, v6addrs, err := ifaceAddresses(ifi)
		if err != nil {
			return nil, fmt.Errorf("olsrv2d: interface %q: %w", ifi.Name, err)
		}
		for _, a := range v4addrs {
			if !v6 {
				nhIfc.AddLocalAddress(a)
			}
		}
		for _, a := range v6addrs {
			if v6 {
				nhIfc.AddLocalAddress(a)
			}
		}

		hw := rfc5444.NewWriter()
		nhw := nhdp.NewWriter(nh)
		hw.Register(nhw.Provider(nhIfc))

		d.ifaces = append(d.ifaces, &iface{nhdp: nhIfc, sys: ifi, hw: hw})
	}

	d.nhRead = nhdp.NewReader(nh)
	d.tcRead = olsrv2.NewReader(tc, nh)
	d.tcRead.ProcessingHoldTime = toClockDuration(cfg.OLSRv2.ProcessingHoldTime)
	d.tcRead.ForwardHoldTime = toClockDuration(cfg.OLSRv2.ForwardHoldTime)
	d.tcRead.OnForward = d.forward

	d.decode = rfc5444.NewDecoder()
	d.decode.Register(d.nhRead.Consumer())
	d.decode.Register(d.tcRead.Consumer())

	tcw := olsrv2.NewWriter(tc, nh)
	tcw.VTime = toClockDuration(cfg.OLSRv2.TCValidity)
	tcw.ITime = toClockDuration(cfg.OLSRv2.TCInterval)
	d.tcWriter = rfc5444.NewWriter()
	d.tcWriter.Register(tcw.Provider())

	return d, nil
}

// Run acquires the daemon's kernel-level resources (relaxed sysctls, the
// multicast socket) and drives the single-threaded event loop until ctx
// is cancelled, then releases everything in reverse order.
func (d *Daemon) Run(ctx context.Context) error {
	guard, err := sysctl.Acquire(d.cfg.NHDP.Interfaces)
	if err != nil {
		return fmt.Errorf("olsrv2d: %w", err)
	}
	d.guard = guard
	defer func() {
		if err := d.guard.Release(); err != nil {
			d.log.Warnw("sysctl release failed", "error", err)
		}
	}()

	sock, err := nhdp.NewSocket(d.v6)
	if err != nil {
		return fmt.Errorf("olsrv2d: %w", err)
	}
	d.sock = sock
	defer sock.Close()

	for _, ifc := range d.ifaces {
		if err := sock.Join(ifc.sys); err != nil {
			return fmt.Errorf("olsrv2d: join %s: %w", ifc.sys.Name, err)
		}
	}

	d.log.Infow("olsrv2d starting",
		"instance", d.instanceID,
		"interfaces", d.cfg.NHDP.Interfaces,
		"ipv6", d.v6,
		"originator", d.tc.Originator.String(),
	)

	helloClass := clock.NewClass("olsrv2d-hello", func(ctx interface{}) {
		d.sendHello(ctx.(*iface))
	})
	for _, ifc := range d.ifaces {
		d.wheel.NewPeriodic(helloClass, ifc, toClockDuration(d.cfg.NHDP.HelloInterval), 10)
	}

	tcClass := clock.NewClass("olsrv2d-tc", func(interface{}) { d.sendTC() })
	d.wheel.NewPeriodic(tcClass, nil, toClockDuration(d.cfg.OLSRv2.TCInterval), 10)

	mprClass := clock.NewClass("olsrv2d-mpr", func(interface{}) { d.recomputeMPR() })
	d.wheel.NewPeriodic(mprClass, nil, toClockDuration(d.cfg.NHDP.HelloInterval), 0)

	recvCh := make(chan *nhdp.Datagram, 16)
	recvErr := make(chan error, 1)
	go d.readLoop(ctx, recvCh, recvErr)

	for {
		nextDeadline, hasTimer := d.wheel.NextDeadline()
		var timer *time.Timer
		var timerCh <-chan time.Time
		if hasTimer {
			delay := time.Duration(nextDeadline.Sub(d.clk.Now())) * time.Millisecond
			if delay < 0 {
				delay = 0
			}
			timer = time.NewTimer(delay)
			timerCh = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case dg := <-recvCh:
			if timer != nil {
				timer.Stop()
			}
			d.handleDatagram(dg)

		case err := <-recvErr:
			if timer != nil {
				timer.Stop()
			}
			return fmt.Errorf("olsrv2d: receive loop: %w", err)

		case ack := <-d.kern.acks:
			if timer != nil {
				timer.Stop()
			}
			deliver(ack)

		case <-timerCh:
			d.wheel.Walk()
		}
	}
}

// readLoop copies datagrams off the multicast socket and hands them to
// the main loop over recvCh; it performs no protocol logic itself, the
// same "goroutine does I/O, channel hands off to single-threaded logic"
// split the rest of the daemon's concurrency follows.
func (d *Daemon) readLoop(ctx context.Context, out chan<- *nhdp.Datagram, errCh chan<- error) {
	for {
		if ctx.Err() != nil {
			return
		}
		_ = d.sock.SetReadDeadline(time.Now().Add(time.Second))
		dg, err := d.sock.ReadFrom()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case errCh <- err:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- dg:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Daemon) handleDatagram(dg *nhdp.Datagram) {
	ifc := d.nh.Interfaces[dg.IfIndex]
	if ifc == nil {
		return
	}
	src, err := addr.FromIP(dg.Src)
	if err != nil {
		return
	}

	// Packet-level fields (PKT_SEQ_NUM) are only known once DecodePacket
	// parses the header, but nhdp.Reader's contract requires them set
	// before dispatch begins, so the packet is decoded once here purely
	// to read that header and once more inside DecodeAndDispatch.
	pkt, _ := rfc5444.DecodePacket(dg.Payload)

	d.nhRead.CurrentIface = ifc
	d.nhRead.CurrentSource = src
	d.nhRead.HasPacketSeqNum = pkt.SeqNum != nil
	if pkt.SeqNum != nil {
		d.nhRead.CurrentPacketSeqNum = *pkt.SeqNum
	}
	d.tcRead.CurrentSource = src

	if _, errs := d.decode.DecodeAndDispatch(dg.Payload); len(errs) > 0 {
		for _, e := range errs {
			d.log.Debugw("decode error", "error", e, "interface", ifc.Name)
		}
	}

	d.rib.Schedule(false)
}

func (d *Daemon) sendHello(ifc *iface) {
	msg := ifc.hw.Compose(rfc5444.MsgTypeHello)
	ifc.seq++
	seq := ifc.seq
	pkt := rfc5444.Packet{SeqNum: &seq, Messages: []rfc5444.Message{msg}}
	if err := d.sock.SendTo(ifc.sys.Index, rfc5444.EncodePacket(pkt)); err != nil {
		d.log.Warnw("hello send failed", "interface", ifc.sys.Name, "error", err)
	}
}

func (d *Daemon) sendTC() {
	if !d.tc.HasOriginator {
		return
	}
	msg := d.tcWriter.Compose(rfc5444.MsgTypeTC)
	d.floodMessage(msg)
	d.rib.Schedule(false)
}

// forward re-emits a TC message this node has selected as a flooding MPR
// for, out every configured interface.
func (d *Daemon) forward(msg *rfc5444.Message) {
	d.floodMessage(*msg)
}

func (d *Daemon) floodMessage(msg rfc5444.Message) {
	d.tcSeq++
	seq := d.tcSeq
	pkt := rfc5444.Packet{SeqNum: &seq, Messages: []rfc5444.Message{msg}}
	payload := rfc5444.EncodePacket(pkt)
	for _, ifc := range d.ifaces {
		if err := d.sock.SendTo(ifc.sys.Index, payload); err != nil {
			d.log.Warnw("tc send failed", "interface", ifc.sys.Name, "error", err)
		}
	}
}

func (d *Daemon) recomputeMPR() {
	d.mpr.RecomputeFlooding()
	for _, domain := range d.domains {
		d.mpr.RecomputeRouting(int(domain))
	}
	d.rib.Schedule(false)
}
