package main

import "github.com/benpicco/olsrv2d/internal/kernelroute"

// ackMsg is one completed kernel request, queued for replay on the main
// loop along with the original Done callback it must invoke.
type ackMsg struct {
	req  *kernelroute.Request
	err  error
	done func(req *kernelroute.Request, err error)
}

// serializingChannel wraps a kernelroute.Channel whose Request.Done
// callbacks may arrive from a goroutine other than the daemon's single
// main loop (Netlink acks are read and dispatched from its own readLoop
// goroutine). It intercepts every Set's Done callback and redirects the
// actual invocation through a buffered channel the main loop drains, so
// the RIB reconciler's "Dijkstra runs atomically with respect to all
// other protocol work" guarantee holds regardless of which goroutine the
// kernel's reply landed on.
type serializingChannel struct {
	kernelroute.Channel
	acks chan ackMsg
}

func newSerializingChannel(ch kernelroute.Channel, bufSize int) *serializingChannel {
	return &serializingChannel{Channel: ch, acks: make(chan ackMsg, bufSize)}
}

func (c *serializingChannel) Set(req *kernelroute.Request, set bool) error {
	orig := req.Done
	req.Done = func(r *kernelroute.Request, err error) {
		if orig == nil {
			return
		}
		c.acks <- ackMsg{req: r, err: err, done: orig}
	}
	return c.Channel.Set(req, set)
}

// deliver runs a queued ack's original Done callback on the caller's
// goroutine. The main loop calls this for every value it reads off acks.
func deliver(a ackMsg) {
	a.done(a.req, a.err)
}
