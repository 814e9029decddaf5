package metric

// ETX is the built-in reference metric plug-in: cost is the expected
// number of transmissions to deliver a packet, derived from a sliding
// window of received-vs-expected HELLO sequence numbers, scaled into an
// integer cost so 1.0 ETX maps to StartCost.
type ETX struct {
	// Window is the number of HELLO intervals the received-ratio is
	// averaged over.
	Window int
	// StartWindow bootstraps the ratio during the first Window HELLOs so
	// a brand-new link doesn't start at worst-case cost.
	StartWindow int
}

// NewETX returns an ETX plug-in with RFC-typical window sizes.
func NewETX() *ETX {
	return &ETX{Window: 64, StartWindow: 4}
}

func (e *ETX) Name() string    { return "etx" }
func (e *ETX) MinCost() Cost   { return 256 }
func (e *ETX) MaxCost() Cost   { return 256 * 16 }
func (e *ETX) StartCost() Cost { return 256 }

type etxLinkState struct {
	received    [64]bool
	lastSeqno   uint16
	haveSeqno   bool
	count       int
	nextSlot    int
	missing     int
}

func (e *ETX) NewLinkState() LinkState { return &etxLinkState{} }

func (e *ETX) OnPacket(s LinkState, seqno uint16, hasSeqno bool) {
	st := s.(*etxLinkState)
	if !hasSeqno {
		e.mark(st, true)
		return
	}
	if st.haveSeqno {
		gap := int(seqno - st.lastSeqno)
		if gap <= 0 {
			gap += 1 << 16
		}
		for i := 1; i < gap; i++ {
			e.mark(st, false)
		}
	}
	st.haveSeqno = true
	st.lastSeqno = seqno
	e.mark(st, true)
}

func (e *ETX) mark(st *etxLinkState, received bool) {
	window := e.Window
	if window <= 0 || window > len(st.received) {
		window = len(st.received)
	}
	if st.count < window {
		st.received[st.nextSlot] = received
		st.count++
	} else {
		if !st.received[st.nextSlot] {
			st.missing--
		}
		st.received[st.nextSlot] = received
	}
	if !received {
		st.missing++
	}
	st.nextSlot = (st.nextSlot + 1) % window
}

// Sample recomputes cost from the current receive ratio: cost =
// StartCost / ratio, where ratio = received/expected over the window,
// floored at MinCost so a perfect link never costs less than the
// baseline transmission.
func (e *ETX) Sample(s LinkState) Cost {
	st := s.(*etxLinkState)
	window := e.Window
	if window <= 0 || window > len(st.received) {
		window = len(st.received)
	}
	samples := st.count
	if samples == 0 {
		return e.StartCost()
	}
	if samples < e.StartWindow {
		samples = e.StartWindow
	}
	received := samples - st.missing
	if received <= 0 {
		return e.MaxCost()
	}
	cost := Cost(int64(e.StartCost()) * int64(samples) / int64(received))
	if cost < e.MinCost() {
		cost = e.MinCost()
	}
	if cost > e.MaxCost() {
		cost = e.MaxCost()
	}
	return cost
}

// OnHelloLost elevates the link to MaxCost; the caller (NHDP link-metric
// driver) is responsible for re-evaluating link status afterward.
func (e *ETX) OnHelloLost(s LinkState) Cost {
	st := s.(*etxLinkState)
	for i := range st.received {
		st.received[i] = false
	}
	st.count = len(st.received)
	st.missing = len(st.received)
	return e.MaxCost()
}
