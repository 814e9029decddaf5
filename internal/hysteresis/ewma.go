package hysteresis

import "github.com/benpicco/olsrv2d/internal/clock"

// EWMA is RFC 6130 Appendix B's reference hysteresis: an exponentially
// weighted quality value in [0,1], pushed toward 1 on every received
// HELLO and toward 0 on every missed one, with two thresholds gating
// the pending/lost flags.
type EWMA struct {
	Scaling         float64
	AcceptThreshold float64
	RejectThreshold float64
}

// NewEWMA returns an EWMA plug-in with RFC 6130's suggested defaults.
func NewEWMA() *EWMA {
	return &EWMA{Scaling: 0.25, AcceptThreshold: 0.75, RejectThreshold: 0.25}
}

type ewmaState struct {
	quality float64
}

func (e *EWMA) Name() string { return "ewma" }

func (e *EWMA) NewLinkState() LinkState { return &ewmaState{} }

func (e *EWMA) Update(s LinkState, vtime, itime clock.Duration) (pending, lost bool) {
	st := s.(*ewmaState)
	st.quality += e.Scaling * (1 - st.quality)
	return e.evaluate(st)
}

func (e *EWMA) OnHelloLost(s LinkState) (pending, lost bool) {
	st := s.(*ewmaState)
	st.quality -= e.Scaling * st.quality
	return e.evaluate(st)
}

func (e *EWMA) evaluate(st *ewmaState) (pending, lost bool) {
	switch {
	case st.quality < e.RejectThreshold:
		return false, true
	case st.quality < e.AcceptThreshold:
		return true, false
	default:
		return false, false
	}
}
