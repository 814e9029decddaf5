// Package hysteresis defines the pluggable link-quality filter NHDP
// consults on every received HELLO, per RFC 6130's optional hysteresis
// mechanism. The core never judges link quality itself: it calls a
// registered Plugin and folds the returned (pending, lost) flags into
// link-status evaluation.
package hysteresis

import "github.com/benpicco/olsrv2d/internal/clock"

// LinkState is per-link storage a Plugin owns; callers pass back
// whatever NewLinkState returned.
type LinkState interface{}

// Plugin is one registered hysteresis algorithm. EWMA is the built-in
// reference implementation.
type Plugin interface {
	Name() string
	NewLinkState() LinkState

	// Update runs once per received HELLO and returns the flags link-
	// status evaluation consumes.
	Update(s LinkState, vtime, itime clock.Duration) (pending, lost bool)

	// OnHelloLost runs when the link's hello-lost timer expires (no
	// HELLO received within the expected window).
	OnHelloLost(s LinkState) (pending, lost bool)
}
