// Package mpr selects multipoint relays over the NHDP 1-/2-hop graph:
// the flooding MPR set used for controlled flooding and, per domain, the
// routing MPR set used to decide which links get advertised into the
// OLSRv2 topology. Neither set is part of NHDP's own state machine: both
// are computed from it and written back onto the links NHDP owns.
package mpr

import (
	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/nhdp"
)

// Selector recomputes MPR sets from a Database's current symmetric
// 1-/2-hop graph, following RFC 7181 §18.4's greedy heuristic: a 2-hop
// address reachable through only one neighbor forces that neighbor's
// selection; the remainder is covered greedily, breaking ties by
// willingness, then 2-hop reachability, then total degree.
type Selector struct {
	db *nhdp.Database
}

// NewSelector creates a Selector bound to db.
func NewSelector(db *nhdp.Database) *Selector { return &Selector{db: db} }

// RecomputeFlooding recomputes the network-wide flooding MPR set and
// writes the result onto every selected neighbor's links' MPR.Flooding.
func (s *Selector) RecomputeFlooding() { s.recompute(-1) }

// RecomputeRouting recomputes domain d's routing MPR set and writes the
// result onto every selected neighbor's links' MPR.Routing[d].
func (s *Selector) RecomputeRouting(domain int) { s.recompute(domain) }

// candidate is one symmetric, MPR-willing neighbor considered for
// selection, with every 2-hop address (not already a 1-hop neighbor)
// reachable through its symmetric links.
type candidate struct {
	neighbor *nhdp.Neighbor
	covers   map[addr.Address]bool
}

func (s *Selector) recompute(domain int) {
	oneHop := map[addr.Address]bool{}
	for _, n := range s.db.Neighbors {
		if n.Symmetric == 0 {
			continue
		}
		for a := range n.Addresses {
			oneHop[a] = true
		}
	}

	var cands []*candidate
	coverageCount := map[addr.Address]int{}
	for _, n := range s.db.Neighbors {
		if n.Symmetric == 0 || n.Willingness == nhdp.WillingnessNever {
			continue
		}
		c := &candidate{neighbor: n, covers: map[addr.Address]bool{}}
		for _, l := range n.Links {
			if l.Status() != nhdp.StatusSymmetric {
				continue
			}
			for a := range l.TwoHop {
				if oneHop[a] {
					continue // already a direct neighbor, needs no relay
				}
				c.covers[a] = true
			}
		}
		cands = append(cands, c)
		for a := range c.covers {
			coverageCount[a]++
		}
	}

	selected := map[*nhdp.Neighbor]*candidate{}
	uncovered := map[addr.Address]bool{}
	for a := range coverageCount {
		uncovered[a] = true
	}

	// A 2-hop address reachable through exactly one candidate forces
	// that candidate's selection.
	for _, c := range cands {
		for a := range c.covers {
			if coverageCount[a] == 1 {
				selected[c.neighbor] = c
			}
		}
	}
	for _, c := range selected {
		for a := range c.covers {
			delete(uncovered, a)
		}
	}

	for len(uncovered) > 0 {
		best := bestCandidate(cands, selected, uncovered)
		if best == nil {
			break // nothing left can cover the remaining addresses
		}
		selected[best.neighbor] = best
		for a := range best.covers {
			delete(uncovered, a)
		}
	}

	s.apply(cands, selected, domain)
}

func bestCandidate(cands []*candidate, selected map[*nhdp.Neighbor]*candidate, uncovered map[addr.Address]bool) *candidate {
	var best *candidate
	var bestReach int
	for _, c := range cands {
		if selected[c.neighbor] != nil {
			continue
		}
		reach := 0
		for a := range c.covers {
			if uncovered[a] {
				reach++
			}
		}
		if reach == 0 {
			continue
		}
		if best == nil || better(c, reach, best, bestReach) {
			best, bestReach = c, reach
		}
	}
	return best
}

// better implements the RFC 7181 §18.4 tie-break order: willingness,
// then 2-hop reachability among the still-uncovered set, then total
// degree, then a deterministic originator-address tie-break so the
// choice doesn't depend on map iteration order.
func better(c *candidate, reach int, best *candidate, bestReach int) bool {
	if c.neighbor.Willingness != best.neighbor.Willingness {
		return c.neighbor.Willingness > best.neighbor.Willingness
	}
	if reach != bestReach {
		return reach > bestReach
	}
	if len(c.covers) != len(best.covers) {
		return len(c.covers) > len(best.covers)
	}
	return c.neighbor.Originator.Compare(best.neighbor.Originator) < 0
}

func (s *Selector) apply(cands []*candidate, selected map[*nhdp.Neighbor]*candidate, domain int) {
	for _, c := range cands {
		_, sel := selected[c.neighbor]
		for _, l := range c.neighbor.Links {
			if domain < 0 {
				l.MPR.Flooding = sel
			} else if domain < nhdp.MaxDomains {
				l.MPR.Routing[domain] = sel
			}
		}
	}
}
