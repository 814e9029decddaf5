package nhdp

import "github.com/benpicco/olsrv2d/internal/addr"

// mergeNeighbors folds every candidate neighbor after the first into the
// first, per RFC 6130 ("the HELLO is merging two previously-separate
// neighbors"): their links and address sets move onto the survivor and
// the extras are dropped from the database.
func (db *Database) mergeNeighbors(cands []*Neighbor) *Neighbor {
	survivor := cands[0]
	for _, extra := range cands[1:] {
		if extra == survivor {
			continue
		}
		for _, l := range extra.Links {
			l.Neighbor = survivor
			survivor.Links = append(survivor.Links, l)
		}
		extra.Links = nil
		for a, na := range extra.Addresses {
			merged := db.AddNeighborAddress(survivor, a)
			if na.Lost {
				merged.Lost = true
			}
		}
		extra.Addresses = map[addr.Address]*NeighborAddress{}
		survivor.Symmetric += extra.Symmetric
		for idx, cand := range db.Neighbors {
			if cand == extra {
				db.Neighbors = append(db.Neighbors[:idx], db.Neighbors[idx+1:]...)
				break
			}
		}
	}
	return survivor
}

// mergeLinks folds every candidate link after the first into the first,
// reattaching the survivor to neighbor and absorbing the others' 2-hop
// and address state.
func (db *Database) mergeLinks(cands []*Link, neighbor *Neighbor) *Link {
	survivor := cands[0]
	survivor.Neighbor = neighbor
	for _, extra := range cands[1:] {
		if extra == survivor {
			continue
		}
		for _, a := range extra.Addresses {
			db.AddLinkAddress(survivor, a)
		}
		for a, e := range extra.TwoHop {
			if _, ok := survivor.TwoHop[a]; !ok {
				survivor.TwoHop[a] = e
			}
		}
		extra.TwoHop = map[addr.Address]*TwoHopEntry{}
		extra.Addresses = nil
		db.RemoveLink(extra)
	}
	return survivor
}
