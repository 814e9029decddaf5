package rib

import (
	"container/heap"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
	"github.com/benpicco/olsrv2d/internal/olsrv2"
)

// computed is one Dijkstra result for a single (domain, destination)
// before it is diffed against the previously-installed routing entries.
type computed struct {
	dest      addr.Address
	cost      metric.Cost
	firstHop  *nhdp.Neighbor
	distance  uint8
	singleHop bool
}

// vertexKind distinguishes the two things a TC graph can target, per the
// data model's "Dijkstra target ... either a TC node ... or an endpoint".
type vertexKind int

const (
	vertexNode vertexKind = iota
	vertexEndpoint
)

// item is one entry in the working priority queue.
type item struct {
	kind vertexKind
	node *olsrv2.Node
	ep   *olsrv2.Endpoint

	cost      metric.Cost
	firstHop  *nhdp.Neighbor
	distance  uint8
	singleHop bool

	index int // heap.Interface bookkeeping
}

func (it *item) dest() addr.Address {
	if it.kind == vertexEndpoint {
		return it.ep.Prefix
	}
	return it.node.Originator
}

// tiebreak is the item's secondary sort key: the data model requires
// "ties are broken by first-hop originator", so equal-cost items compare
// by the first hop's originator address for a deterministic order.
func (it *item) tiebreak() addr.Address {
	if it.firstHop != nil && it.firstHop.HasOriginator {
		return it.firstHop.Originator
	}
	return addr.Address{}
}

type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].tiebreak().Less(pq[j].tiebreak())
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *priorityQueue) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*pq)
	*pq = append(*pq, it)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[:n-1]
	return it
}

// dijkstra runs RFC 7181 §17's shortest-path computation for one domain
// and returns the computed entry for every reachable destination, keyed
// by address. nh and tc are this node's NHDP and OLSRv2 databases; local
// is this node's own originator, always skipped as a Dijkstra target.
func dijkstra(domain uint8, nh *nhdp.Database, tc *olsrv2.Database, local addr.Address) map[addr.Address]*computed {
	best := map[*olsrv2.Node]*item{}
	bestEP := map[*olsrv2.Endpoint]*item{}
	pq := &priorityQueue{}
	heap.Init(pq)

	// Seed: every symmetric neighbor whose originator is a known TC node.
	for _, n := range nh.Neighbors {
		if n.Symmetric == 0 || !n.HasOriginator {
			continue
		}
		node, ok := tc.NodeByAddress(n.Originator)
		if !ok || !node.Advertised || node.Originator == local {
			continue
		}
		cost := n.Metric[domain].Out
		if cost == metric.Infinite {
			continue
		}
		candidate := &item{kind: vertexNode, node: node, cost: cost, firstHop: n, distance: 0, singleHop: true}
		if cur, ok := best[node]; !ok || candidate.cost < cur.cost {
			best[node] = candidate
			heap.Push(pq, candidate)
		}
	}

	for pq.Len() > 0 {
		t := heap.Pop(pq).(*item)
		if t.kind == vertexNode {
			if cur, ok := best[t.node]; !ok || cur != t {
				continue // superseded by a cheaper entry already relaxed
			}
			if t.node.Originator == local {
				continue
			}
			relaxNode(domain, t, best, bestEP, pq)
		}
	}

	out := map[addr.Address]*computed{}
	for node, it := range best {
		if node.Originator == local {
			continue
		}
		out[node.Originator] = &computed{dest: node.Originator, cost: it.cost, firstHop: it.firstHop, distance: it.distance, singleHop: it.singleHop}
	}
	for ep, it := range bestEP {
		out[ep.Prefix] = &computed{dest: ep.Prefix, cost: it.cost, firstHop: it.firstHop, distance: it.distance, singleHop: it.singleHop}
	}
	return out
}

func relaxNode(domain uint8, t *item, best map[*olsrv2.Node]*item, bestEP map[*olsrv2.Endpoint]*item, pq *priorityQueue) {
	for _, e := range t.node.Edges {
		if e.Src != t.node || e.Virtual {
			continue
		}
		cost := e.Cost[domain]
		if cost == metric.Infinite {
			continue
		}
		newCost := addCost(t.cost, cost)
		cand := &item{kind: vertexNode, node: e.Dst, cost: newCost, firstHop: t.firstHop, distance: 0, singleHop: false}
		if cur, ok := best[e.Dst]; !ok || newCost < cur.cost {
			best[e.Dst] = cand
			heap.Push(pq, cand)
		}
	}
	for _, ep := range t.node.Endpoints {
		if ep.Domain != domain {
			continue
		}
		cost := addCost(t.cost, ep.Cost)
		cand := &item{kind: vertexEndpoint, ep: ep, cost: cost, firstHop: t.firstHop, distance: ep.Dist, singleHop: false}
		if cur, ok := bestEP[ep]; !ok || cost < cur.cost {
			bestEP[ep] = cand
		}
	}
}

// addCost saturates at metric.Infinite instead of wrapping, since a or b
// being Infinite (or their sum overflowing uint32) must still exclude the
// path from consideration.
func addCost(a, b metric.Cost) metric.Cost {
	if a == metric.Infinite || b == metric.Infinite {
		return metric.Infinite
	}
	sum := uint64(a) + uint64(b)
	if sum >= uint64(metric.Infinite) {
		return metric.Infinite
	}
	return metric.Cost(sum)
}

// perHopOverride handles a direct 1-hop or 2-hop route that Dijkstra
// doesn't yet know about (because no TC has advertised it) but can
// still carry traffic today, overwriting a computed entry when its cost
// is strictly lower.
func perHopOverride(domain uint8, nh *nhdp.Database, out map[addr.Address]*computed) {
	for _, n := range nh.Neighbors {
		if n.Symmetric == 0 {
			continue
		}
		cost := n.Metric[domain].Out
		if cost == metric.Infinite {
			continue
		}
		for a, na := range n.Addresses {
			if na.Lost {
				continue
			}
			considerOverride(out, a, &computed{dest: a, cost: cost, firstHop: n, distance: 0, singleHop: true})
		}
	}

	for _, n := range nh.Neighbors {
		for _, l := range n.Links {
			if l.Status() != nhdp.StatusSymmetric {
				continue
			}
			linkCost := l.Metric[domain].Out
			if linkCost == metric.Infinite {
				continue
			}
			for a, th := range l.TwoHop {
				cost := addCost(linkCost, th.Metric[domain].Out)
				considerOverride(out, a, &computed{dest: a, cost: cost, firstHop: n, distance: 0, singleHop: false})
			}
		}
	}
}

func considerOverride(out map[addr.Address]*computed, a addr.Address, cand *computed) {
	if cur, ok := out[a]; !ok || cand.cost < cur.cost {
		out[a] = cand
	}
}
