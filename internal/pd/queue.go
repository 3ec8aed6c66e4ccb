package pd

import (
	"net"
	"sync"
)

// Queue is an insertion-ordered collection of elements, replacing the
// legacy intrusive singly-linked list with a slice-backed arena (§9
// Design Notes: "arena + stable indices ... traversal order preserved").
// A Queue is either a session's send queue or its receive queue; an
// element belongs to exactly one Queue at a time.
type Queue struct {
	mu    sync.Mutex
	items []*Element
}

// Insert appends e to the queue (§4.Q insert).
func (q *Queue) Insert(e *Element) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
}

// Remove unlinks e from the queue. Returns false if e was not present.
func (q *Queue) Remove(e *Element) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it == e {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the current element count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a stable copy of the current elements, safe to walk
// even if the underlying queue is mutated (elements removed) mid-walk.
// sendQueued, handleTimeOuts, distribute and checkPending walk snapshots,
// so Unpublish/Unsubscribe may remove elements during such a walk.
func (q *Queue) Snapshot() []*Element {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Element, len(q.items))
	copy(out, q.items)
	return out
}

// ipMatch implements the wildcard rule: a zero/unset IP on the filter
// side matches any address.
func ipMatch(filter, candidate net.IP) bool {
	if filter == nil || filter.IsUnspecified() {
		return true
	}
	return filter.Equal(candidate)
}

// FindByComID locates a send-queue element by (comId, dstIp), enforcing
// Invariant 3 ("at most one element per (comId, dstIp)" on the send
// queue) as a lookup key.
func (q *Queue) FindByComID(comID uint32, dstIP net.IP) *Element {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.items {
		if e.Addr.ComID == comID && e.Addr.DstIP.Equal(dstIP) {
			return e
		}
	}
	return nil
}

// FindByComIDOnly locates a send-queue element by comId alone, used to
// resolve the publication a PULL request's replyComId names regardless
// of which destination it normally publishes to.
func (q *Queue) FindByComIDOnly(comID uint32) *Element {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.items {
		if e.Addr.ComID == comID {
			return e
		}
	}
	return nil
}

// FindByAddr locates a receive-queue element matching a frame's (comId,
// srcIp, dstIp), with wildcard IP matching on srcIP/dstIP (§4.Q). It does
// not consider the subscription's topology counters: callers that need
// §4.R step 6's separate topology validation check that themselves, so
// a topology-stale subscription is found (and can report TopoErr)
// instead of looking indistinguishable from "no subscription exists".
func (q *Queue) FindByAddr(comID uint32, srcIP, dstIP net.IP) *Element {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.items {
		if e.Addr.ComID != comID {
			continue
		}
		if !ipMatch(e.Addr.SrcIP, srcIP) {
			continue
		}
		if !ipMatch(e.Addr.DstIP, dstIP) {
			continue
		}
		return e
	}
	return nil
}

// FindBySubAddr locates a receive-queue element matching the full
// subscription tuple, including the subscription's own topology
// counters (§4.Q).
func (q *Queue) FindBySubAddr(comID uint32, srcIP, dstIP net.IP, etbTopoCnt, opTrnTopoCnt uint32) *Element {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.items {
		if e.Addr.ComID != comID {
			continue
		}
		if e.Addr.EtbTopoCnt != 0 && e.Addr.EtbTopoCnt != etbTopoCnt {
			continue
		}
		if e.Addr.OpTrnTopoCnt != 0 && e.Addr.OpTrnTopoCnt != opTrnTopoCnt {
			continue
		}
		if !ipMatch(e.Addr.SrcIP, srcIP) {
			continue
		}
		if !ipMatch(e.Addr.DstIP, dstIP) {
			continue
		}
		return e
	}
	return nil
}
