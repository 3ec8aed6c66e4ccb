package pd

import "net"

// RequestPull implements the application-facing half of PULL (§4.P): it
// sends a Pr telegram to target asking it to reply on replyComID. A zero
// port sends to the port the session's primary socket is bound to. No
// subscription for the reply is registered.
func (s *Session) RequestPull(comID uint32, target net.IP, port int, replyComID uint32) error {
	if port == 0 {
		port = s.primary.raw.LocalAddr().(*net.UDPAddr).Port
	}
	e := newElement(Addr{ComID: comID, DstIP: target, DstPort: port})
	e.MsgType = MsgPr
	e.ReplyComID = replyComID
	e.ReplyIPAddress = 0
	e.TimeToGo = s.clock.Now()
	e.Interval = 0
	e.priv |= flagReqToBeSent

	sockIdx := 0
	etbTopoCnt, opTrnTopoCnt := s.topology()
	initHeader(e, MsgPr, etbTopoCnt, opTrnTopoCnt, replyComID, 0)
	update(e, MsgPr)

	sock := s.sockets.Get(sockIdx)
	if sock == nil {
		sock = s.primary
	}
	frame := append([]byte(nil), e.Frame[:e.grossSize()]...)
	_, err := sock.writeTo(frame, target, port, nil)
	if err != nil {
		return IoErr.Err()
	}
	s.stats.mu.Lock()
	s.stats.numSend++
	s.stats.mu.Unlock()
	emitSendMetrics(comID)
	return nil
}

// checkPending walks the send queue looking for one-shot PULL replies
// still waiting to go out (flagReqToBeSent set by a received Pr), so a
// caller can report backlog without driving the full transmit loop.
func (s *Session) checkPending() int {
	n := 0
	for _, e := range s.sendQueue.Snapshot() {
		e.mu.Lock()
		if e.priv.has(flagReqToBeSent) {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// checkListenSocks reports the sockets currently open across the
// session's socket table (primary plus any joined multicast groups),
// so a caller driving its own select/poll loop knows what to watch.
func (s *Session) checkListenSocks() []int {
	return s.sockets.Active()
}
