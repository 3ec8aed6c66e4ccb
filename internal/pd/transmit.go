package pd

import (
	"context"
	"net"
	"time"
)

// transmitTick is the sweep interval the transmit loop polls the send
// queue at; actual due-times are still governed by each element's
// TimeToGo, so this only bounds how coarsely due deadlines are noticed.
const transmitTick = 10 * time.Millisecond

// RunTransmit drives the transmit engine until ctx is canceled: each
// tick it walks the send queue once, sending every element that is due
// (cyclic, by TimeToGo) or has a pending one-shot PULL reply queued by
// the receive path (§4.X).
func (s *Session) RunTransmit(ctx context.Context) error {
	s.log.Debug("pd.transmit: tx loop started")
	ticker := time.NewTicker(transmitTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sendQueued()
		}
	}
}

// sendQueued implements §4.X: for each publication, skip if redundancy
// silences it; send if cyclic-due or a one-shot reply is pending;
// reschedule cyclic elements and clear the one-shot flag afterwards.
func (s *Session) sendQueued() {
	now := s.clock.Now()
	for _, e := range s.sendQueue.Snapshot() {
		e.mu.Lock()
		if e.Flags.has(FlagRedundant) {
			e.mu.Unlock()
			continue
		}

		due := e.Interval > 0 && !e.TimeToGo.After(now)
		oneShot := e.priv.has(flagReqToBeSent)
		if !due && !oneShot {
			e.mu.Unlock()
			continue
		}
		if e.priv.has(flagInvalidData) {
			if due {
				e.TimeToGo = now.Add(e.Interval)
			}
			e.mu.Unlock()
			continue
		}

		dst := e.Addr.DstIP
		port := e.Addr.DstPort
		if port == 0 {
			port = s.cfg.Port
		}
		msgType := MsgPd
		if oneShot && e.PullIPAddress != nil {
			dst = e.PullIPAddress
			port = e.PullPort
			msgType = MsgPp
		}
		sockIdx := e.SockIndex
		if sockIdx < 0 {
			sockIdx = 0
		}
		e.mu.Unlock()

		s.sendOne(e, sockIdx, dst, port, msgType)

		e.mu.Lock()
		if due {
			e.TimeToGo = now.Add(e.Interval)
		}
		if oneShot {
			e.priv &^= flagReqToBeSent
			e.PullIPAddress = nil
			e.PullPort = 0
		}
		e.mu.Unlock()
	}
}

// sendOne stamps the frame's sequence counter and FCS (§4.F update), then
// writes it to dst through the element's assigned socket.
func (s *Session) sendOne(e *Element, sockIdx int, dst net.IP, port int, msgType MsgType) {
	e.mu.Lock()
	if e.MsgType == 0 {
		e.MsgType = MsgPd
	}
	etbTopoCnt, opTrnTopoCnt := s.topology()
	initHeader(e, msgType, etbTopoCnt, opTrnTopoCnt, e.ReplyComID, e.ReplyIPAddress)
	update(e, msgType)

	comID := e.Addr.ComID
	if !validTopology(etbTopoCnt, opTrnTopoCnt, e.Addr.EtbTopoCnt, e.Addr.OpTrnTopoCnt) {
		e.Stats.LastErr = TopoErr
		e.mu.Unlock()
		s.stats.mu.Lock()
		s.stats.numTopoErr++
		s.stats.mu.Unlock()
		emitTopoErrMetrics(comID)
		return
	}

	frame := append([]byte(nil), e.Frame[:e.grossSize()]...)
	e.mu.Unlock()

	sock := s.sockets.Get(sockIdx)
	if sock == nil {
		sock = s.primary
	}
	if _, err := sock.writeTo(frame, dst, port, nil); err != nil {
		s.log.Warn("pd.transmit: write failed", "comId", comID, "error", err)
		return
	}
	s.stats.mu.Lock()
	s.stats.numSend++
	s.stats.mu.Unlock()
	e.mu.Lock()
	e.Stats.NumRxTx++
	e.mu.Unlock()
	emitSendMetrics(comID)
}
