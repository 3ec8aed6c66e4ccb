package pd

import (
	"context"
	"time"
)

const timeoutTick = 20 * time.Millisecond

// RunTimeoutSupervisor drives §4.O: each tick it walks the receive
// queue once, marking subscriptions whose TimeToGo has elapsed as timed
// out and delivering a timeout callback exactly once per timeout event
// (idempotent: an already-timed-out element is skipped until fresh data
// or a restart clears flagTimedOut).
func (s *Session) RunTimeoutSupervisor(ctx context.Context) error {
	s.log.Debug("pd.timeout: supervisor started")
	ticker := time.NewTicker(timeoutTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.handleTimeOuts()
		}
	}
}

func (s *Session) handleTimeOuts() {
	now := s.clock.Now()
	for _, e := range s.recvQueue.Snapshot() {
		e.mu.Lock()
		if e.Interval <= 0 || e.priv.has(flagTimedOut) || e.TimeToGo.After(now) {
			e.mu.Unlock()
			continue
		}

		e.priv |= flagTimedOut
		e.Stats.LastErr = TimeoutErr
		comID := e.Addr.ComID

		cb := e.Callback
		deliver := cb != nil && e.Flags.has(FlagCallback)
		var info MsgInfo
		var payload []byte
		if deliver {
			info = MsgInfo{
				ComID:        e.Addr.ComID,
				SrcIP:        e.Addr.SrcIP,
				DstIP:        e.Addr.DstIP,
				EtbTopoCnt:   e.Addr.EtbTopoCnt,
				OpTrnTopoCnt: e.Addr.OpTrnTopoCnt,
				MsgType:      e.MsgType,
				SeqCount:     e.CurSeqCnt,
				ProtVersion:  protocolVersion,
				UserRef:      e.UserRef,
				ResultCode:   TimeoutErr,
			}
			payload = append([]byte(nil), e.payload()...)
		}
		e.mu.Unlock()

		s.stats.mu.Lock()
		s.stats.numTimeOut++
		s.stats.mu.Unlock()
		emitTimeoutMetrics(comID)

		if deliver {
			cb(info, payload)
		}
	}
}
