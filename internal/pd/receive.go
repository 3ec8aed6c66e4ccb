package pd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"
)

// receiveLoop runs on one socket, continuously reading datagrams and
// feeding them through receiveOne until ctx is canceled or the socket
// fails fatally. Grounded on the deadline-poll/fatal-error pattern used
// for this codebase's other UDP read loops.
type receiveLoop struct {
	sess *Session
	sock *socket

	readErrWarnEvery time.Duration
	readErrWarnLast  time.Time
	readErrWarnMu    sync.Mutex
}

func newReceiveLoop(sess *Session, sock *socket) *receiveLoop {
	return &receiveLoop{sess: sess, sock: sock, readErrWarnEvery: 5 * time.Second}
}

// RunReceive drives the read loop on the session's primary socket until
// ctx is canceled. It reads only the primary socket; no loop is started
// for multicast-group sockets in the socket table.
func (s *Session) RunReceive(ctx context.Context) error {
	return newReceiveLoop(s, s.primary).Run(ctx)
}

func (r *receiveLoop) Run(ctx context.Context) error {
	r.sess.log.Debug("pd.receive: rx loop started")
	buf := make([]byte, MaxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := r.sock.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("pd: socket closed during SetReadDeadline: %w", err)
			}
			if isFatalNetErr(err) {
				return fmt.Errorf("pd: fatal network error: %w", err)
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}

		n, srcIP, srcPort, dstIP, ifname, err := r.sock.readFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("pd: socket closed during ReadFrom: %w", err)
			}
			r.warnThrottled(err)
			if isFatalNetErr(err) {
				return fmt.Errorf("pd: fatal network error: %w", err)
			}
			continue
		}

		r.sess.receiveOne(buf[:n], srcIP, srcPort, dstIP, ifname)
	}
}

func (r *receiveLoop) warnThrottled(err error) {
	now := time.Now()
	r.readErrWarnMu.Lock()
	defer r.readErrWarnMu.Unlock()
	if r.readErrWarnLast.IsZero() || now.Sub(r.readErrWarnLast) >= r.readErrWarnEvery {
		r.readErrWarnLast = now
		r.sess.log.Warn("pd.receive: read error", "error", err)
	}
}

func isFatalNetErr(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var se syscall.Errno
	if errors.As(err, &se) {
		switch se {
		case syscall.EBADF, syscall.ENETDOWN, syscall.ENODEV, syscall.ENXIO:
			return true
		}
	}
	var oe *net.OpError
	if errors.As(err, &oe) && !oe.Timeout() && !oe.Temporary() {
		return true
	}
	return false
}

// receiveOne implements §4.R: validate the frame, look up the matching
// subscription, run sequence/topology checks, swap in the new payload
// and invoke the callback, or answer a PULL request by marking the
// matching publication due for an immediate one-shot reply.
func (s *Session) receiveOne(buf []byte, srcIP net.IP, srcPort int, dstIP net.IP, ifname string) {
	switch check(buf, len(buf)) {
	case CheckWireErr:
		s.stats.mu.Lock()
		s.stats.numProtErr++
		s.stats.mu.Unlock()
		emitWireErrMetrics(ifname)
		return
	case CheckCrcErr:
		s.stats.mu.Lock()
		s.stats.numCrcErr++
		s.stats.mu.Unlock()
		emitCrcErrMetrics(ifname)
		return
	}

	h := parseHeader(buf[:HeaderSize])
	payload := buf[HeaderSize : HeaderSize+int(h.DatasetLength)]

	s.stats.mu.Lock()
	s.stats.numRcv++
	s.stats.mu.Unlock()
	emitRecvMetrics(h.ComID)

	sessEtb, sessOpTrn := s.topology()
	if !validTopology(sessEtb, sessOpTrn, h.EtbTopoCnt, h.OpTrnTopoCnt) {
		s.stats.mu.Lock()
		s.stats.numTopoErr++
		s.stats.mu.Unlock()
		emitTopoErrMetrics(h.ComID)
		return
	}

	if h.MsgType == MsgPr {
		s.handlePullRequest(h, srcIP, srcPort)
		return
	}

	e := s.recvQueue.FindByAddr(h.ComID, srcIP, dstIP)
	if e == nil {
		s.stats.mu.Lock()
		s.stats.numNoSubs++
		s.stats.mu.Unlock()
		emitNoSubsMetrics(h.ComID)
		return
	}

	// §4.R step 6: the subscription's own stored topology counters (as
	// opposed to the session-wide check above) must be zero or match
	// the frame. Failure reports TopoErr on the subscription and
	// informs the user without swapping in the new frame.
	if !validTopology(h.EtbTopoCnt, h.OpTrnTopoCnt, e.Addr.EtbTopoCnt, e.Addr.OpTrnTopoCnt) {
		e.mu.Lock()
		e.Stats.LastErr = TopoErr
		cb := e.Callback
		deliver := cb != nil && e.Flags.has(FlagCallback)
		var info MsgInfo
		if deliver {
			info = MsgInfo{
				ComID: h.ComID, SrcIP: srcIP, DstIP: dstIP,
				EtbTopoCnt: h.EtbTopoCnt, OpTrnTopoCnt: h.OpTrnTopoCnt,
				MsgType: h.MsgType, SeqCount: h.SequenceCounter,
				ProtVersion: h.ProtocolVersion, ReplyComID: h.ReplyComID,
				ReplyIPAddr: replyIPFromUint32(h.ReplyIPAddress), UserRef: e.UserRef,
				ResultCode: TopoErr,
			}
		}
		e.mu.Unlock()
		s.stats.mu.Lock()
		s.stats.numTopoErr++
		s.stats.mu.Unlock()
		emitTopoErrMetrics(h.ComID)
		if deliver {
			cb(info, nil)
		}
		return
	}

	e.mu.Lock()
	verdict, missed := e.seq.update(srcIP, h.MsgType, h.SequenceCounter)
	if verdict == seqDuplicate {
		e.mu.Unlock()
		return
	}
	if verdict == seqOverflow {
		e.mu.Unlock()
		return
	}
	if missed > 0 {
		e.Stats.NumMissed += missed
		emitMissedMetrics(h.ComID, missed)
	}

	out := payload
	cached := e.cachedDS
	if e.Flags.has(FlagMarshall) && e.Unmarshal != nil {
		var err error
		out, cached, err = e.Unmarshal(e.UserRef, h.ComID, payload, cached)
		if err != nil {
			e.mu.Unlock()
			return
		}
		e.cachedDS = cached
	}

	changed := e.priv.has(flagInvalidData) || !bytes.Equal(e.payload(), out)
	_ = e.setPayload(out)
	e.CurSeqCnt = h.SequenceCounter
	e.priv &^= flagTimedOut
	e.Stats.NumRxTx++
	e.TimeToGo = s.clock.Now().Add(e.Interval)

	cb := e.Callback
	deliver := cb != nil && e.Flags.has(FlagCallback) && (changed || e.Flags.has(FlagForceCallback))
	var info MsgInfo
	var infoPayload []byte
	if deliver {
		info = MsgInfo{
			ComID: h.ComID, SrcIP: srcIP, DstIP: dstIP,
			EtbTopoCnt: h.EtbTopoCnt, OpTrnTopoCnt: h.OpTrnTopoCnt,
			MsgType: h.MsgType, SeqCount: h.SequenceCounter,
			ProtVersion: h.ProtocolVersion, ReplyComID: h.ReplyComID,
			ReplyIPAddr: replyIPFromUint32(h.ReplyIPAddress), UserRef: e.UserRef,
			ResultCode: Ok,
		}
		infoPayload = append([]byte(nil), out...)
	}
	e.mu.Unlock()

	if deliver {
		cb(info, infoPayload)
	}
}

// handlePullRequest implements the PULL side of §4.R: look up the
// publication named by the request's replyComId (its comId when that is
// zero), refresh the payload from Stats when it is the statistics
// element, and mark it for a one-shot send on the next transmit sweep,
// to the request's reply address or else to the requester's source
// address, at the requester's source port.
func (s *Session) handlePullRequest(h Header, srcIP net.IP, srcPort int) {
	replyComID := h.ReplyComID
	if replyComID == 0 {
		replyComID = h.ComID
	}
	e := s.sendQueue.FindByComIDOnly(replyComID)
	if e == nil {
		s.stats.mu.Lock()
		s.stats.numNoSubs++
		s.stats.mu.Unlock()
		emitNoSubsMetrics(replyComID)
		return
	}
	e.mu.Lock()
	if e.Addr.ComID == StatisticsPullComID {
		_ = e.setPayload(s.Stats().MarshalBinary())
	}
	e.priv |= flagReqToBeSent
	if h.ReplyIPAddress != 0 {
		e.PullIPAddress = replyIPFromUint32(h.ReplyIPAddress)
	} else {
		e.PullIPAddress = srcIP
	}
	e.PullPort = srcPort
	e.mu.Unlock()
}

func replyIPFromUint32(v uint32) net.IP {
	if v == 0 {
		return nil
	}
	ip := make(net.IP, 4)
	ip[0] = byte(v >> 24)
	ip[1] = byte(v >> 16)
	ip[2] = byte(v >> 8)
	ip[3] = byte(v)
	return ip
}
