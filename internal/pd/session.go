package pd

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Session owns one PD endpoint: its primary socket, the send and receive
// queues, and the topology identity incoming frames are checked against.
// It corresponds to the per-instance state trdp_pdInit sets up in the
// original implementation.
type Session struct {
	cfg SessionConfig

	log   *slog.Logger
	clock clockwork.Clock

	sockets *socketTable
	primary *socket

	sendQueue *Queue
	recvQueue *Queue

	mu           sync.RWMutex
	etbTopoCnt   uint32
	opTrnTopoCnt uint32

	stats sessionStats
}

type sessionStats struct {
	mu sync.Mutex

	numSend    uint32
	numRcv     uint32
	numCrcErr  uint32
	numProtErr uint32
	numTopoErr uint32
	numNoSubs  uint32
	numTimeOut uint32
	numMissed  uint32
}

func (s *sessionStats) snapshot() sessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sessionStats{
		numSend:    s.numSend,
		numRcv:     s.numRcv,
		numCrcErr:  s.numCrcErr,
		numProtErr: s.numProtErr,
		numTopoErr: s.numTopoErr,
		numNoSubs:  s.numNoSubs,
		numTimeOut: s.numTimeOut,
		numMissed:  s.numMissed,
	}
}

// NewSession validates cfg, binds the primary socket, and returns a ready
// Session. Callers drive it with RunTransmit, RunReceive and
// RunTimeoutSupervisor.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	primary, err := listenSocket(cfg.BindIP, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("pd: bind session socket: %w", err)
	}
	s := &Session{
		cfg:          cfg,
		log:          cfg.Logger,
		clock:        cfg.Clock,
		sockets:      newSocketTable(primary),
		primary:      primary,
		sendQueue:    &Queue{},
		recvQueue:    &Queue{},
		etbTopoCnt:   cfg.EtbTopoCnt,
		opTrnTopoCnt: cfg.OpTrnTopoCnt,
	}
	return s, nil
}

// Close releases every socket the session holds, including joined
// multicast groups.
func (s *Session) Close() error {
	s.sockets.CloseAll()
	return nil
}

// SetTopology updates the session's reference topology counters, used by
// validTopology on every received frame (§4.T).
func (s *Session) SetTopology(etbTopoCnt, opTrnTopoCnt uint32) {
	s.mu.Lock()
	s.etbTopoCnt = etbTopoCnt
	s.opTrnTopoCnt = opTrnTopoCnt
	s.mu.Unlock()
}

func (s *Session) topology() (uint32, uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.etbTopoCnt, s.opTrnTopoCnt
}

// Publish registers a cyclic publication and returns the element handle
// subsequent Put calls use. A zero interval takes the session's
// DefaultCycleTime, so Publish itself never creates a PULL-only element.
// At most one publication may exist per (comId, dstIp) pair.
func (s *Session) Publish(addr Addr, interval time.Duration, flags Flag, replyComID uint32, marshal MarshalFunc, userRef any) (*Element, error) {
	if existing := s.sendQueue.FindByComID(addr.ComID, addr.DstIP); existing != nil {
		return nil, ParamErr.Err()
	}
	if interval == 0 {
		interval = s.cfg.DefaultCycleTime
	}
	e := newElement(addr)
	e.Interval = interval
	e.Flags = flags
	e.MsgType = MsgPd
	e.ReplyComID = replyComID
	e.Marshal = marshal
	e.UserRef = userRef
	e.TimeToGo = s.clock.Now()
	s.sendQueue.Insert(e)
	metricSendQueueLen.Set(float64(s.sendQueue.Len()))
	s.distribute()
	return e, nil
}

// Unpublish removes a publication from the send queue.
func (s *Session) Unpublish(e *Element) {
	if s.sendQueue.Remove(e) {
		metricSendQueueLen.Set(float64(s.sendQueue.Len()))
		s.distribute()
	}
}

// Subscribe registers interest in frames matching addr and returns the
// element handle holding the last received data.
func (s *Session) Subscribe(addr Addr, timeout time.Duration, flags Flag, unmarshal UnmarshalFunc, callback CallbackFunc, userRef any) (*Element, error) {
	if timeout == 0 {
		timeout = s.cfg.DefaultTimeout
	}
	e := newElement(addr)
	e.Interval = timeout
	e.Flags = flags
	e.MsgType = MsgPd
	e.Unmarshal = unmarshal
	e.Callback = callback
	e.UserRef = userRef
	e.seq = newSequenceTracker()
	e.TimeToGo = s.clock.Now().Add(timeout)
	s.recvQueue.Insert(e)
	metricRecvQueueLen.Set(float64(s.recvQueue.Len()))
	return e, nil
}

// Unsubscribe removes a subscription from the receive queue.
func (s *Session) Unsubscribe(e *Element) {
	if s.recvQueue.Remove(e) {
		metricRecvQueueLen.Set(float64(s.recvQueue.Len()))
	}
}

// Put stores a fresh payload on a publication. Transmission still
// follows the publication's own Interval/TimeToGo schedule (set up by
// Publish and maintained by distribute); Put does not force an
// out-of-cycle send, matching trdp_pdPut in the original implementation.
func (s *Session) Put(e *Element, dataset []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	wire := dataset
	if e.Flags.has(FlagMarshall) && e.Marshal != nil {
		var err error
		var newCached any
		wire, newCached, err = e.Marshal(e.UserRef, e.Addr.ComID, dataset, e.cachedDS)
		if err != nil {
			return err
		}
		e.cachedDS = newCached
	}

	if err := e.setPayload(wire); err != nil {
		return err
	}
	e.Stats.UpdPkts++
	return nil
}

// Get returns the last-known payload and freshness info for a
// subscription.
func (s *Session) Get(e *Element) (payload []byte, info MsgInfo, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Stats.GetPkts++
	if e.priv.has(flagInvalidData) {
		return nil, MsgInfo{}, NoDataErr.Err()
	}
	rc := Ok
	if e.priv.has(flagTimedOut) {
		rc = TimeoutErr
	}
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
		ResultCode:   rc,
	}
	return e.payload(), info, rc.Err()
}
