package pd

import "encoding/binary"

// StatisticsPullComID is the well-known comId a peer PULLs to retrieve
// this session's running counters (trdp_pdcom.c's Ticket #120 errata:
// proposed statistics comId 61375).
const StatisticsPullComID = 61375

// SessionStats is the decoded form of the statistics element's payload.
type SessionStats struct {
	NumSend    uint32
	NumRcv     uint32
	NumCrcErr  uint32
	NumProtErr uint32
	NumTopoErr uint32
	NumNoSubs  uint32
	NumTimeOut uint32
	NumMissed  uint32
}

// Stats returns a snapshot of the session's running counters.
func (s *Session) Stats() SessionStats {
	snap := s.stats.snapshot()
	return SessionStats{
		NumSend:    snap.numSend,
		NumRcv:     snap.numRcv,
		NumCrcErr:  snap.numCrcErr,
		NumProtErr: snap.numProtErr,
		NumTopoErr: snap.numTopoErr,
		NumNoSubs:  snap.numNoSubs,
		NumTimeOut: snap.numTimeOut,
		NumMissed:  snap.numMissed,
	}
}

// MarshalBinary encodes SessionStats as eight big-endian uint32 fields,
// matching the wire convention every other PD dataset uses.
func (st SessionStats) MarshalBinary() []byte {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint32(buf[0:], st.NumSend)
	binary.BigEndian.PutUint32(buf[4:], st.NumRcv)
	binary.BigEndian.PutUint32(buf[8:], st.NumCrcErr)
	binary.BigEndian.PutUint32(buf[12:], st.NumProtErr)
	binary.BigEndian.PutUint32(buf[16:], st.NumTopoErr)
	binary.BigEndian.PutUint32(buf[20:], st.NumNoSubs)
	binary.BigEndian.PutUint32(buf[24:], st.NumTimeOut)
	binary.BigEndian.PutUint32(buf[28:], st.NumMissed)
	return buf
}

// PublishStatistics registers the well-known statistics publication as a
// PULL-only element: it is sent only in reply to PULL requests against
// StatisticsPullComID. Its payload is a Stats snapshot taken by the
// marshal hook on every Put and refreshed by handlePullRequest whenever
// such a request arrives (§6).
func (s *Session) PublishStatistics() (*Element, error) {
	marshal := func(_ any, _ uint32, _ []byte, cached any) ([]byte, any, error) {
		return s.Stats().MarshalBinary(), cached, nil
	}
	e, err := s.Publish(Addr{ComID: StatisticsPullComID}, 0, FlagMarshall, 0, marshal, nil)
	if err != nil {
		return nil, err
	}
	// Publish turns a zero interval into DefaultCycleTime; this element
	// has no cyclic destination.
	e.mu.Lock()
	e.Interval = 0
	e.mu.Unlock()
	if err := s.Put(e, nil); err != nil {
		return nil, err
	}
	return e, nil
}
