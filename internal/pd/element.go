package pd

import (
	"net"
	"sync"
	"time"
)

// Flag is the set of application-visible behavior switches on an element.
type Flag uint8

const (
	// FlagCallback enables data-change/timeout callback delivery.
	FlagCallback Flag = 1 << iota
	// FlagForceCallback delivers the callback on every accepted frame,
	// regardless of whether the payload changed.
	FlagForceCallback
	// FlagMarshall routes the payload through the marshal/unmarshal hooks.
	FlagMarshall
	// FlagRedundant silences transmit because another node in this
	// element's redundancy group is currently authoritative.
	FlagRedundant
)

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// privFlag is the set of internal-only state bits (§3 "private").
type privFlag uint8

const (
	flagInvalidData privFlag = 1 << iota
	flagTimedOut
	flagReqToBeSent
)

func (f privFlag) has(bit privFlag) bool { return f&bit != 0 }

// Addr is the addressing tuple that identifies a publication or
// subscription (§3 "Packet element").
type Addr struct {
	ComID        uint32
	SrcIP        net.IP // wildcard (0.0.0.0 / nil) matches any source on subscribe
	DstIP        net.IP
	DstPort      int // 0 => the session's configured PD port
	EtbTopoCnt   uint32
	OpTrnTopoCnt uint32
}

// Stats are the per-element counters (§3). The statistics PULL reply
// carries session counters only, not these.
type Stats struct {
	UpdPkts   uint32 // Put calls
	GetPkts   uint32 // Get calls
	NumRxTx   uint32 // successful receives/sends
	NumMissed uint32 // gap accounting from the sequence tracker
	LastErr   ResultCode
}

// CallbackFunc delivers a data-change or timeout notification.
type CallbackFunc func(info MsgInfo, payload []byte)

// MsgInfo is the message-info record handed to publisher/subscriber
// callbacks (§6).
type MsgInfo struct {
	ComID        uint32
	SrcIP        net.IP
	DstIP        net.IP
	EtbTopoCnt   uint32
	OpTrnTopoCnt uint32
	MsgType      MsgType
	SeqCount     uint32
	ProtVersion  uint16
	ReplyComID   uint32
	ReplyIPAddr  net.IP
	UserRef      any
	ResultCode   ResultCode
}

// Element is the per-publication or per-subscription record (§3). It is
// owned by exactly one Queue at a time and mutated under mu by the
// session's transmit, receive and timeout loops.
type Element struct {
	mu sync.Mutex

	Addr     Addr
	Interval time.Duration // zero => PULL-only / one-shot
	TimeToGo time.Time     // absolute next-fire (tx) or next-timeout (rx) deadline

	CurSeqCnt      uint32 // last Pd sequence counter stamped/accepted
	CurSeqCnt4Pull uint32 // last Pp sequence counter stamped (publications only)

	seq *sequenceTracker // per-source dedup table (subscriptions only)

	Flags   Flag
	priv    privFlag
	MsgType MsgType // the type this element normally sends/expects (Pd or Pr)

	// PullIPAddress/PullPort transiently override the destination for
	// the single reply triggered by a PULL request; consulted only
	// while reqToBeSent is set and cleared by the transmit engine after
	// it sends that reply.
	PullIPAddress net.IP
	PullPort      int

	ReplyComID     uint32 // for Pr publications: comId of the requested reply
	ReplyIPAddress uint32 // for Pr publications: 0 => reply to requester's source

	Callback CallbackFunc
	UserRef  any

	Marshal   MarshalFunc
	Unmarshal UnmarshalFunc
	cachedDS  any // opaque handle round-tripped to the marshal hooks

	Stats Stats

	SockIndex int // index into the session's socket table, or -1

	// Frame is the owned header+payload buffer; DataSize is the number of
	// payload bytes currently stored (grossSize == HeaderSize+DataSize).
	Frame    []byte
	DataSize int
}

// newElement allocates a fresh element with a zeroed, header-sized frame
// and INVALID_DATA set (Invariant 2: unset until real payload is stored).
func newElement(addr Addr) *Element {
	e := &Element{
		Addr:      addr,
		SockIndex: -1,
		priv:      flagInvalidData,
	}
	e.Frame = make([]byte, HeaderSize)
	return e
}

// grossSize returns header+payload length, matching Invariant 1.
func (e *Element) grossSize() int { return HeaderSize + e.DataSize }

// setPayload stores new payload bytes, growing the frame buffer as
// needed and clearing INVALID_DATA.
func (e *Element) setPayload(payload []byte) error {
	if len(payload) > MaxDatasetLength {
		return ParamErr.Err()
	}
	need := HeaderSize + len(payload)
	if cap(e.Frame) < need {
		nf := make([]byte, need)
		copy(nf, e.Frame[:HeaderSize])
		e.Frame = nf
	} else {
		e.Frame = e.Frame[:need]
	}
	copy(e.Frame[HeaderSize:], payload)
	e.DataSize = len(payload)
	e.priv &^= flagInvalidData
	return nil
}

// payload returns the currently stored payload bytes (read-only view).
func (e *Element) payload() []byte {
	if e.DataSize == 0 {
		return nil
	}
	return e.Frame[HeaderSize : HeaderSize+e.DataSize]
}
