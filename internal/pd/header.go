package pd

import (
	"encoding/binary"
	"hash/crc32"
)

// MsgType identifies the four PD telegram kinds on the wire.
type MsgType uint16

const (
	MsgPd MsgType = 0x5064 // "Pd" - cyclic process data
	MsgPp MsgType = 0x5070 // "Pp" - PULL reply (a published Pd sent on request)
	MsgPr MsgType = 0x5072 // "Pr" - PULL request
	MsgPe MsgType = 0x5065 // "Pe" - error/event telegram (reserved, unused by the core)
)

func (m MsgType) String() string {
	switch m {
	case MsgPd:
		return "Pd"
	case MsgPp:
		return "Pp"
	case MsgPr:
		return "Pr"
	case MsgPe:
		return "Pe"
	}
	return "?"
}

func (m MsgType) valid() bool {
	switch m {
	case MsgPd, MsgPp, MsgPr, MsgPe:
		return true
	}
	return false
}

const (
	// HeaderSize is the fixed 40-byte PD telegram header.
	HeaderSize = 40

	// MaxDatasetLength bounds the payload so header+payload never exceeds
	// a common MTU-sized datagram.
	MaxDatasetLength = 1432

	// MaxDatagramSize is HeaderSize + MaxDatasetLength.
	MaxDatagramSize = HeaderSize + MaxDatasetLength

	// ProtocolVersionMajor is the only half of protocolVersion the wire
	// check enforces; the minor byte may vary between peers.
	ProtocolVersionMajor = 1

	protocolVersion = uint16(ProtocolVersionMajor)<<8 | 0 // major.minor, minor pinned to 0 on send
)

// header byte offsets, network order unless noted.
const (
	offSequenceCounter = 0
	offProtocolVersion = 4
	offMsgType         = 6
	offComID           = 8
	offEtbTopoCnt      = 12
	offOpTrnTopoCnt    = 16
	offDatasetLength   = 20
	offReserved        = 24
	offReplyComID      = 28
	offReplyIPAddress  = 32
	offFrameCheckSum   = 36
)

// Header is the decoded form of a 40-byte PD telegram header.
type Header struct {
	SequenceCounter uint32
	ProtocolVersion uint16
	MsgType         MsgType
	ComID           uint32
	EtbTopoCnt      uint32
	OpTrnTopoCnt    uint32
	DatasetLength   uint32
	Reserved        uint32
	ReplyComID      uint32
	ReplyIPAddress  uint32
	FrameCheckSum   uint32
}

// putHeader stamps the header fields into buf[0:40] (big-endian, except
// the FCS field which is written separately in little-endian by stampFCS).
// The caller is responsible for computing and writing the CRC afterwards.
func putHeader(buf []byte, h *Header) {
	be := binary.BigEndian
	be.PutUint32(buf[offSequenceCounter:], h.SequenceCounter)
	be.PutUint16(buf[offProtocolVersion:], h.ProtocolVersion)
	be.PutUint16(buf[offMsgType:], uint16(h.MsgType))
	be.PutUint32(buf[offComID:], h.ComID)
	be.PutUint32(buf[offEtbTopoCnt:], h.EtbTopoCnt)
	be.PutUint32(buf[offOpTrnTopoCnt:], h.OpTrnTopoCnt)
	be.PutUint32(buf[offDatasetLength:], h.DatasetLength)
	be.PutUint32(buf[offReserved:], h.Reserved)
	be.PutUint32(buf[offReplyComID:], h.ReplyComID)
	be.PutUint32(buf[offReplyIPAddress:], h.ReplyIPAddress)
}

// parseHeader decodes buf[0:40] into a Header, including the FCS field
// which is read little-endian per the wire format.
func parseHeader(buf []byte) Header {
	be := binary.BigEndian
	return Header{
		SequenceCounter: be.Uint32(buf[offSequenceCounter:]),
		ProtocolVersion: be.Uint16(buf[offProtocolVersion:]),
		MsgType:         MsgType(be.Uint16(buf[offMsgType:])),
		ComID:           be.Uint32(buf[offComID:]),
		EtbTopoCnt:      be.Uint32(buf[offEtbTopoCnt:]),
		OpTrnTopoCnt:    be.Uint32(buf[offOpTrnTopoCnt:]),
		DatasetLength:   be.Uint32(buf[offDatasetLength:]),
		Reserved:        be.Uint32(buf[offReserved:]),
		ReplyComID:      be.Uint32(buf[offReplyComID:]),
		ReplyIPAddress:  be.Uint32(buf[offReplyIPAddress:]),
		FrameCheckSum:   binary.LittleEndian.Uint32(buf[offFrameCheckSum:]),
	}
}

// crc computes the IEEE 802.3 CRC-32 over the first 36 header bytes
// (everything but the FCS field itself). No FCS is computed over the
// payload: §3 "no trailing FCS over data".
func crc(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf[:offFrameCheckSum])
}

// stampFCS computes the CRC over buf[:36] and writes it little-endian
// into buf[36:40].
func stampFCS(buf []byte) {
	binary.LittleEndian.PutUint32(buf[offFrameCheckSum:], crc(buf))
}

// CheckResult is the outcome of validating a received frame's header.
type CheckResult int

const (
	CheckOk CheckResult = iota
	CheckCrcErr
	CheckWireErr
)

// check validates a received datagram per §4.F: size bounds, protocol
// major version, dataset length, and msgType, then the FCS.
func check(buf []byte, recvSize int) CheckResult {
	if recvSize < HeaderSize || recvSize > MaxDatagramSize {
		return CheckWireErr
	}
	h := parseHeader(buf[:HeaderSize])
	if byte(h.ProtocolVersion>>8) != ProtocolVersionMajor {
		return CheckWireErr
	}
	if h.DatasetLength > MaxDatasetLength {
		return CheckWireErr
	}
	if !h.MsgType.valid() {
		return CheckWireErr
	}
	if int(HeaderSize+h.DatasetLength) > recvSize {
		return CheckWireErr
	}
	if crc(buf[:HeaderSize]) != h.FrameCheckSum {
		return CheckCrcErr
	}
	return CheckOk
}

// initHeader stamps a fresh header from the element's current addressing
// and flags (§4.F init). It does not touch the sequence counter or FCS;
// call update() for that immediately before transmit.
func initHeader(e *Element, msgType MsgType, etbTopoCnt, opTrnTopoCnt, replyComID, replyIPAddress uint32) {
	h := Header{
		ProtocolVersion: protocolVersion,
		MsgType:         msgType,
		ComID:           e.Addr.ComID,
		EtbTopoCnt:      etbTopoCnt,
		OpTrnTopoCnt:    opTrnTopoCnt,
		DatasetLength:   uint32(e.DataSize),
		ReplyComID:      replyComID,
		ReplyIPAddress:  replyIPAddress,
	}
	putHeader(e.Frame[:HeaderSize], &h)
}

// update bumps the appropriate sequence counter (curSeqCnt4Pull for Pp,
// curSeqCnt otherwise), writes it and recomputes the FCS (§4.F update).
func update(e *Element, msgType MsgType) {
	if msgType == MsgPp {
		e.CurSeqCnt4Pull++
		binary.BigEndian.PutUint32(e.Frame[offSequenceCounter:], e.CurSeqCnt4Pull)
	} else {
		e.CurSeqCnt++
		binary.BigEndian.PutUint32(e.Frame[offSequenceCounter:], e.CurSeqCnt)
	}
	binary.BigEndian.PutUint16(e.Frame[offMsgType:], uint16(msgType))
	stampFCS(e.Frame[:HeaderSize])
}
