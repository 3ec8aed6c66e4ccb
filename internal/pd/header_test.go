package pd

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeader_PutParseRoundTrip(t *testing.T) {
	t.Parallel()
	h := Header{
		SequenceCounter: 42,
		ProtocolVersion: protocolVersion,
		MsgType:         MsgPd,
		ComID:           1001,
		EtbTopoCnt:      7,
		OpTrnTopoCnt:    9,
		DatasetLength:   4,
		ReplyComID:      55,
		ReplyIPAddress:  0x0A000001,
	}
	buf := make([]byte, HeaderSize)
	putHeader(buf, &h)
	got := parseHeader(buf)
	got.FrameCheckSum = 0 // not stamped by putHeader
	h.FrameCheckSum = 0
	require.Equal(t, h, got)
}

func TestHeader_StampFCSAndCheckAccept(t *testing.T) {
	t.Parallel()
	buf := make([]byte, HeaderSize+4)
	h := Header{ProtocolVersion: protocolVersion, MsgType: MsgPd, ComID: 1, DatasetLength: 4}
	putHeader(buf, &h)
	stampFCS(buf[:HeaderSize])
	require.Equal(t, CheckOk, check(buf, len(buf)))
}

func TestHeader_CheckDetectsCrcCorruption(t *testing.T) {
	t.Parallel()
	buf := make([]byte, HeaderSize)
	h := Header{ProtocolVersion: protocolVersion, MsgType: MsgPd, ComID: 1}
	putHeader(buf, &h)
	stampFCS(buf)
	buf[0] ^= 0xFF
	require.Equal(t, CheckCrcErr, check(buf, len(buf)))
}

func TestHeader_CheckRejectsShortDatagram(t *testing.T) {
	t.Parallel()
	require.Equal(t, CheckWireErr, check(make([]byte, HeaderSize-1), HeaderSize-1))
}

func TestHeader_CheckRejectsBadProtocolVersionMajor(t *testing.T) {
	t.Parallel()
	buf := make([]byte, HeaderSize)
	h := Header{ProtocolVersion: uint16(99) << 8, MsgType: MsgPd}
	putHeader(buf, &h)
	stampFCS(buf)
	require.Equal(t, CheckWireErr, check(buf, len(buf)))
}

func TestHeader_CheckRejectsOversizeDatasetLength(t *testing.T) {
	t.Parallel()
	buf := make([]byte, HeaderSize)
	h := Header{ProtocolVersion: protocolVersion, MsgType: MsgPd, DatasetLength: MaxDatasetLength + 1}
	putHeader(buf, &h)
	stampFCS(buf)
	require.Equal(t, CheckWireErr, check(buf, len(buf)))
}

func TestHeader_CheckRejectsInvalidMsgType(t *testing.T) {
	t.Parallel()
	buf := make([]byte, HeaderSize)
	h := Header{ProtocolVersion: protocolVersion, MsgType: MsgType(0x9999)}
	putHeader(buf, &h)
	stampFCS(buf)
	require.Equal(t, CheckWireErr, check(buf, len(buf)))
}

func TestHeader_CheckRejectsTruncatedDataset(t *testing.T) {
	t.Parallel()
	buf := make([]byte, HeaderSize)
	h := Header{ProtocolVersion: protocolVersion, MsgType: MsgPd, DatasetLength: 10}
	putHeader(buf, &h)
	stampFCS(buf)
	require.Equal(t, CheckWireErr, check(buf, HeaderSize))
}

func TestHeader_UpdateBumpsSequenceAndRestampsFCS(t *testing.T) {
	t.Parallel()
	e := newElement(Addr{ComID: 1})
	initHeader(e, MsgPd, 0, 0, 0, 0)
	update(e, MsgPd)
	require.Equal(t, uint32(1), e.CurSeqCnt)
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(e.Frame[offSequenceCounter:]))

	update(e, MsgPd)
	require.Equal(t, uint32(2), e.CurSeqCnt)
	require.Equal(t, crc(e.Frame[:HeaderSize]), binary.LittleEndian.Uint32(e.Frame[offFrameCheckSum:]))
}

func TestHeader_UpdateTracksPullSequenceSeparately(t *testing.T) {
	t.Parallel()
	e := newElement(Addr{ComID: 1})
	initHeader(e, MsgPd, 0, 0, 0, 0)
	update(e, MsgPd)
	update(e, MsgPp)
	require.Equal(t, uint32(1), e.CurSeqCnt)
	require.Equal(t, uint32(1), e.CurSeqCnt4Pull)
}

func TestMsgType_StringAndValid(t *testing.T) {
	t.Parallel()
	require.Equal(t, "Pd", MsgPd.String())
	require.True(t, MsgPr.valid())
	require.False(t, MsgType(0).valid())
	require.Equal(t, "?", MsgType(0).String())
}
