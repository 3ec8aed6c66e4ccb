package pd

import "errors"

// ResultCode mirrors the small error enumeration the application observes,
// either as a returned error or as a callback's resultCode field.
type ResultCode uint8

const (
	Ok ResultCode = iota
	ParamErr
	MemErr
	NoSubErr
	NoDataErr
	TimeoutErr
	WireErr
	CrcErr
	TopoErr
	IoErr
	BlockErr
)

func (r ResultCode) String() string {
	switch r {
	case Ok:
		return "ok"
	case ParamErr:
		return "param_err"
	case MemErr:
		return "mem_err"
	case NoSubErr:
		return "no_sub_err"
	case NoDataErr:
		return "no_data_err"
	case TimeoutErr:
		return "timeout_err"
	case WireErr:
		return "wire_err"
	case CrcErr:
		return "crc_err"
	case TopoErr:
		return "topo_err"
	case IoErr:
		return "io_err"
	case BlockErr:
		return "block_err"
	}
	return "unknown"
}

// resultErr lets a ResultCode satisfy the error interface so internal
// plumbing can return it directly where a plain error is expected.
type resultErr struct{ code ResultCode }

func (e *resultErr) Error() string { return e.code.String() }

// Err wraps a ResultCode as an error. Ok wraps to nil.
func (r ResultCode) Err() error {
	if r == Ok {
		return nil
	}
	return &resultErr{code: r}
}

// CodeOf extracts the ResultCode carried by an error produced via Err,
// defaulting to IoErr for errors of unknown origin.
func CodeOf(err error) ResultCode {
	if err == nil {
		return Ok
	}
	var re *resultErr
	if errors.As(err, &re) {
		return re.code
	}
	return IoErr
}

var (
	// ErrOverflow names the case of a full per-subscription source list
	// meeting a new source. The sequence tracker reports that case as
	// seqOverflow, and receiveOne drops the frame without returning it.
	ErrOverflow = errors.New("sequence tracker: source table overflow")

	// ErrShortPacket / ErrInvalidLength mirror trdp_pdcom.c's wire sanity checks.
	ErrShortPacket   = errors.New("pd: short packet")
	ErrInvalidLength = errors.New("pd: invalid dataset length")
)
