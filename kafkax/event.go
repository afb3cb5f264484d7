package kafkax

import "bytes"

// Kind tags an Event as successfully decoded data or a surfaced error.
type Kind uint8

const (
	KindData Kind = iota
	KindError
)

func (k Kind) String() string {
	if k == KindError {
		return "error"
	}
	return "data"
}

// errMsgCap is the fixed capacity of Event.ErrMsg, preserved for
// wire-level compatibility with the plugin ABI's error-message shape (see
// spec.md §3 and Design Notes).
const errMsgCap = 96

// Event is the tagged record handed to the host by Drain. Exactly one of
// Bytes (KindData) or ErrMsg (KindError) is meaningful for a given Kind.
type Event struct {
	Kind Kind

	Topic    string
	Key      []byte
	IngestNs int64

	// Decoder names the decoder symbol that produced this event, for
	// observability.
	Decoder string

	// Bytes holds the decoded payload for KindData.
	Bytes []byte

	// ErrMsg holds a NUL-terminated error message for KindError, fixed at
	// 96 bytes including the terminator.
	ErrMsg [errMsgCap]byte
}

// setErrMsg copies msg into ErrMsg, truncating to 95 bytes + NUL exactly
// as spec.md §4.4 step 7 requires.
func (e *Event) setErrMsg(msg string) {
	e.ErrMsg = [errMsgCap]byte{}
	n := len(msg)
	if n > errMsgCap-1 {
		n = errMsgCap - 1
	}
	copy(e.ErrMsg[:n], msg[:n])
}

// ErrMsgString returns the error message as a Go string, trimmed at the
// first NUL byte.
func (e *Event) ErrMsgString() string {
	if i := bytes.IndexByte(e.ErrMsg[:], 0); i >= 0 {
		return string(e.ErrMsg[:i])
	}
	return string(e.ErrMsg[:])
}
