package registry

// ABIVersion is the compile-time constant every decoder plugin must return
// from KafkaxDecoderABIVersion. v2 is authoritative for this repository —
// see SPEC_FULL.md §4.2 for why v1 (envelope = raw broker message) was not
// chosen.
const ABIVersion int32 = 2

// DecodeKind mirrors kafkax_decode_kind_t.
type DecodeKind int32

const (
	DecodeOK       DecodeKind = 0
	DecodeErr      DecodeKind = 1
	DecodeNeedMore DecodeKind = 2
	DecodeSkip     DecodeKind = 3
)

// Envelope is the read-only view of one broker message passed to a decoder.
// All byte slices are views into memory owned by the core for the duration
// of the decode call only; a plugin must not retain them past return.
type Envelope struct {
	Topic        string
	Partition    int32
	Offset       int64
	TimestampMs  int64
	HasTimestamp bool
	Key          []byte
	Payload      []byte
}

// errMsgCap is the size of the plugin-facing error buffer (v2: 256 bytes).
const errMsgCap = 256

// DecodeResult is the caller-provided output record a decode function
// fills in. Kind defaults to DecodeOK's zero value only by convention —
// plugins are expected to always set Kind explicitly.
type DecodeResult struct {
	Kind DecodeKind

	// Buf holds the decoded bytes. The plugin owns this slice; the core
	// copies it immediately upon return (see invariant 6 in spec.md §8).
	Buf []byte

	// ErrMsg is a fixed-capacity NUL-terminated message buffer, matching
	// the ABI's 256-byte error buffer.
	ErrMsg [errMsgCap]byte
}

// SetErrMsg copies msg into ErrMsg, truncating as necessary and always
// leaving the buffer NUL-terminated.
func (r *DecodeResult) SetErrMsg(msg string) {
	r.ErrMsg = [errMsgCap]byte{}
	n := len(msg)
	if n > errMsgCap-1 {
		n = errMsgCap - 1
	}
	copy(r.ErrMsg[:n], msg[:n])
}

// ABIVersionFunc is the type a plugin's KafkaxDecoderABIVersion symbol must
// satisfy.
type ABIVersionFunc func() int32

// DecodeFunc is the type a plugin's decode symbol must satisfy. Return 0
// means "consulted out for the result"; non-zero means a plugin-internal
// failure and the core treats it as DecodeErr regardless of out.Kind.
type DecodeFunc func(env *Envelope, out *DecodeResult) int32
