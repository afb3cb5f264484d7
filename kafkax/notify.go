package kafkax

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// notifier owns the host-facing readiness descriptor (C5). It realizes
// the "coalesced wakeup" invariant: at most one outstanding write(2)
// between successive Drain calls, armed via a single CompareAndSwap,
// regardless of how many workers finish a burst concurrently.
//
// The shape of this type is adapted from the teacher's handleIOTrigger
// (zendesk-confluent-kafka-go/kafka/handle.go): a file descriptor edge
// triggers another event loop. There the pipe bridges librdkafka's queue
// into confluent-kafka-go's own goroutine; here the eventfd bridges this
// library's workers into the host's poll/epoll loop directly, so no
// internal reader goroutine is needed — the host owns the read side.
type notifier struct {
	fd    int
	armed atomic.Bool
}

func newNotifier() (*notifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "kafkax: eventfd")
	}
	return &notifier{fd: fd}, nil
}

// fire writes 1 to the descriptor iff it wasn't already armed, coalescing
// any number of concurrent callers into a single write. Returns true if
// this call performed the write.
func (n *notifier) fire() bool {
	if !n.armed.CompareAndSwap(false, true) {
		return false
	}
	n.write()
	return true
}

// disarm clears the armed flag, allowing a subsequent fire() (by a worker
// or by Drain itself) to write again. Called by Drain before it rescans
// the rings for leftover data; see Drain's doc comment for why the order
// matters.
func (n *notifier) disarm() {
	n.armed.Store(false)
}

func (n *notifier) write() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(n.fd, buf[:])
}

// FD returns the raw descriptor the host should poll for readability.
func (n *notifier) FD() int {
	return n.fd
}

func (n *notifier) Close() error {
	return unix.Close(n.fd)
}
