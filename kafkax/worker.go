package kafkax

import (
	"runtime"

	"github.com/shawntao1011/kafkax/registry"
	"github.com/shawntao1011/kafkax/ring"
	"go.uber.org/zap"
)

// worker is one decode worker (C4): it owns raw_ring[i] and evt_ring[i]
// exclusively and is the only goroutine that touches either.
type worker struct {
	id       int
	rawRing  *ring.Ring[rawMessage]
	evtRing  *ring.Ring[*Event]
	registry *registry.Registry

	watermark *watermarkState
	notifier  *notifier
	logger    *zap.Logger

	stopC <-chan struct{}
}

func (w *worker) stopped() bool {
	select {
	case <-w.stopC:
		return true
	default:
		return false
	}
}

// run is the decode Worker's main loop, exactly per spec.md §4.4.
func (w *worker) run() {
	for !w.stopped() {
		raw, ok := w.rawRing.TryPop()
		if !ok {
			seen := w.rawRing.Epoch()
			if w.stopped() {
				return
			}
			w.rawRing.Wait(seen)
			continue
		}

		// Steps 2-3: raw_ring pop already bumped the epoch and woke a
		// stalled producer as part of TryPop; account for the message.
		w.watermark.decr()

		// Step 4: request resume if we've drained below the low
		// watermark while paused.
		if w.watermark.paused.Load() && w.watermark.atOrBelowLow() {
			w.watermark.resumeRequested.Store(true)
		}

		ev := w.decode(raw)

		// Step 9: drop our reference to the raw message.
		raw.msg = nil

		// Step 10: push onto evt_ring[i]. Unlike the raw-ring backpressure
		// path, nothing ever kicks an event ring's epoch from the host side
		// (Drain only pops, it never signals), so waiting here would have
		// no guaranteed wakeup. The original's decode_loop yield-retries for
		// exactly this reason; on stop it drops the event rather than
		// risking a wait with no waker.
		for {
			if w.evtRing.TryPush(ev) {
				break
			}
			if w.stopped() {
				return
			}
			runtime.Gosched()
		}

		// Step 11: coalesced notify.
		w.notifier.fire()
	}
}

// decode builds the Event for one raw message, steps 5-8 of spec.md §4.4.
func (w *worker) decode(raw rawMessage) *Event {
	ev := &Event{Kind: KindData}

	msg := raw.msg
	if msg.TopicPartition.Topic != nil {
		ev.Topic = *msg.TopicPartition.Topic
	}
	if len(msg.Key) > 0 {
		ev.Key = append([]byte(nil), msg.Key...)
	}
	if !msg.Timestamp.IsZero() {
		ev.IngestNs = msg.Timestamp.UnixNano()
	}

	fn, symbol := w.registry.Lookup(ev.Topic)
	if fn == nil {
		ev.Kind = KindError
		ev.setErrMsg("decoder not bound")
		return ev
	}
	ev.Decoder = symbol

	env := &registry.Envelope{
		Topic:        ev.Topic,
		Partition:    msg.TopicPartition.Partition,
		Offset:       int64(msg.TopicPartition.Offset),
		Key:          msg.Key,
		Payload:      msg.Value,
		HasTimestamp: !msg.Timestamp.IsZero(),
	}
	if env.HasTimestamp {
		env.TimestampMs = msg.Timestamp.UnixMilli()
	}

	var out registry.DecodeResult
	rc := fn(env, &out)

	if rc != 0 || out.Kind != registry.DecodeOK {
		ev.Kind = KindError
		ev.setErrMsg(trimNUL(out.ErrMsg[:]))
		return ev
	}

	ev.Kind = KindData
	ev.Bytes = append([]byte(nil), out.Buf...)
	return ev
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
