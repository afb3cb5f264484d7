package kafkax

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/shawntao1011/kafkax/ring"
)

// pollTimeoutMs is the broker poll timeout (spec.md §4.3 step 2).
const pollTimeoutMs = 100

// rawMessage wraps a broker message for its trip through a raw ring.
// Ownership moves from the Poller (on enqueue) to a decode Worker (on
// dequeue); dropping the last reference lets the Go GC reclaim the
// message's byte slices, which is the Go-native realization of the
// spec's explicit "destroy the raw message" step.
type rawMessage struct {
	msg *kafka.Message
}

// poller is the single goroutine that drives the broker consumer (C3).
type poller struct {
	consumer  *kafka.Consumer
	cfg       Config
	watermark *watermarkState
	rawRings  []*ring.Ring[rawMessage]
	sharder   Sharder
	logger    *zap.Logger

	assignMu   sync.Mutex
	assignment []kafka.TopicPartition

	stopC chan struct{}
}

func newPoller(consumer *kafka.Consumer, cfg Config, wm *watermarkState, rawRings []*ring.Ring[rawMessage], logger *zap.Logger) *poller {
	return &poller{
		consumer:  consumer,
		cfg:       cfg,
		watermark: wm,
		rawRings:  rawRings,
		sharder:   cfg.sharder(),
		logger:    logger,
		stopC:     make(chan struct{}),
	}
}

// rebalanceCb is registered with SubscribeTopics. It is a plain Go closure
// over p — the idiomatic collapse of the spec's "opaque this pointer"
// Design Note, since Go has no equivalent of an untyped void* boundary to
// cross here.
func (p *poller) rebalanceCb(c *kafka.Consumer, event kafka.Event) error {
	p.assignMu.Lock()
	defer p.assignMu.Unlock()

	switch e := event.(type) {
	case kafka.AssignedPartitions:
		if err := c.Assign(e.Partitions); err != nil {
			return err
		}
		p.assignment = append([]kafka.TopicPartition(nil), e.Partitions...)
	case kafka.RevokedPartitions:
		if err := c.Unassign(); err != nil {
			return err
		}
		p.assignment = nil
	}
	return nil
}

func (p *poller) stop() {
	close(p.stopC)
	for _, r := range p.rawRings {
		r.Kick()
	}
}

func (p *poller) stopped() bool {
	select {
	case <-p.stopC:
		return true
	default:
		return false
	}
}

// run is the Poller's main loop, exactly per spec.md §4.3.
func (p *poller) run() {
	for !p.stopped() {
		// Step 1: resume if requested.
		if p.watermark.paused.Load() && p.watermark.resumeRequested.CompareAndSwap(true, false) {
			p.assignMu.Lock()
			if len(p.assignment) > 0 {
				if err := p.consumer.Resume(p.assignment); err != nil {
					p.logger.Warn("kafkax: resume_partitions failed", zap.Error(err))
				} else {
					p.watermark.paused.Store(false)
				}
			}
			p.assignMu.Unlock()
		}

		// Step 2: poll the broker with a short timeout.
		ev := p.consumer.Poll(pollTimeoutMs)
		if ev == nil {
			continue
		}

		msg, ok := ev.(*kafka.Message)
		if !ok {
			// Transport-level errors and rebalance events surface here
			// too (the rebalance events are also separately dispatched to
			// rebalanceCb by the client library). Per spec.md §7, broker
			// errors are logged and dropped, never surfaced as an Event.
			if kerr, ok := ev.(kafka.Error); ok {
				p.logger.Debug("kafkax: broker error", zap.Error(kerr))
			}
			continue
		}

		// Step 3: a message with a non-nil TopicPartition.Error is a
		// transport-level error attached to the message itself.
		if msg.TopicPartition.Error != nil {
			p.logger.Debug("kafkax: message-level broker error", zap.Error(msg.TopicPartition.Error))
			continue
		}

		// Step 4: pick a worker.
		topic := ""
		if msg.TopicPartition.Topic != nil {
			topic = *msg.TopicPartition.Topic
		}
		worker := p.sharder.Shard(topic, msg.TopicPartition.Partition, len(p.rawRings))

		// Step 5: push onto raw_ring[worker], blocking with backpressure.
		raw := rawMessage{msg: msg}
		rawRing := p.rawRings[worker]
		pushed := false
		for !pushed {
			if rawRing.TryPush(raw) {
				pushed = true
				break
			}
			p.maybePause()
			seen := rawRing.Epoch()
			if p.stopped() {
				break
			}
			rawRing.Wait(seen)
			if p.stopped() {
				break
			}
		}
		if !pushed {
			// Stopping mid-retry: the message was never enqueued, so it
			// must not be counted against the watermark either.
			continue
		}

		// Step 6: account for the message (ring push already bumped the
		// worker's epoch and woke a waiter, as part of TryPush).
		p.watermark.incr()

		// Step 7.
		p.maybePause()
	}
}

func (p *poller) maybePause() {
	if p.watermark.paused.Load() {
		return
	}
	if !p.watermark.atOrAboveHigh() {
		return
	}

	p.assignMu.Lock()
	defer p.assignMu.Unlock()

	if len(p.assignment) == 0 {
		return
	}

	if err := p.consumer.Pause(p.assignment); err != nil {
		p.logger.Warn("kafkax: pause_partitions failed", zap.Error(err))
		return
	}
	p.watermark.paused.Store(true)
}
