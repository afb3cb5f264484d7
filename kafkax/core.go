// Package kafkax is the Kafka-consumption core: a bounded, backpressured
// pipeline from a broker consumer through N decode workers to a
// single-threaded host, fronted by a hot-swappable decoder registry and a
// coalesced-wakeup notify descriptor.
package kafkax

import (
	"sync"
	"sync/atomic"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shawntao1011/kafkax/registry"
	"github.com/shawntao1011/kafkax/ring"
)

// Core is the library's facade (C6, tying together C1-C5). A Core is built
// with New, configured with SetConf/BindTopic before Subscribe, and then
// driven by the host calling Drain and polling NotifyFD until Stop.
type Core struct {
	cfg       Config
	kafkaCfg  KafkaConfig
	confMap   *kafka.ConfigMap
	confExtra map[string]string

	logger         *zap.Logger
	registryLoader registry.Loader
	registry       *registry.Registry

	consumer *kafka.Consumer
	poller   *poller
	workers  []*worker
	notifier *notifier

	rawRings []*ring.Ring[rawMessage]
	evtRings []*ring.Ring[*Event]

	drainRR atomic.Uint64

	wg          sync.WaitGroup
	subscribeMu sync.Mutex
	subscribed  bool
	stopOnce    sync.Once
	stopErr     error
}

// New constructs a Core from the given pipeline and broker configuration.
// It does not contact the broker; call Subscribe to do that.
func New(cfg Config, kafkaCfg KafkaConfig, opts ...Option) (*Core, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Core{
		cfg:            cfg,
		kafkaCfg:       kafkaCfg,
		logger:         zap.NewNop(),
		registryLoader: registry.DefaultLoader(),
		confExtra:      make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.registry = registry.New(c.registryLoader)

	confMap := &kafka.ConfigMap{
		"bootstrap.servers":  kafkaCfg.BootstrapServers,
		"group.id":           kafkaCfg.GroupID,
		"enable.auto.commit": kafkaCfg.EnableAutoCommit,
		"auto.offset.reset":  kafkaCfg.AutoOffsetReset,
	}
	for k, v := range kafkaCfg.Extra {
		if err := confMap.SetKey(k, v); err != nil {
			return nil, errConfigf("kafkax: invalid extra config %q: %v", k, err)
		}
		c.confExtra[k] = v
	}
	c.confMap = confMap

	return c, nil
}

// SetConf sets one broker config key. Valid only before Subscribe; the
// spec requires config changes to be rejected once the consumer exists.
func (c *Core) SetConf(key, value string) error {
	c.subscribeMu.Lock()
	defer c.subscribeMu.Unlock()

	if c.subscribed {
		return errConfigf("kafkax: SetConf called after Subscribe")
	}
	if err := c.confMap.SetKey(key, value); err != nil {
		return errors.Wrapf(err, "kafkax: SetConf %q", key)
	}
	c.confExtra[key] = value
	return nil
}

// BindTopic registers topic's decoder, loading soPath if not already
// loaded. Safe to call before or after Subscribe. Fails if topic is
// already bound; use RebindTopic to overwrite an existing binding.
func (c *Core) BindTopic(topic, soPath, symbol string) error {
	return c.registry.Bind(topic, soPath, symbol)
}

// RebindTopic swaps topic's decoder for a new one, live. Workers already
// mid-decode against the old binding are unaffected; the next lookup sees
// the new one (spec.md §8, rebind-while-data-flows scenario).
func (c *Core) RebindTopic(topic, soPath, symbol string) error {
	return c.registry.Rebind(topic, soPath, symbol)
}

// UnbindTopic removes topic's decoder. Messages for an unbound topic
// surface as KindError events, never panics or drops silently.
func (c *Core) UnbindTopic(topic string) error {
	return c.registry.Unbind(topic)
}

// GetDecoderInfo reports what is currently bound to topic, for
// observability.
func (c *Core) GetDecoderInfo(topic string) (registry.Binding, bool) {
	return c.registry.GetDecoderInfo(topic)
}

// Subscribe creates the broker consumer, subscribes to topics, and starts
// the Poller and decode Workers. Subscribe may be called only once.
func (c *Core) Subscribe(topics []string) error {
	c.subscribeMu.Lock()
	defer c.subscribeMu.Unlock()

	if c.subscribed {
		return errConfigf("kafkax: Subscribe called more than once")
	}
	if len(topics) == 0 {
		return errConfigf("kafkax: Subscribe requires at least one topic")
	}

	consumer, err := kafka.NewConsumer(c.confMap)
	if err != nil {
		return errors.Wrap(err, "kafkax: create consumer")
	}
	c.consumer = consumer

	n := c.cfg.DecodeThreads
	wm := newWatermarkState(c.cfg.RawQueueSize, c.cfg.HighWatermarkRatio, c.cfg.LowWatermarkRatio)

	rawRings := make([]*ring.Ring[rawMessage], n)
	evtRings := make([]*ring.Ring[*Event], n)
	for i := 0; i < n; i++ {
		rawRings[i], err = ring.New[rawMessage](c.cfg.RawQueueSize)
		if err != nil {
			_ = consumer.Close()
			return errors.Wrap(err, "kafkax: allocate raw ring")
		}
		evtRings[i], err = ring.New[*Event](c.cfg.EvtQueueSize)
		if err != nil {
			_ = consumer.Close()
			return errors.Wrap(err, "kafkax: allocate event ring")
		}
	}
	c.rawRings = rawRings
	c.evtRings = evtRings

	notif, err := newNotifier()
	if err != nil {
		_ = consumer.Close()
		return errors.Wrap(err, "kafkax: create notifier")
	}
	c.notifier = notif

	p := newPoller(consumer, c.cfg, wm, rawRings, c.logger)
	if err := consumer.SubscribeTopics(topics, p.rebalanceCb); err != nil {
		_ = notif.Close()
		_ = consumer.Close()
		return errors.Wrap(err, "kafkax: subscribe")
	}
	c.poller = p

	c.workers = make([]*worker, n)
	for i := 0; i < n; i++ {
		w := &worker{
			id:        i,
			rawRing:   rawRings[i],
			evtRing:   evtRings[i],
			registry:  c.registry,
			watermark: wm,
			notifier:  notif,
			logger:    c.logger,
			stopC:     p.stopC,
		}
		c.workers[i] = w
	}

	c.wg.Add(1 + n)
	go func() {
		defer c.wg.Done()
		p.run()
	}()
	for _, w := range c.workers {
		w := w
		go func() {
			defer c.wg.Done()
			w.run()
		}()
	}

	c.subscribed = true
	return nil
}

// Stop shuts the pipeline down: stops the Poller, lets Workers drain their
// current message and exit, closes the broker consumer, the decoder
// registry and the notify descriptor. Stop is idempotent and safe to call
// even if Subscribe was never called.
func (c *Core) Stop() error {
	c.stopOnce.Do(func() {
		var merr *multierror.Error

		if c.poller != nil {
			c.poller.stop()
		}
		c.wg.Wait()

		if c.consumer != nil {
			if err := c.consumer.Close(); err != nil {
				merr = multierror.Append(merr, errors.Wrap(err, "kafkax: close consumer"))
			}
		}
		if c.registry != nil {
			if err := c.registry.Close(); err != nil {
				merr = multierror.Append(merr, errors.Wrap(err, "kafkax: close registry"))
			}
		}
		if c.notifier != nil {
			if err := c.notifier.Close(); err != nil {
				merr = multierror.Append(merr, errors.Wrap(err, "kafkax: close notifier"))
			}
		}

		if merr != nil {
			c.stopErr = merr.ErrorOrNil()
		}
	})
	return c.stopErr
}

// Close is an alias for Stop, for callers that prefer io.Closer symmetry.
func (c *Core) Close() error {
	return c.Stop()
}
