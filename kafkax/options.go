package kafkax

import (
	"go.uber.org/zap"

	"github.com/shawntao1011/kafkax/registry"
)

// Option configures a Core at construction time, for dependencies that have
// no sane zero value and no business living on Config/KafkaConfig (which
// are plain data, not wiring).
type Option func(*Core)

// WithLogger overrides the *zap.Logger used for all internal diagnostics.
// Defaults to zap.NewNop() so a host that doesn't care about logs pays
// nothing for it.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistryLoader overrides how the decoder registry opens shared
// objects. Production code never needs this — it exists so tests can
// inject an in-memory fake instead of building real .so fixtures.
func WithRegistryLoader(loader registry.Loader) Option {
	return func(c *Core) {
		if loader != nil {
			c.registryLoader = loader
		}
	}
}
