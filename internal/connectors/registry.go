package connectors

import (
	"context"
	"sort"

	"go-datasync/internal/syncerr"

	"go.uber.org/zap"
)

// Registry resolves connector keys to adapters.
type Registry struct {
	connectors map[string]Connector
	policy     RetryPolicy
	logger     *zap.Logger
}

func NewRegistry(logger *zap.Logger, policy RetryPolicy, connectors ...Connector) *Registry {
	r := &Registry{
		connectors: make(map[string]Connector, len(connectors)),
		policy:     policy,
		logger:     logger,
	}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Connector) {
	r.connectors[c.Type()] = c
}

func (r *Registry) Get(key string) (Connector, error) {
	c, ok := r.connectors[key]
	if !ok {
		return nil, syncerr.Configuration("unknown connector %q", key)
	}
	return c, nil
}

// Keys lists the registered connector keys.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.connectors))
	for k := range r.connectors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Probe tests connectivity of a source, retrying transient failures.
func (r *Registry) Probe(ctx context.Context, key string, config map[string]interface{}) error {
	c, err := r.Get(key)
	if err != nil {
		return err
	}

	attempt := 0
	return Retry(ctx, r.policy, func(ctx context.Context) error {
		attempt++
		err := c.TestConnection(ctx, config)
		if err != nil {
			r.logger.Warn("Connection probe failed",
				zap.String("connector", key),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	})
}
