package connector

import (
	"context"
	"fmt"
	"sync"
)

// Connector retrieves a byte payload from an external source. Implementations
// are stateless per call: each Fetch opens one network session and closes it
// on every exit path.
type Connector interface {
	Type() string
	Fetch(ctx context.Context, cfg *Config) ([]byte, error)
}

type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]Connector),
	}
}

func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Type()] = c
}

func (r *Registry) Get(sourceType string) (Connector, error) {
	if sourceType == TypeAPI {
		sourceType = TypeHTTP
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[sourceType]
	if !ok {
		return nil, fmt.Errorf("connector not found for source: %s", sourceType)
	}
	return c, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.connectors))
	for t := range r.connectors {
		types = append(types, t)
	}
	return types
}
