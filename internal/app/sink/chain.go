package sink

import (
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Chain holds configured sinks and their attachments.
type Chain struct {
	sinks   []Sink
	detachs []func()
}

// NewChain creates a new sink chain.
func NewChain() *Chain {
	return &Chain{
		sinks: make([]Sink, 0),
	}
}

// NewChainFromSettings builds and validates the named sinks.
// Sinks are added in name order.
func NewChainFromSettings(enabled map[string]map[string]any) (*Chain, error) {
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	c := NewChain()
	for _, name := range names {
		factory, ok := registry[name]
		if !ok {
			return nil, errors.Newf("unknown sink: %s", name)
		}
		s := factory()
		if err := s.ValidateConfig(enabled[name]); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for sink %s", name)
		}
		c.Add(s)
	}
	return c, nil
}

// Add adds a sink to the chain.
func (c *Chain) Add(s Sink) {
	c.sinks = append(c.sinks, s)
}

// Attach attaches every sink to src. On failure the sinks attached so far
// are detached again.
func (c *Chain) Attach(src Source) error {
	for _, s := range c.sinks {
		detach, err := s.Attach(src)
		if err != nil {
			c.Detach()
			return errors.Wrapf(err, "failed to attach sink %s", s.Name())
		}
		zlog.Info().Msgf("sink: attached %s", s.Name())
		c.detachs = append(c.detachs, detach)
	}
	return nil
}

// Detach detaches all attached sinks in reverse order.
func (c *Chain) Detach() {
	for i := len(c.detachs) - 1; i >= 0; i-- {
		c.detachs[i]()
	}
	c.detachs = nil
}

// Sinks returns all sinks in the chain.
func (c *Chain) Sinks() []Sink {
	return c.sinks
}
