// Package sink provides pluggable consumers of the playback event feed.
package sink

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/lyricsync/internal/app/event"
)

// Source is the event feed a sink attaches to.
// *session.Manager implements it.
type Source interface {
	Subscribe(h event.Handler) string
	SubscribeWithReplay(h event.Handler) string
	Unsubscribe(id string) bool
	CurrentLineIndex() int
}

// Sink is the interface for event consumers.
type Sink interface {
	// Name returns the sink name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ValidateConfig decodes and validates the sink settings.
	ValidateConfig(settings map[string]any) error
	// Attach subscribes the sink to src. The returned func detaches it.
	Attach(src Source) (func(), error)
}

// registry holds registered sink factories.
var registry = make(map[string]func() Sink)

// Register registers a sink factory.
func Register(name string, factory func() Sink) {
	registry[name] = factory
}

// GetRegistered returns all registered sink factories.
func GetRegistered() map[string]func() Sink {
	return registry
}

// Names returns the registered sink names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeSettings decodes settings into out, applies default tags and
// validates the result.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
