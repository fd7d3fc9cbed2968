package bus

import (
	"fmt"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// New creates an event bus based on configuration.
// "channel" is the in-process default; "nats" connects the scoring
// pipeline to external consumers.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
