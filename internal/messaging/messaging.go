// Package messaging fans space change notifications out across server
// instances. Every accepted mutation publishes an event; each gateway
// subscribes and relays to its local sessions, so spectators converge no
// matter which instance handled the mutation.
package messaging

import (
	"context"

	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
)

// Publisher publishes space change notifications
type Publisher interface {
	// PublishSpaceUpdated announces the new public view of a mutated space
	PublishSpaceUpdated(ctx context.Context, space *protocol.PublicSpace) error
	// PublishSpaceKicked tells gateways to kick a wallet from a space
	PublishSpaceKicked(ctx context.Context, kick protocol.SpaceKicked) error
	// Close closes the connection
	Close()
}

// Handler receives relayed events on the subscribing side
type Handler interface {
	HandleSpaceUpdated(update protocol.SpaceUpdated)
	HandleSpaceKicked(kick protocol.SpaceKicked)
}

// Subscriber delivers published events to a Handler
type Subscriber interface {
	// Subscribe starts delivery; it returns once the subscriptions are set up
	Subscribe(ctx context.Context, handler Handler) error
	// Close closes the connection
	Close()
}
