package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Tanner253/ClubPengu-sub005/internal/config"
	"github.com/Tanner253/ClubPengu-sub005/internal/logger"
	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
)

const (
	subjectSpaceUpdated = "space.updated"
	subjectSpaceKicked  = "space.kicked"
)

// Bus is the NATS-backed publisher and subscriber.
type Bus struct {
	conn *nats.Conn
}

// Connect dials NATS and returns a combined publisher/subscriber
func Connect(cfg config.NATSConfig) (*Bus, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Bus{conn: conn}, nil
}

// PublishSpaceUpdated announces the new public view of a mutated space
func (b *Bus) PublishSpaceUpdated(ctx context.Context, space *protocol.PublicSpace) error {
	payload, err := json.Marshal(protocol.SpaceUpdated{Type: protocol.TypeSpaceUpdated, Space: space})
	if err != nil {
		return fmt.Errorf("failed to marshal space update: %w", err)
	}
	if err := b.conn.Publish(subjectSpaceUpdated, payload); err != nil {
		return fmt.Errorf("failed to publish space update: %w", err)
	}
	return nil
}

// PublishSpaceKicked tells gateways to kick a wallet from a space
func (b *Bus) PublishSpaceKicked(ctx context.Context, kick protocol.SpaceKicked) error {
	kick.Type = protocol.TypeSpaceKicked
	payload, err := json.Marshal(struct {
		protocol.SpaceKicked
		Wallet string `json:"wallet"`
	}{SpaceKicked: kick, Wallet: kick.Wallet})
	if err != nil {
		return fmt.Errorf("failed to marshal kick: %w", err)
	}
	if err := b.conn.Publish(subjectSpaceKicked, payload); err != nil {
		return fmt.Errorf("failed to publish kick: %w", err)
	}
	return nil
}

// Subscribe starts delivering published events to the handler
func (b *Bus) Subscribe(ctx context.Context, handler Handler) error {
	_, err := b.conn.Subscribe(subjectSpaceUpdated, func(msg *nats.Msg) {
		var update protocol.SpaceUpdated
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			logger.Error(fmt.Errorf("failed to decode space update: %w", err))
			return
		}
		handler.HandleSpaceUpdated(update)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subjectSpaceUpdated, err)
	}

	_, err = b.conn.Subscribe(subjectSpaceKicked, func(msg *nats.Msg) {
		var kick struct {
			protocol.SpaceKicked
			Wallet string `json:"wallet"`
		}
		if err := json.Unmarshal(msg.Data, &kick); err != nil {
			logger.Error(fmt.Errorf("failed to decode kick: %w", err))
			return
		}
		kick.SpaceKicked.Wallet = kick.Wallet
		handler.HandleSpaceKicked(kick.SpaceKicked)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subjectSpaceKicked, err)
	}

	return nil
}

// Close drains and closes the connection
func (b *Bus) Close() {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}
