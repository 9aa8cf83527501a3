package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/presence"
	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
)

func newTestClient(hub *Hub, sessionID, wallet string) *client {
	c := &client{sessionID: sessionID, wallet: wallet, out: make(chan []byte, 4)}
	hub.register(c)
	return c
}

func drain(c *client) [][]byte {
	var out [][]byte
	for {
		select {
		case payload := <-c.out:
			out = append(out, payload)
		default:
			return out
		}
	}
}

func TestBroadcastReachesEverySession(t *testing.T) {
	hub := NewHub(presence.NewRegistry())
	c1 := newTestClient(hub, "s1", "0xAlice")
	c2 := newTestClient(hub, "s2", "")

	hub.Broadcast([]byte(`{"type":"space_updated"}`))

	assert.Len(t, drain(c1), 1)
	assert.Len(t, drain(c2), 1)
	assert.Equal(t, 2, hub.SessionCount())
}

func TestSendTargetsOneSession(t *testing.T) {
	hub := NewHub(presence.NewRegistry())
	c1 := newTestClient(hub, "s1", "0xAlice")
	c2 := newTestClient(hub, "s2", "0xBob")

	assert.True(t, hub.Send("s1", []byte("hi")))
	assert.False(t, hub.Send("missing", []byte("hi")))

	assert.Len(t, drain(c1), 1)
	assert.Empty(t, drain(c2))
}

func TestHandleSpaceUpdatedRelaysEnvelope(t *testing.T) {
	hub := NewHub(presence.NewRegistry())
	c := newTestClient(hub, "s1", "0xAlice")

	hub.HandleSpaceUpdated(protocol.SpaceUpdated{
		Type:  protocol.TypeSpaceUpdated,
		Space: &protocol.PublicSpace{SpaceID: "space1", IsRented: true},
	})

	payloads := drain(c)
	require.Len(t, payloads, 1)
	var update protocol.SpaceUpdated
	require.NoError(t, json.Unmarshal(payloads[0], &update))
	assert.Equal(t, "space1", update.Space.SpaceID)
}

func TestHandleSpaceKickedTargetsWalletInSpace(t *testing.T) {
	registry := presence.NewRegistry()
	hub := NewHub(registry)
	target := newTestClient(hub, "s1", "0xTarget")
	sameWalletElsewhere := newTestClient(hub, "s2", "0xTarget")
	bystander := newTestClient(hub, "s3", "0xOther")

	registry.Enter("s1", "0xTarget", "space1")
	registry.Enter("s2", "0xTarget", "space2")
	registry.Enter("s3", "0xOther", "space1")

	hub.HandleSpaceKicked(protocol.SpaceKicked{
		Type:    protocol.TypeSpaceKicked,
		SpaceID: "space1",
		Wallet:  "0xTarget",
		Reason:  domain.CodeTokenGateNotMet,
		Message: domain.CodeTokenGateNotMet.Message(),
	})

	payloads := drain(target)
	require.Len(t, payloads, 1)
	var kick protocol.SpaceKicked
	require.NoError(t, json.Unmarshal(payloads[0], &kick))
	assert.Equal(t, domain.CodeTokenGateNotMet, kick.Reason)

	// Presence cleared for the kicked session only
	assert.Empty(t, occupantSessions(registry, "space1", "0xTarget"))
	assert.Len(t, registry.Occupants("space2"), 1)
	assert.Len(t, registry.Occupants("space1"), 1)

	assert.Empty(t, drain(sameWalletElsewhere))
	assert.Empty(t, drain(bystander))
}

func occupantSessions(registry *presence.Registry, spaceID, wallet string) []string {
	var sessions []string
	for _, occ := range registry.Occupants(spaceID) {
		if occ.Wallet == wallet {
			sessions = append(sessions, occ.SessionID)
		}
	}
	return sessions
}

func TestUnregisterClearsPresence(t *testing.T) {
	registry := presence.NewRegistry()
	hub := NewHub(registry)
	newTestClient(hub, "s1", "0xAlice")
	registry.Enter("s1", "0xAlice", "space1")

	hub.unregister("s1")

	assert.Zero(t, hub.SessionCount())
	assert.Empty(t, registry.Occupants("space1"))
	assert.False(t, hub.Send("s1", []byte("late")))
}

func TestBroadcastSkipsFullQueues(t *testing.T) {
	hub := NewHub(presence.NewRegistry())
	c := &client{sessionID: "s1", out: make(chan []byte, 1)}
	hub.register(c)

	hub.Broadcast([]byte("one"))
	hub.Broadcast([]byte("two")) // dropped, queue is full

	assert.Len(t, drain(c), 1)
}
