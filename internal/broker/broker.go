// Package broker drives the per-client session state machine and routes
// signaling payloads between the two occupants of a room.
//
// The broker is the only writer of room state. A single mutex serializes
// every connection and message event, which makes the matchmaker's
// scan-join-recheck sequence atomic and keeps the room directory free of its
// own locking.
package broker

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/pairlink/signaling-broker/internal/matchmaker"
	"github.com/pairlink/signaling-broker/internal/metrics"
	"github.com/pairlink/signaling-broker/internal/rooms"
)

// ReasonNextPartner is the departure reason delivered to the abandoned
// occupant when a client asks for a new partner.
const ReasonNextPartner = "User requested a new partner"

// Sender delivers one outbound event to a client. Implementations must be
// safe for concurrent use and should not block indefinitely; the boundary
// adapter bounds writes with a deadline.
type Sender interface {
	Send(event any) error
}

type session struct {
	id   string
	send Sender
	// room is 0 while the client is unattached.
	room rooms.ID
}

type Broker struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	dir     matchmaker.Directory
	match   *matchmaker.Matchmaker
	clients map[string]*session
}

func New(logger *slog.Logger, m *metrics.Metrics) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	dir := rooms.NewDirectory()
	return &Broker{
		log:     logger,
		metrics: m,
		dir:     dir,
		match:   matchmaker.New(dir),
		clients: make(map[string]*session),
	}
}

// Connect registers a freshly accepted client and immediately runs
// matchmaking for it.
func (b *Broker) Connect(clientID string, send Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[clientID]; ok {
		b.log.Warn("duplicate connect ignored", "user_id", clientID)
		return
	}

	c := &session{id: clientID, send: send}
	b.clients[clientID] = c
	b.metrics.Inc(metrics.ClientsConnected)
	b.log.Info("client connected", "user_id", clientID)

	b.assignLocked(c, 0)
}

// Disconnect removes the client, notifying its partner with the
// transport-supplied reason. Unknown clients are ignored.
func (b *Broker) Disconnect(clientID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[clientID]
	if !ok {
		return
	}
	if c.room != 0 {
		b.leaveLocked(c, reason)
	}
	delete(b.clients, clientID)
	b.metrics.Inc(metrics.ClientsDisconnected)
	b.log.Info("client disconnected", "user_id", clientID, "reason", reason)
}

// NextPartner moves the client out of its current room and re-runs
// matchmaking. A no-op while unattached.
func (b *Broker) NextPartner(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[clientID]
	if !ok || c.room == 0 {
		return
	}

	b.metrics.Inc(metrics.PartnerSwaps)
	b.log.Info("client requested a new partner", "user_id", clientID, "room", c.room.String())

	previous := c.room
	b.leaveLocked(c, ReasonNextPartner)
	b.assignLocked(c, previous)
}

// Signal relays an opaque payload to every other occupant of the named room.
// The room id is trusted as supplied; the sender need not be a member. Rooms
// that don't resolve simply have no recipients.
func (b *Broker) Signal(senderID, roomID string, data json.RawMessage, from string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if roomID == "" || from == "" {
		b.metrics.Inc(metrics.SignalsInvalid)
		if c, ok := b.clients[senderID]; ok {
			b.emit(c, ErrorEvent{Event: EventError, Message: "Invalid signal data"})
		}
		return
	}

	b.log.Debug("relaying signal", "from", from, "room", roomID, "kind", payloadKind(data))

	room, ok := rooms.ParseID(roomID)
	if !ok {
		return
	}

	b.metrics.Inc(metrics.SignalsRelayed)
	for _, memberID := range b.dir.Occupants(room) {
		if memberID == senderID {
			continue
		}
		if peer, ok := b.clients[memberID]; ok {
			b.emit(peer, SignalEvent{Event: EventSignal, Data: data, From: from})
		}
	}
}

// assignLocked runs matchmaking for an unattached client and emits the
// resulting notifications. avoid is the room the client just left on an
// explicit re-pair, or 0.
func (b *Broker) assignLocked(c *session, avoid rooms.ID) {
	openedBefore := b.dir.Last()

	asg, err := b.match.Assign(c.id, avoid)
	if err != nil {
		if !errors.Is(err, matchmaker.ErrRoomFull) {
			b.log.Error("matchmaking failed", "user_id", c.id, "err", err)
			return
		}
		b.metrics.Inc(metrics.RoomFullRejections)
		b.log.Warn("room filled during assignment, rejecting", "user_id", c.id)
		c.room = 0
		b.emit(c, ErrorEvent{Event: EventError, Message: "Room is full"})
		return
	}

	c.room = asg.Room
	if asg.Room > openedBefore {
		b.metrics.Inc(metrics.RoomsOpened)
	}
	b.log.Info("client joined room",
		"user_id", c.id,
		"room", asg.Room.String(),
		"num_clients", asg.NumClients,
		"initiator", asg.Initiator,
	)

	b.emit(c, JoinedRoomEvent{
		Event:      EventJoinedRoom,
		RoomID:     asg.Room.String(),
		Initiator:  asg.Initiator,
		UserID:     c.id,
		NumClients: asg.NumClients,
	})

	if asg.NumClients == 2 {
		b.metrics.Inc(metrics.PairsStarted)
		start := StartChatEvent{
			Event:   EventStartChat,
			RoomID:  asg.Room.String(),
			UserIDs: asg.Occupants,
		}
		for _, memberID := range asg.Occupants {
			if member, ok := b.clients[memberID]; ok {
				b.emit(member, start)
			}
		}
	}
}

// leaveLocked removes the client from its room after telling the remaining
// occupants why it left.
func (b *Broker) leaveLocked(c *session, reason string) {
	departed := PeerDisconnectedEvent{
		Event:  EventPeerDisconnected,
		UserID: c.id,
		Reason: reason,
	}
	for _, memberID := range b.dir.Occupants(c.room) {
		if memberID == c.id {
			continue
		}
		if peer, ok := b.clients[memberID]; ok {
			b.emit(peer, departed)
		}
	}

	b.dir.Leave(c.room, c.id)
	c.room = 0
}

func (b *Broker) emit(c *session, event any) {
	if err := c.send.Send(event); err != nil {
		// The client's own read loop will observe the broken connection and
		// raise the disconnect; nothing to unwind here.
		b.log.Warn("event delivery failed", "user_id", c.id, "err", err)
	}
}

// payloadKind extracts a coarse category from a negotiation payload for
// logging. Payloads without a type tag are ICE candidates in practice.
func payloadKind(data json.RawMessage) string {
	var tagged struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil || tagged.Type == "" {
		return "candidate"
	}
	return tagged.Type
}
