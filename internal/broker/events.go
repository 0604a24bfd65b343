package broker

import "encoding/json"

// Wire event names. These are the broker->client contract; the boundary
// adapter serializes the structs below verbatim.
const (
	EventJoinedRoom       = "joined-room"
	EventStartChat        = "start-chat"
	EventSignal           = "signal"
	EventPeerDisconnected = "peer-disconnected"
	EventError            = "error"
)

// JoinedRoomEvent tells a client which room it landed in after matchmaking.
type JoinedRoomEvent struct {
	Event      string `json:"event"`
	RoomID     string `json:"roomId"`
	Initiator  bool   `json:"initiator"`
	UserID     string `json:"userId"`
	NumClients int    `json:"numClients"`
}

// StartChatEvent is broadcast to both occupants when a room fills.
type StartChatEvent struct {
	Event   string   `json:"event"`
	RoomID  string   `json:"roomId"`
	UserIDs []string `json:"userIds"`
}

// SignalEvent carries a relayed negotiation payload to the other occupant.
// Data passes through untouched.
type SignalEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	From  string          `json:"from"`
}

// PeerDisconnectedEvent tells the remaining occupant that its partner left.
type PeerDisconnectedEvent struct {
	Event  string `json:"event"`
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type ErrorEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
