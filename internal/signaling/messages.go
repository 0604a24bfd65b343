package signaling

import (
	"encoding/json"
	"fmt"
)

// Client->broker event names. Anything else is logged and dropped; protocol
// noise from a client never tears down its session.
const (
	eventSignal      = "signal"
	eventNextPartner = "next-partner"
	eventClientError = "error"
)

// clientMessage is the inbound wire envelope.
type clientMessage struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	RoomID string          `json:"roomId,omitempty"`
	From   string          `json:"from,omitempty"`

	// Message carries client-side error reports (event "error").
	Message string `json:"message,omitempty"`
}

func parseClientMessage(data []byte) (clientMessage, error) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return clientMessage{}, err
	}
	if msg.Event == "" {
		return clientMessage{}, fmt.Errorf("missing event name")
	}
	return msg, nil
}
