// Package signaling is the WebSocket boundary of the broker: it accepts
// connections, assigns each one an opaque client id, translates wire frames
// into broker calls, and ships broker events back to the client.
//
// The matchmaking and relay semantics live in the broker package; nothing
// here inspects payloads.
package signaling
