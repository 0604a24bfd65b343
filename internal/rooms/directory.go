// Package rooms holds the room directory: the mapping from room id to the
// set of occupant client ids, plus the counter that mints new room ids.
//
// The directory is deliberately not goroutine-safe. The broker serializes
// every read and mutation behind its own lock so the matchmaker's
// scan-join-recheck sequence stays atomic.
package rooms

import (
	"strconv"
	"strings"
)

// idPrefix is the wire rendering of a room id, e.g. "chat-room-7".
const idPrefix = "chat-room-"

// ID identifies a room. Ids start at 1 and are never reused; 0 is "no room".
type ID int

func (id ID) String() string {
	return idPrefix + strconv.Itoa(int(id))
}

// ParseID parses the wire rendering of a room id. It returns false for
// anything that is not "chat-room-<positive integer>".
func ParseID(s string) (ID, bool) {
	rest, ok := strings.CutPrefix(s, idPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return ID(n), true
}

// Directory tracks room occupancy. Rooms are created lazily on first join and
// never deleted; an emptied room stays behind as a zero-occupant entry so its
// id remains burned for the lifetime of the process.
type Directory struct {
	counter ID
	// occupants preserves join order, which fixes the userIds order in
	// pairing broadcasts. Rooms hold at most two members, so linear scans
	// over a room's slice are fine.
	occupants map[ID][]string
}

func NewDirectory() *Directory {
	return &Directory{
		occupants: make(map[ID][]string),
	}
}

// NextID mints a fresh, never-before-issued room id.
func (d *Directory) NextID() ID {
	d.counter++
	return d.counter
}

// Last returns the highest room id issued so far (0 before any).
func (d *Directory) Last() ID {
	return d.counter
}

// Size returns the occupant count; 0 for rooms that don't exist.
func (d *Directory) Size(id ID) int {
	return len(d.occupants[id])
}

// Join adds clientID to the room, creating the entry if absent. Joining a
// room the client is already in is a no-op.
func (d *Directory) Join(id ID, clientID string) {
	for _, member := range d.occupants[id] {
		if member == clientID {
			return
		}
	}
	d.occupants[id] = append(d.occupants[id], clientID)
}

// Leave removes clientID from the room. Unknown rooms and non-members are
// no-ops.
func (d *Directory) Leave(id ID, clientID string) {
	members := d.occupants[id]
	for i, member := range members {
		if member == clientID {
			d.occupants[id] = append(members[:i:i], members[i+1:]...)
			return
		}
	}
}

// Occupants returns a snapshot of the room's members in join order.
func (d *Directory) Occupants(id ID) []string {
	members := d.occupants[id]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, len(members))
	copy(out, members)
	return out
}
