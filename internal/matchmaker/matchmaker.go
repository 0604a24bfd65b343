// Package matchmaker implements the room selection policy: fill the
// lowest-numbered half-open room first, open a new room only when no room is
// waiting for a partner.
package matchmaker

import (
	"errors"

	"github.com/pairlink/signaling-broker/internal/rooms"
)

// ErrRoomFull is returned when a join would push a room past two occupants.
// With assignments serialized by the broker this branch is unreachable; it
// exists so a future concurrent dispatcher degrades to a per-client error
// instead of a corrupted room.
var ErrRoomFull = errors.New("room is full")

// Directory is the slice of the room directory the matchmaker needs.
// *rooms.Directory satisfies it.
type Directory interface {
	NextID() rooms.ID
	Last() rooms.ID
	Size(rooms.ID) int
	Join(id rooms.ID, clientID string)
	Leave(id rooms.ID, clientID string)
	Occupants(id rooms.ID) []string
}

// Assignment describes the outcome of placing a client into a room.
type Assignment struct {
	Room       rooms.ID
	Initiator  bool
	NumClients int
	// Occupants is the room membership snapshot taken right after the join,
	// in join order. When NumClients == 2 this is the pairing broadcast list.
	Occupants []string
}

type Matchmaker struct {
	dir Directory
}

func New(dir Directory) *Matchmaker {
	return &Matchmaker{dir: dir}
}

// Assign places an unattached client into a room.
//
// The scan walks room ids from 1 through the highest id ever issued and picks
// the first room holding exactly one occupant. Ties always resolve to the
// lowest id, so at most one room per scanned range is ever left waiting. If
// nothing is waiting, a fresh room id is minted.
//
// avoid excludes one room from the waiting-room scan. It is set on explicit
// re-pairing so a client that just walked out on its partner doesn't get
// matched straight back into the same room; pass 0 for initial assignment.
//
// The occupant count is re-read after the join. A count above two means the
// room filled between the scan and the join; the client is backed out and
// ErrRoomFull returned, leaving the directory as if the call never happened.
func (m *Matchmaker) Assign(clientID string, avoid rooms.ID) (Assignment, error) {
	var target rooms.ID
	for id := rooms.ID(1); id <= m.dir.Last(); id++ {
		if id != avoid && m.dir.Size(id) == 1 {
			target = id
			break
		}
	}
	if target == 0 {
		target = m.dir.NextID()
	}

	m.dir.Join(target, clientID)

	n := m.dir.Size(target)
	if n > 2 {
		m.dir.Leave(target, clientID)
		return Assignment{}, ErrRoomFull
	}

	return Assignment{
		Room:       target,
		Initiator:  n == 1,
		NumClients: n,
		Occupants:  m.dir.Occupants(target),
	}, nil
}
