package metrics

import "sync"

// Counter names. A single flat registry keyed by event name keeps the
// broker's accounting testable without committing to a metrics backend.
const (
	ClientsConnected    = "clients_connected"
	ClientsDisconnected = "clients_disconnected"
	RoomsOpened         = "rooms_opened"
	PairsStarted        = "pairs_started"
	SignalsRelayed      = "signals_relayed"
	SignalsInvalid      = "signals_invalid"
	RoomFullRejections  = "room_full_rejections"
	PartnerSwaps        = "partner_swaps"
)

// Metrics is a minimal, concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
