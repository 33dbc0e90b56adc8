package domain

import "time"

// GameServer is a community game server known to the tracker. Sessions
// target one server and draw switchers from the others.
type GameServer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// PresenceEventType is the kind of a presence feed event.
type PresenceEventType string

const (
	PresenceJoin  PresenceEventType = "join"
	PresenceLeave PresenceEventType = "leave"
)

// PresenceEvent is one observation from the external presence feed. The
// feed may deliver duplicates or out-of-order events; the engine treats
// both as no-ops where they would repeat or rewind state.
type PresenceEvent struct {
	SteamID   string            `json:"steam_id"`
	ServerID  int64             `json:"server_id"`
	Event     PresenceEventType `json:"event"`
	Username  string            `json:"username,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
