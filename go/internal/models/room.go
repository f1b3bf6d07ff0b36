package models

import "time"

// RoomStatus represents the room lifecycle state
type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "WAITING"     // Lobby, waiting for players
	RoomStatusInProgress RoomStatus = "IN_PROGRESS" // Game in progress
	RoomStatusRevealing  RoomStatus = "REVEALING"   // Terminal reveal phase
)

// GameSession describes the active game instance inside a room
type GameSession struct {
	ID           string    `json:"id"`
	RoomCode     string    `json:"roomCode"`
	RoundNumber  int       `json:"roundNumber,omitempty"`
	RedLeaderID  string    `json:"redLeaderId,omitempty"`
	BlueLeaderID string    `json:"blueLeaderId,omitempty"`
	HostageCount int       `json:"hostageCount,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
}

// RoomSnapshot is the full authoritative room state at a point in time,
// as returned by the pull endpoint. Players are ordered by join time.
type RoomSnapshot struct {
	Code        string       `json:"code"`
	Status      RoomStatus   `json:"status"`
	Players     []Player     `json:"players"`
	MaxPlayers  int          `json:"maxPlayers"`
	GameSession *GameSession `json:"gameSession,omitempty"`
	CreatedAt   time.Time    `json:"createdAt,omitempty"`
	UpdatedAt   time.Time    `json:"updatedAt,omitempty"`
}

// FindPlayer returns the player with the given id, or nil
func (r *RoomSnapshot) FindPlayer(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// UpsertPlayer appends a player unless one with the same id is already
// present. Presence-by-id is the real invariant, so the append is idempotent
// regardless of any upstream dedup. Returns true if the player was added.
func (r *RoomSnapshot) UpsertPlayer(p Player) bool {
	if r.FindPlayer(p.ID) != nil {
		return false
	}
	r.Players = append(r.Players, p)
	return true
}

// RemovePlayer deletes the player with the given id, preserving join order
func (r *RoomSnapshot) RemovePlayer(id string) bool {
	for i := range r.Players {
		if r.Players[i].ID == id {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return true
		}
	}
	return false
}

// SetOwner marks the given player as the single owner of the room
func (r *RoomSnapshot) SetOwner(id string) {
	for i := range r.Players {
		r.Players[i].IsOwner = r.Players[i].ID == id
	}
}

// Normalize enforces the snapshot invariants: at most one player per id
// (first occurrence wins, keeping join order) and at most one owner flag set
func (r *RoomSnapshot) Normalize() {
	seen := make(map[string]struct{}, len(r.Players))
	players := r.Players[:0]
	ownerSeen := false
	for _, p := range r.Players {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if p.IsOwner {
			if ownerSeen {
				p.IsOwner = false
			}
			ownerSeen = true
		}
		players = append(players, p)
	}
	r.Players = players
}

// PlayersInRoom returns the players currently assigned to the given room side
func (r *RoomSnapshot) PlayersInRoom(c RoomColor) []Player {
	var out []Player
	for _, p := range r.Players {
		if p.CurrentRoom == c {
			out = append(out, p)
		}
	}
	return out
}
