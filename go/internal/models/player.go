package models

import "time"

// TeamColor identifies the team a role belongs to
type TeamColor string

const (
	TeamRed  TeamColor = "RED"
	TeamBlue TeamColor = "BLUE"
	TeamGrey TeamColor = "GREY"
)

// RoomColor identifies one of the two physical rooms players are split into
type RoomColor string

const (
	RedRoom  RoomColor = "RED_ROOM"
	BlueRoom RoomColor = "BLUE_ROOM"
)

// Opposite returns the other room
func (c RoomColor) Opposite() RoomColor {
	if c == RedRoom {
		return BlueRoom
	}
	return RedRoom
}

// Role represents an assigned game role
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Team        TeamColor `json:"team"`
	IsSpy       bool      `json:"isSpy"`
	IsLeader    bool      `json:"isLeader"`
}

// Player represents a participant in a room. Role, Team and CurrentRoom are
// only populated once a game is in progress, and only for entries the server
// is willing to reveal to this client.
type Player struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname"`
	IsAnonymous bool      `json:"isAnonymous"`
	RoomCode    string    `json:"roomCode,omitempty"`
	IsOwner     bool      `json:"isOwner"`
	Role        *Role     `json:"role,omitempty"`
	Team        TeamColor `json:"team,omitempty"`
	CurrentRoom RoomColor `json:"currentRoom,omitempty"`
	ConnectedAt time.Time `json:"connectedAt,omitempty"`
}

// LeaderInfo is the compact player reference used by round and vote payloads
type LeaderInfo struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}
