package reconcile

import (
	"github.com/kalee/two-rooms-client/go/internal/channel"
	"github.com/kalee/two-rooms-client/go/internal/models"
)

// ViewState identifies which view the client should be rendering.
// Exactly one is current at any time.
type ViewState string

const (
	ViewLobby  ViewState = "LOBBY"
	ViewGame   ViewState = "GAME"
	ViewVote   ViewState = "VOTE"
	ViewReveal ViewState = "REVEAL"
)

// SelfState is the local participant's own identity and assignment
type SelfState struct {
	PlayerID    string
	IsOwner     bool
	Role        *models.Role
	Team        models.TeamColor
	CurrentRoom models.RoomColor
}

// State is the merged room state owned exclusively by the engine.
// Presentation code receives copies via Engine.Snapshot and never mutates.
//
// The one-shot latches live here rather than in scattered flags so a game
// reset clears them atomically as one operation.
type State struct {
	Room             models.RoomSnapshot
	View             ViewState
	Self             SelfState
	Round            *models.RoundState
	Votes            map[models.RoomColor]*models.VoteSession
	LastVoteResult   *models.VoteResult
	History          []models.HistoryEvent
	PendingAnimation bool
	RoomClosed       bool
	RoomClosedReason string
	Conn             channel.Status

	// roleLatched enforces at-most-once application of the role assignment
	// per game instance; cleared only by a game reset.
	roleLatched bool
	// animatedRounds marks rounds whose exchange animation already ran;
	// animationsShown counts animations across the whole game session.
	animatedRounds  map[int]bool
	animationsShown int
	// historyKeys indexes History by record identity for duplicate rejection.
	historyKeys map[string]struct{}
}

func newState(roomCode, selfID string) State {
	return State{
		Room:           models.RoomSnapshot{Code: roomCode},
		View:           ViewLobby,
		Self:           SelfState{PlayerID: selfID},
		Votes:          make(map[models.RoomColor]*models.VoteSession),
		animatedRounds: make(map[int]bool),
		historyKeys:    make(map[string]struct{}),
	}
}

// clone returns a deep copy safe to hand to readers on other goroutines
func (s *State) clone() State {
	out := *s
	out.Room.Players = append([]models.Player(nil), s.Room.Players...)
	if s.Room.GameSession != nil {
		gs := *s.Room.GameSession
		out.Room.GameSession = &gs
	}
	if s.Self.Role != nil {
		r := *s.Self.Role
		out.Self.Role = &r
	}
	if s.Round != nil {
		r := *s.Round
		r.Red.Hostages = append([]string(nil), s.Round.Red.Hostages...)
		r.Blue.Hostages = append([]string(nil), s.Round.Blue.Hostages...)
		out.Round = &r
	}
	out.Votes = make(map[models.RoomColor]*models.VoteSession, len(s.Votes))
	for side, v := range s.Votes {
		vv := *v
		vv.Candidates = append([]string(nil), v.Candidates...)
		out.Votes[side] = &vv
	}
	if s.LastVoteResult != nil {
		r := *s.LastVoteResult
		out.LastVoteResult = &r
	}
	out.History = append([]models.HistoryEvent(nil), s.History...)
	out.animatedRounds = nil
	out.historyKeys = nil
	return out
}
