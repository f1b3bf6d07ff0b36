package events

import "encoding/json"

// EventType represents the type of push event sent by the game server
type EventType string

const (
	// Lobby events
	TypePlayerJoined       EventType = "PLAYER_JOINED"
	TypePlayerLeft         EventType = "PLAYER_LEFT"
	TypePlayerDisconnected EventType = "PLAYER_DISCONNECTED"
	TypeNicknameChanged    EventType = "NICKNAME_CHANGED"
	TypeOwnerChanged       EventType = "OWNER_CHANGED"
	TypeRoomClosed         EventType = "ROOM_CLOSED"

	// Game lifecycle events
	TypeGameStarted   EventType = "GAME_STARTED"
	TypeRoleAssigned  EventType = "ROLE_ASSIGNED"
	TypeGameReset     EventType = "GAME_RESET"
	TypeGameRevealing EventType = "GAME_REVEALING"

	// Round management events
	TypeRoundStarted EventType = "ROUND_STARTED"
	TypeTimerTick    EventType = "TIMER_TICK"
	TypeRoundEnding  EventType = "ROUND_ENDING"
	TypeRoundEnded   EventType = "ROUND_ENDED"

	// Leader management events
	TypeLeaderReady       EventType = "LEADER_READY"
	TypeLeadershipChanged EventType = "LEADERSHIP_CHANGED"

	// Voting events
	TypeVoteSessionStarted EventType = "VOTE_SESSION_STARTED"
	TypeVoteProgress       EventType = "VOTE_PROGRESS"
	TypeVoteCompleted      EventType = "VOTE_COMPLETED"

	// Hostage exchange events
	TypeLeaderAnnouncedHostages EventType = "LEADER_ANNOUNCED_HOSTAGES"
	TypeExchangeReady           EventType = "EXCHANGE_READY"
	TypeExchangeComplete        EventType = "EXCHANGE_COMPLETE"
)

// Envelope is the wire shape of every push message: a tag plus a
// tag-specific payload. RoomCode is set on room-scoped broadcasts; an empty
// value means the event is implicitly for the connection's own room.
type Envelope struct {
	Type     EventType       `json:"type"`
	RoomCode string          `json:"roomCode,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope around a marshalled payload
func NewEnvelope(t EventType, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: t, Payload: data}, nil
}

// ParsePayload decodes the envelope payload into the struct for its tag.
// Unknown tags return (nil, nil) so newer server versions stay non-fatal.
func ParsePayload(env *Envelope) (interface{}, error) {
	switch env.Type {
	case TypePlayerJoined:
		return decode[PlayerJoinedPayload](env)
	case TypePlayerLeft:
		return decode[PlayerLeftPayload](env)
	case TypePlayerDisconnected:
		return decode[PlayerDisconnectedPayload](env)
	case TypeNicknameChanged:
		return decode[NicknameChangedPayload](env)
	case TypeOwnerChanged:
		return decode[OwnerChangedPayload](env)
	case TypeRoomClosed:
		return decode[RoomClosedPayload](env)
	case TypeGameStarted:
		return decode[GameStartedPayload](env)
	case TypeRoleAssigned:
		return decode[RoleAssignedPayload](env)
	case TypeGameReset:
		return decode[GameResetPayload](env)
	case TypeGameRevealing:
		return decode[GameRevealingPayload](env)
	case TypeRoundStarted:
		return decode[RoundStartedPayload](env)
	case TypeTimerTick:
		return decode[TimerTickPayload](env)
	case TypeRoundEnding:
		return decode[RoundEndingPayload](env)
	case TypeRoundEnded:
		return decode[RoundEndedPayload](env)
	case TypeLeaderReady:
		return decode[LeaderReadyPayload](env)
	case TypeLeadershipChanged:
		return decode[LeadershipChangedPayload](env)
	case TypeVoteSessionStarted:
		return decode[VoteSessionStartedPayload](env)
	case TypeVoteProgress:
		return decode[VoteProgressPayload](env)
	case TypeVoteCompleted:
		return decode[VoteCompletedPayload](env)
	case TypeLeaderAnnouncedHostages:
		return decode[LeaderAnnouncedHostagesPayload](env)
	case TypeExchangeReady:
		return decode[ExchangeReadyPayload](env)
	case TypeExchangeComplete:
		return decode[ExchangeCompletePayload](env)
	default:
		return nil, nil // Unknown event type
	}
}

func decode[T any](env *Envelope) (interface{}, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
