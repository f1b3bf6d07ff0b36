package events

import "github.com/kalee/two-rooms-client/go/internal/models"

// PlayerJoinedPayload for PLAYER_JOINED
type PlayerJoinedPayload struct {
	Player models.Player `json:"player"`
}

// PlayerLeftPayload for PLAYER_LEFT
type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
}

// PlayerDisconnectedPayload for PLAYER_DISCONNECTED
type PlayerDisconnectedPayload struct {
	PlayerID string `json:"playerId"`
}

// NicknameChangedPayload for NICKNAME_CHANGED
type NicknameChangedPayload struct {
	PlayerID    string `json:"playerId"`
	NewNickname string `json:"newNickname"`
}

// OwnerChangedPayload for OWNER_CHANGED
type OwnerChangedPayload struct {
	NewOwner models.Player `json:"newOwner"`
}

// RoomClosedPayload for ROOM_CLOSED
type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// GameStartedPayload for GAME_STARTED (room broadcast)
type GameStartedPayload struct {
	GameSession models.GameSession `json:"gameSession"`
}

// RoleAssignedPayload for ROLE_ASSIGNED (unicast to one player)
type RoleAssignedPayload struct {
	Role        models.Role      `json:"role"`
	Team        models.TeamColor `json:"team"`
	CurrentRoom models.RoomColor `json:"currentRoom"`
}

// GameResetPayload for GAME_RESET
type GameResetPayload struct {
	Room *models.RoomSnapshot `json:"room,omitempty"`
}

// GameRevealingPayload for GAME_REVEALING. The event is only a nudge; the
// authoritative status is pulled from the snapshot endpoint.
type GameRevealingPayload struct {
	StartedAt string `json:"startedAt,omitempty"`
}

// RoundStartedPayload for ROUND_STARTED
type RoundStartedPayload struct {
	RoundNumber   int               `json:"roundNumber"`
	Duration      int               `json:"duration"`
	TimeRemaining int               `json:"timeRemaining"`
	RedLeader     models.LeaderInfo `json:"redLeader"`
	BlueLeader    models.LeaderInfo `json:"blueLeader"`
	HostageCount  int               `json:"hostageCount"`
}

// TimerTickPayload for TIMER_TICK
type TimerTickPayload struct {
	RoundNumber   int `json:"roundNumber"`
	TimeRemaining int `json:"timeRemaining"`
}

// RoundEndingPayload for ROUND_ENDING (leaders must finish selecting)
type RoundEndingPayload struct {
	RoundNumber   int `json:"roundNumber"`
	TimeRemaining int `json:"timeRemaining"`
}

// RoundEndedPayload for ROUND_ENDED
type RoundEndedPayload struct {
	RoundNumber int    `json:"roundNumber"`
	FinalRound  bool   `json:"finalRound"`
	NextPhase   string `json:"nextPhase"` // ROUND_SETUP or REVEALING
}

// LeaderReadyPayload for LEADER_READY
type LeaderReadyPayload struct {
	RoomColor models.RoomColor `json:"roomColor"`
	LeaderID  string           `json:"leaderId"`
}

// LeadershipChangedPayload for LEADERSHIP_CHANGED
type LeadershipChangedPayload struct {
	RoomColor models.RoomColor              `json:"roomColor"`
	OldLeader *models.LeaderInfo            `json:"oldLeader"`
	NewLeader *models.LeaderInfo            `json:"newLeader"`
	Reason    models.LeadershipChangeReason `json:"reason"`
	Timestamp string                        `json:"timestamp"`
}

// VoteSessionStartedPayload for VOTE_SESSION_STARTED. VoteType is a newer
// field; older servers only send Candidates, from which the type is inferred.
type VoteSessionStartedPayload struct {
	VoteID         string             `json:"voteId"`
	VoteType       models.VoteType    `json:"voteType,omitempty"`
	RoomColor      models.RoomColor   `json:"roomColor"`
	TargetLeader   *models.LeaderInfo `json:"targetLeader,omitempty"`
	Initiator      *models.LeaderInfo `json:"initiator,omitempty"`
	Candidates     []string           `json:"candidates,omitempty"`
	TotalVoters    int                `json:"totalVoters"`
	TimeoutSeconds int                `json:"timeoutSeconds"`
	StartedAt      string             `json:"startedAt"`
}

// VoteProgressPayload for VOTE_PROGRESS
type VoteProgressPayload struct {
	VoteID        string `json:"voteId"`
	VotedCount    int    `json:"votedCount"`
	TotalVoters   int    `json:"totalVoters"`
	TimeRemaining int    `json:"timeRemaining"`
}

// VoteCompletedPayload for VOTE_COMPLETED
type VoteCompletedPayload struct {
	VoteID       string             `json:"voteId"`
	Result       string             `json:"result"` // PASSED, FAILED, TIMEOUT
	YesVotes     int                `json:"yesVotes"`
	NoVotes      int                `json:"noVotes"`
	TargetLeader *models.LeaderInfo `json:"targetLeader,omitempty"`
	NewLeader    *models.LeaderInfo `json:"newLeader,omitempty"`
	Reason       string             `json:"reason,omitempty"`
}

// LeaderAnnouncedHostagesPayload for LEADER_ANNOUNCED_HOSTAGES
type LeaderAnnouncedHostagesPayload struct {
	RoomColor             models.RoomColor    `json:"roomColor"`
	Hostages              []models.LeaderInfo `json:"hostages"`
	WaitingForOtherLeader bool                `json:"waitingForOtherLeader"`
}

// ExchangeReadyPayload for EXCHANGE_READY
type ExchangeReadyPayload struct {
	RedHostages  []models.Player `json:"redHostages"`
	BlueHostages []models.Player `json:"blueHostages"`
	Countdown    int             `json:"countdown"`
}

// ExchangeRecord describes a single player moving rooms during an exchange
type ExchangeRecord struct {
	PlayerID  string           `json:"playerId"`
	Nickname  string           `json:"nickname"`
	FromRoom  models.RoomColor `json:"fromRoom"`
	ToRoom    models.RoomColor `json:"toRoom"`
	Timestamp string           `json:"timestamp"`
}

// ExchangeCompletePayload for EXCHANGE_COMPLETE
type ExchangeCompletePayload struct {
	RoundNumber int              `json:"roundNumber"`
	Exchanges   []ExchangeRecord `json:"exchanges"`
	NextRound   int              `json:"nextRound,omitempty"`
}
