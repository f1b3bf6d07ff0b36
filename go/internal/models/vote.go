package models

import "time"

// VoteType represents the kind of vote in progress
type VoteType string

const (
	VoteTypeRemoval  VoteType = "REMOVAL"  // Vote to remove a leader
	VoteTypeElection VoteType = "ELECTION" // Vote to elect a new leader
)

// VoteSessionStatus represents the status of a vote session
type VoteSessionStatus string

const (
	VoteStatusActive    VoteSessionStatus = "ACTIVE"
	VoteStatusCompleted VoteSessionStatus = "COMPLETED"
	VoteStatusTimeout   VoteSessionStatus = "TIMEOUT"
)

// Vote result values
const (
	VoteResultPassed  = "PASSED"
	VoteResultFailed  = "FAILED"
	VoteResultTimeout = "TIMEOUT"
)

// LeadershipChangeReason represents why leadership changed
type LeadershipChangeReason string

const (
	ReasonVoluntaryTransfer LeadershipChangeReason = "VOLUNTARY_TRANSFER"
	ReasonDisconnection     LeadershipChangeReason = "DISCONNECTION"
	ReasonVoteRemoval       LeadershipChangeReason = "VOTE_REMOVAL"
)

// VoteSession is a leader removal or election vote scoped to one room side.
// At most one session is active per side at a time.
type VoteSession struct {
	VoteID           string            `json:"voteId"`
	Type             VoteType          `json:"voteType"`
	RoomColor        RoomColor         `json:"roomColor"`
	TargetLeaderID   string            `json:"targetLeaderId,omitempty"`
	TargetLeaderName string            `json:"targetLeaderName,omitempty"`
	InitiatorID      string            `json:"initiatorId,omitempty"`
	InitiatorName    string            `json:"initiatorName,omitempty"`
	Candidates       []string          `json:"candidates,omitempty"`
	TotalVoters      int               `json:"totalVoters"`
	VotedCount       int               `json:"votedCount"`
	TimeoutSeconds   int               `json:"timeoutSeconds"`
	TimeRemaining    int               `json:"timeRemaining,omitempty"`
	StartedAt        time.Time         `json:"startedAt"`
	ExpiresAt        time.Time         `json:"expiresAt"`
	Status           VoteSessionStatus `json:"status"`
}

// VoteResult is the terminal outcome of a vote session
type VoteResult struct {
	VoteID        string `json:"voteId"`
	Result        string `json:"result"` // PASSED, FAILED or TIMEOUT
	YesVotes      int    `json:"yesVotes"`
	NoVotes       int    `json:"noVotes"`
	TotalVoters   int    `json:"totalVoters,omitempty"`
	NewLeaderID   string `json:"newLeaderId,omitempty"`
	NewLeaderName string `json:"newLeaderName,omitempty"`
}
