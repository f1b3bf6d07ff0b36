package roomapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kalee/two-rooms-client/go/internal/models"
)

// StartVoteRequest starts a removal vote against a side's current leader
type StartVoteRequest struct {
	RoomColor      models.RoomColor `json:"roomColor"`
	TargetLeaderID string           `json:"targetLeaderId"`
}

// StartVote initiates a leader-removal vote
func (c *Client) StartVote(ctx context.Context, code string, req StartVoteRequest) error {
	return c.do(ctx, http.MethodPost, voteStartPath(code), req, nil)
}

// CastVote records the caller's choice: YES/NO for removal votes, a
// candidate player id for election votes.
func (c *Client) CastVote(ctx context.Context, code, voteID, choice string) error {
	req := struct {
		Vote string `json:"vote"`
	}{Vote: choice}
	return c.do(ctx, http.MethodPost, voteCastPath(code, voteID), req, nil)
}

// activeVoteDoc is the wire shape of the vote-status pull endpoint
type activeVoteDoc struct {
	ActiveVote *struct {
		VoteID           string           `json:"voteId"`
		VoteType         models.VoteType  `json:"voteType,omitempty"`
		RoomColor        models.RoomColor `json:"roomColor"`
		TargetLeaderID   string           `json:"targetLeaderId"`
		TargetLeaderName string           `json:"targetLeaderName"`
		InitiatorID      string           `json:"initiatorId"`
		InitiatorName    string           `json:"initiatorName"`
		Candidates       []string         `json:"candidates,omitempty"`
		TotalVoters      int              `json:"totalVoters"`
		VotedCount       int              `json:"votedCount"`
		TimeoutSeconds   int              `json:"timeoutSeconds"`
		TimeRemaining    int              `json:"timeRemaining"`
	} `json:"activeVote"`
}

// GetCurrentVote fetches the active vote session for one room side, or nil
// when no vote is in progress there.
func (c *Client) GetCurrentVote(ctx context.Context, code string, side models.RoomColor) (*models.VoteSession, error) {
	var doc activeVoteDoc
	path := fmt.Sprintf("%s?roomColor=%s", votePath(code), side)
	if err := c.do(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return nil, err
	}
	if doc.ActiveVote == nil {
		return nil, nil
	}
	v := doc.ActiveVote
	voteType := v.VoteType
	if voteType == "" {
		voteType = models.VoteTypeRemoval
		if len(v.Candidates) > 0 {
			voteType = models.VoteTypeElection
		}
	}
	return &models.VoteSession{
		VoteID:           v.VoteID,
		Type:             voteType,
		RoomColor:        v.RoomColor,
		TargetLeaderID:   v.TargetLeaderID,
		TargetLeaderName: v.TargetLeaderName,
		InitiatorID:      v.InitiatorID,
		InitiatorName:    v.InitiatorName,
		Candidates:       v.Candidates,
		TotalVoters:      v.TotalVoters,
		VotedCount:       v.VotedCount,
		TimeoutSeconds:   v.TimeoutSeconds,
		TimeRemaining:    v.TimeRemaining,
		Status:           models.VoteStatusActive,
	}, nil
}
