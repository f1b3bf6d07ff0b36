package roomapi

import (
	"context"
	"net/http"

	"github.com/kalee/two-rooms-client/go/internal/models"
)

// RoundStatus is the round-status pull document, used to rehydrate round
// state after a reconnect.
type RoundStatus struct {
	RoundNumber          int                `json:"roundNumber"`
	TimeRemaining        int                `json:"timeRemaining"`
	Duration             int                `json:"duration"`
	Status               models.RoundStatus `json:"status"`
	RedLeader            string             `json:"redLeader"`
	BlueLeader           string             `json:"blueLeader"`
	HostageCount         int                `json:"hostageCount"`
	RedHostagesSelected  bool               `json:"redHostagesSelected"`
	BlueHostagesSelected bool               `json:"blueHostagesSelected"`
}

// StartRound starts the next round (owner only)
func (c *Client) StartRound(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, roundStartPath(code), nil, nil)
}

// GetCurrentRound fetches the current round status
func (c *Client) GetCurrentRound(ctx context.Context, code string) (*RoundStatus, error) {
	var status RoundStatus
	if err := c.do(ctx, http.MethodGet, roundPath(code), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TransferLeadership voluntarily hands the caller's leadership to another player
func (c *Client) TransferLeadership(ctx context.Context, code, newLeaderID string) error {
	req := struct {
		NewLeaderID string `json:"newLeaderId"`
	}{NewLeaderID: newLeaderID}
	return c.do(ctx, http.MethodPost, leaderTransferPath(code), req, nil)
}

// MarkLeaderReady marks the caller's side as ready for the exchange
func (c *Client) MarkLeaderReady(ctx context.Context, code string, side models.RoomColor) error {
	req := struct {
		RoomColor models.RoomColor `json:"roomColor"`
	}{RoomColor: side}
	return c.do(ctx, http.MethodPost, leaderReadyPath(code), req, nil)
}

// SelectHostages submits the caller's hostage selection for this round
func (c *Client) SelectHostages(ctx context.Context, code string, hostageIDs []string) error {
	req := struct {
		HostageIDs []string `json:"hostageIds"`
	}{HostageIDs: hostageIDs}
	return c.do(ctx, http.MethodPost, hostagesPath(code), req, nil)
}
