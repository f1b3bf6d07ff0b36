package roomapi

import (
	"context"
	"net/http"

	"github.com/kalee/two-rooms-client/go/internal/models"
)

// CreateRoomRequest creates a new room
type CreateRoomRequest struct {
	MaxPlayers int  `json:"maxPlayers"`
	IsPublic   bool `json:"isPublic,omitempty"`
}

// CreateRoom creates a room and returns its initial snapshot
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/rooms", req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetRoom fetches the full authoritative snapshot for a room
func (c *Client) GetRoom(ctx context.Context, code string) (*models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	if err := c.do(ctx, http.MethodGet, roomPath(code), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// JoinRoom joins the room as a new anonymous participant
func (c *Client) JoinRoom(ctx context.Context, code string) (*models.Player, error) {
	var player models.Player
	if err := c.do(ctx, http.MethodPost, playersPath(code), nil, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

// LeaveRoom removes the participant from the room
func (c *Client) LeaveRoom(ctx context.Context, code, playerID string) error {
	return c.do(ctx, http.MethodDelete, playerPath(code, playerID), nil, nil)
}

// UpdateNickname changes the participant's display name
func (c *Client) UpdateNickname(ctx context.Context, code, playerID, nickname string) (*models.Player, error) {
	var player models.Player
	req := struct {
		Nickname string `json:"nickname"`
	}{Nickname: nickname}
	if err := c.do(ctx, http.MethodPatch, nicknamePath(code, playerID), req, &player); err != nil {
		return nil, err
	}
	return &player, nil
}
