package roomapi

import (
	"context"
	"net/http"

	"github.com/kalee/two-rooms-client/go/internal/models"
)

// StartGame asks the server to start the game. Role assignment and the view
// transition arrive over the push channel.
func (c *Client) StartGame(ctx context.Context, code string) (*models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	if err := c.do(ctx, http.MethodPost, gameStartPath(code), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ResetGame returns the room to the lobby. The GAME_RESET push event drives
// the local state clearing.
func (c *Client) ResetGame(ctx context.Context, code string) (*models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	if err := c.do(ctx, http.MethodPost, gameResetPath(code), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
