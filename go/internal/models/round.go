package models

import "fmt"

// RoundStatus represents the phase of the current round
type RoundStatus string

const (
	RoundStatusSetup      RoundStatus = "SETUP"
	RoundStatusActive     RoundStatus = "ACTIVE"
	RoundStatusSelecting  RoundStatus = "SELECTING"
	RoundStatusExchanging RoundStatus = "EXCHANGING"
	RoundStatusComplete   RoundStatus = "COMPLETE"
)

// SideState holds the per-room-side round fields: who leads the side,
// whether the leader has confirmed readiness, and the hostage selection
type SideState struct {
	LeaderID  string   `json:"leaderId"`
	Ready     bool     `json:"ready"`
	Hostages  []string `json:"hostages,omitempty"`
	Announced bool     `json:"announced"`
}

// SetHostages installs the side's hostage selection. A leader may never
// appear in their own hostage list.
func (s *SideState) SetHostages(ids []string) error {
	for _, id := range ids {
		if id == s.LeaderID {
			return fmt.Errorf("leader %s cannot be their own hostage", id)
		}
	}
	s.Hostages = ids
	return nil
}

// RoundState is the client-side view of the current round
type RoundState struct {
	RoundNumber       int         `json:"roundNumber"`
	Duration          int         `json:"duration"`      // seconds
	TimeRemaining     int         `json:"timeRemaining"` // seconds
	Status            RoundStatus `json:"status"`
	HostageCount      int         `json:"hostageCount"`
	Red               SideState   `json:"red"`
	Blue              SideState   `json:"blue"`
	ExchangeCountdown int         `json:"exchangeCountdown,omitempty"`
}

// Side returns the state for the given room side
func (r *RoundState) Side(c RoomColor) *SideState {
	if c == RedRoom {
		return &r.Red
	}
	return &r.Blue
}
