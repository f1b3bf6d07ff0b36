package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalee/two-rooms-client/go/clients/roomapi"
	"github.com/kalee/two-rooms-client/go/internal/cache"
	"github.com/kalee/two-rooms-client/go/internal/channel"
	"github.com/kalee/two-rooms-client/go/internal/events"
	"github.com/kalee/two-rooms-client/go/internal/models"
)

type stubAPI struct {
	mu        sync.Mutex
	snap      models.RoomSnapshot
	snapErr   error
	round     *roomapi.RoundStatus
	vote      *models.VoteSession
	roomCalls int
}

func (s *stubAPI) setSnapshot(snap models.RoomSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func (s *stubAPI) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCalls
}

func (s *stubAPI) GetRoom(ctx context.Context, code string) (*models.RoomSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomCalls++
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	out := s.snap
	out.Players = append([]models.Player(nil), s.snap.Players...)
	return &out, nil
}

func (s *stubAPI) GetCurrentRound(ctx context.Context, code string) (*roomapi.RoundStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round == nil {
		return nil, errors.New("no active round")
	}
	out := *s.round
	return &out, nil
}

func (s *stubAPI) GetCurrentVote(ctx context.Context, code string, side models.RoomColor) (*models.VoteSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vote == nil || s.vote.RoomColor != side {
		return nil, nil
	}
	out := *s.vote
	return &out, nil
}

func lobbyAPI() *stubAPI {
	return &stubAPI{snap: models.RoomSnapshot{
		Code:       "ABC123",
		Status:     models.RoomStatusWaiting,
		MaxPlayers: 10,
		Players: []models.Player{
			{ID: "self", Nickname: "me", IsOwner: true},
			{ID: "p2", Nickname: "bo"},
		},
	}}
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	// The periodic pull is driven explicitly by advancing the fake clock.
	cfg.ReconcileInterval = time.Hour
	return cfg
}

type harness struct {
	t        *testing.T
	engine   *Engine
	api      *stubAPI
	clock    *clockwork.FakeClock
	statuses chan channel.Status
	cancel   context.CancelFunc
}

func startEngine(t *testing.T, cfg Config, api *stubAPI, store HistoryStore) *harness {
	t.Helper()
	clk := clockwork.NewFakeClock()
	statuses := make(chan channel.Status, 8)
	engine := New(cfg, "ABC123", "self", api, store, nil, statuses, clk)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Bootstrap(ctx))
	go engine.Run(ctx)
	t.Cleanup(cancel)
	return &harness{t: t, engine: engine, api: api, clock: clk, statuses: statuses, cancel: cancel}
}

func (h *harness) apply(typ events.EventType, payload interface{}) {
	h.t.Helper()
	env, err := events.NewEnvelope(typ, payload)
	require.NoError(h.t, err)
	h.engine.Apply(*env)
}

func (h *harness) applyRaw(typ events.EventType, payload string) {
	h.t.Helper()
	h.engine.Apply(events.Envelope{Type: typ, Payload: []byte(payload)})
}

func (h *harness) eventually(cond func(State) bool, msg string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return cond(h.engine.Snapshot())
	}, 3*time.Second, 10*time.Millisecond, msg)
}

func (h *harness) assignRole(room models.RoomColor) {
	h.t.Helper()
	h.apply(events.TypeRoleAssigned, events.RoleAssignedPayload{
		Role:        models.Role{ID: "r1", Name: "Blue Agent", Team: models.TeamBlue},
		Team:        models.TeamBlue,
		CurrentRoom: room,
	})
}

func (h *harness) startRound(n int) {
	h.t.Helper()
	h.apply(events.TypeRoundStarted, events.RoundStartedPayload{
		RoundNumber:   n,
		Duration:      180,
		TimeRemaining: 180,
		RedLeader:     models.LeaderInfo{ID: "p2", Nickname: "bo"},
		BlueLeader:    models.LeaderInfo{ID: "self", Nickname: "me"},
		HostageCount:  1,
	})
}

func TestBootstrapFatalWithoutSnapshot(t *testing.T) {
	api := lobbyAPI()
	api.snapErr = errors.New("server down")
	engine := New(testEngineConfig(), "ABC123", "self", api, nil, nil, nil, clockwork.NewFakeClock())
	err := engine.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ABC123")
}

func TestBootstrapMergesInitialSnapshot(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)
	s := h.engine.Snapshot()
	assert.Equal(t, ViewLobby, s.View)
	assert.Len(t, s.Room.Players, 2)
	assert.True(t, s.Self.IsOwner)
	assert.Equal(t, "self", s.Self.PlayerID)
}

func TestDuplicateJoinAppliedOnce(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)

	// Byte-identical redelivery is stopped by the dedup filter.
	h.applyRaw(events.TypePlayerJoined, `{"player":{"id":"p3","nickname":"cy"}}`)
	h.applyRaw(events.TypePlayerJoined, `{"player":{"id":"p3","nickname":"cy"}}`)
	assert.Len(t, h.engine.Snapshot().Room.Players, 3)

	// A differently shaped delivery for the same player passes the filter
	// but the upsert still refuses the second entry.
	h.applyRaw(events.TypePlayerJoined, `{"player":{"id":"p3","nickname":"cy","isAnonymous":true}}`)
	assert.Len(t, h.engine.Snapshot().Room.Players, 3)
}

func TestLobbyMembershipEvents(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)

	h.apply(events.TypePlayerLeft, events.PlayerLeftPayload{PlayerID: "p2"})
	s := h.engine.Snapshot()
	require.Len(t, s.Room.Players, 1)

	h.apply(events.TypeNicknameChanged, events.NicknameChangedPayload{PlayerID: "self", NewNickname: "captain"})
	s = h.engine.Snapshot()
	assert.Equal(t, "captain", s.Room.Players[0].Nickname)

	h.apply(events.TypeOwnerChanged, events.OwnerChangedPayload{NewOwner: models.Player{ID: "p4", Nickname: "dee"}})
	s = h.engine.Snapshot()
	assert.False(t, s.Self.IsOwner)
	owner := s.Room.FindPlayer("p4")
	require.NotNil(t, owner)
	assert.True(t, owner.IsOwner)
}

func TestRoomClosedReturnsToLobby(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)
	h.assignRole(models.RedRoom)
	h.apply(events.TypeRoomClosed, events.RoomClosedPayload{Reason: "owner left"})

	s := h.engine.Snapshot()
	assert.True(t, s.RoomClosed)
	assert.Equal(t, "owner left", s.RoomClosedReason)
	assert.Equal(t, ViewLobby, s.View)
}

func TestRoleAssignmentIsOneShot(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)
	h.assignRole(models.RedRoom)

	s := h.engine.Snapshot()
	assert.Equal(t, ViewGame, s.View)
	require.NotNil(t, s.Self.Role)
	assert.Equal(t, "Blue Agent", s.Self.Role.Name)
	assert.Equal(t, models.RedRoom, s.Self.CurrentRoom)

	// A late redelivery with different contents must not overwrite.
	h.apply(events.TypeRoleAssigned, events.RoleAssignedPayload{
		Role:        models.Role{ID: "r9", Name: "Red Bomber", Team: models.TeamRed},
		Team:        models.TeamRed,
		CurrentRoom: models.BlueRoom,
	})
	s = h.engine.Snapshot()
	assert.Equal(t, "Blue Agent", s.Self.Role.Name)
	assert.Equal(t, models.RedRoom, s.Self.CurrentRoom)
}

func TestGameStartedResolvesRoleFromSnapshot(t *testing.T) {
	api := lobbyAPI()
	h := startEngine(t, testEngineConfig(), api, nil)

	role := &models.Role{ID: "r1", Name: "Red Spy", Team: models.TeamRed, IsSpy: true}
	api.setSnapshot(models.RoomSnapshot{
		Code:   "ABC123",
		Status: models.RoomStatusInProgress,
		Players: []models.Player{
			{ID: "self", Nickname: "me", IsOwner: true, Role: role, Team: models.TeamRed, CurrentRoom: models.BlueRoom},
			{ID: "p2", Nickname: "bo", CurrentRoom: models.RedRoom},
		},
	})

	h.apply(events.TypeGameStarted, events.GameStartedPayload{
		GameSession: models.GameSession{ID: "gs1", RoomCode: "ABC123", StartedAt: time.Now()},
	})

	h.eventually(func(s State) bool {
		return s.Self.Role != nil && s.View == ViewGame
	}, "role should be resolved from the snapshot pull")
	s := h.engine.Snapshot()
	assert.Equal(t, "Red Spy", s.Self.Role.Name)
	assert.Equal(t, models.BlueRoom, s.Self.CurrentRoom)
	require.NotNil(t, s.Room.GameSession)
	assert.Equal(t, "gs1", s.Room.GameSession.ID)
}

func TestRoundLifecycle(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)
	h.assignRole(models.BlueRoom)
	h.startRound(1)

	s := h.engine.Snapshot()
	require.NotNil(t, s.Round)
	assert.Equal(t, models.RoundStatusActive, s.Round.Status)
	assert.Equal(t, "p2", s.Round.Red.LeaderID)
	assert.Equal(t, "self", s.Round.Blue.LeaderID)

	h.apply(events.TypeTimerTick, events.TimerTickPayload{RoundNumber: 1, TimeRemaining: 90})
	// A tick for some other round is stale and ignored.
	h.apply(events.TypeTimerTick, events.TimerTickPayload{RoundNumber: 7, TimeRemaining: 5})
	s = h.engine.Snapshot()
	assert.Equal(t, 90, s.Round.TimeRemaining)

	h.apply(events.TypeRoundEnding, events.RoundEndingPayload{RoundNumber: 1, TimeRemaining: 30})
	s = h.engine.Snapshot()
	assert.Equal(t, models.RoundStatusSelecting, s.Round.Status)

	h.apply(events.TypeLeaderReady, events.LeaderReadyPayload{RoomColor: models.RedRoom, LeaderID: "p2"})
	s = h.engine.Snapshot()
	assert.True(t, s.Round.Red.Ready)

	// A leader inside their own hostage list violates the round invariant.
	h.apply(events.TypeLeaderAnnouncedHostages, events.LeaderAnnouncedHostagesPayload{
		RoomColor: models.RedRoom,
		Hostages:  []models.LeaderInfo{{ID: "p2"}},
	})
	s = h.engine.Snapshot()
	assert.Empty(t, s.Round.Red.Hostages)
	assert.False(t, s.Round.Red.Announced)

	h.apply(events.TypeLeaderAnnouncedHostages, events.LeaderAnnouncedHostagesPayload{
		RoomColor: models.RedRoom,
		Hostages:  []models.LeaderInfo{{ID: "p5", Nickname: "ed"}},
	})
	s = h.engine.Snapshot()
	assert.Equal(t, []string{"p5"}, s.Round.Red.Hostages)
	assert.True(t, s.Round.Red.Announced)

	h.apply(events.TypeExchangeReady, events.ExchangeReadyPayload{
		RedHostages:  []models.Player{{ID: "p5"}},
		BlueHostages: []models.Player{{ID: "p6"}},
		Countdown:    5,
	})
	s = h.engine.Snapshot()
	assert.Equal(t, models.RoundStatusExchanging, s.Round.Status)
	assert.Equal(t, 5, s.Round.ExchangeCountdown)

	h.apply(events.TypeRoundEnded, events.RoundEndedPayload{RoundNumber: 1, NextPhase: "ROUND_SETUP"})
	s = h.engine.Snapshot()
	assert.Equal(t, models.RoundStatusComplete, s.Round.Status)
}

func TestExchangeMovesPlayersAndCapsAnimations(t *testing.T) {
	cfg := testEngineConfig()
	h := startEngine(t, cfg, lobbyAPI(), nil)
	h.assignRole(models.RedRoom)
	h.startRound(1)

	h.apply(events.TypeExchangeComplete, events.ExchangeCompletePayload{
		RoundNumber: 1,
		Exchanges: []events.ExchangeRecord{
			{PlayerID: "self", Nickname: "me", FromRoom: models.RedRoom, ToRoom: models.BlueRoom, Timestamp: "t1"},
			{PlayerID: "p2", Nickname: "bo", FromRoom: models.BlueRoom, ToRoom: models.RedRoom, Timestamp: "t1"},
		},
	})
	s := h.engine.Snapshot()
	assert.Equal(t, models.BlueRoom, s.Self.CurrentRoom)
	assert.Len(t, s.History, 2)
	assert.True(t, s.PendingAnimation)
	assert.Equal(t, models.RoundStatusComplete, s.Round.Status)

	h.clock.Advance(cfg.AnimationWindow)
	h.eventually(func(s State) bool { return !s.PendingAnimation }, "animation should finish")

	// A replayed completion for the same round neither re-animates nor
	// duplicates history.
	h.apply(events.TypeExchangeComplete, events.ExchangeCompletePayload{
		RoundNumber: 1,
		NextRound:   2,
	})
	s = h.engine.Snapshot()
	assert.Len(t, s.History, 2)
	assert.False(t, s.PendingAnimation)

	h.startRound(2)
	h.apply(events.TypeExchangeComplete, events.ExchangeCompletePayload{
		RoundNumber: 2,
		Exchanges: []events.ExchangeRecord{
			{PlayerID: "p2", FromRoom: models.RedRoom, ToRoom: models.BlueRoom, Timestamp: "t2"},
		},
	})
	s = h.engine.Snapshot()
	assert.True(t, s.PendingAnimation, "second animation is under the cap")
	h.clock.Advance(cfg.AnimationWindow)
	h.eventually(func(s State) bool { return !s.PendingAnimation }, "second animation should finish")

	// Third exchange exceeds the cap: state still updates, no animation.
	h.startRound(3)
	h.apply(events.TypeExchangeComplete, events.ExchangeCompletePayload{
		RoundNumber: 3,
		Exchanges: []events.ExchangeRecord{
			{PlayerID: "p2", FromRoom: models.BlueRoom, ToRoom: models.RedRoom, Timestamp: "t3"},
		},
	})
	s = h.engine.Snapshot()
	assert.Len(t, s.History, 4)
	assert.False(t, s.PendingAnimation)
}

func TestLeadershipChangeAppendsHistoryOnce(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)
	h.assignRole(models.RedRoom)
	h.startRound(1)

	h.applyRaw(events.TypeLeadershipChanged,
		`{"roomColor":"RED_ROOM","newLeader":{"id":"p5","nickname":"ed"},"reason":"DISCONNECTION","timestamp":"ts1"}`)
	// Replay with the old leader echoed: same (kind, timestamp, subject).
	h.applyRaw(events.TypeLeadershipChanged,
		`{"roomColor":"RED_ROOM","oldLeader":{"id":"p2"},"newLeader":{"id":"p5","nickname":"ed"},"reason":"DISCONNECTION","timestamp":"ts1"}`)

	s := h.engine.Snapshot()
	require.Len(t, s.History, 1)
	assert.Equal(t, models.HistoryLeadershipChange, s.History[0].Type)
	assert.Equal(t, "p5", s.History[0].SubjectID)
	assert.Equal(t, "p5", s.Round.Red.LeaderID)
}

func TestVoteViewHeldWhenElectionFollowsRemoval(t *testing.T) {
	cfg := testEngineConfig()
	h := startEngine(t, cfg, lobbyAPI(), nil)
	h.assignRole(models.RedRoom)
	h.startRound(1)

	h.apply(events.TypeVoteSessionStarted, events.VoteSessionStartedPayload{
		VoteID:         "v1",
		VoteType:       models.VoteTypeRemoval,
		RoomColor:      models.RedRoom,
		TargetLeader:   &models.LeaderInfo{ID: "p2", Nickname: "bo"},
		TotalVoters:    3,
		TimeoutSeconds: 120,
	})
	s := h.engine.Snapshot()
	assert.Equal(t, ViewVote, s.View)
	require.Contains(t, s.Votes, models.RedRoom)
	assert.Equal(t, models.VoteTypeRemoval, s.Votes[models.RedRoom].Type)

	h.apply(events.TypeVoteCompleted, events.VoteCompletedPayload{
		VoteID:   "v1",
		Result:   models.VoteResultPassed,
		YesVotes: 2,
		NoVotes:  1,
	})
	s = h.engine.Snapshot()
	assert.Empty(t, s.Votes)
	require.NotNil(t, s.LastVoteResult)
	assert.Equal(t, models.VoteResultPassed, s.LastVoteResult.Result)
	assert.Equal(t, ViewVote, s.View)

	// The follow-up election starts inside the display window.
	h.apply(events.TypeVoteSessionStarted, events.VoteSessionStartedPayload{
		VoteID:         "v2",
		RoomColor:      models.RedRoom,
		Candidates:     []string{"p5", "p6"},
		TotalVoters:    3,
		TimeoutSeconds: 120,
	})
	s = h.engine.Snapshot()
	assert.Equal(t, models.VoteTypeElection, s.Votes[models.RedRoom].Type)

	h.clock.Advance(cfg.VoteDisplayWindow)
	h.eventually(func(s State) bool { return s.LastVoteResult == nil }, "stale result should clear")
	assert.Equal(t, ViewVote, h.engine.Snapshot().View, "active election must keep the vote view")

	h.apply(events.TypeVoteProgress, events.VoteProgressPayload{VoteID: "v2", VotedCount: 2, TotalVoters: 3, TimeRemaining: 90})
	s = h.engine.Snapshot()
	assert.Equal(t, 2, s.Votes[models.RedRoom].VotedCount)

	h.apply(events.TypeVoteCompleted, events.VoteCompletedPayload{
		VoteID:    "v2",
		Result:    models.VoteResultPassed,
		NewLeader: &models.LeaderInfo{ID: "p5", Nickname: "ed"},
	})
	s = h.engine.Snapshot()
	assert.Equal(t, "p5", s.Round.Red.LeaderID)

	h.clock.Advance(cfg.VoteDisplayWindow)
	h.eventually(func(s State) bool { return s.View == ViewGame }, "view should return to game after the window")
}

func TestVoteSessionTimesOutLocally(t *testing.T) {
	cfg := testEngineConfig()
	h := startEngine(t, cfg, lobbyAPI(), nil)
	h.assignRole(models.RedRoom)

	h.apply(events.TypeVoteSessionStarted, events.VoteSessionStartedPayload{
		VoteID:         "v1",
		VoteType:       models.VoteTypeRemoval,
		RoomColor:      models.RedRoom,
		TotalVoters:    3,
		TimeoutSeconds: 30,
	})

	h.clock.Advance(30 * time.Second)
	h.eventually(func(s State) bool {
		return s.LastVoteResult != nil && s.LastVoteResult.Result == models.VoteResultTimeout
	}, "vote should time out locally")
	assert.Empty(t, h.engine.Snapshot().Votes)

	h.clock.Advance(cfg.VoteDisplayWindow)
	h.eventually(func(s State) bool { return s.View == ViewGame && s.LastVoteResult == nil },
		"view should return to game after the timeout display window")
}

func TestVoteRemovalLeadershipChangeReturnsToGame(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)
	h.assignRole(models.RedRoom)
	h.startRound(1)

	h.apply(events.TypeVoteSessionStarted, events.VoteSessionStartedPayload{
		VoteID:         "v1",
		VoteType:       models.VoteTypeRemoval,
		RoomColor:      models.RedRoom,
		TotalVoters:    3,
		TimeoutSeconds: 120,
	})
	h.apply(events.TypeVoteCompleted, events.VoteCompletedPayload{VoteID: "v1", Result: models.VoteResultPassed})
	assert.Equal(t, ViewVote, h.engine.Snapshot().View)

	h.applyRaw(events.TypeLeadershipChanged,
		`{"roomColor":"RED_ROOM","newLeader":{"id":"p5"},"reason":"VOTE_REMOVAL","timestamp":"ts9"}`)
	s := h.engine.Snapshot()
	assert.Equal(t, ViewGame, s.View)
	assert.Len(t, s.History, 1)
}

func TestPeriodicMergeNeverRemovesHistoryOrDowngradesView(t *testing.T) {
	cfg := testEngineConfig()
	api := lobbyAPI()
	h := startEngine(t, cfg, api, nil)
	h.assignRole(models.RedRoom)
	h.startRound(1)
	h.apply(events.TypeExchangeComplete, events.ExchangeCompletePayload{
		RoundNumber: 1,
		Exchanges: []events.ExchangeRecord{
			{PlayerID: "p2", FromRoom: models.BlueRoom, ToRoom: models.RedRoom, Timestamp: "t1"},
		},
	})
	h.apply(events.TypeVoteSessionStarted, events.VoteSessionStartedPayload{
		VoteID:         "v1",
		VoteType:       models.VoteTypeRemoval,
		RoomColor:      models.RedRoom,
		TotalVoters:    3,
		TimeoutSeconds: 7200,
	})
	require.Equal(t, ViewVote, h.engine.Snapshot().View)

	// A stale snapshot claims the room went back to waiting with one player.
	api.setSnapshot(models.RoomSnapshot{
		Code:    "ABC123",
		Status:  models.RoomStatusWaiting,
		Players: []models.Player{{ID: "self", Nickname: "me", IsOwner: true}},
	})
	before := api.calls()
	h.clock.Advance(cfg.ReconcileInterval)
	h.eventually(func(s State) bool { return api.calls() > before && len(s.Room.Players) == 1 },
		"periodic reconcile should pull and merge the snapshot")

	s := h.engine.Snapshot()
	assert.Equal(t, ViewVote, s.View, "a stale snapshot must not downgrade the view")
	assert.Len(t, s.History, 1, "merging a snapshot must never remove history")
	assert.NotNil(t, s.Self.Role, "the latched role survives a snapshot without it")
}

func TestRevealViewFromSnapshot(t *testing.T) {
	api := lobbyAPI()
	h := startEngine(t, testEngineConfig(), api, nil)
	h.assignRole(models.RedRoom)

	api.setSnapshot(models.RoomSnapshot{
		Code:   "ABC123",
		Status: models.RoomStatusRevealing,
		Players: []models.Player{
			{ID: "self", Role: &models.Role{ID: "r1", Name: "Blue Agent"}, Team: models.TeamBlue},
			{ID: "p2", Role: &models.Role{ID: "r2", Name: "Red Bomber"}, Team: models.TeamRed},
		},
	})
	h.apply(events.TypeGameRevealing, events.GameRevealingPayload{})

	h.eventually(func(s State) bool { return s.View == ViewReveal }, "reveal nudge should switch the view")
	s := h.engine.Snapshot()
	require.NotNil(t, s.Room.FindPlayer("p2").Role)
	assert.Equal(t, "Red Bomber", s.Room.FindPlayer("p2").Role.Name)
}

func TestGameResetClearsEverything(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)
	h.assignRole(models.RedRoom)
	h.startRound(1)
	h.apply(events.TypeExchangeComplete, events.ExchangeCompletePayload{
		RoundNumber: 1,
		Exchanges: []events.ExchangeRecord{
			{PlayerID: "self", FromRoom: models.RedRoom, ToRoom: models.BlueRoom, Timestamp: "t1"},
		},
	})
	h.apply(events.TypeVoteSessionStarted, events.VoteSessionStartedPayload{
		VoteID: "v1", VoteType: models.VoteTypeRemoval, RoomColor: models.RedRoom,
		TotalVoters: 3, TimeoutSeconds: 120,
	})

	h.apply(events.TypeGameReset, events.GameResetPayload{})

	s := h.engine.Snapshot()
	assert.Equal(t, ViewLobby, s.View)
	assert.Nil(t, s.Round)
	assert.Empty(t, s.Votes)
	assert.Nil(t, s.LastVoteResult)
	assert.Empty(t, s.History)
	assert.Nil(t, s.Self.Role)
	assert.False(t, s.PendingAnimation)
	assert.Nil(t, s.Room.GameSession)
	assert.Equal(t, models.RoomStatusWaiting, s.Room.Status)

	// Replaying an event from before the reset is still a duplicate.
	h.apply(events.TypeExchangeComplete, events.ExchangeCompletePayload{
		RoundNumber: 1,
		Exchanges: []events.ExchangeRecord{
			{PlayerID: "self", FromRoom: models.RedRoom, ToRoom: models.BlueRoom, Timestamp: "t1"},
		},
	})
	assert.Empty(t, h.engine.Snapshot().History)

	// A fresh assignment for the next game applies: the latch was re-armed.
	h.apply(events.TypeRoleAssigned, events.RoleAssignedPayload{
		Role:        models.Role{ID: "r2", Name: "Red Bomber", Team: models.TeamRed},
		Team:        models.TeamRed,
		CurrentRoom: models.BlueRoom,
	})
	s = h.engine.Snapshot()
	require.NotNil(t, s.Self.Role)
	assert.Equal(t, "Red Bomber", s.Self.Role.Name)
}

func TestReconnectRehydratesFromPullEndpoints(t *testing.T) {
	api := lobbyAPI()
	h := startEngine(t, testEngineConfig(), api, nil)
	h.assignRole(models.RedRoom)

	h.statuses <- channel.Status{State: channel.StateOpen}
	h.eventually(func(s State) bool { return s.Conn.State == channel.StateOpen }, "open status should be tracked")

	api.mu.Lock()
	api.snap.Status = models.RoomStatusInProgress
	api.round = &roomapi.RoundStatus{
		RoundNumber:   2,
		TimeRemaining: 77,
		Duration:      180,
		Status:        models.RoundStatusActive,
		RedLeader:     "p2",
		BlueLeader:    "self",
	}
	api.vote = &models.VoteSession{
		VoteID:         "v9",
		Type:           models.VoteTypeRemoval,
		RoomColor:      models.RedRoom,
		TotalVoters:    3,
		TimeoutSeconds: 30,
		TimeRemaining:  20,
		Status:         models.VoteStatusActive,
	}
	api.mu.Unlock()

	h.statuses <- channel.Status{State: channel.StateClosed, Attempts: 1}
	h.statuses <- channel.Status{State: channel.StateOpen}

	h.eventually(func(s State) bool {
		return s.Round != nil && s.Round.RoundNumber == 2 && len(s.Votes) == 1
	}, "round and vote state should be rehydrated after reconnect")
	s := h.engine.Snapshot()
	assert.Equal(t, 77, s.Round.TimeRemaining)
	assert.Equal(t, "v9", s.Votes[models.RedRoom].VoteID)
	assert.Equal(t, ViewVote, s.View)
}

func TestHistoryPersistsAcrossRestarts(t *testing.T) {
	store := cache.NewStore(t.TempDir())
	h := startEngine(t, testEngineConfig(), lobbyAPI(), store)
	h.assignRole(models.RedRoom)
	h.startRound(1)
	h.apply(events.TypeExchangeComplete, events.ExchangeCompletePayload{
		RoundNumber: 1,
		Exchanges: []events.ExchangeRecord{
			{PlayerID: "p2", Nickname: "bo", FromRoom: models.BlueRoom, ToRoom: models.RedRoom, Timestamp: "t1"},
		},
	})
	require.Len(t, h.engine.Snapshot().History, 1)
	h.cancel()

	// A second engine with an empty identity recovers both the identity and
	// the history from the store.
	engine := New(testEngineConfig(), "ABC123", "", lobbyAPI(), store, nil, nil, clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Bootstrap(ctx))
	go engine.Run(ctx)

	s := engine.Snapshot()
	assert.Equal(t, "self", s.Self.PlayerID)
	require.Len(t, s.History, 1)
	assert.Equal(t, "p2", s.History[0].SubjectID)
}

func TestGameResetClearsPersistedHistory(t *testing.T) {
	store := cache.NewStore(t.TempDir())
	h := startEngine(t, testEngineConfig(), lobbyAPI(), store)
	h.assignRole(models.RedRoom)
	h.startRound(1)
	h.apply(events.TypeExchangeComplete, events.ExchangeCompletePayload{
		RoundNumber: 1,
		Exchanges: []events.ExchangeRecord{
			{PlayerID: "p2", FromRoom: models.BlueRoom, ToRoom: models.RedRoom, Timestamp: "t1"},
		},
	})
	h.apply(events.TypeGameReset, events.GameResetPayload{})

	rec, err := store.Load("ABC123")
	require.NoError(t, err)
	assert.Equal(t, "self", rec.PlayerID)
	assert.Empty(t, rec.History)
}

func TestMalformedPayloadLeavesStateUntouched(t *testing.T) {
	h := startEngine(t, testEngineConfig(), lobbyAPI(), nil)
	before := h.engine.Snapshot()

	h.applyRaw(events.TypeTimerTick, `{"roundNumber":"not a number"}`)
	h.applyRaw("SOME_FUTURE_EVENT", `{"whatever":true}`)

	after := h.engine.Snapshot()
	assert.Equal(t, before.View, after.View)
	assert.Equal(t, len(before.Room.Players), len(after.Room.Players))
	assert.Nil(t, after.Round)
}
