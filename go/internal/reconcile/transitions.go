package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kalee/two-rooms-client/go/internal/events"
	"github.com/kalee/two-rooms-client/go/internal/models"
)

// applyEvent is the single entry point for push events. Duplicates are
// filtered first, then the payload is fully decoded before any state is
// touched, so a malformed event can never leave a partial mutation behind.
func (e *Engine) applyEvent(ctx context.Context, env events.Envelope) {
	if !e.dedup.ShouldApply(env) {
		log.Debug().Str("type", string(env.Type)).Msg("duplicate event suppressed")
		return
	}
	payload, err := events.ParsePayload(&env)
	if err != nil {
		log.Warn().Err(err).Str("type", string(env.Type)).Msg("ignoring event with malformed payload")
		return
	}
	if payload == nil {
		log.Debug().Str("type", string(env.Type)).Msg("ignoring unrecognized event tag")
		return
	}

	switch p := payload.(type) {
	case events.PlayerJoinedPayload:
		e.onPlayerJoined(p)
	case events.PlayerLeftPayload:
		e.onPlayerGone(p.PlayerID)
	case events.PlayerDisconnectedPayload:
		e.onPlayerGone(p.PlayerID)
	case events.NicknameChangedPayload:
		e.onNicknameChanged(p)
	case events.OwnerChangedPayload:
		e.onOwnerChanged(p)
	case events.RoomClosedPayload:
		e.onRoomClosed(p)
	case events.GameStartedPayload:
		e.onGameStarted(ctx, p)
	case events.RoleAssignedPayload:
		e.onRoleAssigned(p)
	case events.GameResetPayload:
		e.onGameReset(p)
	case events.GameRevealingPayload:
		e.onGameRevealing(ctx)
	case events.RoundStartedPayload:
		e.onRoundStarted(p)
	case events.TimerTickPayload:
		e.onTimerTick(p)
	case events.RoundEndingPayload:
		e.onRoundEnding(p)
	case events.RoundEndedPayload:
		e.onRoundEnded(ctx, p)
	case events.LeaderReadyPayload:
		e.onLeaderReady(p)
	case events.LeadershipChangedPayload:
		e.onLeadershipChanged(p)
	case events.VoteSessionStartedPayload:
		e.onVoteSessionStarted(ctx, p)
	case events.VoteProgressPayload:
		e.onVoteProgress(p)
	case events.VoteCompletedPayload:
		e.onVoteCompleted(ctx, p)
	case events.LeaderAnnouncedHostagesPayload:
		e.onLeaderAnnouncedHostages(p)
	case events.ExchangeReadyPayload:
		e.onExchangeReady(p)
	case events.ExchangeCompletePayload:
		e.onExchangeComplete(ctx, p)
	}
}

func (e *Engine) onPlayerJoined(p events.PlayerJoinedPayload) {
	if e.state.Room.UpsertPlayer(p.Player) {
		log.Info().Str("player", p.Player.ID).Str("nickname", p.Player.Nickname).
			Str("room", e.roomCode).Msg("player joined")
	}
}

func (e *Engine) onPlayerGone(playerID string) {
	if e.state.Room.RemovePlayer(playerID) {
		log.Info().Str("player", playerID).Str("room", e.roomCode).Msg("player left")
	}
}

func (e *Engine) onNicknameChanged(p events.NicknameChangedPayload) {
	if player := e.state.Room.FindPlayer(p.PlayerID); player != nil {
		player.Nickname = p.NewNickname
		player.IsAnonymous = false
	}
}

func (e *Engine) onOwnerChanged(p events.OwnerChangedPayload) {
	e.state.Room.UpsertPlayer(p.NewOwner)
	e.state.Room.SetOwner(p.NewOwner.ID)
	e.state.Self.IsOwner = p.NewOwner.ID == e.state.Self.PlayerID
	log.Info().Str("owner", p.NewOwner.ID).Str("room", e.roomCode).Msg("room ownership changed")
	e.persistCache()
}

func (e *Engine) onRoomClosed(p events.RoomClosedPayload) {
	e.state.RoomClosed = true
	e.state.RoomClosedReason = p.Reason
	e.state.View = ViewLobby
	log.Warn().Str("room", e.roomCode).Str("reason", p.Reason).Msg("room closed by server")
}

// onGameStarted records the session. The broadcast never carries this
// participant's own role, so unless the role is already latched a snapshot
// pull resolves it.
func (e *Engine) onGameStarted(ctx context.Context, p events.GameStartedPayload) {
	gs := p.GameSession
	e.state.Room.GameSession = &gs
	e.state.Room.Status = models.RoomStatusInProgress
	log.Info().Str("room", e.roomCode).Str("session", gs.ID).Msg("game started")
	if !e.state.roleLatched {
		e.fetchSnapshot(ctx, mergeRoleLookup)
	}
}

// onRoleAssigned applies the unicast role assignment at most once per game.
// Redeliveries after the latch is set cannot overwrite the assignment.
func (e *Engine) onRoleAssigned(p events.RoleAssignedPayload) {
	if e.state.roleLatched {
		log.Debug().Str("room", e.roomCode).Msg("role already latched for this game, ignoring redelivery")
		return
	}
	role := p.Role
	e.state.Self.Role = &role
	e.state.Self.Team = p.Team
	e.state.Self.CurrentRoom = p.CurrentRoom
	e.state.roleLatched = true
	if self := e.state.Room.FindPlayer(e.state.Self.PlayerID); self != nil {
		r := p.Role
		self.Role = &r
		self.Team = p.Team
		self.CurrentRoom = p.CurrentRoom
	}
	e.state.View = ViewGame
	log.Info().Str("room", e.roomCode).Str("role", role.Name).Str("side", string(p.CurrentRoom)).
		Msg("role assigned")
}

// onGameReset returns the room to the lobby and clears everything the game
// accumulated: round, votes, history, the role latch and the animation
// counters. Event dedup identities are deliberately kept, so a replay of a
// pre-reset event still cannot re-apply.
func (e *Engine) onGameReset(p events.GameResetPayload) {
	e.cancelTimers()
	if p.Room != nil {
		room := *p.Room
		room.Players = append([]models.Player(nil), p.Room.Players...)
		room.Normalize()
		e.state.Room = room
	}
	e.state.Room.GameSession = nil
	e.state.Room.Status = models.RoomStatusWaiting
	for i := range e.state.Room.Players {
		e.state.Room.Players[i].Role = nil
		e.state.Room.Players[i].Team = ""
		e.state.Room.Players[i].CurrentRoom = ""
	}
	e.state.Self.Role = nil
	e.state.Self.Team = ""
	e.state.Self.CurrentRoom = ""
	e.state.roleLatched = false
	e.state.Round = nil
	e.state.Votes = make(map[models.RoomColor]*models.VoteSession)
	e.state.LastVoteResult = nil
	e.state.History = nil
	e.state.historyKeys = make(map[string]struct{})
	e.state.PendingAnimation = false
	e.state.animationsShown = 0
	e.state.animatedRounds = make(map[int]bool)
	e.state.View = ViewLobby
	log.Info().Str("room", e.roomCode).Msg("game reset, back to lobby")
	e.persistCache()
}

// onGameRevealing nudges a snapshot pull; the REVEALING status in the
// snapshot is what actually switches the view.
func (e *Engine) onGameRevealing(ctx context.Context) {
	e.fetchSnapshot(ctx, mergeReveal)
}

func (e *Engine) onRoundStarted(p events.RoundStartedPayload) {
	e.state.Round = &models.RoundState{
		RoundNumber:   p.RoundNumber,
		Duration:      p.Duration,
		TimeRemaining: p.TimeRemaining,
		Status:        models.RoundStatusActive,
		HostageCount:  p.HostageCount,
		Red:           models.SideState{LeaderID: p.RedLeader.ID},
		Blue:          models.SideState{LeaderID: p.BlueLeader.ID},
	}
	if gs := e.state.Room.GameSession; gs != nil {
		gs.RoundNumber = p.RoundNumber
		gs.RedLeaderID = p.RedLeader.ID
		gs.BlueLeaderID = p.BlueLeader.ID
		gs.HostageCount = p.HostageCount
	}
	log.Info().Str("room", e.roomCode).Int("round", p.RoundNumber).Int("duration", p.Duration).
		Msg("round started")
}

func (e *Engine) onTimerTick(p events.TimerTickPayload) {
	if e.state.Round != nil && e.state.Round.RoundNumber == p.RoundNumber {
		e.state.Round.TimeRemaining = p.TimeRemaining
	}
}

func (e *Engine) onRoundEnding(p events.RoundEndingPayload) {
	if e.state.Round != nil && e.state.Round.RoundNumber == p.RoundNumber {
		e.state.Round.TimeRemaining = p.TimeRemaining
		e.state.Round.Status = models.RoundStatusSelecting
	}
}

func (e *Engine) onRoundEnded(ctx context.Context, p events.RoundEndedPayload) {
	if e.state.Round != nil && e.state.Round.RoundNumber == p.RoundNumber {
		e.state.Round.Status = models.RoundStatusComplete
	}
	if p.NextPhase == "REVEALING" {
		e.fetchSnapshot(ctx, mergeReveal)
	}
}

func (e *Engine) onLeaderReady(p events.LeaderReadyPayload) {
	if e.state.Round != nil {
		e.state.Round.Side(p.RoomColor).Ready = true
	}
}

func (e *Engine) onLeadershipChanged(p events.LeadershipChangedPayload) {
	var newID, newName string
	if p.NewLeader != nil {
		newID = p.NewLeader.ID
		newName = p.NewLeader.Nickname
	}
	if e.state.Round != nil {
		e.state.Round.Side(p.RoomColor).LeaderID = newID
	}
	if gs := e.state.Room.GameSession; gs != nil {
		if p.RoomColor == models.RedRoom {
			gs.RedLeaderID = newID
		} else {
			gs.BlueLeaderID = newID
		}
	}
	e.appendHistory(models.HistoryEvent{
		Type:        models.HistoryLeadershipChange,
		Timestamp:   p.Timestamp,
		SubjectID:   newID,
		SubjectName: newName,
		Reason:      string(p.Reason),
	}, true)
	log.Info().Str("room", e.roomCode).Str("side", string(p.RoomColor)).
		Str("leader", newID).Str("reason", string(p.Reason)).Msg("leadership changed")
	// A vote-driven change guarantees the return to the game view unless a
	// new session is already active.
	if p.Reason == models.ReasonVoteRemoval && e.state.View == ViewVote && len(e.state.Votes) == 0 {
		e.state.View = ViewGame
	}
}

func (e *Engine) onVoteSessionStarted(ctx context.Context, p events.VoteSessionStartedPayload) {
	if existing := e.state.Votes[p.RoomColor]; existing != nil {
		log.Warn().Str("room", e.roomCode).Str("side", string(p.RoomColor)).
			Str("existing", existing.VoteID).Str("incoming", p.VoteID).
			Msg("vote session already active for side, keeping existing")
	} else {
		voteType := p.VoteType
		if voteType == "" {
			voteType = models.VoteTypeRemoval
			if len(p.Candidates) > 0 {
				voteType = models.VoteTypeElection
			}
		}
		timeout := time.Duration(p.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = e.cfg.VoteTimeoutFallback
		}
		session := &models.VoteSession{
			VoteID:         p.VoteID,
			Type:           voteType,
			RoomColor:      p.RoomColor,
			Candidates:     p.Candidates,
			TotalVoters:    p.TotalVoters,
			TimeoutSeconds: int(timeout.Seconds()),
			TimeRemaining:  int(timeout.Seconds()),
			StartedAt:      e.clock.Now(),
			ExpiresAt:      e.clock.Now().Add(timeout),
			Status:         models.VoteStatusActive,
		}
		if p.TargetLeader != nil {
			session.TargetLeaderID = p.TargetLeader.ID
			session.TargetLeaderName = p.TargetLeader.Nickname
		}
		if p.Initiator != nil {
			session.InitiatorID = p.Initiator.ID
			session.InitiatorName = p.Initiator.Nickname
		}
		e.state.Votes[p.RoomColor] = session
		e.armVoteExpiry(ctx, session.VoteID, timeout)
		log.Info().Str("room", e.roomCode).Str("vote", p.VoteID).Str("type", string(voteType)).
			Str("side", string(p.RoomColor)).Msg("vote session started")
	}
	// Removal and election votes share the view; it discriminates on type.
	e.state.View = ViewVote
}

func (e *Engine) onVoteProgress(p events.VoteProgressPayload) {
	session := e.findVote(p.VoteID)
	if session == nil {
		return
	}
	session.VotedCount = p.VotedCount
	if p.TotalVoters > 0 {
		session.TotalVoters = p.TotalVoters
	}
	session.TimeRemaining = p.TimeRemaining
}

// onVoteCompleted closes the session and keeps the result visible for the
// display window. The elapsed-window handler will not force the game view if
// a follow-up session became active in the meantime.
func (e *Engine) onVoteCompleted(ctx context.Context, p events.VoteCompletedPayload) {
	result := &models.VoteResult{
		VoteID:   p.VoteID,
		Result:   p.Result,
		YesVotes: p.YesVotes,
		NoVotes:  p.NoVotes,
	}
	if p.NewLeader != nil {
		result.NewLeaderID = p.NewLeader.ID
		result.NewLeaderName = p.NewLeader.Nickname
	}
	if session := e.findVote(p.VoteID); session != nil {
		result.TotalVoters = session.TotalVoters
		delete(e.state.Votes, session.RoomColor)
		e.disarmVoteExpiry(p.VoteID)
		if p.NewLeader != nil && e.state.Round != nil {
			e.state.Round.Side(session.RoomColor).LeaderID = p.NewLeader.ID
		}
	}
	e.state.LastVoteResult = result
	log.Info().Str("room", e.roomCode).Str("vote", p.VoteID).Str("result", p.Result).
		Msg("vote completed")
	e.armVoteWindow(ctx, p.VoteID)
}

func (e *Engine) onLeaderAnnouncedHostages(p events.LeaderAnnouncedHostagesPayload) {
	if e.state.Round == nil {
		return
	}
	side := e.state.Round.Side(p.RoomColor)
	ids := make([]string, 0, len(p.Hostages))
	for _, h := range p.Hostages {
		ids = append(ids, h.ID)
	}
	if err := side.SetHostages(ids); err != nil {
		log.Warn().Err(err).Str("room", e.roomCode).Str("side", string(p.RoomColor)).
			Msg("rejecting hostage announcement")
		return
	}
	side.Announced = true
	if e.state.Round.HostageCount == 0 {
		e.state.Round.HostageCount = len(ids)
	}
}

func (e *Engine) onExchangeReady(p events.ExchangeReadyPayload) {
	if e.state.Round == nil {
		return
	}
	red := make([]string, 0, len(p.RedHostages))
	for _, h := range p.RedHostages {
		red = append(red, h.ID)
	}
	blue := make([]string, 0, len(p.BlueHostages))
	for _, h := range p.BlueHostages {
		blue = append(blue, h.ID)
	}
	e.state.Round.Red.Hostages = red
	e.state.Round.Blue.Hostages = blue
	e.state.Round.ExchangeCountdown = p.Countdown
	e.state.Round.Status = models.RoundStatusExchanging
}

// onExchangeComplete moves the exchanged players between rooms and records
// the history. The full-screen animation runs at most once per round and at
// most AnimationCap times per game session.
func (e *Engine) onExchangeComplete(ctx context.Context, p events.ExchangeCompletePayload) {
	appended := false
	for _, rec := range p.Exchanges {
		if e.appendHistory(models.HistoryEvent{
			Type:        models.HistoryExchange,
			Timestamp:   rec.Timestamp,
			SubjectID:   rec.PlayerID,
			SubjectName: rec.Nickname,
			RoundNumber: p.RoundNumber,
			FromRoom:    rec.FromRoom,
			ToRoom:      rec.ToRoom,
		}, false) {
			appended = true
		}
		if player := e.state.Room.FindPlayer(rec.PlayerID); player != nil {
			player.CurrentRoom = rec.ToRoom
		}
		if rec.PlayerID == e.state.Self.PlayerID {
			e.state.Self.CurrentRoom = rec.ToRoom
		}
	}
	if appended {
		e.persistCache()
	}
	if e.state.Round != nil && e.state.Round.RoundNumber == p.RoundNumber {
		e.state.Round.Status = models.RoundStatusComplete
		e.state.Round.ExchangeCountdown = 0
	}
	log.Info().Str("room", e.roomCode).Int("round", p.RoundNumber).
		Int("exchanges", len(p.Exchanges)).Msg("hostage exchange complete")
	if !e.state.animatedRounds[p.RoundNumber] && e.state.animationsShown < e.cfg.AnimationCap {
		e.state.animatedRounds[p.RoundNumber] = true
		e.state.animationsShown++
		e.state.PendingAnimation = true
		e.armAnimation(ctx)
	}
}
