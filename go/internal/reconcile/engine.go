// Package reconcile merges authoritative snapshots with incremental push
// events into a single consistent room state. The engine is the only writer:
// every input, including snapshot fetch results and timer expirations, is
// funneled through one inbox and handled on one goroutine, so no transition
// ever observes partially applied state.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kalee/two-rooms-client/go/clients/roomapi"
	"github.com/kalee/two-rooms-client/go/internal/cache"
	"github.com/kalee/two-rooms-client/go/internal/channel"
	"github.com/kalee/two-rooms-client/go/internal/dedup"
	"github.com/kalee/two-rooms-client/go/internal/events"
	"github.com/kalee/two-rooms-client/go/internal/models"
)

// Config holds reconciliation engine configuration
type Config struct {
	ReconcileInterval   time.Duration // periodic snapshot pull cadence
	VoteDisplayWindow   time.Duration // how long a finished vote result stays on screen
	AnimationWindow     time.Duration // how long the exchange animation runs
	AnimationCap        int           // max exchange animations per game session
	VoteTimeoutFallback time.Duration // vote expiry when the server omits a timeout
	InboxBuffer         int
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		ReconcileInterval:   3 * time.Second,
		VoteDisplayWindow:   3 * time.Second,
		AnimationWindow:     4 * time.Second,
		AnimationCap:        2,
		VoteTimeoutFallback: 30 * time.Second,
		InboxBuffer:         64,
	}
}

// RoomAPI is the pull surface the engine needs. *roomapi.Client satisfies it.
type RoomAPI interface {
	GetRoom(ctx context.Context, code string) (*models.RoomSnapshot, error)
	GetCurrentRound(ctx context.Context, code string) (*roomapi.RoundStatus, error)
	GetCurrentVote(ctx context.Context, code string, side models.RoomColor) (*models.VoteSession, error)
}

// HistoryStore persists identity and history across reloads. *cache.Store
// satisfies it; a nil store disables persistence.
type HistoryStore interface {
	Load(roomCode string) (*cache.Record, error)
	Save(roomCode string, rec *cache.Record) error
}

// mergeReason tells mergeSnapshot which fetch produced the snapshot
type mergeReason int

const (
	mergeBootstrap mergeReason = iota
	mergePeriodic
	mergeRoleLookup
	mergeReveal
	mergeRehydrate
)

type engineMsg interface{ isEngineMsg() }

type eventMsg struct {
	env  events.Envelope
	done chan struct{}
}

type snapshotMsg struct {
	snap   *models.RoomSnapshot
	err    error
	reason mergeReason
}

type roundStatusMsg struct {
	status *roomapi.RoundStatus
	err    error
}

type voteStatusMsg struct {
	session *models.VoteSession
	err     error
}

type voteWindowMsg struct{ voteID string }
type voteExpiredMsg struct{ voteID string }
type animationDoneMsg struct{}
type readStateMsg struct{ reply chan State }

func (eventMsg) isEngineMsg()       {}
func (snapshotMsg) isEngineMsg()    {}
func (roundStatusMsg) isEngineMsg() {}
func (voteStatusMsg) isEngineMsg()  {}
func (voteWindowMsg) isEngineMsg()  {}
func (voteExpiredMsg) isEngineMsg() {}
func (animationDoneMsg) isEngineMsg() {}
func (readStateMsg) isEngineMsg()   {}

// Engine is the reconciliation state machine for one room
type Engine struct {
	cfg      Config
	roomCode string
	api      RoomAPI
	store    HistoryStore
	clock    clockwork.Clock
	dedup    *dedup.Deduplicator

	events   <-chan events.Envelope
	statuses <-chan channel.Status
	inbox    chan engineMsg
	done     chan struct{}

	state      State
	everOpened bool

	voteWindow   clockwork.Timer
	windowVoteID string
	voteExpiry   map[string]clockwork.Timer
	animTimer    clockwork.Timer
}

// New creates an engine for the given room. The event and status channels
// normally come from a channel.Manager; tests may pass nil statuses and feed
// events through Apply instead. A nil clock uses the real clock.
func New(cfg Config, roomCode, selfID string, api RoomAPI, store HistoryStore,
	evs <-chan events.Envelope, statuses <-chan channel.Status, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		cfg:        cfg,
		roomCode:   roomCode,
		api:        api,
		store:      store,
		clock:      clock,
		dedup:      dedup.New(),
		events:     evs,
		statuses:   statuses,
		inbox:      make(chan engineMsg, cfg.InboxBuffer),
		done:       make(chan struct{}),
		state:      newState(roomCode, selfID),
		voteExpiry: make(map[string]clockwork.Timer),
	}
}

// Bootstrap loads the cached identity and history, then fetches the initial
// snapshot. A snapshot failure here is fatal: without it there is no state to
// reconcile against. Must be called before Run.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if e.store != nil {
		rec, err := e.store.Load(e.roomCode)
		if err != nil {
			log.Warn().Err(err).Str("room", e.roomCode).Msg("failed to load room cache, starting fresh")
			rec = &cache.Record{}
		}
		if e.state.Self.PlayerID == "" {
			e.state.Self.PlayerID = rec.PlayerID
		}
		e.state.Self.IsOwner = rec.IsOwner
		for _, h := range rec.History {
			e.appendHistory(h, false)
		}
	}
	snap, err := e.api.GetRoom(ctx, e.roomCode)
	if err != nil {
		return fmt.Errorf("initial snapshot for room %s: %w", e.roomCode, err)
	}
	e.mergeSnapshot(snap, mergeBootstrap)
	log.Info().Str("room", e.roomCode).Str("status", string(e.state.Room.Status)).
		Int("players", len(e.state.Room.Players)).Msg("room state bootstrapped")
	return nil
}

// Run drives the engine until the context is cancelled. All state mutation
// happens here.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	ticker := e.clock.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()
	defer e.cancelTimers()
	evs := e.events
	statuses := e.statuses
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-evs:
			if !ok {
				evs = nil
				continue
			}
			e.applyEvent(ctx, env)
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			e.handleStatus(ctx, st)
		case <-ticker.Chan():
			e.periodicReconcile(ctx)
		case msg := <-e.inbox:
			e.handleMsg(ctx, msg)
		}
	}
}

// Apply feeds one event through the engine and returns once it has been
// processed. A no-op after Run has exited.
func (e *Engine) Apply(env events.Envelope) {
	applied := make(chan struct{})
	select {
	case e.inbox <- eventMsg{env: env, done: applied}:
	case <-e.done:
		return
	}
	select {
	case <-applied:
	case <-e.done:
	}
}

// Snapshot returns a deep copy of the current merged state. Returns the zero
// State after Run has exited.
func (e *Engine) Snapshot() State {
	reply := make(chan State, 1)
	select {
	case e.inbox <- readStateMsg{reply: reply}:
	case <-e.done:
		return State{}
	}
	select {
	case s := <-reply:
		return s
	case <-e.done:
		return State{}
	}
}

func (e *Engine) handleMsg(ctx context.Context, msg engineMsg) {
	switch m := msg.(type) {
	case eventMsg:
		e.applyEvent(ctx, m.env)
		close(m.done)
	case snapshotMsg:
		if m.err != nil {
			log.Warn().Err(m.err).Str("room", e.roomCode).Msg("snapshot fetch failed, will retry on next tick")
			return
		}
		e.mergeSnapshot(m.snap, m.reason)
	case roundStatusMsg:
		if m.err != nil {
			log.Debug().Err(m.err).Str("room", e.roomCode).Msg("round status unavailable")
			return
		}
		e.applyRoundStatus(m.status)
	case voteStatusMsg:
		if m.err != nil {
			log.Warn().Err(m.err).Str("room", e.roomCode).Msg("vote status fetch failed")
			return
		}
		if m.session != nil {
			e.installVote(ctx, m.session)
		}
	case voteWindowMsg:
		// A stale window for a superseded vote must not act.
		if m.voteID != e.windowVoteID {
			return
		}
		e.voteWindow = nil
		e.windowVoteID = ""
		if e.state.LastVoteResult != nil && e.state.LastVoteResult.VoteID == m.voteID {
			e.state.LastVoteResult = nil
		}
		// A follow-up session started inside the window keeps the vote view.
		if e.state.View == ViewVote && len(e.state.Votes) == 0 {
			e.state.View = ViewGame
		}
	case voteExpiredMsg:
		e.expireVote(ctx, m.voteID)
	case animationDoneMsg:
		e.animTimer = nil
		e.state.PendingAnimation = false
	case readStateMsg:
		m.reply <- e.state.clone()
	}
}

// handleStatus tracks connection state and rehydrates after a reconnect:
// pushes missed while offline are recovered by pulling the snapshot, round
// and vote endpoints.
func (e *Engine) handleStatus(ctx context.Context, st channel.Status) {
	e.state.Conn = st
	if st.State != channel.StateOpen {
		return
	}
	if e.everOpened {
		log.Info().Str("room", e.roomCode).Msg("push channel reopened, rehydrating from pull endpoints")
		e.fetchSnapshot(ctx, mergeRehydrate)
		e.fetchRoundStatus(ctx)
		if e.state.Self.CurrentRoom != "" {
			e.fetchVoteStatus(ctx, e.state.Self.CurrentRoom)
		}
	}
	e.everOpened = true
}

func (e *Engine) periodicReconcile(ctx context.Context) {
	// A lobby with no session has nothing to drift from.
	if e.state.View == ViewLobby && e.state.Room.GameSession == nil {
		return
	}
	e.fetchSnapshot(ctx, mergePeriodic)
}

// post delivers a message to the inbox unless the engine is shutting down
func (e *Engine) post(ctx context.Context, msg engineMsg) {
	select {
	case e.inbox <- msg:
	case <-ctx.Done():
	}
}

func (e *Engine) fetchSnapshot(ctx context.Context, reason mergeReason) {
	go func() {
		snap, err := e.api.GetRoom(ctx, e.roomCode)
		e.post(ctx, snapshotMsg{snap: snap, err: err, reason: reason})
	}()
}

func (e *Engine) fetchRoundStatus(ctx context.Context) {
	go func() {
		status, err := e.api.GetCurrentRound(ctx, e.roomCode)
		e.post(ctx, roundStatusMsg{status: status, err: err})
	}()
}

func (e *Engine) fetchVoteStatus(ctx context.Context, side models.RoomColor) {
	go func() {
		session, err := e.api.GetCurrentVote(ctx, e.roomCode, side)
		e.post(ctx, voteStatusMsg{session: session, err: err})
	}()
}

// mergeSnapshot folds an authoritative snapshot into local state. Player
// identities and room status replace local values; history is never touched
// and a stale status never pulls the view back from Vote or Reveal.
func (e *Engine) mergeSnapshot(snap *models.RoomSnapshot, reason mergeReason) {
	s := *snap
	s.Players = append([]models.Player(nil), snap.Players...)
	s.Normalize()
	e.state.Room = s
	if self := s.FindPlayer(e.state.Self.PlayerID); self != nil {
		e.state.Self.IsOwner = self.IsOwner
		if self.Role != nil && !e.state.roleLatched {
			role := *self.Role
			e.state.Self.Role = &role
			e.state.Self.Team = self.Team
			e.state.Self.CurrentRoom = self.CurrentRoom
			e.state.roleLatched = true
			log.Info().Str("room", e.roomCode).Str("role", role.Name).Msg("own role resolved from snapshot")
		} else if self.CurrentRoom != "" {
			e.state.Self.CurrentRoom = self.CurrentRoom
		}
	}
	switch s.Status {
	case models.RoomStatusRevealing:
		e.state.View = ViewReveal
	case models.RoomStatusInProgress:
		if e.state.View == ViewLobby && e.state.Self.Role != nil {
			e.state.View = ViewGame
		}
	case models.RoomStatusWaiting:
		// After bootstrap only a GAME_RESET event moves the view back to
		// the lobby; a racing stale snapshot must not.
		if reason == mergeBootstrap {
			e.state.View = ViewLobby
		}
	}
}

func (e *Engine) applyRoundStatus(st *roomapi.RoundStatus) {
	if st == nil || st.RoundNumber == 0 {
		return
	}
	round := e.state.Round
	if round == nil || round.RoundNumber != st.RoundNumber {
		round = &models.RoundState{RoundNumber: st.RoundNumber}
		e.state.Round = round
	}
	round.Duration = st.Duration
	round.TimeRemaining = st.TimeRemaining
	round.Status = st.Status
	round.HostageCount = st.HostageCount
	round.Red.LeaderID = st.RedLeader
	round.Blue.LeaderID = st.BlueLeader
	round.Red.Announced = st.RedHostagesSelected
	round.Blue.Announced = st.BlueHostagesSelected
}

// installVote adopts a pulled vote session after a reconnect, unless a push
// event already installed one for that side.
func (e *Engine) installVote(ctx context.Context, s *models.VoteSession) {
	if e.state.Votes[s.RoomColor] != nil {
		return
	}
	remaining := time.Duration(s.TimeRemaining) * time.Second
	if remaining <= 0 {
		remaining = time.Duration(s.TimeoutSeconds) * time.Second
	}
	if remaining <= 0 {
		remaining = e.cfg.VoteTimeoutFallback
	}
	s.ExpiresAt = e.clock.Now().Add(remaining)
	e.state.Votes[s.RoomColor] = s
	e.armVoteExpiry(ctx, s.VoteID, remaining)
	if e.state.View != ViewReveal {
		e.state.View = ViewVote
	}
	log.Info().Str("room", e.roomCode).Str("vote", s.VoteID).Msg("active vote recovered after reconnect")
}

// expireVote times a vote session out locally when no VOTE_COMPLETED arrived
func (e *Engine) expireVote(ctx context.Context, voteID string) {
	delete(e.voteExpiry, voteID)
	session := e.findVote(voteID)
	if session == nil {
		return
	}
	delete(e.state.Votes, session.RoomColor)
	e.state.LastVoteResult = &models.VoteResult{
		VoteID:      voteID,
		Result:      models.VoteResultTimeout,
		TotalVoters: session.TotalVoters,
	}
	log.Info().Str("room", e.roomCode).Str("vote", voteID).Msg("vote session timed out locally")
	e.armVoteWindow(ctx, voteID)
}

func (e *Engine) findVote(voteID string) *models.VoteSession {
	for _, s := range e.state.Votes {
		if s.VoteID == voteID {
			return s
		}
	}
	return nil
}

// appendHistory appends a record unless its identity is already present.
// Returns true when the record was appended.
func (e *Engine) appendHistory(h models.HistoryEvent, persist bool) bool {
	if _, dup := e.state.historyKeys[h.Key()]; dup {
		return false
	}
	e.state.historyKeys[h.Key()] = struct{}{}
	e.state.History = append(e.state.History, h)
	if persist {
		e.persistCache()
	}
	return true
}

func (e *Engine) persistCache() {
	if e.store == nil {
		return
	}
	rec := &cache.Record{
		PlayerID: e.state.Self.PlayerID,
		IsOwner:  e.state.Self.IsOwner,
		History:  append([]models.HistoryEvent(nil), e.state.History...),
	}
	if err := e.store.Save(e.roomCode, rec); err != nil {
		log.Warn().Err(err).Str("room", e.roomCode).Msg("failed to persist room cache")
	}
}

func (e *Engine) armVoteWindow(ctx context.Context, voteID string) {
	if e.voteWindow != nil {
		stopAndDrainTimer(e.voteWindow)
	}
	timer := e.clock.NewTimer(e.cfg.VoteDisplayWindow)
	e.voteWindow = timer
	e.windowVoteID = voteID
	go e.waitTimer(ctx, timer, voteWindowMsg{voteID: voteID})
}

func (e *Engine) armVoteExpiry(ctx context.Context, voteID string, d time.Duration) {
	if old, ok := e.voteExpiry[voteID]; ok {
		stopAndDrainTimer(old)
	}
	timer := e.clock.NewTimer(d)
	e.voteExpiry[voteID] = timer
	go e.waitTimer(ctx, timer, voteExpiredMsg{voteID: voteID})
}

func (e *Engine) disarmVoteExpiry(voteID string) {
	if timer, ok := e.voteExpiry[voteID]; ok {
		stopAndDrainTimer(timer)
		delete(e.voteExpiry, voteID)
	}
}

func (e *Engine) armAnimation(ctx context.Context) {
	if e.animTimer != nil {
		stopAndDrainTimer(e.animTimer)
	}
	timer := e.clock.NewTimer(e.cfg.AnimationWindow)
	e.animTimer = timer
	go e.waitTimer(ctx, timer, animationDoneMsg{})
}

func (e *Engine) cancelTimers() {
	if e.voteWindow != nil {
		stopAndDrainTimer(e.voteWindow)
		e.voteWindow = nil
		e.windowVoteID = ""
	}
	if e.animTimer != nil {
		stopAndDrainTimer(e.animTimer)
		e.animTimer = nil
	}
	for id, timer := range e.voteExpiry {
		stopAndDrainTimer(timer)
		delete(e.voteExpiry, id)
	}
}

// waitTimer posts the message when the timer fires. A stopped timer never
// fires, so the goroutine then exits on context cancellation.
func (e *Engine) waitTimer(ctx context.Context, timer clockwork.Timer, msg engineMsg) {
	select {
	case <-timer.Chan():
		e.post(ctx, msg)
	case <-ctx.Done():
		stopAndDrainTimer(timer)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern recommended in the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
