// Command roomwatch joins a room on the game server and keeps a live,
// reconciled view of it: the push channel feeds incremental events while the
// pull endpoints provide authoritative snapshots, and the merged state is
// logged periodically.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kalee/two-rooms-client/go/clients/roomapi"
	"github.com/kalee/two-rooms-client/go/internal/cache"
	"github.com/kalee/two-rooms-client/go/internal/channel"
	"github.com/kalee/two-rooms-client/go/internal/reconcile"
)

func main() {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to yaml config file")
	roomCode := flag.String("room", "", "six character room code to join")
	nickname := flag.String("nickname", "", "display name to set after joining")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.LogLevel)

	code := strings.ToUpper(strings.TrimSpace(*roomCode))
	if code == "" {
		log.Fatal().Msg("a room code is required, pass -room")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, code, *nickname); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("client exited")
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func run(ctx context.Context, cfg *Config, code, nickname string) error {
	store := cache.NewStore(cfg.Client.CacheDir)
	rec, err := store.Load(code)
	if err != nil {
		log.Warn().Err(err).Str("room", code).Msg("room cache unreadable, starting fresh")
		rec = &cache.Record{}
	}

	api := roomapi.NewClient(cfg.Server.APIBaseURL)
	api.SetTimeout(time.Duration(cfg.Client.HTTPTimeoutSeconds) * time.Second)

	playerID, err := joinOrRejoin(ctx, api, store, rec, code, nickname)
	if err != nil {
		return err
	}

	chanCfg := channel.DefaultConfig()
	chanCfg.BaseURL = cfg.Server.PushBaseURL
	chanCfg.MaxReconnectAttempts = cfg.Client.ReconnectAttempts
	chanCfg.ReconnectInterval = time.Duration(cfg.Client.ReconnectIntervalSeconds) * time.Second
	mgr := channel.NewManager(chanCfg, code, playerID, nil)

	engCfg := reconcile.DefaultConfig()
	engCfg.ReconcileInterval = time.Duration(cfg.Client.ReconcileIntervalSeconds) * time.Second
	engCfg.AnimationCap = cfg.Client.AnimationCap
	engine := reconcile.New(engCfg, code, playerID, api, store, mgr.Events(), mgr.StatusUpdates(), nil)

	if err := engine.Bootstrap(ctx); err != nil {
		return err
	}
	if err := mgr.Connect(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return watchState(ctx, engine) })
	return g.Wait()
}

// joinOrRejoin reuses the cached identity when one exists, otherwise joins
// as a new participant and persists the assigned identity.
func joinOrRejoin(ctx context.Context, api *roomapi.Client, store *cache.Store, rec *cache.Record, code, nickname string) (string, error) {
	if rec.PlayerID != "" {
		api.SetPlayerID(rec.PlayerID)
		log.Info().Str("room", code).Str("player", rec.PlayerID).Msg("rejoining room with cached identity")
		return rec.PlayerID, nil
	}

	player, err := api.JoinRoom(ctx, code)
	if err != nil {
		if roomapi.IsCode(err, roomapi.CodeRoomNotFound) {
			return "", fmt.Errorf("room %s does not exist", code)
		}
		if roomapi.IsCode(err, roomapi.CodeRoomFull) {
			return "", fmt.Errorf("room %s is full", code)
		}
		return "", fmt.Errorf("join room %s: %w", code, err)
	}
	rec.PlayerID = player.ID
	rec.IsOwner = player.IsOwner
	if err := store.Save(code, rec); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("failed to persist identity")
	}
	api.SetPlayerID(player.ID)
	log.Info().Str("room", code).Str("player", player.ID).Msg("joined room")

	if nickname != "" {
		if _, err := api.UpdateNickname(ctx, code, player.ID, nickname); err != nil {
			log.Warn().Err(err).Str("nickname", nickname).Msg("failed to set nickname")
		}
	}
	return player.ID, nil
}

// watchState logs a one-line summary of the merged state every few seconds
// and exits when the server closes the room.
func watchState(ctx context.Context, engine *reconcile.Engine) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s := engine.Snapshot()
			log.Info().
				Str("view", string(s.View)).
				Str("conn", string(s.Conn.State)).
				Int("players", len(s.Room.Players)).
				Int("history", len(s.History)).
				Msg("room state")
			if s.RoomClosed {
				return fmt.Errorf("room closed: %s", s.RoomClosedReason)
			}
		}
	}
}
