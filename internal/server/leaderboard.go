package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/istectf/cityhunt/internal/game"
)

const leaderboardKey = "cityhunt:leaderboard"

// LeaderboardPublisher pushes the current standings to every connected
// client and, when Redis is configured, mirrors the snapshot for external
// consumers (scoreboard displays, ops tooling).
type LeaderboardPublisher struct {
	logger *slog.Logger
	game   *game.Service
	hub    *Hub
	redis  *redis.Client
}

func NewLeaderboardPublisher(logger *slog.Logger, svc *game.Service, hub *Hub, rdb *redis.Client) *LeaderboardPublisher {
	return &LeaderboardPublisher{logger: logger, game: svc, hub: hub, redis: rdb}
}

func (p *LeaderboardPublisher) Publish(ctx context.Context) {
	entries := p.game.Leaderboard()
	p.hub.Broadcast(event(evtLeaderboardUpdate, entries))
	if p.redis == nil {
		return
	}
	snapshot, _ := json.Marshal(entries)
	if err := p.redis.Set(ctx, leaderboardKey, snapshot, 0).Err(); err != nil {
		p.logger.Warn("leaderboard snapshot mirror failed", "error", err)
	}
}

func handleLeaderboard(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Leaderboard())
	}
}
