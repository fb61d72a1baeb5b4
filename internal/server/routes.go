package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	hub := NewHub(logger)
	lb := NewLeaderboardPublisher(logger, deps.Game, hub, deps.Redis)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("CityHunt API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, deps.Store, deps.Redis))

	r.Get("/ws", handleWS(logger, deps.Verifier, deps.Game, hub, lb))

	r.Get("/api/leaderboard", handleLeaderboard(deps.Game))
	r.Post("/api/admin/wipe", handleAdminWipe(logger, deps.Game, lb, deps.AdminPasswordHash))
}
