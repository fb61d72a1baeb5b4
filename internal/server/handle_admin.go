package server

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/istectf/cityhunt/internal/game"
)

// WipeRequest authenticates the reset of all team data.
type WipeRequest struct {
	Password string `json:"password"`
}

type WipeResponse struct {
	Status string `json:"status"`
}

// handleAdminWipe deletes every team and clears the runtime cache. User
// records keep their team codes; those point at teams that no longer
// exist and joins fall back to a fresh start. The route is disabled when
// no admin password hash is configured.
func handleAdminWipe(logger *slog.Logger, svc *game.Service, lb *LeaderboardPublisher, passwordHash string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if passwordHash == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		var req WipeRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)) != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		if err := svc.WipeTeams(r.Context()); err != nil {
			logger.Error("wipe failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		lb.Publish(r.Context())
		writeJSON(w, http.StatusOK, WipeResponse{Status: "ok"})
	}
}
