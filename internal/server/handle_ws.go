package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/istectf/cityhunt/internal/auth"
	"github.com/istectf/cityhunt/internal/game"
)

const writeTimeout = 5 * time.Second

// handleWS gates the upgrade on a verified token: unauthenticated requests
// are rejected with 401 before the websocket handshake ever starts.
func handleWS(logger *slog.Logger, verifier auth.Verifier, svc *game.Service, hub *Hub, lb *LeaderboardPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		ident, err := verifier.Verify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication error")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		c := &wsConn{
			logger: logger,
			svc:    svc,
			hub:    hub,
			lb:     lb,
			connID: uuid.NewString(),
			ident:  ident,
		}
		c.serve(r.Context(), conn)
	}
}

// wsConn is the per-connection state for one authenticated player.
type wsConn struct {
	logger *slog.Logger
	svc    *game.Service
	hub    *Hub
	lb     *LeaderboardPublisher
	connID string
	ident  auth.Identity
}

func (c *wsConn) serve(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.logger.Info("player connected", "conn", c.connID, "uid", c.ident.UID)

	cl := c.hub.Register(c.connID)
	defer c.hub.Unregister(c.connID)

	go writeLoop(ctx, conn, cl)

	c.autoRejoin(ctx)

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			c.disconnect()
			c.logger.Info("player disconnected", "conn", c.connID, "uid", c.ident.UID)
			return
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.sendError("malformed payload")
			continue
		}
		c.dispatch(ctx, env)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, cl *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-cl.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// autoRejoin restores the player's team session from their persisted
// affiliation, so a page reload lands them back on their team.
func (c *wsConn) autoRejoin(ctx context.Context) {
	ack, solved, ok, err := c.svc.Rejoin(ctx, c.connID, c.ident)
	if err != nil {
		c.logger.Error("auto-rejoin failed", "uid", c.ident.UID, "error", err)
		return
	}
	if !ok {
		return
	}
	c.hub.JoinRoom(ack.Code, c.connID)
	c.hub.Send(c.connID, event(evtTeamJoined, ack))
	c.hub.Send(c.connID, event(evtSyncSolved, solvedList(solved)))
}

// solvedList keeps the syncSolved payload a JSON array even when the team
// has not solved anything yet.
func solvedList(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}

func (c *wsConn) disconnect() {
	sess, ok := c.svc.Disconnect(c.connID)
	if !ok {
		return
	}
	c.hub.ToRoomExcept(sess.TeamCode, c.connID,
		event(evtTeammateDisconnect, TeammateDisconnectEvent{UID: sess.UID}))
}

func (c *wsConn) dispatch(ctx context.Context, env Envelope) {
	switch env.Type {
	case cmdCreateTeam:
		c.handleCreateTeam(ctx, env.Data)
	case cmdJoinTeam:
		c.handleJoinTeam(ctx, env.Data)
	case cmdRequestGameState:
		c.handleGameState()
	case cmdPlayerMove:
		c.handleMove(env.Data)
	case cmdAttemptAnswer:
		c.handleAttemptAnswer(ctx, env.Data)
	case cmdEnemyKill:
		if _, ok := c.svc.RecordKill(ctx, c.connID); ok {
			c.lb.Publish(ctx)
		}
	case cmdPlayerDeath:
		if _, ok := c.svc.RecordDeath(ctx, c.connID); ok {
			c.lb.Publish(ctx)
		}
	default:
		c.sendError("unknown command")
	}
}

func (c *wsConn) handleCreateTeam(ctx context.Context, data json.RawMessage) {
	var cmd CreateTeamCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed payload")
		return
	}
	playerName := strings.TrimSpace(cmd.PlayerName)
	teamName := strings.TrimSpace(cmd.TeamName)
	if playerName == "" || teamName == "" {
		c.sendError("playerName and teamName are required")
		return
	}
	ack, err := c.svc.CreateTeam(ctx, c.connID, c.ident, playerName, teamName)
	if errors.Is(err, game.ErrNameTaken) {
		c.sendError("Team Name Already Taken")
		return
	}
	if err != nil {
		c.logger.Error("create team failed", "uid", c.ident.UID, "error", err)
		c.sendError("Failed to create team")
		return
	}
	c.hub.JoinRoom(ack.Code, c.connID)
	c.hub.Send(c.connID, event(evtTeamJoined, ack))
	c.lb.Publish(ctx)
}

func (c *wsConn) handleJoinTeam(ctx context.Context, data json.RawMessage) {
	var cmd JoinTeamCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed payload")
		return
	}
	playerName := strings.TrimSpace(cmd.PlayerName)
	code := strings.ToUpper(strings.TrimSpace(cmd.TeamCode))
	if playerName == "" || code == "" {
		c.sendError("playerName and teamCode are required")
		return
	}
	ack, solved, err := c.svc.JoinTeam(ctx, c.connID, c.ident, playerName, code)
	if errors.Is(err, game.ErrInvalidCode) {
		c.sendError("Invalid Team Code")
		return
	}
	if err != nil {
		c.logger.Error("join team failed", "uid", c.ident.UID, "code", code, "error", err)
		c.sendError("Failed to join team")
		return
	}
	c.hub.JoinRoom(ack.Code, c.connID)
	c.hub.Send(c.connID, event(evtTeamJoined, ack))
	c.hub.Send(c.connID, event(evtSyncSolved, solvedList(solved)))
	c.lb.Publish(ctx)
}

func (c *wsConn) handleGameState() {
	views, solved := c.svc.GameState(c.connID)
	c.hub.Send(c.connID, event(evtGameState, views))
	if solved != nil {
		c.hub.Send(c.connID, event(evtSyncSolved, solvedList(solved)))
	}
}

func (c *wsConn) handleMove(data json.RawMessage) {
	var cmd PlayerMoveCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		return
	}
	upd, ok := c.svc.Move(c.connID, game.Position{X: cmd.X, Y: cmd.Y, Z: cmd.Z}, cmd.Rot)
	if !ok {
		return
	}
	c.hub.ToRoomExcept(upd.TeamCode, c.connID, event(evtTeammateUpdate, TeammateUpdateEvent{
		ID:   upd.UID,
		Name: upd.Name,
		X:    upd.Pos.X,
		Y:    upd.Pos.Y,
		Z:    upd.Pos.Z,
		Rot:  upd.Rot,
	}))
}

func (c *wsConn) handleAttemptAnswer(ctx context.Context, data json.RawMessage) {
	var cmd AttemptAnswerCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed payload")
		return
	}
	outcome := c.svc.AttemptAnswer(ctx, c.connID, cmd.QuestionID, cmd.Answer)
	switch outcome.Status {
	case game.AnswerSolved:
		c.hub.Broadcast(event(evtQuestionSolved, outcome.Solved))
		c.lb.Publish(ctx)
		c.sendResult(true, "")
	case game.AnswerTooFar:
		c.sendResult(false, "Too far from flag!")
	case game.AnswerAlreadySolved:
		c.sendResult(false, "Already Solved")
	case game.AnswerIncorrect:
		c.sendResult(false, "")
	case game.AnswerFailed:
		c.sendResult(false, "Error or Already Solved")
	}
}

func (c *wsConn) sendResult(correct bool, msg string) {
	c.hub.Send(c.connID, event(evtAnswerResult, AnswerResultEvent{Correct: correct, Message: msg}))
}

func (c *wsConn) sendError(msg string) {
	c.hub.Send(c.connID, event(evtError, ErrorEvent{Message: msg}))
}
