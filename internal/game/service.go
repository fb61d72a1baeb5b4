// Package game is the authoritative session and scoring core: team
// lifecycle, movement validation, and exactly-once question scoring on top
// of the durable team store.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/istectf/cityhunt/internal/auth"
	"github.com/istectf/cityhunt/internal/store"
)

var (
	// ErrNameTaken reports a case-insensitive team name collision.
	ErrNameTaken = errors.New("team name already taken")

	// ErrInvalidCode reports a join attempt against an unknown team code.
	ErrInvalidCode = errors.New("invalid team code")
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

// Settings are the gameplay tunables, taken from configuration.
type Settings struct {
	SolveReward        int
	KillReward         int
	DeathPenalty       int
	LeaderboardSize    int
	MaxSpeed           float64
	ProximityTolerance float64
	MoveResetGap       time.Duration
}

// Service orchestrates the session registry, team cache, anti-cheat guards,
// and the durable store. Handlers call it; broadcasting the results is the
// transport layer's job.
type Service struct {
	logger   *slog.Logger
	store    store.TeamStore
	catalog  *Catalog
	settings Settings

	sessions *Registry
	cache    *TeamCache
	guard    MovementGuard

	now func() time.Time
}

func NewService(logger *slog.Logger, st store.TeamStore, catalog *Catalog, settings Settings) *Service {
	return &Service{
		logger:   logger,
		store:    st,
		catalog:  catalog,
		settings: settings,
		sessions: NewRegistry(),
		cache:    NewTeamCache(),
		guard: MovementGuard{
			MaxSpeed: settings.MaxSpeed,
			ResetGap: settings.MoveResetGap,
		},
		now: time.Now,
	}
}

// WarmCache loads every team document into the cache. Called once before
// serving connections.
func (s *Service) WarmCache(ctx context.Context) error {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return fmt.Errorf("warming team cache: %w", err)
	}
	for _, t := range teams {
		s.cache.Put(t)
	}
	s.logger.Info("team cache warmed", "teams", len(teams))
	return nil
}

// JoinedAck is the acknowledgment for create, join, and rejoin.
type JoinedAck struct {
	Code     string `json:"code"`
	TeamName string `json:"teamName"`
	IsLeader bool   `json:"isLeader"`
	Score    int    `json:"score"`
}

// CreateTeam creates and persists a new team led by the caller.
func (s *Service) CreateTeam(ctx context.Context, connID string, ident auth.Identity, playerName, teamName string) (JoinedAck, error) {
	if s.cache.NameTaken(teamName) {
		return JoinedAck{}, ErrNameTaken
	}

	code := s.generateCode()
	team := store.Team{
		Code:            code,
		Name:            teamName,
		LeaderUID:       ident.UID,
		Score:           0,
		Members:         []string{ident.UID},
		SolvedQuestions: []int{},
		CreatedAt:       s.now().UTC(),
	}

	if err := s.store.CreateTeam(ctx, team); err != nil {
		return JoinedAck{}, fmt.Errorf("persisting team: %w", err)
	}
	if err := s.store.UpsertUser(ctx, store.User{
		UID:         ident.UID,
		Email:       ident.Email,
		DisplayName: playerName,
		TeamCode:    code,
	}); err != nil {
		return JoinedAck{}, fmt.Errorf("persisting affiliation: %w", err)
	}

	// Cache and session state only after both writes confirm.
	s.cache.Put(team)
	s.sessions.Put(Session{ConnID: connID, UID: ident.UID, Name: playerName, TeamCode: code})

	s.logger.Info("team created", "code", code, "name", teamName, "leader", ident.UID)
	return JoinedAck{Code: code, TeamName: teamName, IsLeader: true, Score: 0}, nil
}

// JoinTeam adds the caller to an existing team. Safe to call twice for the
// same uid; the member set never gains duplicates and the score is untouched.
func (s *Service) JoinTeam(ctx context.Context, connID string, ident auth.Identity, playerName, code string) (JoinedAck, []int, error) {
	team, ok := s.cache.Get(code)
	if !ok {
		loaded, err := s.store.GetTeam(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return JoinedAck{}, nil, ErrInvalidCode
		}
		if err != nil {
			return JoinedAck{}, nil, fmt.Errorf("loading team %s: %w", code, err)
		}
		s.cache.Put(loaded)
		team = loaded
	}

	if err := s.store.AddMember(ctx, code, ident.UID); err != nil {
		return JoinedAck{}, nil, fmt.Errorf("adding member: %w", err)
	}
	if err := s.store.UpsertUser(ctx, store.User{
		UID:         ident.UID,
		Email:       ident.Email,
		DisplayName: playerName,
		TeamCode:    code,
	}); err != nil {
		return JoinedAck{}, nil, fmt.Errorf("persisting affiliation: %w", err)
	}

	s.cache.AddMember(code, ident.UID)
	s.sessions.Put(Session{ConnID: connID, UID: ident.UID, Name: playerName, TeamCode: code})

	s.logger.Info("player joined team", "code", code, "uid", ident.UID)
	return JoinedAck{
		Code:     code,
		TeamName: team.Name,
		IsLeader: team.LeaderUID == ident.UID,
		Score:    team.Score,
	}, team.SolvedQuestions, nil
}

// Rejoin restores a team session from the caller's persisted affiliation.
// Idempotent: it registers the session and replays state without touching
// membership or score.
func (s *Service) Rejoin(ctx context.Context, connID string, ident auth.Identity) (JoinedAck, []int, bool, error) {
	u, err := s.store.GetUser(ctx, ident.UID)
	if errors.Is(err, store.ErrNotFound) {
		return JoinedAck{}, nil, false, nil
	}
	if err != nil {
		return JoinedAck{}, nil, false, fmt.Errorf("loading affiliation: %w", err)
	}
	if u.TeamCode == "" {
		return JoinedAck{}, nil, false, nil
	}

	team, ok := s.cache.Get(u.TeamCode)
	if !ok {
		loaded, err := s.store.GetTeam(ctx, u.TeamCode)
		if errors.Is(err, store.ErrNotFound) {
			return JoinedAck{}, nil, false, nil
		}
		if err != nil {
			return JoinedAck{}, nil, false, fmt.Errorf("loading team %s: %w", u.TeamCode, err)
		}
		s.cache.Put(loaded)
		team = loaded
	}

	s.sessions.Put(Session{ConnID: connID, UID: ident.UID, Name: u.DisplayName, TeamCode: u.TeamCode})

	s.logger.Info("player rejoined", "code", u.TeamCode, "uid", ident.UID, "score", team.Score)
	return JoinedAck{
		Code:     u.TeamCode,
		TeamName: team.Name,
		IsLeader: team.LeaderUID == ident.UID,
		Score:    team.Score,
	}, team.SolvedQuestions, true, nil
}

// Disconnect drops the session and returns its final state so the transport
// can notify the team room.
func (s *Service) Disconnect(connID string) (Session, bool) {
	sess, ok := s.sessions.Remove(connID)
	if !ok || sess.TeamCode == "" {
		return Session{}, false
	}
	return sess, true
}

// MoveUpdate is the teammate-facing view of a processed movement sample.
type MoveUpdate struct {
	TeamCode string
	UID      string
	Name     string
	Pos      Position
	Rot      float64
}

// Move runs the movement guard over a position sample and returns the update
// to relay to the sender's team room. Over-speed samples are flagged in the
// log but still relayed; the baseline advances regardless.
func (s *Service) Move(connID string, p Position, rot float64) (MoveUpdate, bool) {
	sess, speed, flagged, ok := s.sessions.UpdateMovement(connID, s.guard, p, rot, s.now())
	if !ok || sess.TeamCode == "" {
		return MoveUpdate{}, false
	}
	if flagged {
		s.logger.Warn("speed check flagged",
			"uid", sess.UID, "name", sess.Name, "speed", speed, "max", s.guard.MaxSpeed)
	}
	return MoveUpdate{
		TeamCode: sess.TeamCode,
		UID:      sess.UID,
		Name:     sess.Name,
		Pos:      p,
		Rot:      rot,
	}, true
}

// GameState returns the sanitized catalog plus the caller's team solved set,
// nil when the connection has no team session.
func (s *Service) GameState(connID string) ([]QuestionView, []int) {
	views := s.catalog.Views()

	sess, ok := s.sessions.Get(connID)
	if !ok || sess.TeamCode == "" {
		return views, nil
	}
	team, ok := s.cache.Get(sess.TeamCode)
	if !ok {
		return views, nil
	}
	return views, team.SolvedQuestions
}

// AnswerStatus classifies the outcome of an answer attempt.
type AnswerStatus int

const (
	// AnswerIgnored: no session, unknown question, or no team. Nothing is
	// sent back to the client.
	AnswerIgnored AnswerStatus = iota
	AnswerTooFar
	AnswerAlreadySolved
	AnswerIncorrect
	AnswerFailed
	AnswerSolved
)

// SolvedBroadcast is the payload for the global questionSolved event.
type SolvedBroadcast struct {
	QuestionID int    `json:"questionId"`
	TeamName   string `json:"teamName"`
	SolverName string `json:"solverName"`
	TeamCode   string `json:"teamCode"`
}

// AnswerOutcome carries the attempt result; Solved is set only on success.
type AnswerOutcome struct {
	Status AnswerStatus
	Solved *SolvedBroadcast
}

// AttemptAnswer runs the full solve pipeline: proximity guard, cached
// solved-set check, answer comparison, and the transactional commit whose
// abort-on-already-solved guards the race between the cache check and the
// write. Exactly one of N concurrent correct attempts per (team, question)
// returns AnswerSolved.
func (s *Service) AttemptAnswer(ctx context.Context, connID string, questionID int, answer string) AnswerOutcome {
	sess, ok := s.sessions.Get(connID)
	if !ok {
		return AnswerOutcome{Status: AnswerIgnored}
	}

	q, ok := s.catalog.ByID(questionID)
	if !ok {
		return AnswerOutcome{Status: AnswerIgnored}
	}

	// Proximity guard. Skipped when no movement sample exists yet.
	if sess.HasPos {
		dist := PlanarDistance(sess.Pos, q.Position)
		if dist > s.settings.ProximityTolerance {
			s.logger.Warn("answer attempt too far from objective",
				"uid", sess.UID, "name", sess.Name, "question", questionID, "distance", dist)
			return AnswerOutcome{Status: AnswerTooFar}
		}
	}

	team, ok := s.cache.Get(sess.TeamCode)
	if !ok {
		return AnswerOutcome{Status: AnswerIgnored}
	}

	if team.HasSolved(questionID) {
		return AnswerOutcome{Status: AnswerAlreadySolved}
	}

	if !answersMatch(q.Answer, answer) {
		return AnswerOutcome{Status: AnswerIncorrect}
	}

	now := s.now()
	if err := s.store.CommitSolve(ctx, sess.TeamCode, questionID, s.settings.SolveReward, now); err != nil {
		// The intentional already-solved abort is reported the same way as an
		// infrastructure failure: rejection to the caller, no broadcast.
		s.logger.Error("solve transaction failed",
			"code", sess.TeamCode, "question", questionID, "error", err)
		return AnswerOutcome{Status: AnswerFailed}
	}

	s.cache.ApplySolve(sess.TeamCode, questionID, s.settings.SolveReward, now)

	s.logger.Info("question solved",
		"code", sess.TeamCode, "question", questionID, "solver", sess.UID)
	return AnswerOutcome{
		Status: AnswerSolved,
		Solved: &SolvedBroadcast{
			QuestionID: questionID,
			TeamName:   team.Name,
			SolverName: sess.Name,
			TeamCode:   sess.TeamCode,
		},
	}
}

// RecordKill awards the kill reward to the caller's team.
func (s *Service) RecordKill(ctx context.Context, connID string) (string, bool) {
	return s.addCombatScore(ctx, connID, s.settings.KillReward)
}

// RecordDeath deducts the death penalty from the caller's team. Scores may
// go negative.
func (s *Service) RecordDeath(ctx context.Context, connID string) (string, bool) {
	return s.addCombatScore(ctx, connID, -s.settings.DeathPenalty)
}

// addCombatScore applies a non-transactional increment. Events are trusted
// at face value; there is no idempotency guard.
func (s *Service) addCombatScore(ctx context.Context, connID string, delta int) (string, bool) {
	sess, ok := s.sessions.Get(connID)
	if !ok || sess.TeamCode == "" {
		return "", false
	}
	if _, ok := s.cache.Get(sess.TeamCode); !ok {
		return "", false
	}

	if err := s.store.IncrementScore(ctx, sess.TeamCode, delta); err != nil {
		s.logger.Error("combat score update failed",
			"code", sess.TeamCode, "delta", delta, "error", err)
		return "", false
	}
	s.cache.AddScore(sess.TeamCode, delta)
	return sess.TeamCode, true
}

// Leaderboard derives the public top-N view from the cache.
func (s *Service) Leaderboard() []LeaderboardEntry {
	teams := s.cache.Snapshot()
	ranks := make([]teamRank, len(teams))
	for i, t := range teams {
		ranks[i] = teamRank{name: t.Name, score: t.Score}
	}
	return leaderboard(ranks, s.settings.LeaderboardSize)
}

// WipeTeams deletes every team from the store and empties the cache. This is
// the out-of-band administrative reset; live sessions keep their team codes
// and simply stop resolving.
func (s *Service) WipeTeams(ctx context.Context) error {
	if err := s.store.WipeTeams(ctx); err != nil {
		return err
	}
	s.cache.Reset()
	s.logger.Info("all teams wiped")
	return nil
}

// generateCode draws a 6-character [A-Z0-9] code. Uniqueness is not enforced
// by construction; the code space makes collisions unlikely at event scale.
func (s *Service) generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// answersMatch compares trimmed answers case-insensitively.
func answersMatch(canonical, submitted string) bool {
	return strings.EqualFold(strings.TrimSpace(canonical), strings.TrimSpace(submitted))
}
