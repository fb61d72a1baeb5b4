// Package store holds the durable team store contract and its backends.
//
// The store is the source of truth for team score and the solved-question
// set; the in-memory cache in internal/game is an accelerating mirror
// reconciled after every confirmed mutation here.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrAlreadySolved is the transactional abort for a solve commit whose
	// question id is already in the team's solved set. It is a correctness
	// feature, not an infrastructure fault.
	ErrAlreadySolved = errors.New("already solved")
)

// Team is the canonical team document, keyed by its 6-character code.
type Team struct {
	Code            string     `json:"code" bson:"_id"`
	Name            string     `json:"name" bson:"name"`
	LeaderUID       string     `json:"leaderUid" bson:"leader_uid"`
	Score           int        `json:"score" bson:"score"`
	Members         []string   `json:"members" bson:"members"`
	SolvedQuestions []int      `json:"solvedQuestions" bson:"solved_questions"`
	LastScoredAt    *time.Time `json:"lastScoredAt,omitempty" bson:"last_scored_at,omitempty"`
	CreatedAt       time.Time  `json:"createdAt" bson:"created_at"`
}

// HasSolved reports set membership in the solved-question set.
func (t Team) HasSolved(questionID int) bool {
	for _, id := range t.SolvedQuestions {
		if id == questionID {
			return true
		}
	}
	return false
}

// HasMember reports membership in the team's member set.
func (t Team) HasMember(uid string) bool {
	for _, m := range t.Members {
		if m == uid {
			return true
		}
	}
	return false
}

// User is the per-user affiliation document. TeamCode supports automatic
// rejoin after reconnect.
type User struct {
	UID         string `json:"uid" bson:"_id"`
	Email       string `json:"email" bson:"email"`
	DisplayName string `json:"displayName" bson:"display_name"`
	TeamCode    string `json:"teamCode,omitempty" bson:"team_code,omitempty"`
}

// TeamStore is the transactional document store behind the game core.
type TeamStore interface {
	// CreateTeam persists a new team document.
	CreateTeam(ctx context.Context, team Team) error

	// GetTeam returns the team document for code, or ErrNotFound.
	GetTeam(ctx context.Context, code string) (Team, error)

	// ListTeams returns every team document, oldest first.
	ListTeams(ctx context.Context) ([]Team, error)

	// AddMember unions uid into the team's member set. Safe to call twice.
	AddMember(ctx context.Context, code, uid string) error

	// IncrementScore atomically adds delta (may be negative) to the team's
	// score. No idempotency guard: callers own the trust model.
	IncrementScore(ctx context.Context, code string, delta int) error

	// CommitSolve atomically awards points for questionID and unions it into
	// the solved set, aborting with ErrAlreadySolved when the transactionally
	// observed solved set already contains it. Exactly one concurrent caller
	// per (team, question) succeeds.
	CommitSolve(ctx context.Context, code string, questionID, points int, at time.Time) error

	// UpsertUser writes the user's affiliation record with merge semantics:
	// fields absent from u survive in the stored document.
	UpsertUser(ctx context.Context, u User) error

	// GetUser returns the affiliation record for uid, or ErrNotFound.
	GetUser(ctx context.Context, uid string) (User, error)

	// WipeTeams deletes every team document. Administrative, out-of-band.
	WipeTeams(ctx context.Context) error

	// Ping reports backend health.
	Ping(ctx context.Context) error
}
