package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/istectf/cityhunt/internal/database"
)

func testStore(t *testing.T) *DocStore {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// A pooled :memory: connection is its own database; pin the pool to one
	// connection so every query and transaction sees the same state.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewDocStore(ctx, db)
	if err != nil {
		t.Fatalf("init doc store: %v", err)
	}
	return s
}

func seedTeam(t *testing.T, s *DocStore, code string) Team {
	t.Helper()
	team := Team{
		Code:      code,
		Name:      "Team " + code,
		LeaderUID: "leader",
		Members:   []string{"leader"},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateTeam(context.Background(), team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	return team
}

func TestGetTeamNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetTeam(context.Background(), "NOPE00"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddMemberIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedTeam(t, s, "ALPHA1")

	for range 2 {
		if err := s.AddMember(ctx, "ALPHA1", "u2"); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}

	team, err := s.GetTeam(ctx, "ALPHA1")
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	count := 0
	for _, m := range team.Members {
		if m == "u2" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one occurrence of u2, got %d (members %v)", count, team.Members)
	}
	if team.Score != 0 {
		t.Errorf("join must not change score, got %d", team.Score)
	}
}

func TestCommitSolveExactlyOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedTeam(t, s, "FOX123")

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.CommitSolve(ctx, "FOX123", 3, 200, time.Now())
		}()
	}
	wg.Wait()
	close(results)

	var ok, aborted int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadySolved):
			aborted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful commit, got %d", ok)
	}
	if aborted != attempts-1 {
		t.Errorf("expected %d aborts, got %d", attempts-1, aborted)
	}

	team, err := s.GetTeam(ctx, "FOX123")
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	if team.Score != 200 {
		t.Errorf("expected score 200, got %d", team.Score)
	}
	if len(team.SolvedQuestions) != 1 || team.SolvedQuestions[0] != 3 {
		t.Errorf("expected solved set [3], got %v", team.SolvedQuestions)
	}
	if team.LastScoredAt == nil {
		t.Error("expected last scored timestamp")
	}
}

func TestIncrementScoreGoesNegative(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedTeam(t, s, "NEG001")

	if err := s.IncrementScore(ctx, "NEG001", -5); err != nil {
		t.Fatalf("increment: %v", err)
	}
	team, _ := s.GetTeam(ctx, "NEG001")
	if team.Score != -5 {
		t.Errorf("expected score -5, got %d", team.Score)
	}
}

func TestUpsertUserMerges(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, User{UID: "u1", Email: "u1@example.com", DisplayName: "Maria"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// Second write sets only the team code; email and name must survive.
	if err := s.UpsertUser(ctx, User{UID: "u1", TeamCode: "ALPHA1"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	u, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Email != "u1@example.com" || u.DisplayName != "Maria" || u.TeamCode != "ALPHA1" {
		t.Errorf("merge lost fields: %+v", u)
	}
}

func TestWipeTeams(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedTeam(t, s, "AAAAAA")
	seedTeam(t, s, "BBBBBB")

	if err := s.WipeTeams(ctx); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	teams, err := s.ListTeams(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(teams) != 0 {
		t.Errorf("expected no teams after wipe, got %d", len(teams))
	}
}
