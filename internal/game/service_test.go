package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/istectf/cityhunt/internal/auth"
	"github.com/istectf/cityhunt/internal/database"
	"github.com/istectf/cityhunt/internal/store"
)

func testSettings() Settings {
	return Settings{
		SolveReward:        200,
		KillReward:         5,
		DeathPenalty:       5,
		LeaderboardSize:    10,
		MaxSpeed:           30,
		ProximityTolerance: 10,
		MoveResetGap:       2 * time.Second,
	}
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]Question{
		{ID: 3, Question: "What is the capital of France?", Answer: "paris", Position: Position{X: 0, Y: 1, Z: 0}},
		{ID: 4, Question: "Six times seven?", Answer: "42", Position: Position{X: 50, Y: 1, Z: 50}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := store.NewDocStore(ctx, db)
	if err != nil {
		t.Fatalf("doc store: %v", err)
	}

	return NewService(slog.New(slog.DiscardHandler), st, testCatalog(t), testSettings())
}

func ident(uid string) auth.Identity {
	return auth.Identity{UID: uid, Email: uid + "@example.com"}
}

func TestCreateTeamDuplicateName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateTeam(ctx, "c2", ident("u2"), "Carlos", "fox"); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken for case-insensitive duplicate, got %v", err)
	}
}

func TestJoinTeamInvalidCode(t *testing.T) {
	svc := newTestService(t)
	if _, _, err := svc.JoinTeam(context.Background(), "c1", ident("u1"), "Maria", "NOPE00"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

func TestJoinTeamIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ack, err := svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, conn := range []string{"c2", "c2b"} {
		if _, _, err := svc.JoinTeam(ctx, conn, ident("u2"), "Carlos", ack.Code); err != nil {
			t.Fatalf("join via %s: %v", conn, err)
		}
	}

	team, err := svc.store.GetTeam(ctx, ack.Code)
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
		t.Errorf("expected one occurrence of u2, got %d (members %v)", count, team.Members)
	}
	if team.Score != 0 {
		t.Errorf("join must not change score, got %d", team.Score)
	}
}

func TestJoinReflectsExistingScore(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ack, _ := svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")
	solveQuestion(t, svc, "c1", 3)

	joinAck, solved, err := svc.JoinTeam(ctx, "c2", ident("u2"), "Carlos", ack.Code)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joinAck.Score != 200 {
		t.Errorf("join ack must carry the persisted score, got %d", joinAck.Score)
	}
	if joinAck.IsLeader {
		t.Error("joiner must not be leader")
	}
	if len(solved) != 1 || solved[0] != 3 {
		t.Errorf("expected solved sync [3], got %v", solved)
	}
}

// solveQuestion moves the connection next to question 3 and answers it.
func solveQuestion(t *testing.T, svc *Service, connID string, questionID int) {
	t.Helper()
	q, ok := svc.catalog.ByID(questionID)
	if !ok {
		t.Fatalf("unknown question %d", questionID)
	}
	if _, ok := svc.Move(connID, q.Position, 0); !ok {
		t.Fatalf("move for %s failed", connID)
	}
	out := svc.AttemptAnswer(context.Background(), connID, questionID, q.Answer)
	if out.Status != AnswerSolved {
		t.Fatalf("expected solve, got status %d", out.Status)
	}
}

func TestAnswerMatchingCaseAndWhitespace(t *testing.T) {
	for _, submitted := range []string{" Paris ", "PARIS", "paris"} {
		if !answersMatch("paris", submitted) {
			t.Errorf("%q should match canonical %q", submitted, "paris")
		}
	}
	if answersMatch("paris", "london") {
		t.Error("wrong answer matched")
	}
}

func TestProximityBoundary(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ack, _ := svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")

	// Exactly at the tolerance: accepted.
	svc.Move("c1", Position{X: 10, Y: 1, Z: 0}, 0)
	out := svc.AttemptAnswer(ctx, "c1", 3, "paris")
	if out.Status != AnswerSolved {
		t.Fatalf("attempt at the boundary must be accepted, got status %d", out.Status)
	}

	// Strictly beyond: rejected with no state change.
	svc.Move("c1", Position{X: 61, Y: 1, Z: 50}, 0)
	before, _ := svc.cache.Get(ack.Code)
	out = svc.AttemptAnswer(ctx, "c1", 4, "42")
	if out.Status != AnswerTooFar {
		t.Fatalf("expected too-far rejection, got status %d", out.Status)
	}
	after, _ := svc.cache.Get(ack.Code)
	if after.Score != before.Score || len(after.SolvedQuestions) != len(before.SolvedQuestions) {
		t.Error("too-far rejection must not change team state")
	}
}

func TestProximitySkippedWithoutSample(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")
	// First action is an answer attempt; there is no position to judge.
	out := svc.AttemptAnswer(ctx, "c1", 3, "paris")
	if out.Status != AnswerSolved {
		t.Fatalf("attempt without a movement sample must skip the guard, got status %d", out.Status)
	}
}

func TestAttemptAnswerExactlyOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ack, _ := svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")

	const attempts = 6
	conns := make([]string, attempts)
	for i := range conns {
		conns[i] = string(rune('a' + i))
		uid := "u" + conns[i]
		if i == 0 {
			conns[i] = "c1"
			continue
		}
		if _, _, err := svc.JoinTeam(ctx, conns[i], ident(uid), "Player "+uid, ack.Code); err != nil {
			t.Fatalf("join %s: %v", uid, err)
		}
	}
	for _, conn := range conns {
		svc.Move(conn, Position{X: 0, Y: 1, Z: 0}, 0)
	}

	var wg sync.WaitGroup
	results := make(chan AnswerOutcome, attempts)
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.AttemptAnswer(ctx, conn, 3, " PARIS ")
		}()
	}
	wg.Wait()
	close(results)

	var solved, rejected int
	for out := range results {
		switch out.Status {
		case AnswerSolved:
			solved++
			if out.Solved == nil || out.Solved.QuestionID != 3 || out.Solved.TeamName != "Fox" {
				t.Errorf("bad broadcast payload: %+v", out.Solved)
			}
		case AnswerAlreadySolved, AnswerFailed:
			rejected++
		default:
			t.Errorf("unexpected status %d", out.Status)
		}
	}
	if solved != 1 {
		t.Fatalf("expected exactly one solve, got %d", solved)
	}
	if rejected != attempts-1 {
		t.Errorf("expected %d rejections, got %d", attempts-1, rejected)
	}

	team, _ := svc.store.GetTeam(ctx, ack.Code)
	if team.Score != 200 {
		t.Errorf("expected score 200, got %d", team.Score)
	}
}

func TestAlreadySolvedRejectedFromCache(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")
	solveQuestion(t, svc, "c1", 3)

	out := svc.AttemptAnswer(ctx, "c1", 3, "paris")
	if out.Status != AnswerAlreadySolved {
		t.Fatalf("expected already-solved rejection, got status %d", out.Status)
	}
}

func TestAutoRejoinConsistency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ack, _ := svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Alpha")
	solveQuestion(t, svc, "c1", 3)
	svc.Disconnect("c1")

	rejoin, solved, ok, err := svc.Rejoin(ctx, "c9", ident("u1"))
	if err != nil || !ok {
		t.Fatalf("rejoin: ok=%v err=%v", ok, err)
	}
	if rejoin.Code != ack.Code {
		t.Errorf("expected code %s, got %s", ack.Code, rejoin.Code)
	}
	if rejoin.Score != 200 {
		t.Errorf("rejoin must carry the persisted score, got %d", rejoin.Score)
	}
	if !rejoin.IsLeader {
		t.Error("creator must rejoin as leader")
	}
	if len(solved) != 1 || solved[0] != 3 {
		t.Errorf("expected solved sync [3], got %v", solved)
	}

	// Membership is untouched by rejoin.
	team, _ := svc.store.GetTeam(ctx, ack.Code)
	if len(team.Members) != 1 {
		t.Errorf("rejoin must not duplicate membership: %v", team.Members)
	}
}

func TestRejoinWithoutAffiliation(t *testing.T) {
	svc := newTestService(t)
	if _, _, ok, err := svc.Rejoin(context.Background(), "c1", ident("ghost")); ok || err != nil {
		t.Fatalf("expected no rejoin, got ok=%v err=%v", ok, err)
	}
}

func TestCombatScoring(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ack, _ := svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")

	if _, ok := svc.RecordKill(ctx, "c1"); !ok {
		t.Fatal("kill not recorded")
	}
	for range 3 {
		if _, ok := svc.RecordDeath(ctx, "c1"); !ok {
			t.Fatal("death not recorded")
		}
	}

	team, _ := svc.store.GetTeam(ctx, ack.Code)
	if team.Score != -10 {
		t.Errorf("expected score -10 (5 - 15), got %d", team.Score)
	}
	cached, _ := svc.cache.Get(ack.Code)
	if cached.Score != team.Score {
		t.Errorf("cache (%d) diverged from store (%d)", cached.Score, team.Score)
	}
}

func TestCombatWithoutTeamIgnored(t *testing.T) {
	svc := newTestService(t)
	if _, ok := svc.RecordKill(context.Background(), "nobody"); ok {
		t.Error("kill without a team session must be ignored")
	}
}

func TestMoveUpdatesAndGameState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, ok := svc.Move("nobody", Position{X: 1}, 0); ok {
		t.Error("movement without a session must be dropped")
	}

	svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")
	upd, ok := svc.Move("c1", Position{X: 1, Y: 0, Z: 2}, 1.5)
	if !ok {
		t.Fatal("move failed")
	}
	if upd.UID != "u1" || upd.Name != "Maria" || upd.Rot != 1.5 {
		t.Errorf("bad update %+v", upd)
	}

	views, solved := svc.GameState("c1")
	if len(views) != 2 {
		t.Errorf("expected 2 question views, got %d", len(views))
	}
	for _, v := range views {
		if v.IsSolved {
			t.Errorf("catalog view leaked solved state: %+v", v)
		}
	}
	if len(solved) != 0 {
		t.Errorf("expected empty solved set, got %v", solved)
	}
}

func TestLeaderboardFromService(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")
	svc.CreateTeam(ctx, "c2", ident("u2"), "Carlos", "Wolf")
	solveQuestion(t, svc, "c2", 3)

	lb := svc.Leaderboard()
	if len(lb) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lb))
	}
	if lb[0].Name != "Wolf" || lb[0].Score != 200 {
		t.Errorf("expected Wolf on top with 200, got %+v", lb[0])
	}
}

func TestGeneratedCodeShape(t *testing.T) {
	svc := newTestService(t)
	for range 50 {
		code := svc.generateCode()
		if len(code) != 6 {
			t.Fatalf("expected 6 characters, got %q", code)
		}
		for _, r := range code {
			if !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				t.Fatalf("unexpected character %q in code %q", r, code)
			}
		}
	}
}

func TestWipeTeamsResetsCache(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.CreateTeam(ctx, "c1", ident("u1"), "Maria", "Fox")
	if err := svc.WipeTeams(ctx); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if svc.cache.Len() != 0 {
		t.Error("cache not reset")
	}
	if len(svc.Leaderboard()) != 0 {
		t.Error("leaderboard not empty after wipe")
	}
}
