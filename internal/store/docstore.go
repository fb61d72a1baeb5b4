package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DocStore implements TeamStore using per-model tables with JSONB data
// columns over SQLite.
type DocStore struct {
	db *sql.DB
}

func NewDocStore(ctx context.Context, db *sql.DB) (*DocStore, error) {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS teams (
			id         TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			data       JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id   TEXT PRIMARY KEY,
			data JSONB NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("creating table: %w", err)
		}
	}

	return &DocStore{db: db}, nil
}

func (s *DocStore) get(ctx context.Context, table, id string, dest any) error {
	var data string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT json(data) FROM %s WHERE id = ?`, table), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (s *DocStore) CreateTeam(ctx context.Context, team Team) error {
	data, err := json.Marshal(team)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO teams (id, created_at, data) VALUES (?, ?, jsonb(?))`,
		team.Code, team.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"), string(data),
	)
	if err != nil {
		return fmt.Errorf("inserting team %s: %w", team.Code, err)
	}
	return nil
}

func (s *DocStore) GetTeam(ctx context.Context, code string) (Team, error) {
	var t Team
	err := s.get(ctx, "teams", code, &t)
	return t, err
}

func (s *DocStore) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT json(data) FROM teams ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t Team
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// modifyTeam loads a team, applies fn, and saves it inside a transaction.
// Errors returned by fn abort the transaction untouched.
func (s *DocStore) modifyTeam(ctx context.Context, code string, fn func(*Team) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT json(data) FROM teams WHERE id = ?`, code,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var t Team
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return err
	}

	if err := fn(&t); err != nil {
		return err
	}

	jsonData, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE teams SET data = jsonb(?) WHERE id = ?`,
		string(jsonData), code,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *DocStore) AddMember(ctx context.Context, code, uid string) error {
	return s.modifyTeam(ctx, code, func(t *Team) error {
		if !t.HasMember(uid) {
			t.Members = append(t.Members, uid)
		}
		return nil
	})
}

func (s *DocStore) IncrementScore(ctx context.Context, code string, delta int) error {
	return s.modifyTeam(ctx, code, func(t *Team) error {
		t.Score += delta
		return nil
	})
}

func (s *DocStore) CommitSolve(ctx context.Context, code string, questionID, points int, at time.Time) error {
	return s.modifyTeam(ctx, code, func(t *Team) error {
		if t.HasSolved(questionID) {
			return ErrAlreadySolved
		}
		t.Score += points
		t.SolvedQuestions = append(t.SolvedQuestions, questionID)
		ts := at.UTC()
		t.LastScoredAt = &ts
		return nil
	})
}

func (s *DocStore) UpsertUser(ctx context.Context, u User) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Merge semantics: load the existing document as a map so fields the
	// caller does not set survive the upsert.
	doc := map[string]any{}
	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT json(data) FROM users WHERE id = ?`, u.UID,
	).Scan(&data)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err == nil {
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return err
		}
	}

	doc["uid"] = u.UID
	if u.Email != "" {
		doc["email"] = u.Email
	}
	if u.DisplayName != "" {
		doc["displayName"] = u.DisplayName
	}
	if u.TeamCode != "" {
		doc["teamCode"] = u.TeamCode
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, data) VALUES (?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		u.UID, string(jsonData),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *DocStore) GetUser(ctx context.Context, uid string) (User, error) {
	var u User
	err := s.get(ctx, "users", uid, &u)
	return u, err
}

func (s *DocStore) WipeTeams(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM teams`)
	return err
}

func (s *DocStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Ensure DocStore implements TeamStore at compile time.
var _ TeamStore = (*DocStore)(nil)
