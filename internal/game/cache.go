package game

import (
	"strings"
	"sync"
	"time"

	"github.com/istectf/cityhunt/internal/store"
)

// TeamCache is the in-memory mirror of team documents. It is advisory: the
// durable store holds the truth, and the cache is reconciled only after a
// store mutation has been confirmed. Insertion order is kept so leaderboard
// ties stay stable across repeated reads.
type TeamCache struct {
	mu    sync.RWMutex
	teams map[string]*store.Team
	order []string
}

func NewTeamCache() *TeamCache {
	return &TeamCache{teams: make(map[string]*store.Team)}
}

// Get returns a copy of the cached team document.
func (c *TeamCache) Get(code string) (store.Team, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.teams[code]
	if !ok {
		return store.Team{}, false
	}
	return *t, true
}

// Put inserts or replaces a team, preserving its original insertion slot.
func (c *TeamCache) Put(team store.Team) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.teams[team.Code]; !exists {
		c.order = append(c.order, team.Code)
	}
	c.teams[team.Code] = &team
}

// NameTaken reports whether any cached team already uses name,
// case-insensitively.
func (c *TeamCache) NameTaken(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.teams {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// AddMember unions uid into the cached member list.
func (c *TeamCache) AddMember(code, uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.teams[code]
	if !ok || t.HasMember(uid) {
		return
	}
	t.Members = append(t.Members, uid)
}

// ApplySolve mirrors a committed solve transaction into the cache.
func (c *TeamCache) ApplySolve(code string, questionID, points int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.teams[code]
	if !ok {
		return
	}
	t.Score += points
	if !t.HasSolved(questionID) {
		t.SolvedQuestions = append(t.SolvedQuestions, questionID)
	}
	ts := at.UTC()
	t.LastScoredAt = &ts
}

// AddScore mirrors a confirmed combat-score increment.
func (c *TeamCache) AddScore(code string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.teams[code]; ok {
		t.Score += delta
	}
}

// Snapshot returns copies of all cached teams in insertion order.
func (c *TeamCache) Snapshot() []store.Team {
	c.mu.RLock()
	defer c.mu.RUnlock()
	teams := make([]store.Team, 0, len(c.order))
	for _, code := range c.order {
		if t, ok := c.teams[code]; ok {
			teams = append(teams, *t)
		}
	}
	return teams
}

// Reset empties the cache. Used by the administrative wipe.
func (c *TeamCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teams = make(map[string]*store.Team)
	c.order = nil
}

// Len reports the number of cached teams.
func (c *TeamCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.teams)
}
