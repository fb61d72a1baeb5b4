package game

import "sort"

// LeaderboardEntry exposes name and score only; codes, members, and solved
// sets never leave the server through the leaderboard.
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// leaderboard ranks teams descending by score, ties broken by cache insertion
// order, truncated to at most size entries.
func leaderboard(teams []teamRank, size int) []LeaderboardEntry {
	sort.SliceStable(teams, func(i, j int) bool {
		return teams[i].score > teams[j].score
	})
	if len(teams) > size {
		teams = teams[:size]
	}
	entries := make([]LeaderboardEntry, len(teams))
	for i, t := range teams {
		entries[i] = LeaderboardEntry{Name: t.name, Score: t.score}
	}
	return entries
}

type teamRank struct {
	name  string
	score int
}
