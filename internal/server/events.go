package server

import "encoding/json"

// Envelope frames every websocket message in both directions. Data carries
// the type-specific payload and may be absent for commands without one.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Commands accepted from clients.
const (
	cmdCreateTeam       = "createTeam"
	cmdJoinTeam         = "joinTeam"
	cmdRequestGameState = "requestGameState"
	cmdPlayerMove       = "playerMove"
	cmdAttemptAnswer    = "attemptAnswer"
	cmdEnemyKill        = "enemyKill"
	cmdPlayerDeath      = "playerDeath"
)

// Events emitted to clients.
const (
	evtTeamJoined         = "teamJoined"
	evtSyncSolved         = "syncSolved"
	evtGameState          = "gameState"
	evtTeammateUpdate     = "teammateUpdate"
	evtTeammateDisconnect = "teammateDisconnect"
	evtQuestionSolved     = "questionSolved"
	evtAnswerResult       = "answerResult"
	evtLeaderboardUpdate  = "leaderboardUpdate"
	evtError              = "error"
)

type CreateTeamCmd struct {
	PlayerName string `json:"playerName"`
	TeamName   string `json:"teamName"`
}

type JoinTeamCmd struct {
	PlayerName string `json:"playerName"`
	TeamCode   string `json:"teamCode"`
}

type PlayerMoveCmd struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Rot float64 `json:"rot"`
}

type AttemptAnswerCmd struct {
	QuestionID int    `json:"questionId"`
	Answer     string `json:"answer"`
}

type TeammateUpdateEvent struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Rot  float64 `json:"rot"`
}

type TeammateDisconnectEvent struct {
	UID string `json:"uid"`
}

type AnswerResultEvent struct {
	Correct bool   `json:"correct"`
	Message string `json:"message,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// event marshals an outbound envelope. Payload types are ours, so a
// marshal failure is a programming error and yields an empty frame.
func event(typ string, v any) []byte {
	data, _ := json.Marshal(v)
	frame, _ := json.Marshal(Envelope{Type: typ, Data: data})
	return frame
}
