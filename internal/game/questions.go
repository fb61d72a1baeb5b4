package game

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Position is a point in world space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlanarDistance is the distance between two points on the x/z ground plane.
// The proximity guard ignores height so rooftop and street-level attempts are
// judged the same.
func PlanarDistance(a, b Position) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Question is one objective in the hunt. Canonical answers never leave the
// server.
type Question struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Position Position `json:"position"`
}

// QuestionView is the sanitized client-facing shape of a question. Solved
// state is team-scoped and delivered separately via syncSolved; the flag here
// exists for the client schema.
type QuestionView struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Position Position `json:"position"`
	IsSolved bool     `json:"isSolved"`
}

// Catalog is the static question content, loaded once at startup.
type Catalog struct {
	questions []Question
	byID      map[int]Question
}

func NewCatalog(questions []Question) (*Catalog, error) {
	byID := make(map[int]Question, len(questions))
	for _, q := range questions {
		if q.Answer == "" {
			return nil, fmt.Errorf("question %d has no answer", q.ID)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %d", q.ID)
		}
		byID[q.ID] = q
	}
	return &Catalog{questions: questions, byID: byID}, nil
}

// LoadCatalog reads the catalog JSON at path, falling back to the built-in
// demo set when the file does not exist.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewCatalog(demoQuestions())
	}
	if err != nil {
		return nil, fmt.Errorf("reading question catalog: %w", err)
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parsing question catalog: %w", err)
	}
	return NewCatalog(questions)
}

func (c *Catalog) ByID(id int) (Question, bool) {
	q, ok := c.byID[id]
	return q, ok
}

func (c *Catalog) Len() int { return len(c.questions) }

// Views returns the sanitized catalog in declaration order.
func (c *Catalog) Views() []QuestionView {
	views := make([]QuestionView, len(c.questions))
	for i, q := range c.questions {
		views[i] = QuestionView{
			ID:       q.ID,
			Question: q.Question,
			Position: q.Position,
		}
	}
	return views
}

func demoQuestions() []Question {
	return []Question{
		{ID: 1, Question: "The flag by the old fountain asks: which city is known as the City of Light?", Answer: "paris", Position: Position{X: 0, Y: 1, Z: -10}},
		{ID: 2, Question: "The rooftop flag asks: how many minutes are in a quarter of an hour?", Answer: "15", Position: Position{X: 10, Y: 1, Z: 0}},
		{ID: 3, Question: "The flag near the clock tower asks: what is the chemical symbol for gold?", Answer: "au", Position: Position{X: -10, Y: 1, Z: 0}},
		{ID: 4, Question: "The harbor flag asks: which planet is closest to the sun?", Answer: "mercury", Position: Position{X: 0, Y: 1, Z: 10}},
		{ID: 5, Question: "The market square flag asks: what color do you get mixing blue and yellow?", Answer: "green", Position: Position{X: 35, Y: 1, Z: 35}},
		{ID: 6, Question: "The station flag asks: how many sides does a hexagon have?", Answer: "6", Position: Position{X: -35, Y: 1, Z: -35}},
	}
}
