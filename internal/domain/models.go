package domain

import (
	"fmt"
	"time"
)

// PlayerStatus is the lifecycle state of a participant within one game.
type PlayerStatus string

const (
	StatusRegistered PlayerStatus = "registered"
	StatusPlaying    PlayerStatus = "playing"
	StatusFinished   PlayerStatus = "finished"
)

// CanTransition reports whether a status may move to next. Status only moves forward.
func (s PlayerStatus) CanTransition(next PlayerStatus) bool {
	if s == next {
		return true
	}
	if s == StatusFinished {
		return false
	}
	return statusOrder(next) > statusOrder(s)
}

func statusOrder(s PlayerStatus) int {
	switch s {
	case StatusRegistered:
		return 0
	case StatusPlaying:
		return 1
	case StatusFinished:
		return 2
	}
	return -1
}

// GamePhase controls whether a game accepts answers.
type GamePhase string

const (
	PhaseWaiting  GamePhase = "waiting"
	PhaseActive   GamePhase = "active"
	PhaseFinished GamePhase = "finished"
)

// Valid reports whether p is a known phase.
func (p GamePhase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseActive, PhaseFinished:
		return true
	}
	return false
}

// Player is the authoritative record of one participant in one game.
type Player struct {
	GameID         string         `json:"gameId"`
	ID             string         `json:"id"`
	DisplayName    string         `json:"displayName"`
	BranchID       string         `json:"branchId,omitempty"`
	Status         PlayerStatus   `json:"status"`
	Answers        []AnswerRecord `json:"answers"`
	CurrentScore   int            `json:"currentScore"`
	CurrentStreak  int            `json:"currentStreak"`
	MaxStreak      int            `json:"maxStreak"`
	CorrectAnswers int            `json:"correctAnswers"`
	WrongAnswers   int            `json:"wrongAnswers"`
	TotalTimeMs    int64          `json:"totalTimeMs"`
	RegisteredAt   time.Time      `json:"registeredAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	FinishedAt     *time.Time     `json:"finishedAt,omitempty"`
	HasCompleted   bool           `json:"hasCompleted"`
	PlayCount      int            `json:"playCount"`
	Rank           *int           `json:"rank,omitempty"`
	Version        int64          `json:"version"`
}

// HasAnswered reports whether the answers log already holds questionID.
func (p *Player) HasAnswered(questionID string) bool {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Accuracy is the share of correct answers as a percentage (0..100).
func (p *Player) Accuracy() float64 {
	return accuracy(p.CorrectAnswers, len(p.Answers))
}

// Apply appends record and updates the aggregates and status. complete marks the
// transition into finished. Callers check the duplicate and version guards; Apply
// itself refuses to move the status backwards or out of finished.
func (p *Player) Apply(record AnswerRecord, newStreak int, complete bool, now time.Time) error {
	next := StatusPlaying
	if complete {
		next = StatusFinished
	}
	if p.HasCompleted || !p.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrStatusTransition, p.Status, next)
	}

	p.Answers = append(p.Answers, record)
	p.CurrentScore += record.TotalPoints
	p.CurrentStreak = newStreak
	if newStreak > p.MaxStreak {
		p.MaxStreak = newStreak
	}
	if record.IsCorrect {
		p.CorrectAnswers++
	} else {
		p.WrongAnswers++
	}
	p.TotalTimeMs += record.ResponseTimeMs

	if p.StartedAt == nil {
		started := now
		p.StartedAt = &started
	}
	p.Status = next
	if complete {
		finished := now
		p.FinishedAt = &finished
		p.HasCompleted = true
		p.PlayCount++
	}
	p.Version++
	return nil
}

// LeaderboardEntry derives the mirror projection of the player.
func (p *Player) LeaderboardEntry() LeaderboardEntry {
	return LeaderboardEntry{
		GameID:         p.GameID,
		PlayerID:       p.ID,
		DisplayName:    p.DisplayName,
		BranchID:       p.BranchID,
		Score:          p.CurrentScore,
		CorrectAnswers: p.CorrectAnswers,
		AnswersCount:   len(p.Answers),
		Accuracy:       p.Accuracy(),
		MaxStreak:      p.MaxStreak,
		TotalTimeMs:    p.TotalTimeMs,
		Finished:       p.Status == StatusFinished,
		FinishedAt:     p.FinishedAt,
		Rank:           p.Rank,
	}
}

// AnswerRecord is one immutable entry of a player's answer log.
type AnswerRecord struct {
	QuestionID       string    `json:"questionId"`
	QuestionIndex    int       `json:"questionIndex"`
	AnswerID         string    `json:"answerId"`
	IsCorrect        bool      `json:"isCorrect"`
	ResponseTimeMs   int64     `json:"responseTimeMs"`
	BasePoints       int       `json:"basePoints"`
	TimeBonus        int       `json:"timeBonus"`
	StreakMultiplier float64   `json:"streakMultiplier"`
	TotalPoints      int       `json:"totalPoints"`
	StreakAtAnswer   int       `json:"streakAtAnswer"`
	AnsweredAt       time.Time `json:"answeredAt"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID          string   `json:"id"`
	Index       int      `json:"index"`
	Prompt      string   `json:"prompt"`
	Options     []Option `json:"options"`
	Points      int      `json:"points"`      // overrides the scoring base points when > 0
	TimeLimitMs int64    `json:"timeLimitMs"` // falls back to the scoring default when zero
	Active      bool     `json:"active"`
}

// CorrectOption returns the single correct option, if defined.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt, true
		}
	}
	return Option{}, false
}

// Game is the read-only definition of one quiz instance.
type Game struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Questions       []Question       `json:"questions"`
	Scoring         ScoringOverrides `json:"scoring"`
	BranchesEnabled bool             `json:"branchesEnabled"`

	// active maps active question ids to their position in Questions. It is
	// built by Prepare; a nil index falls back to scanning.
	active map[string]int
}

// Prepare validates a loaded game and indexes its active questions. Every
// active question needs a unique id and exactly one correct option.
func (g Game) Prepare() (Game, error) {
	if g.ID == "" {
		return Game{}, fmt.Errorf("%w: missing id", ErrInvalidCatalog)
	}
	active := make(map[string]int, len(g.Questions))
	for i, q := range g.Questions {
		if !q.Active {
			continue
		}
		if _, dup := active[q.ID]; dup || q.ID == "" {
			return Game{}, fmt.Errorf("%w: game %s question %q is missing or duplicated", ErrInvalidCatalog, g.ID, q.ID)
		}
		correct := 0
		for _, opt := range q.Options {
			if opt.Correct {
				correct++
			}
		}
		switch {
		case correct == 0:
			return Game{}, fmt.Errorf("game %s question %s: %w", g.ID, q.ID, ErrNoCorrectAnswer)
		case correct > 1:
			return Game{}, fmt.Errorf("%w: game %s question %s has %d correct options", ErrInvalidCatalog, g.ID, q.ID, correct)
		}
		active[q.ID] = i
	}
	g.active = active
	return g, nil
}

// ActiveQuestions returns the questions currently in play, in catalog order.
func (g Game) ActiveQuestions() []Question {
	out := make([]Question, 0, len(g.Questions))
	for _, q := range g.Questions {
		if q.Active {
			out = append(out, q)
		}
	}
	return out
}

// ActiveQuestionCount is the number of answers needed to finish the game.
func (g Game) ActiveQuestionCount() int {
	if g.active != nil {
		return len(g.active)
	}
	n := 0
	for _, q := range g.Questions {
		if q.Active {
			n++
		}
	}
	return n
}

// ActiveQuestion looks up an active question by id.
func (g Game) ActiveQuestion(id string) (Question, bool) {
	if g.active != nil {
		i, ok := g.active[id]
		if !ok {
			return Question{}, false
		}
		return g.Questions[i], true
	}
	for _, q := range g.Questions {
		if q.ID == id && q.Active {
			return q, true
		}
	}
	return Question{}, false
}

// ScoringMode selects the scoring algorithm for a game.
type ScoringMode string

const (
	ModeSimple        ScoringMode = "simple"
	ModeTimeOnly      ScoringMode = "time_only"
	ModeStreakOnly    ScoringMode = "streak_only"
	ModeTimeAndStreak ScoringMode = "time_and_streak"
)

// ScoringConfig is the resolved, immutable scoring configuration of one game.
type ScoringConfig struct {
	Mode               ScoringMode `json:"mode"`
	BasePoints         int         `json:"basePoints"`
	TimeBonusMax       int         `json:"timeBonusMax"`
	DefaultTimeLimitMs int64       `json:"defaultTimeLimitMs"`
	StreakTable        []float64   `json:"streakTable"`
}

// Clone returns a copy that shares no backing arrays with c.
func (c ScoringConfig) Clone() ScoringConfig {
	out := c
	if c.StreakTable != nil {
		out.StreakTable = append([]float64(nil), c.StreakTable...)
	}
	return out
}

// ScoringOverrides is the sparse scoring section of a catalog entry or of the
// service config. Nil fields fall back to the defaults; an explicit zero is kept.
type ScoringOverrides struct {
	Mode               ScoringMode `json:"mode,omitempty" yaml:"mode"`
	BasePoints         *int        `json:"basePoints,omitempty" yaml:"base_points"`
	TimeBonusMax       *int        `json:"timeBonusMax,omitempty" yaml:"time_bonus_max"`
	DefaultTimeLimitMs *int64      `json:"defaultTimeLimitMs,omitempty" yaml:"default_time_limit_ms"`
	StreakTable        []float64   `json:"streakTable,omitempty" yaml:"streak_table"`
}

// Resolve layers o over def. The result shares no backing arrays with either.
func (o ScoringOverrides) Resolve(def ScoringConfig) ScoringConfig {
	out := def.Clone()
	if o.Mode != "" {
		out.Mode = o.Mode
	}
	if o.BasePoints != nil {
		out.BasePoints = *o.BasePoints
	}
	if o.TimeBonusMax != nil {
		out.TimeBonusMax = *o.TimeBonusMax
	}
	if o.DefaultTimeLimitMs != nil {
		out.DefaultTimeLimitMs = *o.DefaultTimeLimitMs
	}
	if o.StreakTable != nil {
		out.StreakTable = append([]float64{}, o.StreakTable...)
	}
	return out
}

// LeaderboardEntry is the denormalized, eventually consistent view of a player.
type LeaderboardEntry struct {
	GameID         string     `json:"gameId"`
	PlayerID       string     `json:"playerId"`
	DisplayName    string     `json:"displayName"`
	BranchID       string     `json:"branchId,omitempty"`
	Score          int        `json:"score"`
	CorrectAnswers int        `json:"correctAnswers"`
	AnswersCount   int        `json:"answersCount"`
	Accuracy       float64    `json:"accuracy"`
	MaxStreak      int        `json:"maxStreak"`
	TotalTimeMs    int64      `json:"totalTimeMs"`
	Finished       bool       `json:"finished"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	Rank           *int       `json:"rank,omitempty"` // point-in-time rank recorded at completion
	Position       int        `json:"position,omitempty"`
}

// Leaderboard captures the ordered standings for a game (or one branch of it).
type Leaderboard struct {
	GameID    string             `json:"gameId"`
	BranchID  string             `json:"branchId,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// StatsCounters are the monotonic aggregates kept per game.
type StatsCounters struct {
	Registered  int64   `json:"registered"`
	Started     int64   `json:"started"`
	Finished    int64   `json:"finished"`
	Answers     int64   `json:"answers"`
	ScoreSum    int64   `json:"scoreSum"`
	AccuracySum float64 `json:"accuracySum"`
	TimeSumMs   int64   `json:"timeSumMs"`
}

// StatsSnapshot adds the read-time derived values to the counters.
type StatsSnapshot struct {
	GameID string `json:"gameId"`
	StatsCounters
	Playing     int64   `json:"playing"`
	AvgScore    float64 `json:"avgScore"`
	AvgAccuracy float64 `json:"avgAccuracy"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
}

// Snapshot derives averages from the counters. Averages are over finished players.
func (c StatsCounters) Snapshot(gameID string) StatsSnapshot {
	s := StatsSnapshot{GameID: gameID, StatsCounters: c}
	s.Playing = c.Started - c.Finished
	if s.Playing < 0 {
		s.Playing = 0
	}
	if c.Finished > 0 {
		n := float64(c.Finished)
		s.AvgScore = float64(c.ScoreSum) / n
		s.AvgAccuracy = c.AccuracySum / n
		s.AvgTimeMs = float64(c.TimeSumMs) / n
	}
	return s
}

// AnswerSubmission is a validated answer request.
type AnswerSubmission struct {
	GameID         string
	PlayerID       string
	QuestionID     string
	QuestionIndex  int
	AnswerID       string
	ResponseTimeMs int64
}

// AnswerResult summarizes the outcome of an accepted submission.
type AnswerResult struct {
	IsCorrect        bool    `json:"isCorrect"`
	CorrectAnswerID  string  `json:"correctAnswerId"`
	BasePoints       int     `json:"basePoints"`
	TimeBonus        int     `json:"timeBonus"`
	StreakMultiplier float64 `json:"streakMultiplier"`
	TotalPoints      int     `json:"totalPoints"`
	NewTotalScore    int     `json:"newTotalScore"`
	NewStreak        int     `json:"newStreak"`
	IsGameComplete   bool    `json:"isGameComplete"`
	Rank             *int    `json:"rank,omitempty"`
}

func accuracy(correct, answered int) float64 {
	if answered == 0 {
		return 0
	}
	return float64(correct) * 100 / float64(answered)
}
