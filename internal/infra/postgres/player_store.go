package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"event-trivia-service/internal/app"
	"event-trivia-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const uniqueViolation = "23505"

type playerRow struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	GameID         string     `bun:"game_id,pk"`
	PlayerID       string     `bun:"player_id,pk"`
	DisplayName    string     `bun:"display_name"`
	BranchID       string     `bun:"branch_id"`
	Status         string     `bun:"status"`
	CurrentScore   int        `bun:"current_score"`
	CurrentStreak  int        `bun:"current_streak"`
	MaxStreak      int        `bun:"max_streak"`
	CorrectAnswers int        `bun:"correct_answers"`
	WrongAnswers   int        `bun:"wrong_answers"`
	TotalTimeMs    int64      `bun:"total_time_ms"`
	RegisteredAt   time.Time  `bun:"registered_at"`
	StartedAt      *time.Time `bun:"started_at"`
	FinishedAt     *time.Time `bun:"finished_at"`
	HasCompleted   bool       `bun:"has_completed"`
	PlayCount      int        `bun:"play_count"`
	Rank           *int       `bun:"rank"`
	Version        int64      `bun:"version"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:player_answers,alias:a"`

	Seq              int64     `bun:"seq,scanonly"`
	GameID           string    `bun:"game_id,pk"`
	PlayerID         string    `bun:"player_id,pk"`
	QuestionID       string    `bun:"question_id,pk"`
	QuestionIndex    int       `bun:"question_index"`
	AnswerID         string    `bun:"answer_id"`
	IsCorrect        bool      `bun:"is_correct"`
	ResponseTimeMs   int64     `bun:"response_time_ms"`
	BasePoints       int       `bun:"base_points"`
	TimeBonus        int       `bun:"time_bonus"`
	StreakMultiplier float64   `bun:"streak_multiplier"`
	TotalPoints      int       `bun:"total_points"`
	StreakAtAnswer   int       `bun:"streak_at_answer"`
	AnsweredAt       time.Time `bun:"answered_at"`
}

// PlayerStore is the Postgres implementation of app.PlayerRepository. The
// answers log lives in player_answers whose primary key makes a duplicate
// answer impossible even if two writers race past the version check.
type PlayerStore struct {
	db *bun.DB
}

func NewPlayerStore(db *bun.DB) *PlayerStore {
	return &PlayerStore{db: db}
}

func (s *PlayerStore) Create(ctx context.Context, player *domain.Player) error {
	row := toPlayerRow(player)
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPlayerExists
		}
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (s *PlayerStore) Get(ctx context.Context, gameID, playerID string) (*domain.Player, error) {
	return s.load(ctx, s.db, gameID, playerID, false)
}

func (s *PlayerStore) ListByGame(ctx context.Context, gameID string) ([]*domain.Player, error) {
	var rows []playerRow
	if err := s.db.NewSelect().Model(&rows).
		Where("p.game_id = ?", gameID).
		Order("p.player_id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	var answers []answerRow
	if err := s.db.NewSelect().Model(&answers).
		Where("a.game_id = ?", gameID).
		Order("a.seq ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byPlayer := make(map[string][]answerRow, len(rows))
	for _, a := range answers {
		byPlayer[a.PlayerID] = append(byPlayer[a.PlayerID], a)
	}
	out := make([]*domain.Player, 0, len(rows))
	for i := range rows {
		out = append(out, toPlayer(&rows[i], byPlayer[rows[i].PlayerID]))
	}
	return out, nil
}

// Commit locks the player row, re-runs the guards against the locked record and
// writes the answer and the updated aggregates in one transaction.
func (s *PlayerStore) Commit(ctx context.Context, c app.Commit) (*domain.Player, error) {
	var updated *domain.Player
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		player, err := s.load(ctx, tx, c.GameID, c.PlayerID, true)
		if err != nil {
			return err
		}
		if err := app.ApplyCommit(player, c); err != nil {
			return err
		}

		answer := toAnswerRow(c.GameID, c.PlayerID, c.Record)
		if _, err := tx.NewInsert().Model(answer).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyAnswered
			}
			return fmt.Errorf("insert answer: %w", err)
		}

		row := toPlayerRow(player)
		res, err := tx.NewUpdate().Model(row).
			Column("status", "current_score", "current_streak", "max_streak",
				"correct_answers", "wrong_answers", "total_time_ms", "started_at",
				"finished_at", "has_completed", "play_count", "version").
			WherePK().
			Where("version = ?", c.ExpectedVersion).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update player: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConcurrentUpdate
		}
		updated = player
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PlayerStore) SetRank(ctx context.Context, gameID, playerID string, rank int) error {
	res, err := s.db.NewUpdate().Model((*playerRow)(nil)).
		Set("rank = ?", rank).
		Where("game_id = ? AND player_id = ?", gameID, playerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set rank: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (s *PlayerStore) load(ctx context.Context, db bun.IDB, gameID, playerID string, forUpdate bool) (*domain.Player, error) {
	row := new(playerRow)
	q := db.NewSelect().Model(row).
		Where("p.game_id = ? AND p.player_id = ?", gameID, playerID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("load player: %w", err)
	}
	var answers []answerRow
	if err := db.NewSelect().Model(&answers).
		Where("a.game_id = ? AND a.player_id = ?", gameID, playerID).
		Order("a.seq ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return toPlayer(row, answers), nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}

func toPlayerRow(p *domain.Player) *playerRow {
	return &playerRow{
		GameID:         p.GameID,
		PlayerID:       p.ID,
		DisplayName:    p.DisplayName,
		BranchID:       p.BranchID,
		Status:         string(p.Status),
		CurrentScore:   p.CurrentScore,
		CurrentStreak:  p.CurrentStreak,
		MaxStreak:      p.MaxStreak,
		CorrectAnswers: p.CorrectAnswers,
		WrongAnswers:   p.WrongAnswers,
		TotalTimeMs:    p.TotalTimeMs,
		RegisteredAt:   p.RegisteredAt,
		StartedAt:      p.StartedAt,
		FinishedAt:     p.FinishedAt,
		HasCompleted:   p.HasCompleted,
		PlayCount:      p.PlayCount,
		Rank:           p.Rank,
		Version:        p.Version,
	}
}

func toPlayer(row *playerRow, answers []answerRow) *domain.Player {
	p := &domain.Player{
		GameID:         row.GameID,
		ID:             row.PlayerID,
		DisplayName:    row.DisplayName,
		BranchID:       row.BranchID,
		Status:         domain.PlayerStatus(row.Status),
		Answers:        make([]domain.AnswerRecord, 0, len(answers)),
		CurrentScore:   row.CurrentScore,
		CurrentStreak:  row.CurrentStreak,
		MaxStreak:      row.MaxStreak,
		CorrectAnswers: row.CorrectAnswers,
		WrongAnswers:   row.WrongAnswers,
		TotalTimeMs:    row.TotalTimeMs,
		RegisteredAt:   row.RegisteredAt,
		StartedAt:      row.StartedAt,
		FinishedAt:     row.FinishedAt,
		HasCompleted:   row.HasCompleted,
		PlayCount:      row.PlayCount,
		Rank:           row.Rank,
		Version:        row.Version,
	}
	for _, a := range answers {
		p.Answers = append(p.Answers, domain.AnswerRecord{
			QuestionID:       a.QuestionID,
			QuestionIndex:    a.QuestionIndex,
			AnswerID:         a.AnswerID,
			IsCorrect:        a.IsCorrect,
			ResponseTimeMs:   a.ResponseTimeMs,
			BasePoints:       a.BasePoints,
			TimeBonus:        a.TimeBonus,
			StreakMultiplier: a.StreakMultiplier,
			TotalPoints:      a.TotalPoints,
			StreakAtAnswer:   a.StreakAtAnswer,
			AnsweredAt:       a.AnsweredAt,
		})
	}
	return p
}

func toAnswerRow(gameID, playerID string, r domain.AnswerRecord) *answerRow {
	return &answerRow{
		GameID:           gameID,
		PlayerID:         playerID,
		QuestionID:       r.QuestionID,
		QuestionIndex:    r.QuestionIndex,
		AnswerID:         r.AnswerID,
		IsCorrect:        r.IsCorrect,
		ResponseTimeMs:   r.ResponseTimeMs,
		BasePoints:       r.BasePoints,
		TimeBonus:        r.TimeBonus,
		StreakMultiplier: r.StreakMultiplier,
		TotalPoints:      r.TotalPoints,
		StreakAtAnswer:   r.StreakAtAnswer,
		AnsweredAt:       r.AnsweredAt,
	}
}
