package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"event-trivia-service/internal/domain"
	"event-trivia-service/internal/scoring"
	"go.uber.org/zap"
)

const maxCommitAttempts = 3

// QuizService contains the core quiz use cases.
type QuizService struct {
	players           PlayerRepository
	quizzes           QuizRepository
	phases            PhaseStore
	mirror            LeaderboardMirror
	stats             StatsStore
	outbox            Outbox
	completion        *CompletionRecorder
	branches          BranchDirectory
	defaultScoring    domain.ScoringConfig
	completionTimeout time.Duration
	logger            *zap.Logger
	now               func() time.Time
}

// ServiceConfig wires a QuizService.
type ServiceConfig struct {
	Players           PlayerRepository
	Quizzes           QuizRepository
	Phases            PhaseStore
	Mirror            LeaderboardMirror
	Stats             StatsStore
	Outbox            Outbox
	Completion        *CompletionRecorder
	Branches          BranchDirectory // optional
	DefaultScoring    domain.ScoringConfig
	CompletionTimeout time.Duration
	Logger            *zap.Logger
	Now               func() time.Time // test hook
}

func NewQuizService(cfg ServiceConfig) (*QuizService, error) {
	switch {
	case cfg.Players == nil:
		return nil, errors.New("quiz service: player repository is required")
	case cfg.Quizzes == nil:
		return nil, errors.New("quiz service: quiz repository is required")
	case cfg.Phases == nil:
		return nil, errors.New("quiz service: phase store is required")
	case cfg.Mirror == nil:
		return nil, errors.New("quiz service: mirror is required")
	case cfg.Stats == nil:
		return nil, errors.New("quiz service: stats store is required")
	case cfg.Outbox == nil:
		return nil, errors.New("quiz service: outbox is required")
	case cfg.Completion == nil:
		return nil, errors.New("quiz service: completion recorder is required")
	}
	s := &QuizService{
		players:           cfg.Players,
		quizzes:           cfg.Quizzes,
		phases:            cfg.Phases,
		mirror:            cfg.Mirror,
		stats:             cfg.Stats,
		outbox:            cfg.Outbox,
		completion:        cfg.Completion,
		branches:          cfg.Branches,
		defaultScoring:    cfg.DefaultScoring.Clone(),
		completionTimeout: cfg.CompletionTimeout,
		logger:            cfg.Logger,
		now:               cfg.Now,
	}
	if s.completionTimeout <= 0 {
		s.completionTimeout = 2 * time.Second
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// RegisterInput is the data the registration collaborator hands over.
type RegisterInput struct {
	GameID      string
	PlayerID    string
	DisplayName string
	BranchID    string
}

// RegisterPlayer creates the initial player record in the registered state.
func (s *QuizService) RegisterPlayer(ctx context.Context, in RegisterInput) (*domain.Player, error) {
	if strings.TrimSpace(in.GameID) == "" || strings.TrimSpace(in.PlayerID) == "" {
		return nil, fmt.Errorf("%w: gameId and playerId are required", domain.ErrInvalidRequest)
	}
	game, err := s.quizzes.GetGame(ctx, in.GameID)
	if err != nil {
		return nil, err
	}

	branchID := strings.TrimSpace(in.BranchID)
	if !game.BranchesEnabled {
		branchID = ""
	}
	if branchID != "" && s.branches != nil {
		ok, err := s.branches.Valid(ctx, branchID)
		if err != nil {
			return nil, fmt.Errorf("branch lookup: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownBranch, branchID)
		}
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = in.PlayerID
	}
	now := s.now()
	player := &domain.Player{
		GameID:       in.GameID,
		ID:           in.PlayerID,
		DisplayName:  displayName,
		BranchID:     branchID,
		Status:       domain.StatusRegistered,
		Answers:      []domain.AnswerRecord{},
		RegisteredAt: now,
	}
	if err := s.players.Create(ctx, player); err != nil {
		return nil, err
	}
	s.emit(ctx, newEvent(EventPlayerRegistered, player, now))
	return player, nil
}

// SubmitAnswer scores one answer and commits it to the player's record. Once
// the commit succeeds the result is returned even if side effects fail.
func (s *QuizService) SubmitAnswer(ctx context.Context, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	if err := validateSubmission(sub); err != nil {
		return domain.AnswerResult{}, err
	}

	phase, err := s.phases.Phase(ctx, sub.GameID)
	if err != nil {
		return domain.AnswerResult{}, fmt.Errorf("load game phase: %w", err)
	}
	if phase != domain.PhaseActive {
		return domain.AnswerResult{}, domain.ErrGameNotActive
	}

	game, err := s.quizzes.GetGame(ctx, sub.GameID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	for attempt := 1; ; attempt++ {
		result, player, err := s.trySubmit(ctx, game, sub)
		if errors.Is(err, domain.ErrConcurrentUpdate) && attempt < maxCommitAttempts {
			s.logger.Debug("retrying answer commit after concurrent update",
				zap.String("game_id", sub.GameID),
				zap.String("player_id", sub.PlayerID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return domain.AnswerResult{}, err
		}

		if result.IsGameComplete {
			completionCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.completionTimeout)
			result.Rank = s.completion.Record(completionCtx, player)
			cancel()
		}
		return result, nil
	}
}

func (s *QuizService) trySubmit(ctx context.Context, game domain.Game, sub domain.AnswerSubmission) (domain.AnswerResult, *domain.Player, error) {
	player, err := s.players.Get(ctx, sub.GameID, sub.PlayerID)
	if err != nil {
		return domain.AnswerResult{}, nil, err
	}
	if player.Status == domain.StatusFinished || player.HasCompleted {
		return domain.AnswerResult{}, nil, domain.ErrPlayerFinished
	}
	question, ok := game.ActiveQuestion(sub.QuestionID)
	if !ok {
		return domain.AnswerResult{}, nil, domain.ErrQuestionNotFound
	}
	if player.HasAnswered(question.ID) {
		return domain.AnswerResult{}, nil, domain.ErrAlreadyAnswered
	}

	correct, ok := question.CorrectOption()
	if !ok {
		return domain.AnswerResult{}, nil, fmt.Errorf("game %s question %s: %w", game.ID, question.ID, domain.ErrNoCorrectAnswer)
	}
	isCorrect := sub.AnswerID == correct.ID

	cfg := game.Scoring.Resolve(s.defaultScoring)
	timeLimit := question.TimeLimitMs
	if timeLimit <= 0 {
		timeLimit = cfg.DefaultTimeLimitMs
	}
	points, err := scoring.Score(scoring.Input{
		Mode:           cfg.Mode,
		IsCorrect:      isCorrect,
		ResponseTimeMs: sub.ResponseTimeMs,
		TimeLimitMs:    timeLimit,
		CurrentStreak:  player.CurrentStreak,
		BasePoints:     question.Points,
	}, cfg)
	if err != nil {
		return domain.AnswerResult{}, nil, fmt.Errorf("game %s: %w", game.ID, err)
	}

	now := s.now()
	complete := len(player.Answers)+1 >= game.ActiveQuestionCount()
	firstAnswer := len(player.Answers) == 0
	updated, err := s.players.Commit(ctx, Commit{
		GameID:          sub.GameID,
		PlayerID:        sub.PlayerID,
		ExpectedVersion: player.Version,
		Record: domain.AnswerRecord{
			QuestionID:       question.ID,
			QuestionIndex:    sub.QuestionIndex,
			AnswerID:         sub.AnswerID,
			IsCorrect:        isCorrect,
			ResponseTimeMs:   sub.ResponseTimeMs,
			BasePoints:       points.BasePoints,
			TimeBonus:        points.TimeBonus,
			StreakMultiplier: points.StreakMultiplier,
			TotalPoints:      points.TotalPoints,
			StreakAtAnswer:   points.NewStreak,
			AnsweredAt:       now,
		},
		NewStreak: points.NewStreak,
		Complete:  complete,
		At:        now,
	})
	if err != nil {
		return domain.AnswerResult{}, nil, err
	}

	ev := newEvent(EventPlayerScored, updated, now)
	ev.FirstAnswer = firstAnswer
	s.emit(ctx, ev)

	return domain.AnswerResult{
		IsCorrect:        isCorrect,
		CorrectAnswerID:  correct.ID,
		BasePoints:       points.BasePoints,
		TimeBonus:        points.TimeBonus,
		StreakMultiplier: points.StreakMultiplier,
		TotalPoints:      points.TotalPoints,
		NewTotalScore:    updated.CurrentScore,
		NewStreak:        updated.CurrentStreak,
		IsGameComplete:   updated.Status == domain.StatusFinished,
	}, updated, nil
}

func (s *QuizService) emit(ctx context.Context, ev Event) {
	if err := s.outbox.Emit(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Error("outbox emit failed",
			zap.String("event_type", string(ev.Type)),
			zap.String("game_id", ev.GameID),
			zap.String("player_id", ev.PlayerID),
			zap.Error(err),
		)
	}
}

func validateSubmission(sub domain.AnswerSubmission) error {
	var missing []string
	if strings.TrimSpace(sub.GameID) == "" {
		missing = append(missing, "gameId")
	}
	if strings.TrimSpace(sub.PlayerID) == "" {
		missing = append(missing, "playerId")
	}
	if strings.TrimSpace(sub.QuestionID) == "" {
		missing = append(missing, "questionId")
	}
	if strings.TrimSpace(sub.AnswerID) == "" {
		missing = append(missing, "answerId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if sub.QuestionIndex < 0 || sub.ResponseTimeMs < 0 {
		return fmt.Errorf("%w: questionIndex and responseTimeMs must be non-negative", domain.ErrInvalidRequest)
	}
	return nil
}

// SetPhase moves a game between waiting, active and finished.
func (s *QuizService) SetPhase(ctx context.Context, gameID string, phase domain.GamePhase) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", domain.ErrInvalidRequest, phase)
	}
	if _, err := s.quizzes.GetGame(ctx, gameID); err != nil {
		return err
	}
	return s.phases.SetPhase(ctx, gameID, phase)
}

// ReloadGame drops any cached copy of the game and loads it again, so edits to
// the backing store are visible without waiting for the cache TTL.
func (s *QuizService) ReloadGame(ctx context.Context, gameID string) (domain.Game, error) {
	if strings.TrimSpace(gameID) == "" {
		return domain.Game{}, fmt.Errorf("%w: gameId is required", domain.ErrInvalidRequest)
	}
	if inv, ok := s.quizzes.(CatalogInvalidator); ok {
		if err := inv.Invalidate(ctx, gameID); err != nil {
			return domain.Game{}, fmt.Errorf("invalidate game %s: %w", gameID, err)
		}
	}
	game, err := s.quizzes.GetGame(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	s.logger.Info("game reloaded", zap.String("game_id", gameID), zap.Int("active_questions", game.ActiveQuestionCount()))
	return game, nil
}

// Phase reports the current phase of a game.
func (s *QuizService) Phase(ctx context.Context, gameID string) (domain.GamePhase, error) {
	return s.phases.Phase(ctx, gameID)
}

// Leaderboard returns the mirror standings of a game, or one of its branches,
// best first. limit <= 0 returns every entry.
func (s *QuizService) Leaderboard(ctx context.Context, gameID, branchID string, limit int) (domain.Leaderboard, error) {
	var (
		entries []domain.LeaderboardEntry
		err     error
	)
	if branchID != "" {
		entries, err = s.mirror.BranchEntries(ctx, gameID, branchID)
	} else {
		entries, err = s.mirror.Entries(ctx, gameID)
	}
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}
	SortEntries(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return domain.Leaderboard{
		GameID:    gameID,
		BranchID:  branchID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}, nil
}

// Snapshot is the SnapshotFunc used by the live leaderboard hub.
func (s *QuizService) Snapshot(ctx context.Context, gameID string) (domain.Leaderboard, error) {
	return s.Leaderboard(ctx, gameID, "", 0)
}

// RecentCompletions returns the newest-first completion feed.
func (s *QuizService) RecentCompletions(ctx context.Context, gameID string, limit int) ([]domain.LeaderboardEntry, error) {
	return s.mirror.Recent(ctx, gameID, limit)
}

// Stats returns counters and read-time averages for a game.
func (s *QuizService) Stats(ctx context.Context, gameID string) (domain.StatsSnapshot, error) {
	counters, err := s.stats.Counters(ctx, gameID)
	if err != nil {
		return domain.StatsSnapshot{}, fmt.Errorf("load stats: %w", err)
	}
	return counters.Snapshot(gameID), nil
}

// Player returns the authoritative record of a player.
func (s *QuizService) Player(ctx context.Context, gameID, playerID string) (*domain.Player, error) {
	return s.players.Get(ctx, gameID, playerID)
}

// Results returns the finalized records of finished players, best first.
func (s *QuizService) Results(ctx context.Context, gameID string) ([]*domain.Player, error) {
	players, err := s.players.ListByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	finished := make([]*domain.Player, 0, len(players))
	for _, p := range players {
		if p.Status == domain.StatusFinished {
			finished = append(finished, p)
		}
	}
	sortPlayers(finished)
	return finished, nil
}

func sortPlayers(players []*domain.Player) {
	entries := make([]domain.LeaderboardEntry, len(players))
	byID := make(map[string]*domain.Player, len(players))
	for i, p := range players {
		entries[i] = p.LeaderboardEntry()
		byID[p.ID] = p
	}
	SortEntries(entries)
	for i, e := range entries {
		players[i] = byID[e.PlayerID]
	}
}
