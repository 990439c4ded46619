package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"event-trivia-service/internal/app"
	"event-trivia-service/internal/domain"
	"event-trivia-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	service   *app.QuizService
	players   *memory.PlayerStore
	mirror    app.LeaderboardMirror
	stats     *memory.Stats
	phases    *memory.PhaseStore
	outbox    *memory.Outbox
	projector *app.Projector
	sink      *recordingSink
	clock     *fakeClock
}

type envOption func(*envOptions)

type envOptions struct {
	mirror app.LeaderboardMirror
	game   domain.Game
}

func withMirror(m app.LeaderboardMirror) envOption { return func(o *envOptions) { o.mirror = m } }
func withGame(g domain.Game) envOption             { return func(o *envOptions) { o.game = g } }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	o := envOptions{mirror: memory.NewLeaderboard(10), game: threeQuestionGame()}
	for _, opt := range opts {
		opt(&o)
	}

	env := &testEnv{
		players: memory.NewPlayerStore(),
		mirror:  o.mirror,
		stats:   memory.NewStats(),
		phases:  memory.NewPhaseStore(),
		outbox:  memory.NewOutbox(256, 1),
		sink:    &recordingSink{},
		clock:   newFakeClock(),
	}
	quizzes := memory.NewCatalog(memory.NewStaticGameLoader(map[string]domain.Game{
		o.game.ID: o.game,
	}), time.Minute)

	completion, err := app.NewCompletionRecorder(app.CompletionConfig{
		Players: env.players,
		Mirror:  env.mirror,
		Stats:   env.stats,
		Outbox:  env.outbox,
		Now:     env.clock.Now,
	})
	require.NoError(t, err)

	env.service, err = app.NewQuizService(app.ServiceConfig{
		Players:        env.players,
		Quizzes:        quizzes,
		Phases:         env.phases,
		Mirror:         env.mirror,
		Stats:          env.stats,
		Outbox:         env.outbox,
		Completion:     completion,
		Branches:       memory.NewBranchDirectory([]string{"north", "south"}),
		DefaultScoring: testScoring(),
		Now:            env.clock.Now,
	})
	require.NoError(t, err)

	env.projector, err = app.NewProjector(app.ProjectorConfig{
		Mirror:     env.mirror,
		Stats:      env.stats,
		Sink:       env.sink,
		MaxRetries: 1,
	})
	require.NoError(t, err)

	require.NoError(t, env.phases.SetPhase(context.Background(), o.game.ID, domain.PhaseActive))
	return env
}

// project runs the outbox consumer synchronously.
func (e *testEnv) project() {
	e.outbox.Drain(context.Background(), e.projector.Handle)
}

func (e *testEnv) register(t *testing.T, playerID string) {
	t.Helper()
	_, err := e.service.RegisterPlayer(context.Background(), app.RegisterInput{
		GameID:      "game-1",
		PlayerID:    playerID,
		DisplayName: playerID,
	})
	require.NoError(t, err)
}

func (e *testEnv) answer(playerID, questionID, answerID string, rt int64) (domain.AnswerResult, error) {
	e.clock.Advance(time.Second)
	return e.service.SubmitAnswer(context.Background(), domain.AnswerSubmission{
		GameID:         "game-1",
		PlayerID:       playerID,
		QuestionID:     questionID,
		QuestionIndex:  0,
		AnswerID:       answerID,
		ResponseTimeMs: rt,
	})
}

func TestSubmitAnswerScoresTimeAndStreak(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	res, err := env.answer("alice", "q1", "q1-b", 9000)
	require.NoError(t, err)

	assert.True(t, res.IsCorrect)
	assert.Equal(t, "q1-b", res.CorrectAnswerID)
	assert.Equal(t, 100, res.BasePoints)
	assert.Equal(t, 35, res.TimeBonus)
	assert.Equal(t, 1.0, res.StreakMultiplier)
	assert.Equal(t, 135, res.TotalPoints)
	assert.Equal(t, 135, res.NewTotalScore)
	assert.Equal(t, 1, res.NewStreak)
	assert.False(t, res.IsGameComplete)
	assert.Nil(t, res.Rank)

	p, err := env.service.Player(context.Background(), "game-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaying, p.Status)
	require.Len(t, p.Answers, 1)
	assert.Equal(t, 135, p.Answers[0].TotalPoints)
	assert.Equal(t, 1, p.Answers[0].StreakAtAnswer)
}

func TestSubmitAnswerIncorrectResetsStreak(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	_, err := env.answer("alice", "q1", "q1-b", 0)
	require.NoError(t, err)
	res, err := env.answer("alice", "q2", "q2-b", 0)
	require.NoError(t, err)

	assert.False(t, res.IsCorrect)
	assert.Equal(t, "q2-a", res.CorrectAnswerID)
	assert.Zero(t, res.TotalPoints)
	assert.Zero(t, res.NewStreak)

	p, _ := env.service.Player(context.Background(), "game-1", "alice")
	assert.Equal(t, 1, p.MaxStreak)
	assert.Equal(t, 1, p.CorrectAnswers)
	assert.Equal(t, 1, p.WrongAnswers)
}

func TestSubmitAnswerDuplicateIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	first, err := env.answer("alice", "q1", "q1-b", 1000)
	require.NoError(t, err)

	_, err = env.answer("alice", "q1", "q1-b", 1000)
	require.ErrorIs(t, err, domain.ErrAlreadyAnswered)
	assert.Equal(t, domain.CodeAlreadyAnswered, domain.CodeOf(err))

	p, _ := env.service.Player(context.Background(), "game-1", "alice")
	assert.Equal(t, first.NewTotalScore, p.CurrentScore)
	assert.Len(t, p.Answers, 1)
}

func TestSubmitAnswerPreconditions(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	ctx := context.Background()

	_, err := env.service.SubmitAnswer(ctx, domain.AnswerSubmission{GameID: "game-1", PlayerID: "alice"})
	assert.Equal(t, domain.CodeInvalidRequest, domain.CodeOf(err))

	_, err = env.answer("bob", "q1", "q1-b", 1000)
	assert.Equal(t, domain.CodePlayerNotFound, domain.CodeOf(err))

	_, err = env.answer("alice", "q-missing", "x", 1000)
	assert.Equal(t, domain.CodeQuestionNotFound, domain.CodeOf(err))

	_, err = env.answer("alice", "q-retired", "x", 1000)
	assert.Equal(t, domain.CodeQuestionNotFound, domain.CodeOf(err), "inactive questions are not answerable")

	require.NoError(t, env.service.SetPhase(ctx, "game-1", domain.PhaseWaiting))
	_, err = env.answer("alice", "q1", "q1-b", 1000)
	assert.Equal(t, domain.CodeGameNotActive, domain.CodeOf(err))

	p, _ := env.service.Player(ctx, "game-1", "alice")
	assert.Empty(t, p.Answers, "rejected submissions must not mutate the player")
	assert.Equal(t, domain.StatusRegistered, p.Status)
}

func TestSubmitAnswerMissingCorrectAnswerIsInternal(t *testing.T) {
	game := threeQuestionGame()
	game.Questions[0].Options[1].Correct = false
	env := newTestEnv(t, withGame(game))
	ctx := context.Background()

	_, err := env.service.RegisterPlayer(ctx, app.RegisterInput{GameID: "game-1", PlayerID: "alice"})
	require.ErrorIs(t, err, domain.ErrNoCorrectAnswer)
	assert.Equal(t, domain.CodeInternal, domain.CodeOf(err))

	// a record created before the catalog went bad still cannot be scored
	require.NoError(t, env.players.Create(ctx, &domain.Player{
		GameID: "game-1", ID: "bob", Status: domain.StatusRegistered, Answers: []domain.AnswerRecord{},
	}))
	_, err = env.answer("bob", "q1", "q1-b", 1000)
	require.ErrorIs(t, err, domain.ErrNoCorrectAnswer)
	assert.Equal(t, domain.CodeInternal, domain.CodeOf(err))

	p, err := env.service.Player(ctx, "game-1", "bob")
	require.NoError(t, err)
	assert.Empty(t, p.Answers)
}

func TestCompletionBoundaryAndDuplicateFinishGuard(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	prev := 0
	for i, q := range []string{"q1", "q2", "q3"} {
		res, err := env.answer("alice", q, q+"-a", 5000)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.NewTotalScore, prev, "score must not decrease")
		prev = res.NewTotalScore
		if i < 2 {
			assert.False(t, res.IsGameComplete, "complete too early at %s", q)
			assert.Nil(t, res.Rank)
		} else {
			assert.True(t, res.IsGameComplete)
			require.NotNil(t, res.Rank)
			assert.Equal(t, 1, *res.Rank)
		}
	}

	p, _ := env.service.Player(context.Background(), "game-1", "alice")
	assert.Equal(t, domain.StatusFinished, p.Status)
	assert.True(t, p.HasCompleted)
	assert.Equal(t, 1, p.PlayCount)
	require.NotNil(t, p.FinishedAt)
	require.NotNil(t, p.Rank)
	assert.Len(t, p.Answers, 3)

	_, err := env.answer("alice", "q1", "q1-b", 1000)
	require.ErrorIs(t, err, domain.ErrPlayerFinished)
	assert.Equal(t, domain.CodeAlreadyAnswered, domain.CodeOf(err))

	p, _ = env.service.Player(context.Background(), "game-1", "alice")
	assert.Equal(t, 1, p.PlayCount)

	assert.Empty(t, env.sink.events(), "the sink is fed by the projector, not the request")
	env.project()
	require.Len(t, env.sink.events(), 1)
	assert.Equal(t, app.EventPlayerFinished, env.sink.events()[0].Type)
}

func TestCompletionUpdatesStatsAndRecentFeed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice")
	env.register(t, "bob")

	_, err := env.answer("bob", "q1", "q1-b", 1000)
	require.NoError(t, err)
	env.project()

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := env.answer("alice", q, q+"-z", 1000) // all wrong
		require.NoError(t, err)
	}
	env.project()

	stats, err := env.service.Stats(ctx, "game-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Registered)
	assert.EqualValues(t, 2, stats.Started)
	assert.EqualValues(t, 1, stats.Finished)
	assert.EqualValues(t, 1, stats.Playing)
	assert.EqualValues(t, 4, stats.Answers)
	assert.InDelta(t, 0, stats.AvgScore, 1e-9)
	assert.InDelta(t, 3000, stats.AvgTimeMs, 1e-9)

	recent, err := env.service.RecentCompletions(ctx, "game-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "alice", recent[0].PlayerID)
	require.NotNil(t, recent[0].Rank)
	assert.Equal(t, 2, *recent[0].Rank, "bob is ahead on score while still playing")

	lb, err := env.service.Leaderboard(ctx, "game-1", "", 0)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, "bob", lb.Entries[0].PlayerID)
	assert.Equal(t, 1, lb.Entries[0].Position)
}

func TestRankOrderingOnFinish(t *testing.T) {
	game := oneQuestionGame()
	env := newTestEnv(t, withGame(game))
	for _, id := range []string{"fast", "slow", "wrong"} {
		env.register(t, id)
	}

	slow, err := env.answer("slow", "q1", "q1-b", 20000)
	require.NoError(t, err)
	fast, err := env.answer("fast", "q1", "q1-b", 1000)
	require.NoError(t, err)
	wrong, err := env.answer("wrong", "q1", "q1-a", 500)
	require.NoError(t, err)

	require.NotNil(t, slow.Rank)
	require.NotNil(t, fast.Rank)
	require.NotNil(t, wrong.Rank)
	assert.Equal(t, 1, *slow.Rank, "slow was alone when it finished")
	assert.Equal(t, 1, *fast.Rank)
	assert.Equal(t, 3, *wrong.Rank)

	results, err := env.service.Results(context.Background(), "game-1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"fast", "slow", "wrong"}, []string{results[0].ID, results[1].ID, results[2].ID})
}

func TestFinishWithZeroPointsRanksAheadOfIdlePlayers(t *testing.T) {
	env := newTestEnv(t, withGame(oneQuestionGame()))
	for _, id := range []string{"bob", "carol", "dave", "alice"} {
		env.register(t, id)
	}
	env.project()

	res, err := env.answer("alice", "q1", "q1-a", 1000) // wrong
	require.NoError(t, err)
	assert.Zero(t, res.NewTotalScore)
	assert.True(t, res.IsGameComplete)
	require.NotNil(t, res.Rank)
	assert.Equal(t, 1, *res.Rank)
}

func TestMirrorFailureDoesNotFailSubmission(t *testing.T) {
	mirror := &failingMirror{LeaderboardMirror: memory.NewLeaderboard(10)}
	env := newTestEnv(t, withMirror(mirror), withGame(oneQuestionGame()))
	env.register(t, "alice")
	mirror.fail.Store(true)

	res, err := env.answer("alice", "q1", "q1-b", 1000)
	require.NoError(t, err)
	assert.True(t, res.IsGameComplete)
	assert.Equal(t, 100+48, res.NewTotalScore)
	assert.Nil(t, res.Rank, "rank is unavailable while the mirror is down")

	env.project()
	p, _ := env.service.Player(context.Background(), "game-1", "alice")
	assert.Equal(t, domain.StatusFinished, p.Status)
}

func TestConcurrentSubmissionsSamePlayer(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		dupes     atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.SubmitAnswer(context.Background(), domain.AnswerSubmission{
				GameID: "game-1", PlayerID: "alice", QuestionID: "q1", AnswerID: "q1-b", ResponseTimeMs: 1000,
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrAlreadyAnswered):
				dupes.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, 9, dupes.Load())

	p, _ := env.service.Player(context.Background(), "game-1", "alice")
	assert.Len(t, p.Answers, 1)
	total := 0
	for _, a := range p.Answers {
		total += a.TotalPoints
	}
	assert.Equal(t, total, p.CurrentScore)
}

func TestRegisterPlayerBranches(t *testing.T) {
	game := threeQuestionGame()
	game.BranchesEnabled = true
	env := newTestEnv(t, withGame(game))
	ctx := context.Background()

	p, err := env.service.RegisterPlayer(ctx, app.RegisterInput{GameID: "game-1", PlayerID: "alice", BranchID: "north"})
	require.NoError(t, err)
	assert.Equal(t, "north", p.BranchID)
	assert.Equal(t, "alice", p.DisplayName)

	_, err = env.service.RegisterPlayer(ctx, app.RegisterInput{GameID: "game-1", PlayerID: "bob", BranchID: "east"})
	assert.Equal(t, domain.CodeUnknownBranch, domain.CodeOf(err))

	_, err = env.service.RegisterPlayer(ctx, app.RegisterInput{GameID: "game-1", PlayerID: "alice"})
	assert.Equal(t, domain.CodePlayerExists, domain.CodeOf(err))

	_, err = env.service.RegisterPlayer(ctx, app.RegisterInput{GameID: "nope", PlayerID: "carol"})
	assert.Equal(t, domain.CodeGameNotFound, domain.CodeOf(err))

	env.project()
	north, err := env.service.Leaderboard(ctx, "game-1", "north", 0)
	require.NoError(t, err)
	require.Len(t, north.Entries, 1)
	assert.Equal(t, "alice", north.Entries[0].PlayerID)
}

func TestSetPhaseValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.service.SetPhase(ctx, "game-1", "paused")
	assert.Equal(t, domain.CodeInvalidRequest, domain.CodeOf(err))

	err = env.service.SetPhase(ctx, "missing", domain.PhaseActive)
	require.ErrorIs(t, err, domain.ErrGameNotFound)

	require.NoError(t, env.service.SetPhase(ctx, "game-1", domain.PhaseFinished))
	phase, err := env.service.Phase(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFinished, phase)
}

func testScoring() domain.ScoringConfig {
	return domain.ScoringConfig{
		Mode:               domain.ModeTimeAndStreak,
		BasePoints:         100,
		TimeBonusMax:       50,
		DefaultTimeLimitMs: 30000,
		StreakTable:        []float64{1.0, 1.0, 1.2, 1.5, 2.0},
	}
}

func question(id string, active bool) domain.Question {
	return domain.Question{
		ID:     id,
		Prompt: "Question " + id,
		Options: []domain.Option{
			{ID: id + "-a", Text: "A", Correct: id != "q1"},
			{ID: id + "-b", Text: "B", Correct: id == "q1"},
		},
		Active: active,
	}
}

func threeQuestionGame() domain.Game {
	return domain.Game{
		ID: "game-1",
		Questions: []domain.Question{
			question("q1", true),
			question("q2", true),
			question("q3", true),
			question("q-retired", false),
		},
	}
}

func oneQuestionGame() domain.Game {
	return domain.Game{ID: "game-1", Questions: []domain.Question{question("q1", true)}}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu   sync.Mutex
	list []app.Event
}

func (s *recordingSink) PublishCompletion(_ context.Context, ev app.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, ev)
	return nil
}

func (s *recordingSink) events() []app.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]app.Event(nil), s.list...)
}

var errMirrorDown = errors.New("mirror down")

type failingMirror struct {
	app.LeaderboardMirror
	fail atomic.Bool
}

func (m *failingMirror) Upsert(ctx context.Context, e domain.LeaderboardEntry) error {
	if m.fail.Load() {
		return errMirrorDown
	}
	return m.LeaderboardMirror.Upsert(ctx, e)
}

func (m *failingMirror) Entries(ctx context.Context, gameID string) ([]domain.LeaderboardEntry, error) {
	if m.fail.Load() {
		return nil, errMirrorDown
	}
	return m.LeaderboardMirror.Entries(ctx, gameID)
}

func (m *failingMirror) PushRecent(ctx context.Context, e domain.LeaderboardEntry) error {
	if m.fail.Load() {
		return errMirrorDown
	}
	return m.LeaderboardMirror.PushRecent(ctx, e)
}
