package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"event-trivia-service/internal/app"
	"event-trivia-service/internal/config"
	"event-trivia-service/internal/domain"
	"event-trivia-service/internal/infra/events"
	"event-trivia-service/internal/infra/memory"
	pgstore "event-trivia-service/internal/infra/postgres"
	infraredis "event-trivia-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// deps is the fully wired service graph. Backends are chosen from config:
// Redis and Postgres when configured, in-memory stores otherwise.
type deps struct {
	service    *app.QuizService
	hub        *app.Hub
	projector  *app.Projector
	reconciler *app.Reconciler
	source     app.EventSource
	// bridge relays change notifications between instances; nil without Redis.
	bridge *infraredis.Notifier

	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (*deps, error) {
	d := &deps{}
	fail := func(err error) (*deps, error) {
		d.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
	}

	var (
		loader  memory.GameLoader = memory.NewStaticGameLoader(sampleGames())
		players app.PlayerRepository
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		d.closers = append(d.closers, pool.Close)
		loader = pgstore.NewGameLoader(pool)

		db := openBun(cfg.Postgres.URL)
		d.closers = append(d.closers, func() { _ = db.Close() })
		players = pgstore.NewPlayerStore(db)
	} else {
		players = memory.NewPlayerStore()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizzes app.QuizRepository
		phases  app.PhaseStore
		mirror  app.LeaderboardMirror
		stats   app.StatsStore
	)
	if redisClient != nil {
		quizzes = infraredis.NewCatalog(redisClient, loader, quizTTL)
		phases = infraredis.NewPhaseStore(redisClient)
		mirror = infraredis.NewLeaderboard(redisClient, cfg.Leaderboard.RecentCapacity)
		stats = infraredis.NewStats(redisClient)
		d.bridge = infraredis.NewNotifier(redisClient, "", logger)
	} else {
		quizzes = memory.NewCatalog(loader, quizTTL)
		phases = memory.NewPhaseStore()
		mirror = memory.NewLeaderboard(cfg.Leaderboard.RecentCapacity)
		stats = memory.NewStats()
	}

	var outbox app.Outbox
	switch cfg.Outbox.Backend {
	case "redis":
		if redisClient == nil {
			return fail(fmt.Errorf("outbox backend redis requires redis.addr"))
		}
		ob := infraredis.NewOutbox(redisClient, infraredis.OutboxConfig{
			Stream:  cfg.Outbox.Stream,
			Group:   cfg.Outbox.Group,
			Workers: cfg.Outbox.Workers,
			MaxLen:  int64(cfg.Outbox.Buffer) * 100,
		}, logger.Named("outbox"))
		outbox, d.source = ob, ob
	case "memory":
		ob := memory.NewOutbox(cfg.Outbox.Buffer, cfg.Outbox.Workers)
		outbox, d.source = ob, ob
	default:
		return fail(fmt.Errorf("unknown outbox backend %q", cfg.Outbox.Backend))
	}

	var sink app.CompletionSink
	switch cfg.Completion.Sink {
	case "amqp":
		if cfg.AMQP.URL == "" {
			return fail(fmt.Errorf("completion sink amqp requires amqp.url"))
		}
		pub, err := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger.Named("amqp"))
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, pub.Close)
		sink = pub
	case "log":
		sink = events.NewLogSink(logger.Named("completion"))
	default:
		return fail(fmt.Errorf("unknown completion sink %q", cfg.Completion.Sink))
	}

	// The hub reads through the service, which is built after it.
	var service *app.QuizService
	d.hub = app.NewHub(func(ctx context.Context, gameID string) (domain.Leaderboard, error) {
		return service.Snapshot(ctx, gameID)
	})
	var notifier app.Notifier = d.hub
	if d.bridge != nil {
		notifier = d.bridge
	}

	completion, err := app.NewCompletionRecorder(app.CompletionConfig{
		Players: players,
		Mirror:  mirror,
		Stats:   stats,
		Outbox:  outbox,
		Logger:  logger.Named("completion"),
	})
	if err != nil {
		return fail(err)
	}

	var branches app.BranchDirectory
	if len(cfg.Branches) > 0 {
		branches = memory.NewBranchDirectory(cfg.Branches)
	}
	service, err = app.NewQuizService(app.ServiceConfig{
		Players:           players,
		Quizzes:           quizzes,
		Phases:            phases,
		Mirror:            mirror,
		Stats:             stats,
		Outbox:            outbox,
		Completion:        completion,
		Branches:          branches,
		DefaultScoring:    cfg.ScoringDefaults(),
		CompletionTimeout: config.TTLDuration(cfg.Completion.Timeout, 2*time.Second),
		Logger:            logger.Named("quiz"),
	})
	if err != nil {
		return fail(err)
	}
	d.service = service

	d.projector, err = app.NewProjector(app.ProjectorConfig{
		Mirror:     mirror,
		Stats:      stats,
		Sink:       sink,
		Notifier:   notifier,
		Logger:     logger.Named("projector"),
		MaxRetries: cfg.Outbox.MaxRetries,
	})
	if err != nil {
		return fail(err)
	}
	d.reconciler = app.NewReconciler(players, mirror, logger.Named("reconciler"))
	return d, nil
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}
