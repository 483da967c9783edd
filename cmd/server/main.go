package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"splitgroups/internal/events"
	"splitgroups/internal/expense"
	grouphandler "splitgroups/internal/group/handler"
	groupmetrics "splitgroups/internal/group/metrics"
	groupservice "splitgroups/internal/group/service"
	groupstore "splitgroups/internal/group/store"
	"splitgroups/internal/identity"
	jwttoken "splitgroups/internal/jwt_token"
	"splitgroups/internal/photo"
	"splitgroups/internal/platform/cache"
	"splitgroups/internal/platform/config"
	"splitgroups/internal/platform/httpserver"
	"splitgroups/internal/platform/kafka"
	"splitgroups/internal/platform/logger"
	"splitgroups/internal/platform/messaging"
	"splitgroups/internal/platform/metrics"
	"splitgroups/internal/platform/middleware"
	"splitgroups/internal/platform/postgres"
	platformredis "splitgroups/internal/platform/redis"
	summarymetrics "splitgroups/internal/summary/metrics"
	summaryservice "splitgroups/internal/summary/service"
	summarystore "splitgroups/internal/summary/store"
	"splitgroups/pkg/platform/circuit"
	"splitgroups/pkg/platform/httputil"
)

// main wires dependencies once, then runs the HTTP server, the expense
// subscriber and the reconciler until SIGINT/SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("groups service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("groups service stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	infra := metrics.New()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	sharedCache := cache.Instrument(cache.NewRedis(redisClient.Client), infra)

	db, err := postgres.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return err
	}
	pool, err := postgres.OpenPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	publisherTransport, subscriber, err := newTransport(ctx, cfg, redisClient, log)
	if err != nil {
		return err
	}
	defer publisherTransport.Close()
	defer subscriber.Close()

	identityBreaker := circuit.New("identity",
		circuit.WithFailureThreshold(cfg.Breakers.IdentityThreshold),
		circuit.WithTimeout(cfg.Breakers.IdentityTimeout),
		circuit.WithStateObserver(infra.BreakerObserver()),
	)
	photoBreaker := circuit.New("photo",
		circuit.WithFailureThreshold(cfg.Breakers.PhotoThreshold),
		circuit.WithTimeout(cfg.Breakers.PhotoTimeout),
		circuit.WithStateObserver(infra.BreakerObserver()),
	)

	groups := groupstore.NewPostgres(db)
	summaries := summaryservice.New(summarystore.NewPostgres(pool), groups, sharedCache,
		summaryservice.WithLogger(log),
		summaryservice.WithMetrics(summarymetrics.New()),
	)

	publisher := events.NewPublisher(publisherTransport, cfg.Events.GroupTopic,
		events.WithAsyncBuffer(cfg.Events.PublishBuffer),
		events.WithLogger(log),
		events.WithMetrics(events.NewMetrics()),
	)
	defer publisher.Close()

	resolver := identity.NewResolver(
		identity.NewHTTPClient(cfg.Identity.URL, identity.WithTimeout(cfg.Identity.Timeout)),
		identityBreaker, sharedCache, identity.WithLogger(log),
	)
	picker := photo.NewPicker(
		photo.NewClient(cfg.Photo.URL, cfg.Photo.AccessKey, photo.WithTimeout(cfg.Photo.Timeout)),
		photoBreaker, cfg.Photo.FallbackURL, photo.WithLogger(log),
	)

	groupService := groupservice.New(groups, sharedCache, summaries, resolver, picker, publisher,
		groupservice.WithLogger(log),
		groupservice.WithMetrics(groupmetrics.New()),
	)

	consumer := expense.NewConsumer(summaries, sharedCache,
		expense.WithLogger(log),
		expense.WithMetrics(expense.NewMetrics()),
	)
	router := messaging.NewRouter(log, nil)
	router.Register(cfg.Events.ExpenseTopic, messaging.Retry(consumer,
		messaging.WithOnExhausted(consumer.MarkStaleOnExhausted),
		messaging.WithRetryLogger(log),
	))

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	srv := httpserver.New(cfg.Server, newRouter(log, redisClient, db.PingContext,
		grouphandler.New(groupService, jwttoken.NewValidator(jwtService), log)))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting groups service", "transport", cfg.Events.Transport)
		return httpserver.Serve(ctx, srv, cfg.Server.ShutdownTimeout, log)
	})

	g.Go(func() error {
		log.Info("subscribing to expense events", "topics", router.Topics())
		return subscriber.Subscribe(ctx, router.Topics(), router)
	})

	if cfg.Reconcile.Enabled {
		reconciler := summaryservice.NewReconciler(summaries, cfg.Reconcile.Interval, log)
		g.Go(func() error {
			return reconciler.Run(ctx)
		})
	}

	return g.Wait()
}

// newTransport builds the outbound publisher and inbound subscriber for the
// configured event transport.
func newTransport(ctx context.Context, cfg config.Config, client *platformredis.Client, log *slog.Logger) (messaging.Publisher, messaging.Subscriber, error) {
	switch cfg.Events.Transport {
	case config.TransportKafka:
		if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.Partitions, cfg.Kafka.Replication,
			cfg.Events.GroupTopic, cfg.Events.ExpenseTopic); err != nil {
			return nil, nil, err
		}
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, nil, err
		}
		return producer, kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, log), nil
	default:
		pubsub := platformredis.NewPubSub(client.Client, log)
		return pubsub, pubsub, nil
	}
}

func newRouter(log *slog.Logger, redisClient *platformredis.Client, pingDB func(context.Context) error, groups *grouphandler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "redis": "ok", "postgres": "ok"}
		code := http.StatusOK
		if err := redisClient.Health(r.Context()); err != nil {
			status["redis"], status["status"], code = err.Error(), "degraded", http.StatusServiceUnavailable
		}
		if err := pingDB(r.Context()); err != nil {
			status["postgres"], status["status"], code = err.Error(), "degraded", http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, status)
	})
	r.Handle("/metrics", promhttp.Handler())

	groups.Register(r)
	return r
}
