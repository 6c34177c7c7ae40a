package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"audittrail/internal/platform/config"
	"audittrail/internal/platform/httpserver"
	"audittrail/internal/platform/kafka"
	kafkaconsumer "audittrail/internal/platform/kafka/consumer"
	"audittrail/internal/platform/kafka/producer"
	"audittrail/internal/platform/logger"
	"audittrail/internal/platform/metrics"
	httptransport "audittrail/internal/transport/http"
	auditconsumer "audittrail/pkg/platform/audit/consumer"
	"audittrail/pkg/platform/audit/outbox"
	"audittrail/pkg/platform/audit/publisher"
	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/platform/circuit"
	"audittrail/pkg/platform/middleware/ratelimit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.Env, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	// The startup sequence is itself recorded and published once the sinks are up.
	boot := scope.New("startup", echoOption(cfg, log)...)
	s, err := openSinks(ctx, cfg, log, boot)
	if err != nil {
		return err
	}
	defer s.close()

	pubOpts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(m.Registry)),
		publisher.WithBreaker(circuit.New("audit-sink",
			circuit.WithFailureThreshold(cfg.Publisher.BreakerThreshold),
			circuit.WithCooldown(cfg.Publisher.BreakerCooldown),
		)),
	}
	if cfg.Publisher.Mode == "async" {
		pubOpts = append(pubOpts, publisher.WithAsyncBuffer(cfg.Publisher.BufferSize))
	}
	pub := publisher.NewPublisher(s.store, pubOpts...)
	defer func() {
		if err := pub.Close(); err != nil {
			log.Error("audit publisher close failed", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if s.outbox != nil {
		if err := startPipeline(gctx, g, cfg, log, m, s, boot); err != nil {
			return err
		}
	}

	boot.LogEvent("ready")
	if err := pub.Publish(ctx, boot); err != nil {
		log.Warn("startup trail not published", "error", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.Server.AdminRPS > 0 {
		limiter = ratelimit.New(cfg.Server.AdminRPS, cfg.Server.AdminBurst, 3*time.Minute)
		g.Go(func() error { return limiter.Run(gctx) })
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Trails:       s.reader,
		Publisher:    pub,
		Metrics:      m,
		Logger:       log,
		AdminToken:   cfg.Server.AdminToken,
		AdminLimiter: limiter,
		Checks:       s.checks,
		Echo:         cfg.Publisher.Echo,
	})
	srv := httpserver.New(cfg.Server.Addr, router, log)

	g.Go(func() error {
		log.Info("starting audittrail", "addr", cfg.Server.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startPipeline runs the outbox relay and, with Kafka configured, the materializing
// consumer. Without brokers the relay materializes in-process.
func startPipeline(ctx context.Context, g *errgroup.Group, cfg config.Config, log *slog.Logger, m *metrics.Metrics, s *sinks, boot *scope.Scope) error {
	relayOpts := []outbox.Option{
		outbox.WithLogger(log),
		outbox.WithInterval(cfg.Relay.Interval),
		outbox.WithBatchSize(cfg.Relay.BatchSize),
		outbox.WithMetrics(outbox.NewMetrics(m.Registry)),
	}

	if len(cfg.Kafka.Brokers) == 0 {
		relay := outbox.NewRelay(s.outbox, outbox.NewDirect(s.outbox), cfg.Kafka.Topic, relayOpts...)
		g.Go(func() error { return relay.Run(ctx) })
		boot.LogEvent("relay: in-process materialization")
		return nil
	}

	return scope.Segment(boot, "kafka", func(sc *scope.Scope) error {
		client, err := kafka.NewClient(cfg.Kafka)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() error { client.Close(); return nil })
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return err
		}
		sc.Logf("topic %s ready", cfg.Kafka.Topic)
		prod := producer.New(client)
		s.checks["kafka"] = prod.Ping

		relay := outbox.NewRelay(s.outbox, prod, cfg.Kafka.Topic, relayOpts...)
		g.Go(func() error { return relay.Run(ctx) })

		router := auditconsumer.NewRouter(log, nil)
		if err := router.Register(cfg.Kafka.Topic, auditconsumer.NewTrailHandler(s.outbox, log, auditconsumer.NewMetrics(m.Registry))); err != nil {
			return err
		}
		consumerClient, err := kafka.NewClient(cfg.Kafka,
			kgo.ConsumerGroup(cfg.Kafka.GroupID),
			kgo.ConsumeTopics(router.Topics()...),
			kgo.DisableAutoCommit(),
		)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() error { consumerClient.Close(); return nil })
		c := kafkaconsumer.New(consumerClient, router, kafkaconsumer.WithLogger(log))
		g.Go(func() error { return c.Run(ctx) })
		sc.LogEvent("relay and consumer started")
		return nil
	})
}

func echoOption(cfg config.Config, log *slog.Logger) []scope.Option {
	if cfg.Publisher.Echo {
		return []scope.Option{scope.WithEcho(log)}
	}
	return nil
}
